package agentpay

import (
	"context"
	"net/http"
	"net/url"
)

// AuthorityService issues payment tokens and reports their balance.
type AuthorityService struct {
	c *Client
}

// IssueToken requests a token of budget for owner.
func (s *AuthorityService) IssueToken(ctx context.Context, budget int64, owner string) (IssuedToken, error) {
	var tok IssuedToken
	err := s.c.call(ctx, request{
		op:     "authority.issue_token",
		method: http.MethodPost,
		path:   "/token",
		body: struct {
			Budget        int64  `json:"budget"`
			OwnerIdentity string `json:"ownerIdentity"`
		}{budget, owner},
	}, &tok)
	return tok, err
}

// Balance returns the spendable balance; 0 for unknown or expired tokens.
func (s *AuthorityService) Balance(ctx context.Context, tokenID string) (int64, error) {
	var resp struct {
		Balance int64 `json:"balance"`
	}
	err := s.c.call(ctx, request{
		op:     "authority.balance",
		method: http.MethodGet,
		path:   "/balance/" + url.PathEscape(tokenID),
	}, &resp)
	return resp.Balance, err
}

// Report returns the token's spending summary.
func (s *AuthorityService) Report(ctx context.Context, tokenID string) (TokenReport, error) {
	var rep TokenReport
	err := s.c.call(ctx, request{
		op:     "authority.report",
		method: http.MethodGet,
		path:   "/tokens/" + url.PathEscape(tokenID),
	}, &rep)
	return rep, err
}
