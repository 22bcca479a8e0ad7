// Package issuer obtains authorizations from the external token issuer.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/kailas-cloud/agentpay/internal/transport/upstream"
	"github.com/kailas-cloud/agentpay/internal/usecase/authority"
)

// Client calls GET /token?app_id=&app_secret= on the issuer.
type Client struct {
	http      *upstream.Client
	appID     string
	appSecret string
}

// NewClient creates an issuer client with application credentials.
func NewClient(c *upstream.Client, appID, appSecret string) *Client {
	return &Client{http: c, appID: appID, appSecret: appSecret}
}

type tokenResponse struct {
	TokenID  string `json:"token_id"`
	ExpireIn int64  `json:"expire_in"` // seconds
}

// Issue requests a new authorization.
func (c *Client) Issue(ctx context.Context) (authority.Authorization, error) {
	q := url.Values{}
	q.Set("app_id", c.appID)
	q.Set("app_secret", c.appSecret)

	var resp tokenResponse
	if err := c.http.GetJSON(ctx, "issuer_token", "/token", q, &resp); err != nil {
		return authority.Authorization{}, fmt.Errorf("issue token: %w", err)
	}
	if resp.TokenID == "" {
		return authority.Authorization{}, errors.New("issue token: empty token_id")
	}
	return authority.Authorization{
		ID:  resp.TokenID,
		TTL: time.Duration(resp.ExpireIn) * time.Second,
	}, nil
}
