package agentpay

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// GatewayService lists companies and sells their premium detail.
type GatewayService struct {
	c *Client
}

// List returns the free company listing filtered by keyword (empty for all).
func (s *GatewayService) List(ctx context.Context, keyword string) ([]CompanySummary, error) {
	q := url.Values{}
	if keyword != "" {
		q.Set("keyword", keyword)
	}
	var resp struct {
		Data []CompanySummary `json:"data"`
	}
	err := s.c.call(ctx, request{
		op:     "gateway.list",
		method: http.MethodGet,
		path:   "/company/basic",
		query:  q,
	}, &resp)
	return resp.Data, err
}

// Detail requests a company's premium detail, paying with tokenID when set.
// Payment required, authentication failure and insufficient funds are
// reported through DetailResult.Kind, not as errors.
func (s *GatewayService) Detail(ctx context.Context, companyID, tokenID string) (_ DetailResult, err error) {
	const op = "gateway.detail"
	start := time.Now()
	var res DetailResult
	defer func() {
		s.c.obs.observe(op, start, err)
		if err == nil {
			s.c.obs.detail(res.Kind)
		}
	}()

	req := request{
		op:     op,
		method: http.MethodGet,
		path:   "/company/detail",
		query:  url.Values{"id": {companyID}},
	}
	if tokenID != "" {
		req.header = http.Header{headerPaymentToken: {tokenID}}
	}

	resp, err := s.c.send(ctx, req)
	if err != nil {
		return DetailResult{}, err
	}
	res, err = decodeDetail(op, resp)
	return res, err
}

func decodeDetail(op string, resp *response) (DetailResult, error) {
	switch resp.status {
	case http.StatusOK:
		res := DetailResult{Kind: DetailServed}
		if err := resp.decode(&res.Company); err != nil {
			return DetailResult{}, fmt.Errorf("%s: %w", op, err)
		}
		if tx := resp.header.Get(headerPaymentTransaction); tx != "" {
			res.TransactionID = tx
			res.Remaining, _ = strconv.ParseInt(resp.header.Get(headerPaymentRemaining), 10, 64)
		}
		return res, nil
	case http.StatusPaymentRequired:
		apiErr := resp.apiError(op)
		switch apiErr.Code {
		case string(DetailPaymentRequired):
			res := DetailResult{Kind: DetailPaymentRequired}
			if err := resp.decode(&res.Quote); err != nil {
				return DetailResult{}, fmt.Errorf("%s: %w", op, err)
			}
			return res, nil
		case string(DetailInsufficientFunds):
			return DetailResult{
				Kind:      DetailInsufficientFunds,
				Required:  apiErr.Required,
				Available: apiErr.Available,
			}, nil
		}
		return DetailResult{}, apiErr
	case http.StatusUnauthorized:
		apiErr := resp.apiError(op)
		if apiErr.Code == string(DetailAuthFailed) {
			return DetailResult{Kind: DetailAuthFailed, Reason: apiErr.Message}, nil
		}
		return DetailResult{}, apiErr
	}
	return DetailResult{}, resp.apiError(op)
}

// Pay charges a token. A QuoteID binds the amount to the quoted price and
// makes a following Detail with the same token free of a second charge.
func (s *GatewayService) Pay(ctx context.Context, p PayRequest) (Payment, error) {
	body := struct {
		TokenID string  `json:"tokenId"`
		Amount  int64   `json:"amount"`
		QuoteID *string `json:"quoteId,omitempty"`
	}{TokenID: p.TokenID, Amount: p.Amount}
	if p.QuoteID != "" {
		body.QuoteID = &p.QuoteID
	}

	req := request{
		op:     "gateway.pay",
		method: http.MethodPost,
		path:   "/pay",
		body:   body,
	}
	if p.IdempotencyKey != "" {
		req.header = http.Header{headerIdempotencyKey: {p.IdempotencyKey}}
	}

	var rec Payment
	if err := s.c.call(ctx, req, &rec); err != nil {
		return Payment{}, err
	}
	s.c.obs.paid(rec)
	return rec, nil
}
