package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kailas-cloud/agentpay/internal/domain/identity"
	"github.com/kailas-cloud/agentpay/internal/transport/upstream"
)

// Client verifies owners against the identity service over HTTP.
type Client struct {
	http *upstream.Client
}

// NewClient creates an identity service client.
func NewClient(c *upstream.Client) *Client {
	return &Client{http: c}
}

type verifyResponse struct {
	Verified bool `json:"verified"`
}

type limitsResponse struct {
	DailyLimit       int64 `json:"dailyLimit"`
	TransactionLimit int64 `json:"transactionLimit"`
	MonthlyLimit     int64 `json:"monthlyLimit"`
}

// Verify asks GET /verify/{identity}. An unknown identity is not verified.
func (c *Client) Verify(ctx context.Context, owner string) (bool, error) {
	var resp verifyResponse
	err := c.http.GetJSON(ctx, "identity_verify", "/verify/"+url.PathEscape(owner), nil, &resp)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("verify identity: %w", err)
	}
	return resp.Verified, nil
}

// Limits asks GET /limits/{identity}.
func (c *Client) Limits(ctx context.Context, owner string) (identity.Limits, error) {
	var resp limitsResponse
	if err := c.http.GetJSON(ctx, "identity_limits", "/limits/"+url.PathEscape(owner), nil, &resp); err != nil {
		return identity.Limits{}, fmt.Errorf("get limits: %w", err)
	}
	return identity.Limits{
		Daily:       resp.DailyLimit,
		Transaction: resp.TransactionLimit,
		Monthly:     resp.MonthlyLimit,
	}, nil
}

func isNotFound(err error) bool {
	var se *upstream.StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}
