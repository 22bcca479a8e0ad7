package agentpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	headerPaymentToken       = "X-Payment-Token"
	headerPaymentTransaction = "X-Payment-Transaction"
	headerPaymentRemaining   = "X-Payment-Remaining"
	headerIdempotencyKey     = "Idempotency-Key"

	defaultUserAgent = "agentpay-go"
	maxErrorBody     = 4 << 10
)

// Client is the agentpay SDK entry point.
type Client struct {
	base      *url.URL
	http      *http.Client
	apiKey    string
	userAgent string
	obs       *observer
}

// New creates a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	cfg := &clientConfig{timeout: DefaultTimeout, userAgent: defaultUserAgent}
	for _, o := range opts {
		o.apply(cfg)
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("agentpay: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("agentpay: base url %q must be absolute", baseURL)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		base:      u,
		http:      hc,
		apiKey:    cfg.apiKey,
		userAgent: cfg.userAgent,
		obs:       obs,
	}, nil
}

// Authority returns the token authority service.
func (c *Client) Authority() *AuthorityService {
	return &AuthorityService{c: c}
}

// Gateway returns the data gateway service.
func (c *Client) Gateway() *GatewayService {
	return &GatewayService{c: c}
}

// Tasks returns the task orchestrator service.
func (c *Client) Tasks() *TaskService {
	return &TaskService{c: c}
}

// Health returns the service health. A degraded or failing service answers
// 503 with a report; that is returned without an error.
func (c *Client) Health(ctx context.Context) (_ HealthStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("health", start, err) }()

	resp, err := c.send(ctx, request{op: "health", method: http.MethodGet, path: "/health"})
	if err != nil {
		return HealthStatus{}, err
	}
	if resp.status != http.StatusOK && resp.status != http.StatusServiceUnavailable {
		return HealthStatus{}, resp.apiError("health")
	}
	var hs HealthStatus
	if err := resp.decode(&hs); err != nil || hs.Status == "" {
		return HealthStatus{}, resp.apiError("health")
	}
	return hs, nil
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	header http.Header
	body   any
}

type response struct {
	status int
	header http.Header
	body   []byte
}

// decode unmarshals the response body into out.
func (r *response) decode(out any) error {
	if err := json.Unmarshal(r.body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// expect returns an *APIError unless the status is one of ok.
func (r *response) expect(op string, ok ...int) error {
	for _, s := range ok {
		if r.status == s {
			return nil
		}
	}
	return r.apiError(op)
}

func (r *response) apiError(op string) *APIError {
	apiErr := &APIError{Op: op, Status: r.status}
	if err := json.Unmarshal(r.body, apiErr); err != nil || apiErr.Code == "" {
		apiErr.Code = ""
		apiErr.Message = strings.TrimSpace(string(r.body))
	}
	apiErr.Op = op
	apiErr.Status = r.status
	return apiErr
}

// send performs one request and reads the whole body.
func (c *Client) send(ctx context.Context, req request) (*response, error) {
	u := *c.base
	u.Path = c.base.Path + req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal request: %w", req.op, err)
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", req.op, err)
	}
	for k, v := range req.header {
		httpReq.Header[k] = v
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(req.op, err)
	}
	defer httpResp.Body.Close()

	var r io.Reader = httpResp.Body
	if httpResp.StatusCode >= http.StatusMultipleChoices {
		r = io.LimitReader(httpResp.Body, maxErrorBody)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, classify(req.op, err)
	}

	return &response{status: httpResp.StatusCode, header: httpResp.Header, body: raw}, nil
}

// call sends req and decodes a 2xx answer into out (may be nil).
func (c *Client) call(ctx context.Context, req request, out any, ok ...int) (err error) {
	start := time.Now()
	defer func() { c.obs.observe(req.op, start, err) }()

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	if len(ok) == 0 {
		ok = []int{http.StatusOK}
	}
	if err := resp.expect(req.op, ok...); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := resp.decode(out); err != nil {
		return fmt.Errorf("%s: %w", req.op, err)
	}
	return nil
}

// classify maps a transport error onto the retryable sentinels.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%s: %v: %w", op, err, ErrUpstreamTimeout)
	}
	return fmt.Errorf("%s: %v: %w", op, err, ErrUpstreamUnavailable)
}
