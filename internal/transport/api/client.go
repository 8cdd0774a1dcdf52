package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"medialink-client-go/internal/platform/errors"
)

// DefaultTimeout bounds every request the engine issues unless the caller
// supplies a tighter one.
const DefaultTimeout = 10 * time.Second

// Options configures the API client.
type Options struct {
	// ClientID is sent on every request as X-Client-ID.
	ClientID string
	// UserAgent overrides the default identifier header.
	UserAgent string
	// Timeout is the per-request bound; DefaultTimeout when zero.
	Timeout time.Duration
	// HTTPClient overrides the underlying transport, used by tests.
	HTTPClient *http.Client
}

// Client speaks the fixed media-server contract. One instance is shared by
// the health probe, the session manager and the pairing coordinator so every
// call path goes through the same transport.
type Client struct {
	httpClient *http.Client
	clientID   string
	userAgent  string
	timeout    time.Duration
}

// NewClient builds an API client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		// Per-call contexts carry the deadline; the transport itself is
		// unbounded so a caller-supplied context always wins.
		httpClient = &http.Client{}
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = "medialink-client/1.0"
	}
	return &Client{
		httpClient: httpClient,
		clientID:   opts.ClientID,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Timeout reports the per-request bound the client applies.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Response is the decoded outcome of a request.
type Response struct {
	StatusCode int
	Body       []byte
}

// OK reports whether the status code is 2xx.
func (r Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Decode unmarshals the body into out.
func (r Response) Decode(out any) error {
	if err := sonic.Unmarshal(r.Body, out); err != nil {
		return errors.Wrap(errors.KindTransport, "api.decode", "decode response body", err)
	}
	return nil
}

// Do issues a request with the client's timeout layered onto ctx. A bearer
// token is attached when non-empty. The returned response includes the full
// body; non-2xx statuses are not errors here, callers classify them.
func (c *Client) Do(
	ctx context.Context,
	method, url string,
	payload any,
	bearer string,
) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		data, err := sonic.Marshal(payload)
		if err != nil {
			return Response{}, errors.Wrap(errors.KindTransport, "api.encode", "encode request body", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return Response{}, errors.Wrap(errors.KindTransport, "api.request", "create request", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.clientID != "" {
		req.Header.Set("X-Client-ID", c.clientID)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{}, errors.Wrap(errors.KindTransport, "api.request",
			fmt.Sprintf("%s %s", method, url), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Response{}, errors.Wrap(errors.KindTransport, "api.request", "read response body", err)
	}
	return Response{StatusCode: resp.StatusCode, Body: data}, nil
}

// Get issues an unauthenticated GET.
func (c *Client) Get(ctx context.Context, url string) (Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, "")
}

// GetAuthed issues a GET with a bearer token.
func (c *Client) GetAuthed(ctx context.Context, url, bearer string) (Response, error) {
	return c.Do(ctx, http.MethodGet, url, nil, bearer)
}

// Post issues an unauthenticated POST with a JSON payload.
func (c *Client) Post(ctx context.Context, url string, payload any) (Response, error) {
	return c.Do(ctx, http.MethodPost, url, payload, "")
}

// PostAuthed issues a POST with a bearer token.
func (c *Client) PostAuthed(ctx context.Context, url string, payload any, bearer string) (Response, error) {
	return c.Do(ctx, http.MethodPost, url, payload, bearer)
}
