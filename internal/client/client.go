// Package client provides the HTTP transport for the envoy triage read API
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"remotetriage/internal/logging"
	"remotetriage/internal/triage"
)

// ReadPath is the backend endpoint serving remote envoy reads
const ReadPath = "/v1/envoytriage/read"

// maxErrorBody caps how much of a failed response is kept in the error
const maxErrorBody = 4 << 10

// Client posts read requests to the triage backend
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithToken sends token as a bearer credential
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the backend at baseURL
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read performs one read call and wraps the decoded body in the data envelope
// the triage session consumes.
func (c *Client) Read(ctx context.Context, readReq *triage.ReadRequest) (*triage.Envelope, error) {
	jsonData, err := json.Marshal(readReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal read request: %w", err)
	}

	requestID := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ReadPath, bytes.NewReader(jsonData))
	if err != nil {
		return nil, &triage.RequestError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	logging.Debug("[Triage] POST %s (request %s)", ReadPath, requestID)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &triage.RequestError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logging.Warning("[Triage] Backend returned status %d for request %s", resp.StatusCode, requestID)
		return nil, &triage.RequestError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	var data triage.ReadResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, &triage.RequestError{Err: fmt.Errorf("failed to decode read response: %w", err)}
	}
	return &triage.Envelope{Data: data}, nil
}
