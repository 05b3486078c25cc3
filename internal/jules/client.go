// Package jules is a thin client for the Jules coding-automation REST API.
//
// A [Client] performs exactly one authenticated HTTP request per call, bounded
// by a fixed timeout, and hands back the decoded JSON body untouched. It does
// not retry and keeps no state between calls beyond its immutable settings.
// Failures surface as typed errors ([*HTTPError], [*MissingCredentialError],
// [ErrTimeout]) which [Classify] maps onto the closed [Category] set.
//
// Typical usage:
//
//	c := jules.New(jules.EnvCredential(jules.DefaultAPIKeyEnv))
//	raw, err := c.Call(ctx, http.MethodGet, "/v1alpha/sources", nil, url.Values{"pageSize": {"20"}})
//	if err != nil {
//	    return jules.Describe(err)
//	}
package jules

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

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/julesmcp/internal/observe"
)

const (
	// DefaultBaseURL is the origin of the public Jules API.
	DefaultBaseURL = "https://jules.googleapis.com"

	// DefaultTimeout bounds a single request including reading the body.
	DefaultTimeout = 30 * time.Second

	// APIKeyHeader carries the resolved secret on every request.
	APIKeyHeader = "X-Goog-Api-Key"

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 16 << 20
)

// ErrTimeout is returned (wrapped) when a request does not complete within
// the client timeout.
var ErrTimeout = errors.New("jules: request timed out")

// HTTPError is returned for any non-2xx response.
type HTTPError struct {
	Method     string
	Path       string
	StatusCode int

	// Body is the raw response body, possibly empty or not JSON.
	Body []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("jules: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithBaseURL overrides [DefaultBaseURL].
func WithBaseURL(base string) Option {
	return func(c *Client) {
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithTimeout overrides [DefaultTimeout].
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithMetrics records request counts and latency into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client issues authenticated calls against the Jules API. It is safe for
// concurrent use; nothing is mutated after [New] returns.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	creds      CredentialSource
	metrics    *observe.Metrics
}

// New creates a Client that authenticates with creds.
func New(creds CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		timeout:    DefaultTimeout,
		httpClient: &http.Client{},
		creds:      creds,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the configured API origin.
func (c *Client) BaseURL() string { return c.baseURL }

// Credentials returns the source used to authenticate requests.
func (c *Client) Credentials() CredentialSource { return c.creds }

// Call performs one request and returns the response body as raw JSON.
//
// body, when non-nil, is JSON-encoded. query, when non-empty, is appended to
// the URL. The credential is resolved before anything touches the network, so
// a missing secret costs no request.
func (c *Client) Call(ctx context.Context, method, path string, body any, query url.Values) (json.RawMessage, error) {
	if c.creds == nil {
		return nil, &MissingCredentialError{Env: DefaultAPIKeyEnv}
	}
	key, err := c.creds.Resolve()
	if err != nil {
		return nil, err
	}

	ctx, span := observe.StartSpan(ctx, "jules "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("jules.method", method),
			attribute.String("jules.path", path),
		),
	)
	defer span.End()

	start := time.Now()
	raw, status, err := c.do(ctx, method, path, key, body, query)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordAPIRequest(ctx, method, statusLabel(status, err), elapsed)
	}
	if err != nil {
		observe.FailSpan(span, err)
		observe.Logger(ctx).Debug("jules request failed",
			"method", method,
			"path", path,
			"status", status,
			"duration", elapsed,
			"err", err,
		)
		return nil, err
	}
	span.SetAttributes(attribute.Int("http.response.status_code", status))
	observe.Logger(ctx).Debug("jules request completed",
		"method", method,
		"path", path,
		"status", status,
		"duration", elapsed,
	)
	return raw, nil
}

// do runs the HTTP round trip. status is 0 when no response was received.
func (c *Client) do(ctx context.Context, method, path, key string, body any, query url.Values) (json.RawMessage, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("jules: encode request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, 0, fmt.Errorf("jules: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(APIKeyHeader, key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, c.wrapTransport(method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, c.wrapTransport(method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &HTTPError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       data,
		}
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return json.RawMessage("{}"), resp.StatusCode, nil
	}
	if !json.Valid(data) {
		return nil, resp.StatusCode, fmt.Errorf("jules: %s %s: response is not valid JSON", method, path)
	}
	return json.RawMessage(data), resp.StatusCode, nil
}

// endpoint joins the base origin and path with exactly one slash.
func (c *Client) endpoint(path string, query url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// wrapTransport marks deadline failures with [ErrTimeout].
func (c *Client) wrapTransport(method, path string, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("jules: %s %s after %s: %w", method, path, c.timeout, errors.Join(ErrTimeout, err))
	}
	return fmt.Errorf("jules: %s %s: %w", method, path, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func statusLabel(status int, err error) string {
	switch {
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case status == 0 && err != nil:
		return "transport_error"
	default:
		return fmt.Sprintf("%d", status)
	}
}
