// Package gateway is the single chokepoint through which every network call
// of the client core is issued. It attaches the bearer credential, tracks
// in-flight and last-error state, and normalizes failures into RequestError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const fallbackErrorMessage = "something went wrong"

// TokenSource supplies the current bearer token. It is read fresh at the
// start of every call, never cached, so a logout or re-login immediately
// affects the next outgoing request.
type TokenSource interface {
	Token() string
}

// RequestError is the normalized failure shape for any gateway call.
// Message priority: server-provided message field, transport error text,
// generic fallback.
type RequestError struct {
	Status  int
	Message string
	Code    string
}

func (e *RequestError) Error() string {
	return e.Message
}

// Gateway performs network calls against a fixed base URL.
type Gateway struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	mu       sync.RWMutex
	tokens   TokenSource
	loading  bool
	lastErr  string
	lastBody json.RawMessage
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient overrides the transport client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithTimeout sets the transport timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.httpClient.Timeout = d }
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithTokenSource sets the bearer credential source.
func WithTokenSource(ts TokenSource) Option {
	return func(g *Gateway) { g.tokens = ts }
}

// New constructs a gateway for the given base URL.
func New(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// SetTokenSource wires the credential source after construction. The session
// store both owns the token and calls through the gateway, so the two are
// wired in this order at startup.
func (g *Gateway) SetTokenSource(ts TokenSource) {
	g.mu.Lock()
	g.tokens = ts
	g.mu.Unlock()
}

// Loading reports whether a call is in flight.
func (g *Gateway) Loading() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.loading
}

// Err returns the message of the most recent failure, empty after a success
// or while a fresh call is in flight.
func (g *Gateway) Err() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastErr
}

type callConfig struct {
	headers http.Header
	query   url.Values
}

// CallOption adjusts one call. Options are merged into the request before
// the auth header is applied, so they can never override it.
type CallOption func(*callConfig)

// WithHeader adds a request header.
func WithHeader(key, value string) CallOption {
	return func(c *callConfig) { c.headers.Set(key, value) }
}

// WithQuery adds a query parameter.
func WithQuery(key, value string) CallOption {
	return func(c *callConfig) { c.query.Set(key, value) }
}

// Do performs one call. body may be nil, a *Form (sent as multipart with the
// writer's boundary content type), or any JSON-serializable value. The raw
// response body is returned on success; failures come back as *RequestError
// after being recorded in the gateway's error state.
func (g *Gateway) Do(ctx context.Context, method, path string, body any, opts ...CallOption) (json.RawMessage, error) {
	g.begin()
	defer g.end()

	cfg := callConfig{headers: http.Header{}, query: url.Values{}}
	for _, opt := range opts {
		opt(&cfg)
	}

	var (
		reader      io.Reader
		contentType string
	)
	switch payload := body.(type) {
	case nil:
	case *Form:
		r, ct, err := payload.encoded()
		if err != nil {
			return nil, g.fail(0, err.Error(), "")
		}
		reader = r
		contentType = ct
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, g.fail(0, err.Error(), "")
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}

	target := g.baseURL + path
	if len(cfg.query) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		target += sep + cfg.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, g.fail(0, err.Error(), "")
	}
	for key, values := range cfg.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	if token := g.currentToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		msg := err.Error()
		if msg == "" {
			msg = fallbackErrorMessage
		}
		return nil, g.fail(0, msg, "")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Message string `json:"message"`
			Code    string `json:"code"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Message
		if msg == "" {
			msg = resp.Status
		}
		if msg == "" {
			msg = fallbackErrorMessage
		}
		return nil, g.fail(resp.StatusCode, msg, strings.TrimSpace(errResp.Code))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, g.fail(0, err.Error(), "")
	}
	g.mu.Lock()
	g.lastBody = data
	g.mu.Unlock()
	return data, nil
}

// Data returns the body of the most recent successful call.
func (g *Gateway) Data() json.RawMessage {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastBody
}

// DoJSON performs a call and decodes the response body into out when out is
// non-nil and the body is non-empty.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, body, out any, opts ...CallOption) error {
	data, err := g.Do(ctx, method, path, body, opts...)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return g.fail(0, err.Error(), "")
	}
	return nil
}

func (g *Gateway) begin() {
	g.mu.Lock()
	g.loading = true
	g.lastErr = ""
	g.mu.Unlock()
}

func (g *Gateway) end() {
	g.mu.Lock()
	g.loading = false
	g.mu.Unlock()
}

func (g *Gateway) currentToken() string {
	g.mu.RLock()
	ts := g.tokens
	g.mu.RUnlock()
	if ts == nil {
		return ""
	}
	return ts.Token()
}

func (g *Gateway) fail(status int, message, code string) error {
	g.mu.Lock()
	g.lastErr = message
	g.mu.Unlock()
	g.logger.Debug("request failed", "status", status, "message", message)
	return &RequestError{Status: status, Message: message, Code: code}
}
