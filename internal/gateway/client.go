// Package gateway is the HTTP client for the remote question-answering
// service. Every failure is returned as *Error with a Kind.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bhandras/qachat/internal/version"
	"github.com/bhandras/qachat/pkg/logger"
	"github.com/go-resty/resty/v2"
)

const (
	// DefaultBaseURL is where a locally started service listens.
	DefaultBaseURL = "http://localhost:8000/api"
	// defaultHTTPTimeout is the per-request timeout.
	defaultHTTPTimeout = 15 * time.Second
)

// Client talks to the remote service.
type Client struct {
	baseURL string
	http    *resty.Client
}

type options struct {
	timeout    time.Duration
	httpClient *http.Client
	debug      bool
}

// Option configures a Client.
type Option func(*options)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHTTPClient sets the underlying HTTP client (tests use the httptest
// server's client).
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithDebug enables request/response dumps at debug level.
func WithDebug(debug bool) Option {
	return func(o *options) { o.debug = debug }
}

// New returns a Client for the service at baseURL. An empty baseURL uses
// DefaultBaseURL.
func New(baseURL string, opts ...Option) *Client {
	o := options{timeout: defaultHTTPTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	var rc *resty.Client
	if o.httpClient != nil {
		rc = resty.NewWithClient(o.httpClient)
	} else {
		rc = resty.New()
	}
	rc.SetBaseURL(baseURL).
		SetTimeout(o.timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "qachat/"+version.Version()).
		SetLogger(restyLogger{}).
		SetDebug(o.debug)

	return &Client{baseURL: baseURL, http: rc}
}

// BaseURL returns the normalized service URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Initialize performs the readiness handshake.
func (c *Client) Initialize(ctx context.Context) (*InitializeResponse, error) {
	const op = "initialize"
	var out InitializeResponse
	if err := c.do(ctx, op, http.MethodPost, "/initialize", nil, nil, &out); err != nil {
		return nil, err
	}

	var ok bool
	switch {
	case out.Success != nil:
		ok = *out.Success
	case out.Status != "":
		ok = out.Status == "success"
	default:
		return nil, &Error{Kind: ErrMalformedResponse, Op: op, Detail: "missing success/status field"}
	}
	if !ok {
		detail := out.Message
		if detail == "" {
			detail = "initialization refused"
		}
		return &out, &Error{Kind: ErrServerRejected, Op: op, Status: http.StatusOK, Detail: detail}
	}
	return &out, nil
}

// Health reports service status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, "health", http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Chat asks a question within a session.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var out ChatResponse
	if err := c.do(ctx, "chat", http.MethodPost, "/chat", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches the stored turns of a session.
func (c *Client) History(ctx context.Context, sessionID string) (*HistoryResponse, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &Error{Kind: ErrServerRejected, Op: "history", Detail: "missing session id"}
	}
	var out HistoryResponse
	params := map[string]string{"session_id": sessionID}
	if err := c.do(ctx, "history", http.MethodGet, "/history/{session_id}", params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate runs the service's benchmark on sampleSize questions.
func (c *Client) Evaluate(ctx context.Context, sampleSize int) (map[string]any, error) {
	out := map[string]any{}
	if err := c.do(ctx, "evaluate", http.MethodPost, "/evaluate", nil, EvaluateRequest{SampleSize: sampleSize}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Analytics returns per-user chat statistics.
func (c *Client) Analytics(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	if err := c.do(ctx, "analytics", http.MethodGet, "/analytics", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminStats returns service-wide statistics and evaluation history.
func (c *Client) AdminStats(ctx context.Context) (map[string]any, error) {
	out := map[string]any{}
	if err := c.do(ctx, "admin-stats", http.MethodGet, "/admin/stats", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do executes one request and decodes a success body into out. The body is
// decoded by hand so that a transport failure and an undecodable payload
// land in different Kinds.
func (c *Client) do(ctx context.Context, op, method, path string, params map[string]string, body any, out any) error {
	req := c.http.R().SetContext(ctx)
	if params != nil {
		req.SetPathParams(params)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	start := time.Now()
	resp, err := req.Execute(method, path)
	if err != nil {
		logger.Debugf("gateway %s failed after %v: %v", op, time.Since(start), err)
		return &Error{Kind: ErrConnectivity, Op: op, Err: err}
	}
	logger.Debugf("gateway %s -> %d (%v)", op, resp.StatusCode(), time.Since(start))

	raw := resp.Body()
	if !resp.IsSuccess() {
		return &Error{
			Kind:   ErrServerRejected,
			Op:     op,
			Status: resp.StatusCode(),
			Detail: detailFromBody(raw),
		}
	}
	if out == nil {
		return nil
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return &Error{Kind: ErrMalformedResponse, Op: op, Status: resp.StatusCode(), Detail: "empty body"}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{
			Kind:   ErrMalformedResponse,
			Op:     op,
			Status: resp.StatusCode(),
			Err:    fmt.Errorf("decode %s response: %w", op, err),
		}
	}
	return nil
}

// restyLogger routes resty's internal logging through pkg/logger.
type restyLogger struct{}

func (restyLogger) Errorf(format string, v ...interface{}) { logger.Errorf(format, v...) }
func (restyLogger) Warnf(format string, v ...interface{})  { logger.Warnf(format, v...) }
func (restyLogger) Debugf(format string, v ...interface{}) { logger.Debugf(format, v...) }
