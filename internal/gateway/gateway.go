// Package gateway issues HTTP requests to the event backend, attaches the
// session token and decodes responses into typed results or *Error values.
//
// The gateway never touches session or cache state; callers do that.
package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "eventdash/gateway"

// RequestIDHeader carries a per-call id for correlating backend logs
const RequestIDHeader = "X-Request-Id"

// TokenSource supplies the bearer token for outgoing requests.
// An empty token means the request goes out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Config holds the gateway settings
type Config struct {
	BaseURL string
	// Timeout bounds each call. Zero leaves the transport default in place.
	Timeout   time.Duration
	UserAgent string
}

// Request describes one backend call
type Request struct {
	// Endpoint names the operation for logs, spans and errors
	Endpoint string
	// Method defaults to GET without a body and POST with one
	Method string
	Path   string
	Params url.Values
	// Body is sent as JSON. Ignored when Form is set.
	Body  any
	Form  *Form
	Shape Shape
}

// Client executes Requests against one backend
type Client struct {
	baseURL   string
	http      *http.Client
	tokens    TokenSource
	userAgent string
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTokenSource sets where the Authorization header comes from
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTracerProvider overrides the global tracer provider
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracer = tp.Tracer(tracerName) }
}

// NewClient creates a gateway client for cfg.BaseURL
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute: %q", cfg.BaseURL)
	}

	c := &Client{
		baseURL:   strings.TrimRight(u.String(), "/"),
		http:      &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
		logger:    zerolog.Nop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized base address
func (c *Client) BaseURL() string { return c.baseURL }

// Execute performs req and decodes the response into out (which may be nil)
func (c *Client) Execute(ctx context.Context, req Request, out any) (err error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
		if req.Body != nil || req.Form != nil {
			method = http.MethodPost
		}
	}

	ctx, span := c.tracer.Start(ctx, "gateway "+req.Endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("eventdash.endpoint", req.Endpoint),
			attribute.String("http.request.method", method),
		))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	httpReq, err := c.newRequest(ctx, method, req)
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.logger.Debug().Err(err).Str("endpoint", req.Endpoint).Msg("request failed without response")
		return &Error{Kind: KindNetwork, Endpoint: req.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Kind: KindNetwork, Endpoint: req.Endpoint, Status: resp.StatusCode, Err: fmt.Errorf("failed to read body: %w", err)}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	c.logger.Debug().
		Str("endpoint", req.Endpoint).
		Str("method", method).
		Str("request_id", httpReq.Header.Get(RequestIDHeader)).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("backend call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &Error{
			Kind:     KindHTTP,
			Endpoint: req.Endpoint,
			Status:   resp.StatusCode,
			Message:  errorMessage(resp.StatusCode, body),
		}
	}

	if err := decodeShape(body, req.Shape, out); err != nil {
		var rejected errorRejected
		if errors.As(err, &rejected) {
			return &Error{Kind: KindRejected, Endpoint: req.Endpoint, Status: resp.StatusCode, Message: rejected.message}
		}
		return &Error{Kind: KindDecode, Endpoint: req.Endpoint, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, req Request) (*http.Request, error) {
	target := c.resolve(req.Path, req.Params)

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		r, ct, err := req.Form.encode()
		if err != nil {
			return nil, &Error{Kind: KindRequest, Endpoint: req.Endpoint, Err: err}
		}
		body, contentType = r, ct
	case req.Body != nil:
		data, err := sonic.Marshal(req.Body)
		if err != nil {
			return nil, &Error{Kind: KindRequest, Endpoint: req.Endpoint, Err: fmt.Errorf("failed to marshal body: %w", err)}
		}
		body, contentType = bytes.NewReader(data), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, &Error{Kind: KindRequest, Endpoint: req.Endpoint, Err: err}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Str("endpoint", req.Endpoint).Msg("token source failed, sending unauthenticated")
		} else if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return httpReq, nil
}

// resolve joins path onto the base URL, keeping a trailing slash on path
func (c *Client) resolve(path string, params url.Values) string {
	target := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) == 0 {
		return target
	}
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + params.Encode()
}
