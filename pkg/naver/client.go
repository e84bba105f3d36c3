package naver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cafenote/pkg/config"
	"cafenote/pkg/errors"
	"cafenote/pkg/logger"
	"cafenote/pkg/ratelimit"
	"cafenote/pkg/retry"
)

// maxBodyBytes caps how much of a response is read
const maxBodyBytes = 4 << 20

// Session supplies cookies for every request and absorbs Set-Cookie replies
type Session interface {
	CookieHeader() string
	Update(cookies []*http.Cookie)
}

// RequestObserver is told about every completed round trip
type RequestObserver interface {
	ObserveRequest(endpoint string, status int, duration time.Duration)
}

// Client talks to the cafe board list API and the note service
type Client struct {
	httpClient *http.Client
	endpoints  Endpoints
	userAgent  string
	session    Session
	limiter    ratelimit.Limiter
	retry      *retry.Policy
	observer   RequestObserver
	logger     logger.Logger
	pageSize   int
}

// Option customizes a Client
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.httpClient = hc } }
func WithLimiter(l ratelimit.Limiter) Option { return func(c *Client) { c.limiter = l } }
func WithRetry(p *retry.Policy) Option { return func(c *Client) { c.retry = p } }
func WithObserver(o RequestObserver) Option { return func(c *Client) { c.observer = o } }
func WithLogger(l logger.Logger) Option { return func(c *Client) { c.logger = l } }
func WithEndpoints(e Endpoints) Option { return func(c *Client) { c.endpoints = e } }
func WithUserAgent(ua string) Option { return func(c *Client) { c.userAgent = ua } }
func WithPageSize(n int) Option { return func(c *Client) { c.pageSize = n } }

// NewClient creates a client bound to sess
func NewClient(cfg config.NaverConfig, sess Session, opts ...Option) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoints:  EndpointsFromConfig(cfg),
		userAgent:  cfg.UserAgent,
		session:    sess,
		limiter:    ratelimit.Unlimited{},
		retry:      retry.NoRetry,
		logger:     logger.GetLogger(),
		pageSize:   DefaultPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithField("component", "naver")
	return c
}

// Endpoints returns the hosts this client targets
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

type request struct {
	endpoint string
	method   string
	url      string
	referer  string
	accept   string
	form     string
}

// logFor prefers the caller's run logger carried in ctx
func (c *Client) logFor(ctx context.Context) logger.Logger {
	return logger.FromContext(ctx, c.logger)
}

// do performs one round trip and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var body io.Reader
	if r.form != "" {
		body = strings.NewReader(r.form)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, r.url, body)
	if err != nil {
		return nil, errors.Validation(fmt.Sprintf("failed to create request: %v", err))
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8")
	if r.accept != "" {
		req.Header.Set("Accept", r.accept)
	}
	if r.referer != "" {
		req.Header.Set("Referer", r.referer)
	}
	if r.form != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}
	if c.session != nil {
		if cookie := c.session.CookieHeader(); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.observe(r.endpoint, 0, duration)
		c.logFor(ctx).WarnWithFields("HTTP request failed", map[string]interface{}{
			"method": r.method,
			"url":    r.url,
			"error":  err.Error(),
		})
		return nil, errors.Network(err)
	}
	defer resp.Body.Close()

	c.observe(r.endpoint, resp.StatusCode, duration)
	logger.LogRequest(c.logFor(ctx), r.method, r.url, resp.StatusCode, duration)

	if c.session != nil {
		c.session.Update(resp.Cookies())
	}

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Network(fmt.Errorf("failed to read response body: %w", err))
	}
	return data, nil
}

// get runs an idempotent request under the retry policy
func (c *Client) get(ctx context.Context, r request) ([]byte, error) {
	r.method = http.MethodGet
	return retry.DoWithResult(ctx, c.retry, func(ctx context.Context) ([]byte, error) {
		return c.do(ctx, r)
	})
}

func (c *Client) observe(endpoint string, status int, d time.Duration) {
	if c.observer != nil {
		c.observer.ObserveRequest(endpoint, status, d)
	}
}

// checkResponseStatus maps non-2xx statuses to upstream errors
func (c *Client) checkResponseStatus(resp *http.Response) error {
	code := resp.StatusCode
	if code >= 200 && code < 300 {
		return nil
	}

	var msg string
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		msg = "platform refused the session (login expired?)"
	case http.StatusNotFound:
		msg = "resource not found"
	case http.StatusTooManyRequests:
		msg = "rate limit exceeded"
	default:
		if code >= 500 {
			msg = "platform server error"
		}
	}
	return errors.Upstream(code, msg)
}

// previewBody trims a response for logs
func previewBody(b []byte) string {
	s := string(b)
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
