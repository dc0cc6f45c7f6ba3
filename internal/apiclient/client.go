// Package apiclient talks JSON to the storefront backend. It attaches the
// bearer token to protected requests, refreshing an expired token first.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"go-storefront-session/internal/model"
	"go-storefront-session/pkg/apierror"
)

const maxResponseBody = 4 << 20

// Paths that never carry a bearer token.
var unauthenticatedPaths = []string{
	"/auth/login",
	"/auth/register",
	"/auth/refresh",
	"/auth/forgot-password",
	"/auth/reset-password",
}

// Catalog paths readable without a session.
var publicReadPaths = []string{
	"/product",
	"/category",
	"/about-us",
	"/contact-us",
	"/faq",
}

// TokenSource exposes the current access token.
type TokenSource interface {
	Token() string
	IsTokenExpired(token string) bool
}

// TokenRefresher renews the session. Implementations must collapse
// concurrent calls into one backend round trip.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) (model.TokenRecord, error)
}

type Client struct {
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	timeout   time.Duration
	log       *slog.Logger

	mu        sync.RWMutex
	tokens    TokenSource
	refresher TokenRefresher
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRateLimit paces outgoing requests; zero or less disables pacing.
func WithRateLimit(rpm int) Option {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), max(1, rpm/10))
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: 15 * time.Second},
		userAgent: "go-storefront-session",
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout > 0 {
		hc := *c.http
		hc.Timeout = c.timeout
		c.http = &hc
	}
	c.log = c.log.With("component", "api_client")

	return c
}

// SetAuth installs the token source and refresher used for protected
// requests. The refresher usually depends on this client, so it cannot be
// passed to New.
func (c *Client) SetAuth(tokens TokenSource, refresher TokenRefresher) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tokens = tokens
	c.refresher = refresher
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) Post(ctx context.Context, path string, in any, out any) error {
	return c.Do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) Put(ctx context.Context, path string, in any, out any) error {
	return c.Do(ctx, http.MethodPut, path, in, out)
}

func (c *Client) Patch(ctx context.Context, path string, in any, out any) error {
	return c.Do(ctx, http.MethodPatch, path, in, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, nil, out)
}

// Do sends in as JSON and decodes a 2xx body into out. Non-2xx responses
// come back as *apierror.APIError.
func (c *Client) Do(ctx context.Context, method string, path string, in any, out any) error {
	var body []byte
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = raw
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if token := c.bearer(ctx, method, path); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("wait for rate limiter: %w", err)
		}
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.log.Debug("api request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"request_id", req.Header.Get("X-Request-ID"),
		"duration_ms", time.Since(started).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apierror.FromResponse(resp.StatusCode, payload)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}

	return nil
}

// bearer returns the token for a protected request, refreshing an expired
// one first. When the refresh fails the request goes out without a token.
func (c *Client) bearer(ctx context.Context, method string, path string) string {
	if skipAuth(method, path) {
		return ""
	}

	c.mu.RLock()
	tokens, refresher := c.tokens, c.refresher
	c.mu.RUnlock()

	if tokens == nil {
		return ""
	}

	token := tokens.Token()
	if token == "" {
		return ""
	}

	if !tokens.IsTokenExpired(token) {
		return token
	}

	if refresher == nil {
		return ""
	}

	if _, err := refresher.RefreshToken(ctx); err != nil {
		c.log.Warn("token refresh before request failed", "path", path, "error", err)
		return ""
	}

	return tokens.Token()
}

func skipAuth(method string, path string) bool {
	route := path
	if i := strings.IndexAny(route, "?#"); i >= 0 {
		route = route[:i]
	}

	for _, p := range unauthenticatedPaths {
		if strings.HasPrefix(route, p) {
			return true
		}
	}

	if method == http.MethodGet {
		for _, p := range publicReadPaths {
			if strings.HasPrefix(route, p) {
				return true
			}
		}
	}

	return strings.HasPrefix(route, "/uploads/") || strings.HasPrefix(route, "/images/")
}

// envelopeProbe detects whether a body is wrapped in {success, data}.
type envelopeProbe struct {
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// decodeData unwraps the data section of an envelope, or the whole body
// when the backend answered with a bare object. success:false is an error.
func decodeData[T any](raw json.RawMessage) (T, error) {
	var zero T

	var probe envelopeProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return zero, fmt.Errorf("unmarshal response: %w", err)
	}

	body := raw
	if probe.Success != nil {
		if !*probe.Success {
			if probe.Message != "" {
				return zero, fmt.Errorf("%w: %s", model.ErrUnexpectedResult, probe.Message)
			}
			return zero, model.ErrUnexpectedResult
		}
		body = probe.Data
	}

	if len(body) == 0 || string(body) == "null" {
		return zero, nil
	}

	var out T
	if err := json.Unmarshal(body, &out); err != nil {
		return zero, fmt.Errorf("unmarshal response data: %w", err)
	}

	return out, nil
}
