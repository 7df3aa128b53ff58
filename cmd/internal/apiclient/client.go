package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/singleflight"

	"docqa/cmd/internal/auth/credstore"
)

const (
	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// RequestIDHeader carries one ID across every attempt of a logical request.
	RequestIDHeader = "X-Request-ID"

	refreshPath = "/auth/refresh"

	// maxResponseBytes caps how much of a response body is buffered.
	maxResponseBytes = 8 << 20
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per-attempt timeout on the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger. Tokens are never logged.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetrics records request and refresh metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithReauthHandler installs the hook run when a refresh fails and the stored
// session has been discarded. It runs once per failed refresh flight.
func WithReauthHandler(fn func(error)) Option {
	return func(c *Client) { c.onReauth = fn }
}

// Client dispatches requests to the document QA service.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	store   credstore.Store
	log     *slog.Logger
	metrics *Metrics

	onReauth func(error)

	// refreshes is keyed by the stale access token that triggered the refresh.
	refreshes singleflight.Group
}

// New builds a Client for baseURL backed by store.
func New(baseURL string, store credstore.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("apiclient: nil credential store")
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: DefaultTimeout},
		store:   store,
		log:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the service root.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Request is one logical call. It is a value: retries work on a copy.
type Request struct {
	Method      string
	Path        string
	Body        []byte
	ContentType string

	// Anonymous requests carry no bearer token and are never refreshed.
	Anonymous bool

	attempt int
	id      string
}

// Attempt is the zero-based attempt number.
func (r Request) Attempt() int { return r.attempt }

// Response is a buffered 2xx response.
type Response struct {
	Path      string
	Status    int
	Header    http.Header
	Body      []byte
	RequestID string
}

// Do sends req. A 401 on a first, non-anonymous attempt triggers one
// coalesced refresh and a single retry with the refreshed token.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.id == "" {
		req.id = ulid.Make().String()
	}

	bearer := ""
	if !req.Anonymous {
		tok, err := credstore.AccessToken(ctx, c.store)
		if err != nil {
			return nil, fmt.Errorf("read access token: %w", err)
		}
		bearer = tok
	}

	resp, err := c.send(ctx, req, bearer)
	if err == nil {
		return resp, nil
	}

	var apiErr *APIError
	if req.Anonymous || req.attempt > 0 || !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return nil, err
	}

	retry := req
	retry.attempt++

	fresh, rerr := c.refreshAfter(ctx, bearer)
	if errors.Is(rerr, errNoRefreshToken) {
		return nil, err
	}
	if rerr != nil {
		return nil, rerr
	}

	c.log.Debug("client.retry",
		"request_id", retry.id,
		"method", retry.Method,
		"path", retry.Path,
		"attempt", retry.attempt,
	)
	return c.send(ctx, retry, fresh)
}

// refreshAfter returns a usable access token after stale was rejected.
// Callers sharing stale share one flight.
func (c *Client) refreshAfter(ctx context.Context, stale string) (string, error) {
	ch := c.refreshes.DoChan(stale, func() (any, error) {
		// The flight outlives any single waiter's cancellation.
		return c.runRefresh(context.WithoutCancel(ctx), stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.observeWaiter()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) runRefresh(ctx context.Context, stale string) (string, error) {
	current, err := credstore.AccessToken(ctx, c.store)
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	if current != "" && current != stale {
		// Another flight already rotated the pair.
		c.metrics.observeRefresh(RefreshReused)
		return current, nil
	}

	refreshToken, err := credstore.RefreshToken(ctx, c.store)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if refreshToken == "" {
		return "", errNoRefreshToken
	}

	// Login, signup and logout may rewrite the store while the call is out.
	// Every write below only lands while the store still holds stale.
	pair, err := c.postRefresh(ctx, refreshToken)
	if err == nil {
		var swapped bool
		swapped, err = credstore.ReplacePair(ctx, c.store, stale, credstore.Pair{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
		})
		if err == nil && !swapped {
			return c.superseded(ctx)
		}
	}
	if err != nil {
		cleared, clearErr := credstore.ClearPairIf(ctx, c.store, stale)
		if clearErr == nil && !cleared {
			return c.superseded(ctx)
		}

		c.metrics.observeRefresh(RefreshFailure)
		c.log.Warn("client.refresh.fail", "err", err)
		if clearErr != nil {
			c.log.Error("client.refresh.clear_fail", "err", clearErr)
		}
		if c.onReauth != nil {
			c.onReauth(err)
		}
		return "", fmt.Errorf("%w: %w", ErrReauthRequired, err)
	}

	c.metrics.observeRefresh(RefreshSuccess)
	c.log.Info("client.refresh.ok")
	return pair.AccessToken, nil
}

// superseded settles a flight whose stale pair was replaced or cleared by
// another writer while the refresh call was out. The newer state wins.
func (c *Client) superseded(ctx context.Context) (string, error) {
	current, err := credstore.AccessToken(ctx, c.store)
	if err != nil {
		return "", fmt.Errorf("read access token: %w", err)
	}
	c.metrics.observeRefresh(RefreshSuperseded)
	if current == "" {
		c.log.Info("client.refresh.superseded", "result", "logged_out")
		return "", fmt.Errorf("%w: %w", ErrReauthRequired, ErrSessionEnded)
	}
	c.log.Info("client.refresh.superseded", "result", "reused")
	return current, nil
}

// postRefresh calls /auth/refresh on the raw transport, outside the retry path.
func (c *Client) postRefresh(ctx context.Context, refreshToken string) (TokenResponse, error) {
	body, err := encodeJSON(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return TokenResponse{}, err
	}
	resp, err := c.send(ctx, Request{
		Method:      http.MethodPost,
		Path:        refreshPath,
		Body:        body,
		ContentType: "application/json",
		Anonymous:   true,
		id:          ulid.Make().String(),
	}, "")
	if err != nil {
		return TokenResponse{}, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out); err != nil {
		return TokenResponse{}, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return TokenResponse{}, fmt.Errorf("refresh response: %w", credstore.ErrIncompletePair)
	}
	return out, nil
}

// send performs one attempt. bearer may be empty.
func (c *Client) send(ctx context.Context, req Request, bearer string) (*Response, error) {
	target := c.resolve(req.Path)

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if req.id != "" {
		httpReq.Header.Set(RequestIDHeader, req.id)
	}
	if bearer != "" {
		httpReq.Header.Set("Authorization", "Bearer "+bearer)
	}

	label := metricPath(req.Path)
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.metrics.observeRequest(req.Method, label, 0, time.Since(start))
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	c.metrics.observeRequest(req.Method, label, resp.StatusCode, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read response: %w", req.Method, req.Path, err)
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 500 {
		level = slog.LevelWarn
	}
	c.log.Log(ctx, level, "client.request",
		"request_id", req.id,
		"method", req.Method,
		"path", req.Path,
		"status", resp.StatusCode,
		"attempt", req.attempt,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(req.Method, req.Path, resp.StatusCode, raw)
	}
	return &Response{
		Path:      req.Path,
		Status:    resp.StatusCode,
		Header:    resp.Header,
		Body:      raw,
		RequestID: req.id,
	}, nil
}

func (c *Client) resolve(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL.String() + path
}

// metricPath strips the query so labels stay bounded.
func metricPath(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
