package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/family-budget-client/internal/errors"
	"github.com/jrsteele09/family-budget-client/token"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// Authenticator is the view of the session the client needs. The session store implements
// it; the client never writes tokens itself.
type Authenticator interface {
	// AccessToken returns the current access token or "" when logged out.
	AccessToken(ctx context.Context) string
	// HasRefreshToken reports whether a refresh token is available.
	HasRefreshToken(ctx context.Context) bool
	// RefreshAccessToken obtains and stores a new access token.
	RefreshAccessToken(ctx context.Context) error
	// Logout clears the session.
	Logout()
}

// SessionExpiredHandler is called when a 401 cannot be recovered: either there is no refresh
// token or the refresh itself failed. The session has already been cleared when it runs.
type SessionExpiredHandler func(err error)

// Client is the single gateway for API calls. It attaches the access token to every request
// and on a 401 performs one refresh followed by one retry of the original request.
type Client struct {
	baseURL          string
	httpClient       *http.Client
	logger           zerolog.Logger
	metrics          *metrics
	newRequestID     func() string
	onSessionExpired SessionExpiredHandler

	authLock sync.RWMutex
	auth     Authenticator
}

// Option defines a function type to modify the Client instance.
type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout bounds every request. A zero duration leaves requests unbounded. The timeout
// is set on a copy, so an *http.Client passed to WithHTTPClient is never modified.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		hc := *c.httpClient
		hc.Timeout = d
		c.httpClient = &hc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithSessionExpiredHandler(h SessionExpiredHandler) Option {
	return func(c *Client) {
		c.onSessionExpired = h
	}
}

// WithRegisterer registers the client's counters with reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = newMetrics(reg)
	}
}

func WithRequestIDFunc(f func() string) Option {
	return func(c *Client) {
		c.newRequestID = f
	}
}

// New creates a client resolving every path against baseURL, e.g. "http://localhost:8000/api".
func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{},
		logger:       log.Logger,
		newRequestID: uuid.NewString,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = newMetrics(nil)
	}
	return c
}

// SetAuthenticator binds the session the client reads tokens from. The composition root calls
// it once, after both the client and the session store exist.
func (c *Client) SetAuthenticator(a Authenticator) {
	c.authLock.Lock()
	defer c.authLock.Unlock()
	c.auth = a
}

func (c *Client) authenticator() Authenticator {
	c.authLock.RLock()
	defer c.authLock.RUnlock()
	return c.auth
}

// BaseURL returns the address paths are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

func (c *Client) Put(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

func (c *Client) Patch(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPatch, Path: path, Body: body}, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

// Do sends req and decodes a successful JSON response into out (which may be nil).
// Non-2xx responses come back as *APIError. A 401 on a first attempt triggers exactly one
// refresh and one retry; a 401 on the retry is returned as is.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	body, err := c.send(ctx, req)
	if err == nil {
		return decode(body, out, req)
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.Unauthorized() || !req.canRefresh() {
		return err
	}

	auth := c.authenticator()
	if auth == nil {
		return err
	}

	if !auth.HasRefreshToken(ctx) {
		c.metrics.observeRefresh("no_refresh_token")
		auth.Logout()
		c.sessionExpired(errors.ErrNoRefreshToken)
		return err
	}

	if refreshErr := auth.RefreshAccessToken(ctx); refreshErr != nil {
		if ctx.Err() != nil {
			c.metrics.observeRefresh("cancelled")
			return refreshErr
		}
		c.metrics.observeRefresh("failed")
		c.logger.Warn().Err(refreshErr).Str("path", req.Path).Msg("token refresh failed")
		c.sessionExpired(refreshErr)
		return err
	}
	c.metrics.observeRefresh("ok")

	return c.Do(ctx, req.retry(), out)
}

func (c *Client) sessionExpired(cause error) {
	if c.onSessionExpired == nil {
		return
	}
	c.onSessionExpired(fmt.Errorf("%w: %w", errors.ErrSessionExpired, cause))
}

func (c *Client) send(ctx context.Context, req Request) ([]byte, error) {
	httpReq, requestID, err := c.newHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.observeRequest(req.Method, 0)
		c.logger.Debug().Err(err).
			Str("method", req.Method).
			Str("path", req.Path).
			Str("request_id", requestID).
			Msg("request failed")
		return nil, pkgerrors.Wrapf(err, "[apiclient.Client.Do] %s %s", req.Method, req.Path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.observeRequest(req.Method, 0)
		return nil, pkgerrors.Wrapf(err, "[apiclient.Client.Do] read %s %s", req.Method, req.Path)
	}

	c.metrics.observeRequest(req.Method, resp.StatusCode)
	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Int("attempt", req.Attempt).
		Str("request_id", requestID).
		Dur("elapsed", time.Since(start)).
		Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{
			Status:    resp.StatusCode,
			Method:    req.Method,
			Path:      req.Path,
			RequestID: requestID,
			Body:      respBody,
		}
	}
	return respBody, nil
}

func (c *Client) newHTTPRequest(ctx context.Context, req Request) (*http.Request, string, error) {
	var body io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", pkgerrors.Wrapf(err, "[apiclient.Client.Do] encode %s %s", req.Method, req.Path)
		}
		body = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.url(c.baseURL), body)
	if err != nil {
		return nil, "", pkgerrors.Wrapf(err, "[apiclient.Client.Do] build %s %s", req.Method, req.Path)
	}

	requestID := c.newRequestID()
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)

	if auth := c.authenticator(); auth != nil {
		if access := auth.AccessToken(ctx); access != "" {
			token.Pair{Access: access}.OAuth2().SetAuthHeader(httpReq)
		}
	}
	return httpReq, requestID, nil
}

func decode(body []byte, out any, req Request) error {
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return pkgerrors.Wrapf(err, "[apiclient.Client.Do] decode %s %s", req.Method, req.Path)
	}
	return nil
}
