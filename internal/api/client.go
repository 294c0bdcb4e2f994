// Package api implements the HTTP client for the campus lost-and-found
// backend, including token refresh and failure classification.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// TokenSource supplies and receives credentials. The client reads the pair
// before each request; after a successful refresh it writes the new access
// token back, and on a failed refresh it clears everything.
type TokenSource interface {
	Tokens() (access, refresh string)
	SetAccess(access string) error
	Clear() error
}

// Options configures a Client.
type Options struct {
	BaseURL string
	Tokens  TokenSource
	Logger  *slog.Logger
	// OnAuthLost fires after a failed token refresh, once the stored
	// credentials are already cleared. Used to drop the UI back to the
	// login screen.
	OnAuthLost func()
	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
	UserAgent  string
}

// Client 与后端通信的唯一通道 / Client is the single channel to the backend.
// It is safe for concurrent use; at most one token refresh is in flight at a
// time and concurrent 401 victims share its outcome.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	log        *slog.Logger
	onAuthLost func()
	userAgent  string

	refreshMu sync.Mutex
}

// New builds a Client. BaseURL must not have a trailing slash requirement;
// it is normalized here.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("api: base URL is required")
	}
	if opts.Tokens == nil {
		return nil, errors.New("api: token source is required")
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        32,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
			},
		}
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "refind-client/1.0"
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		httpClient: hc,
		tokens:     opts.Tokens,
		log:        log,
		onAuthLost: opts.OnAuthLost,
		userAgent:  ua,
	}, nil
}

// reqSpec is one logical request. rawBody, when set, wins over jsonBody and
// is sent verbatim with contentType.
type reqSpec struct {
	method      string
	path        string
	jsonBody    any
	rawBody     []byte
	contentType string
	// anonymous requests never carry a bearer header and never enter the
	// refresh path. Login, register and refresh itself run anonymous.
	anonymous bool
}

// do executes spec, decoding a 2xx JSON body into out (which may be nil).
// Authenticated requests that hit 401 trigger exactly one refresh plus one
// retry; a second 401 surfaces as an auth error wrapping ErrUnauthorized.
func (c *Client) do(ctx context.Context, spec reqSpec, out any) error {
	var body []byte
	contentType := spec.contentType
	if spec.rawBody != nil {
		body = spec.rawBody
	} else if spec.jsonBody != nil {
		var err error
		body, err = json.Marshal(spec.jsonBody)
		if err != nil {
			return fmt.Errorf("api: encode %s %s: %w", spec.method, spec.path, err)
		}
		contentType = "application/json"
	}

	access, _ := c.tokens.Tokens()
	status, respBody, err := c.attempt(ctx, spec, body, contentType, access)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized && !spec.anonymous {
		if err := c.refreshAccess(ctx, access); err != nil {
			return err
		}
		access, _ = c.tokens.Tokens()
		status, respBody, err = c.attempt(ctx, spec, body, contentType, access)
		if err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return &Error{
				Kind:       KindAuth,
				StatusCode: status,
				Message:    "Your session has expired. Please log in again.",
				Detail:     serverDetail(respBody),
				Err:        ErrUnauthorized,
			}
		}
	}
	if status < 200 || status > 299 {
		return c.classify(status, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("api: decode %s %s: %w", spec.method, spec.path, err)
		}
	}
	return nil
}

// attempt performs a single HTTP round trip. Transport-level failures come
// back as a KindNetwork *Error; HTTP responses of any status return nil error.
func (c *Client) attempt(ctx context.Context, spec reqSpec, body []byte, contentType, access string) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.method, c.baseURL+spec.path, rd)
	if err != nil {
		return 0, nil, fmt.Errorf("api: build %s %s: %w", spec.method, spec.path, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if !spec.anonymous && access != "" {
		req.Header.Set("Authorization", "Bearer "+access)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed", "method", spec.method, "path", spec.path, "error", err)
		return 0, nil, &Error{
			Kind:    KindNetwork,
			Message: "Cannot reach the server. Check your connection and try again.",
			Err:     err,
		}
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return 0, nil, &Error{
			Kind:    KindNetwork,
			Message: "Connection interrupted while reading the response.",
			Err:     err,
		}
	}
	return resp.StatusCode, respBody, nil
}

// refreshAccess exchanges the refresh token for a new access token. Callers
// pass the access token they last used; if the stored token already differs
// once the lock is held, another request completed the refresh and this one
// reuses the result. On refresh failure the stored pair is cleared and the
// auth-lost hook fires.
func (c *Client) refreshAccess(ctx context.Context, staleAccess string) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	access, refresh := c.tokens.Tokens()
	if access != staleAccess && access != "" {
		return nil
	}
	if refresh == "" {
		return c.authLost(nil, "no refresh token")
	}

	payload := struct {
		Refresh string `json:"refresh"`
	}{Refresh: refresh}
	var result struct {
		Access string `json:"access"`
	}
	spec := reqSpec{method: http.MethodPost, path: "/token/refresh/", jsonBody: payload, anonymous: true}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("api: encode refresh: %w", err)
	}
	status, respBody, err := c.attempt(ctx, spec, body, "application/json", "")
	if err != nil {
		// Any refresh failure, transport included, invalidates the session.
		return c.authLost(err, "refresh request failed")
	}
	if status < 200 || status > 299 {
		return c.authLost(nil, serverDetail(respBody))
	}
	if err := json.Unmarshal(respBody, &result); err != nil || result.Access == "" {
		return c.authLost(err, "malformed refresh response")
	}
	if err := c.tokens.SetAccess(result.Access); err != nil {
		c.log.Warn("persisting refreshed token failed", "error", err)
	}
	c.log.Debug("access token refreshed")
	return nil
}

func (c *Client) authLost(cause error, detail string) error {
	if err := c.tokens.Clear(); err != nil {
		c.log.Warn("clearing credentials failed", "error", err)
	}
	if c.onAuthLost != nil {
		c.onAuthLost()
	}
	c.log.Info("session invalidated", "detail", detail)
	return &Error{
		Kind:    KindAuth,
		Message: "Your session has expired. Please log in again.",
		Detail:  detail,
		Err:     errors.Join(ErrUnauthorized, cause),
	}
}

// classify maps a non-2xx response to a typed error with display text.
func (c *Client) classify(status int, body []byte) error {
	detail := serverDetail(body)
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimit, StatusCode: status, Message: rateLimitMessage(detail), Detail: detail}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		msg := detail
		if msg == "" {
			msg = "You are not allowed to do that."
		}
		return &Error{Kind: KindAuth, StatusCode: status, Message: msg, Detail: detail, Err: ErrUnauthorized}
	case status >= 400 && status < 500:
		msg := detail
		if msg == "" {
			msg = "The request was rejected. Please review your input."
		}
		return &Error{Kind: KindValidation, StatusCode: status, Message: msg, Detail: detail}
	default:
		return &Error{
			Kind:       KindServer,
			StatusCode: status,
			Message:    "The server ran into a problem. Please try again later.",
			Detail:     detail,
		}
	}
}

// serverDetail pulls a human-readable message out of an error body. The
// backend uses either {"detail": ...} or {"error": ...}; field-level
// validation maps are flattened to "field: reason" lines.
func serverDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		s := strings.TrimSpace(string(body))
		if len(s) > 200 {
			s = s[:200]
		}
		return s
	}
	for _, key := range []string{"detail", "error", "message"} {
		if v, ok := m[key].(string); ok && v != "" {
			return v
		}
	}
	var parts []string
	for field, v := range m {
		switch vv := v.(type) {
		case string:
			parts = append(parts, field+": "+vv)
		case []any:
			for _, e := range vv {
				if s, ok := e.(string); ok {
					parts = append(parts, field+": "+s)
				}
			}
		}
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}
