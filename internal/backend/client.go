// Package backend talks to the auth backend: code-for-token exchange,
// token refresh, logout, and the profile resource. All failures are
// normalized into *Error before they reach view logic.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"

	"github.com/fundquest/auth-portal/internal/config"
	errs "github.com/fundquest/auth-portal/internal/errors"
	"github.com/fundquest/auth-portal/internal/logging"
	"github.com/fundquest/auth-portal/internal/session"
)

const defaultTimeout = 30 * time.Second

// maxErrorBodyLen caps how much of a plain-text error body is surfaced
// to the user.
const maxErrorBodyLen = 512

// Client is the HTTP client for the auth backend. Auth endpoints
// (exchange, refresh) go over the plain transport; resource endpoints
// (profile, logout) go through the bearer-injecting transport with its
// refresh-on-401 behavior.
type Client struct {
	httpClient *http.Client
	authed     *http.Client
	baseURL    string
	eps        config.Endpoints
	store      *session.Store
	logger     *slog.Logger

	// exchanges deduplicates concurrent exchange calls per code. The
	// group forgets a key as soon as its call settles, so a later
	// structurally-new attempt with the same code is locally permitted.
	exchanges singleflight.Group

	// refreshes collapses concurrent refresh attempts into one call.
	refreshes singleflight.Group
}

// NewClient creates a backend client. If httpClient is nil a default
// with a 30 second timeout is used; pass a client with a cookie jar so
// the backend's refresh-token cookie survives between calls.
func NewClient(baseURL string, eps config.Endpoints, store *session.Store, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		eps:        eps,
		store:      store,
		logger:     logger,
	}

	base := httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	c.authed = &http.Client{
		Timeout: httpClient.Timeout,
		Jar:     httpClient.Jar,
		Transport: &bearerTransport{
			base:    base,
			store:   store,
			refresh: c.Refresh,
		},
	}

	return c
}

// Exchange redeems an authorization code for a session. Calls are
// single-flight per code value: a concurrent call with an equal code
// shares the in-flight HTTP round trip and receives the same outcome.
// On success the session has been saved to the store before Exchange
// returns.
func (c *Client) Exchange(ctx context.Context, code string) (*session.Session, error) {
	if code == "" {
		return nil, newError(KindExchange, "authorization code is empty", nil)
	}

	v, err, shared := c.exchanges.Do(code, func() (interface{}, error) {
		return c.exchangeOnce(ctx, code)
	})
	if err != nil {
		return nil, err
	}

	if shared {
		c.logger.Debug("exchange deduplicated", slog.String("code_preview", logging.TokenPreview(code)))
	}

	return v.(*session.Session), nil
}

func (c *Client) exchangeOnce(ctx context.Context, code string) (*session.Session, error) {
	payload := map[string]string{"code": code}
	if c.eps.Dialect == config.DialectEnvelope {
		payload = map[string]string{"authCode": code}
	}

	sess, err := c.postToken(ctx, c.eps.Exchange, payload, KindExchange)
	if err != nil {
		return nil, err
	}

	if err := c.store.Save(*sess); err != nil {
		return nil, newError(KindExchange, "saving session: "+err.Error(), err)
	}

	c.logger.Info("code exchanged",
		slog.String("token_preview", logging.TokenPreview(sess.AccessToken)),
		slog.Int64("expires_in", sess.ExpiresIn),
	)

	return sess, nil
}

// Refresh obtains a new access token, relying on the backend's refresh
// cookie. Concurrent refreshes collapse into one call. The new session
// is saved before Refresh returns.
func (c *Client) Refresh(ctx context.Context) (*session.Session, error) {
	v, err, _ := c.refreshes.Do("refresh", func() (interface{}, error) {
		sess, err := c.postToken(ctx, c.eps.Refresh, nil, KindUnauthorized)
		if err != nil {
			return nil, err
		}

		if err := c.store.Save(*sess); err != nil {
			return nil, newError(KindUnauthorized, "saving refreshed session: "+err.Error(), err)
		}

		c.logger.Debug("token refreshed", slog.String("token_preview", logging.TokenPreview(sess.AccessToken)))

		return sess, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*session.Session), nil
}

// Logout tells the backend to invalidate the session. Best-effort: the
// caller clears local state regardless of the outcome.
func (c *Client) Logout(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.eps.Logout, nil)
	if err != nil {
		return newError(KindTransport, "creating logout request", err)
	}

	resp, err := c.authed.Do(req)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			// Nothing to invalidate server-side.
			return nil
		}

		return newError(KindTransport, "logout request failed", errors.Join(errs.ErrAPIRequest, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return newError(KindTransport, extractErrorMessage(resp.StatusCode, body), errs.ErrAPIResponse)
	}

	return nil
}

// Profile is the user-profile resource as served by the backend.
type Profile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	MicrosoftID string `json:"microsoftId"`
	GivenName   string `json:"givenName"`
	FamilyName  string `json:"familyName"`
	JobTitle    string `json:"jobTitle"`
	Department  string `json:"department"`
	LastLogin   string `json:"lastLogin"`
}

// GetProfile fetches the authenticated user's profile with the stored
// bearer token. A 401 that survives the transport's refresh attempt
// surfaces as KindUnauthorized with the session already cleared.
func (c *Client) GetProfile(ctx context.Context) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+c.eps.Profile, nil)
	if err != nil {
		return nil, newError(KindTransport, "creating profile request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.authed.Do(req)
	if err != nil {
		if errors.Is(err, errs.ErrUnauthorized) {
			return nil, newError(KindUnauthorized, "session is no longer valid", errs.ErrUnauthorized)
		}

		return nil, newError(KindTransport, "profile request failed", errors.Join(errs.ErrAPIRequest, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindTransport, "reading profile response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(KindProfile, extractErrorMessage(resp.StatusCode, body), errs.ErrAPIResponse)
	}

	return parseProfileBody(body, c.eps.Dialect)
}

// postToken POSTs to an auth endpoint and parses the token response.
// Failures are normalized with the given kind.
func (c *Client) postToken(ctx context.Context, endpoint string, payload map[string]string, kind Kind) (*session.Session, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, newError(kind, "marshalling request body", err)
		}

		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, body)
	if err != nil {
		return nil, newError(kind, "creating request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, newError(KindTransport, fmt.Sprintf("sending request to %s: %v", endpoint, err), errors.Join(errs.ErrAPIRequest, err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newError(KindTransport, fmt.Sprintf("reading response from %s: %v", endpoint, err), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(kind, extractErrorMessage(resp.StatusCode, respBody), errs.ErrAPIResponse)
	}

	sess, err := parseTokenBody(respBody, c.eps.Dialect)
	if err != nil {
		var be *Error
		if errors.As(err, &be) {
			be.Kind = kind
		}

		return nil, err
	}

	return sess, nil
}

// extractErrorMessage picks the best human-readable message out of an
// error response: a structured backend error object first, then the
// plain body, then the status text.
func extractErrorMessage(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		for _, path := range []string{"error.message", "message", "error"} {
			if v := gjson.GetBytes(body, path); v.Type == gjson.String && v.Str != "" {
				return v.Str
			}
		}
	}

	if s := strings.TrimSpace(string(body)); s != "" {
		if len(s) > maxErrorBodyLen {
			s = s[:maxErrorBodyLen]
		}

		return s
	}

	return http.StatusText(status)
}

// parseTokenBody parses a token response in either dialect. The
// envelope dialect is {success: true, data: {accessToken, tokenType,
// expiresIn}}; the raw dialect is the bare token string, optionally
// JSON-quoted.
func parseTokenBody(body []byte, dialect string) (*session.Session, error) {
	if dialect == config.DialectRaw {
		token := strings.TrimSpace(string(body))
		if gjson.ValidBytes(body) {
			if v := gjson.ParseBytes(body); v.Type == gjson.String {
				token = v.Str
			}
		}

		if token == "" {
			return nil, newError(KindExchange, "backend returned an empty access token", errs.ErrEmptyToken)
		}

		return &session.Session{AccessToken: token, TokenType: "Bearer"}, nil
	}

	if !gjson.ValidBytes(body) {
		return nil, newError(KindExchange, "malformed token response", errs.ErrAPIResponse)
	}

	root := gjson.ParseBytes(body)
	if v := root.Get("success"); v.Exists() && !v.Bool() {
		return nil, newError(KindExchange, extractErrorMessage(http.StatusOK, body), errs.ErrAPIResponse)
	}

	data := root.Get("data")
	token := data.Get("accessToken").Str
	if token == "" {
		return nil, newError(KindExchange, "backend returned an empty access token", errs.ErrEmptyToken)
	}

	tokenType := data.Get("tokenType").Str
	if tokenType == "" {
		tokenType = "Bearer"
	}

	return &session.Session{
		AccessToken: token,
		TokenType:   tokenType,
		ExpiresIn:   data.Get("expiresIn").Int(),
	}, nil
}

// parseProfileBody decodes the profile resource. The envelope dialect
// nests it under data; the raw dialect serves the object directly.
func parseProfileBody(body []byte, dialect string) (*Profile, error) {
	raw := body
	if dialect == config.DialectEnvelope {
		root := gjson.ParseBytes(body)
		if v := root.Get("success"); v.Exists() && !v.Bool() {
			return nil, newError(KindProfile, extractErrorMessage(http.StatusOK, body), errs.ErrAPIResponse)
		}

		if data := root.Get("data"); data.Exists() {
			raw = []byte(data.Raw)
		}
	}

	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, newError(KindProfile, "malformed profile response", errors.Join(errs.ErrAPIResponse, err))
	}

	return &p, nil
}
