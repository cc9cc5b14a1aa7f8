package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundquest/auth-portal/internal/backend"
	"github.com/fundquest/auth-portal/internal/config"
	"github.com/fundquest/auth-portal/internal/msauth"
	"github.com/fundquest/auth-portal/internal/session"
)

// fakeBackend counts calls to the auth backend and serves canned
// responses in the envelope dialect.
type fakeBackend struct {
	exchanges     atomic.Int32
	logouts       atomic.Int32
	profileStatus atomic.Int32

	lastCode atomic.Value
}

func (f *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/microsoft/verify", func(w http.ResponseWriter, r *http.Request) {
		f.exchanges.Add(1)

		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.lastCode.Store(body["authCode"])

		io.WriteString(w, `{"success":true,"data":{"accessToken":"portal-token","tokenType":"Bearer","expiresIn":3600}}`)
	})

	mux.HandleFunc("POST /api/v1/auth/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	mux.HandleFunc("POST /api/v1/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		f.logouts.Add(1)
		io.WriteString(w, `{"success":true}`)
	})

	mux.HandleFunc("GET /api/v1/user/profile", func(w http.ResponseWriter, r *http.Request) {
		if s := f.profileStatus.Load(); s != 0 {
			w.WriteHeader(int(s))
			return
		}

		io.WriteString(w, `{"success":true,"data":{"id":"u-1","name":"Ada Lovelace","email":"ada@fundquest.example","department":"Research"}}`)
	})

	return mux
}

type fixture struct {
	portal  *httptest.Server
	backend *fakeBackend
	store   *session.Store
	client  *http.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fb := &fakeBackend{}
	backendSrv := httptest.NewServer(fb.handler())
	t.Cleanup(backendSrv.Close)

	store, err := session.Open(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	bc := backend.NewClient(backendSrv.URL, config.DefaultEndpoints(), store, backendSrv.Client(), logger)

	builder := msauth.NewBuilder(
		"client-123",
		"tenant-abc",
		"http://localhost:3000/auth/callbacks",
		[]string{"openid", "profile", "email"},
	)

	mux := NewMux(MuxConfig{
		Auth:            builder,
		Backend:         bc,
		Store:           store,
		Gate:            session.NewGate(store, "/", "/dashboard"),
		Logger:          logger,
		RedirectSeconds: 3,
	})

	portal := httptest.NewServer(mux)
	t.Cleanup(portal.Close)

	// Redirects are under test, so the client must not follow them.
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &fixture{portal: portal, backend: fb, store: store, client: client}
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()

	resp, err := f.client.Get(f.portal.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()

	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return string(b)
}

// stateCookieFrom pulls the oauth_state cookie out of a response.
func stateCookieFrom(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()

	for _, c := range resp.Cookies() {
		if c.Name == stateCookie {
			return c
		}
	}

	t.Fatal("no state cookie set")

	return nil
}

// --- sign-in page ---

func TestLogin_RendersAuthorizeLink(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "login.microsoftonline.com/tenant-abc")
	assert.Contains(t, body, "client_id=client-123")
	assert.Contains(t, body, "response_type=code")
	assert.Contains(t, body, "response_mode=query")
	assert.NotContains(t, body, "response_type=token")

	c := stateCookieFrom(t, resp)
	assert.NotEmpty(t, c.Value)
	assert.True(t, c.HttpOnly)

	// The authorize link carries the same state the cookie does.
	assert.Contains(t, body, "state="+c.Value)
}

func TestLogin_AuthenticatedRedirectsToDashboard(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(session.Session{AccessToken: "tok"}))

	resp := f.get(t, "/")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))
}

func TestLogin_UnknownPathRedirectsToRoot(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/nope/nothing-here")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

// --- callback ---

func TestCallback_SuccessExchangesAndRedirects(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/auth/callbacks?code=auth-code-1&state=s1")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/dashboard", resp.Header.Get("Location"))

	assert.Equal(t, int32(1), f.backend.exchanges.Load())
	assert.Equal(t, "auth-code-1", f.backend.lastCode.Load())
	assert.True(t, f.store.IsAuthenticated())
}

func TestCallback_ProviderDenialSkipsExchange(t *testing.T) {
	f := newFixture(t)

	q := url.Values{}
	q.Set("error", "access_denied")
	q.Set("error_description", "User declined the consent prompt")

	resp := f.get(t, "/auth/callbacks?"+q.Encode())
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "User declined the consent prompt")
	assert.Contains(t, body, `http-equiv="refresh"`)
	assert.Contains(t, body, "url=/")

	assert.Zero(t, f.backend.exchanges.Load(), "a denial must never reach the backend")
	assert.False(t, f.store.IsAuthenticated())
}

func TestCallback_MissingCodeIsAnError(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/auth/callbacks")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "authorization code")
	assert.Zero(t, f.backend.exchanges.Load())
}

func TestCallback_StateMismatchSkipsExchange(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.portal.URL+"/auth/callbacks?code=c1&state=forged", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "expected"})

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, f.backend.exchanges.Load())
}

func TestCallback_MatchingStateProceeds(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodGet, f.portal.URL+"/auth/callbacks?code=c1&state=s1", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: stateCookie, Value: "s1"})

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, int32(1), f.backend.exchanges.Load())
}

func TestCallback_ReloadRetriesSpentCode(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/auth/callbacks?code=auth-code-1")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	// A browser reload of the callback URL re-runs the exchange; the
	// settled first attempt no longer deduplicates it, so the backend
	// gets to decide whether the code is still redeemable.
	resp2 := f.get(t, "/auth/callbacks?code=auth-code-1")
	assert.Contains(t, []int{http.StatusFound, http.StatusBadRequest}, resp2.StatusCode)
	assert.Equal(t, int32(2), f.backend.exchanges.Load())
}

// --- dashboard ---

func TestDashboard_UnauthenticatedRedirectsToLogin(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/dashboard")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
}

func TestDashboard_ShowsProfile(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(session.Session{AccessToken: "portal-token", ExpiresIn: 3600}))

	resp := f.get(t, "/dashboard")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "Ada Lovelace")
	assert.Contains(t, body, "ada@fundquest.example")
	assert.Contains(t, body, "Research")
}

func TestDashboard_RejectedSessionRedirectsToLogin(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(session.Session{AccessToken: "revoked"}))
	f.backend.profileStatus.Store(http.StatusUnauthorized)

	resp := f.get(t, "/dashboard")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	// The dead session is gone, so the next visit starts a fresh flow.
	assert.False(t, f.store.IsAuthenticated())
}

func TestDashboard_BackendFailureShowsRetry(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(session.Session{AccessToken: "tok"}))
	f.backend.profileStatus.Store(http.StatusInternalServerError)

	resp := f.get(t, "/dashboard")
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body := readBody(t, resp)
	assert.Contains(t, body, "Try again")
	assert.Contains(t, body, "/dashboard")

	// The session survives a non-auth failure.
	assert.True(t, f.store.IsAuthenticated())
}

// --- logout ---

func TestLogout_ClearsSessionAndRedirects(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save(session.Session{AccessToken: "tok"}))

	resp, err := f.client.Post(f.portal.URL+"/logout", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))
	assert.Equal(t, int32(1), f.backend.logouts.Load())
	assert.False(t, f.store.IsAuthenticated())
}

func TestLogout_WithoutSessionStillSucceeds(t *testing.T) {
	f := newFixture(t)

	resp, err := f.client.Post(f.portal.URL+"/logout", "", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.False(t, f.store.IsAuthenticated())
}

// --- health, misc ---

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, readBody(t, resp))
}

func TestRequestIDHeader(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/healthz")
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestLogin_FreshStatePerVisit(t *testing.T) {
	f := newFixture(t)

	first := stateCookieFrom(t, f.get(t, "/")).Value
	second := stateCookieFrom(t, f.get(t, "/")).Value
	assert.NotEqual(t, first, second)
	assert.False(t, strings.EqualFold(first, second))
}
