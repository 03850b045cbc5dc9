package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/teemow/calendar-mcp/internal/google"
	"github.com/teemow/calendar-mcp/internal/session"
)

const (
	testClientID     = "client-123"
	testClientSecret = "secret-456"
	testRedirectURL  = "http://localhost:5000/callback"
)

// fakeProvider mimics the token and userinfo endpoints. Codes are single
// use, like Google's.
type fakeProvider struct {
	server *httptest.Server

	mu          sync.Mutex
	codes       map[string]string // code -> access token
	used        map[string]bool
	failToken   bool
	userInfo    map[string]any
	failInfo    bool
	tokenCalls  int
	tokenDelay  time.Duration
	lastTokenRq url.Values
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	p := &fakeProvider{
		codes: map[string]string{},
		used:  map[string]bool{},
		userInfo: map[string]any{
			"email": "a@b.com",
			"name":  "A",
			"sub":   "123",
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/token", p.serveToken)
	mux.HandleFunc("/userinfo", p.serveUserInfo)
	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeProvider) issue(code, token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.codes[code] = token
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakeProvider) snapshot() (int, url.Values) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls, p.lastTokenRq
}

func (p *fakeProvider) serveToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p.mu.Lock()
	p.tokenCalls++
	p.lastTokenRq = r.PostForm
	delay := p.tokenDelay
	fail := p.failToken
	code := r.PostForm.Get("code")
	token, known := p.codes[code]
	reused := p.used[code]
	if known && !reused && !fail {
		p.used[code] = true
	}
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(delay):
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"server_error"}`))
		return
	}
	if !known || reused ||
		r.PostForm.Get("grant_type") != "authorization_code" ||
		r.PostForm.Get("client_id") != testClientID ||
		r.PostForm.Get("client_secret") != testClientSecret {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Bad Request"}`))
		return
	}

	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  token,
		"token_type":    "Bearer",
		"expires_in":    3599,
		"refresh_token": "refresh-" + token,
	})
}

func (p *fakeProvider) serveUserInfo(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	fail := p.failInfo
	info := p.userInfo
	valid := map[string]bool{}
	for _, tok := range p.codes {
		valid[tok] = true
	}
	p.mu.Unlock()

	auth := r.Header.Get("Authorization")
	if fail || !strings.HasPrefix(auth, "Bearer ") || !valid[strings.TrimPrefix(auth, "Bearer ")] {
		http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

func (p *fakeProvider) config() Config {
	return Config{
		ClientID:     testClientID,
		ClientSecret: testClientSecret,
		RedirectURL:  testRedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   "https://accounts.example.com/o/oauth2/auth",
			TokenURL:  p.server.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
		UserInfoURL: p.server.URL + "/userinfo",
		HTTPClient:  p.server.Client(),
		ListenAddr:  "127.0.0.1:0",
	}
}

func newTestController(t *testing.T, p *fakeProvider, storeOpts ...session.Option) *Controller {
	t.Helper()
	c, err := New(p.config(), session.NewMemoryStore(storeOpts...))
	require.NoError(t, err)
	return c
}

func callback(t *testing.T, c *Controller, query string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/callback?"+query, nil))
	return rec
}

func TestBeginLogin_AuthorizationURL(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestController(t, p)

	authURL, sid, err := c.BeginLogin(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, sid)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	assert.Equal(t, "accounts.example.com", u.Host)
	assert.Equal(t, "/o/oauth2/auth", u.Path)

	q := u.Query()
	assert.Equal(t, testClientID, q.Get("client_id"))
	assert.Equal(t, testRedirectURL, q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, strings.Join(google.DefaultOAuthScopes, " "), q.Get("scope"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, sid, q.Get("state"))
	assert.Empty(t, q.Get("client_secret"), "secret must never appear in the browser URL")
}

func TestBeginLogin_DistinctSessions(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestController(t, p)
	ctx := context.Background()

	_, first, err := c.BeginLogin(ctx)
	require.NoError(t, err)
	_, second, err := c.BeginLogin(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestIsAuthenticated_FalseUntilCallback(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("code-1", "T1")
	c := newTestController(t, p)
	ctx := context.Background()

	_, sid, err := c.BeginLogin(ctx)
	require.NoError(t, err)

	assert.False(t, c.IsAuthenticated(ctx, sid))
	assert.True(t, c.Store().Contains(ctx, sid))

	rec := callback(t, c, url.Values{"code": {"code-1"}, "state": {sid}}.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.True(t, c.IsAuthenticated(ctx, sid))
}

func TestAccessToken_UnknownSession(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestController(t, p)
	ctx := context.Background()

	token, ok := c.AccessToken(ctx, "never-issued")
	assert.False(t, ok)
	assert.Empty(t, token)

	_, ok = c.UserInfo(ctx, "never-issued")
	assert.False(t, ok)
	assert.False(t, c.IsAuthenticated(ctx, "never-issued"))
}

func TestCallback_MissingParams(t *testing.T) {
	tests := []struct {
		name  string
		query func(sid string) url.Values
	}{
		{name: "missing code", query: func(sid string) url.Values { return url.Values{"state": {sid}} }},
		{name: "missing state", query: func(string) url.Values { return url.Values{"code": {"code-1"}} }},
		{name: "missing both", query: func(string) url.Values { return url.Values{} }},
		{
			name: "provider denied",
			query: func(sid string) url.Values {
				return url.Values{"error": {"access_denied"}, "state": {sid}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider(t)
			p.issue("code-1", "T1")
			c := newTestController(t, p)
			ctx := context.Background()

			_, sid, err := c.BeginLogin(ctx)
			require.NoError(t, err)

			rec := callback(t, c, tt.query(sid).Encode())
			assert.Equal(t, http.StatusNotFound, rec.Code)

			rec2, ok := c.Store().Get(ctx, sid)
			require.True(t, ok)
			assert.Equal(t, session.StatePending, rec2.State)
			calls, _ := p.snapshot()
			assert.Zero(t, calls, "no exchange may happen without both parameters")
		})
	}
}

func TestCallback_TokenFailureKeepsPendingAndAllowsRetry(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("code-1", "T1")
	p.issue("code-2", "T2")
	c := newTestController(t, p)
	ctx := context.Background()

	_, sid, err := c.BeginLogin(ctx)
	require.NoError(t, err)

	p.set(func(p *fakeProvider) { p.failToken = true })
	rec := callback(t, c, url.Values{"code": {"code-1"}, "state": {sid}}.Encode())
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, c.IsAuthenticated(ctx, sid))

	stored, ok := c.Store().Get(ctx, sid)
	require.True(t, ok)
	assert.Equal(t, session.StatePending, stored.State)

	p.set(func(p *fakeProvider) { p.failToken = false })
	rec = callback(t, c, url.Values{"code": {"code-2"}, "state": {sid}}.Encode())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	token, ok := c.AccessToken(ctx, sid)
	require.True(t, ok)
	assert.Equal(t, "T2", token)
}

func TestCallback_UserInfoFailureKeepsPending(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("code-1", "T1")
	p.set(func(p *fakeProvider) { p.failInfo = true })
	c := newTestController(t, p)
	ctx := context.Background()

	_, sid, err := c.BeginLogin(ctx)
	require.NoError(t, err)

	_, err = c.HandleCallback(ctx, url.Values{"code": {"code-1"}, "state": {sid}})
	var cbErr *CallbackError
	require.True(t, errors.As(err, &cbErr))
	assert.Equal(t, KindUserInfo, cbErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, cbErr.Status)

	assert.False(t, c.IsAuthenticated(ctx, sid))
	_, ok := c.AccessToken(ctx, sid)
	assert.False(t, ok)
}

func TestCallback_EndToEnd(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("XYZ", "T1")
	c := newTestController(t, p, session.WithIDGenerator(func() string { return "abc" }))
	ctx := context.Background()

	_, sid, err := c.BeginLogin(ctx)
	require.NoError(t, err)
	require.Equal(t, "abc", sid)

	rec := callback(t, c, "code=XYZ&state=abc")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Login successful")
	assert.NotContains(t, rec.Body.String(), "T1")

	_, form := p.snapshot()
	assert.Equal(t, "XYZ", form.Get("code"))
	assert.Equal(t, testClientID, form.Get("client_id"))
	assert.Equal(t, testClientSecret, form.Get("client_secret"))
	assert.Equal(t, testRedirectURL, form.Get("redirect_uri"))
	assert.Equal(t, "authorization_code", form.Get("grant_type"))

	token, ok := c.AccessToken(ctx, "abc")
	require.True(t, ok)
	assert.Equal(t, "T1", token)

	info, ok := c.UserInfo(ctx, "abc")
	require.True(t, ok)
	assert.Equal(t, session.UserInfo{"email": "a@b.com", "name": "A", "sub": "123"}, info)
}

func TestCallback_ReplayedCodeLeavesSessionUnchanged(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("XYZ", "T1")
	c := newTestController(t, p)
	ctx := context.Background()

	_, sid, err := c.BeginLogin(ctx)
	require.NoError(t, err)

	query := url.Values{"code": {"XYZ"}, "state": {sid}}.Encode()
	require.Equal(t, http.StatusOK, callback(t, c, query).Code)

	before, ok := c.Store().Get(ctx, sid)
	require.True(t, ok)

	rec := callback(t, c, query)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	after, ok := c.Store().Get(ctx, sid)
	require.True(t, ok)
	assert.Equal(t, session.StateAuthenticated, after.State)
	assert.Equal(t, "T1", after.AccessToken)
	assert.Equal(t, before.UserInfo, after.UserInfo)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
}

func TestCallback_UnknownStateIsStored(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("code-1", "T1")
	c := newTestController(t, p)
	ctx := context.Background()

	rec := callback(t, c, "code=code-1&state=not-issued")
	require.Equal(t, http.StatusOK, rec.Code)

	token, ok := c.AccessToken(ctx, "not-issued")
	require.True(t, ok)
	assert.Equal(t, "T1", token)
}

func TestCallback_MethodNotAllowed(t *testing.T) {
	p := newFakeProvider(t)
	c := newTestController(t, p)

	rec := httptest.NewRecorder()
	c.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/callback?code=a&state=b", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCallback_UpstreamTimeout(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("code-1", "T1")
	p.set(func(p *fakeProvider) { p.tokenDelay = 5 * time.Second })

	cfg := p.config()
	cfg.HTTPClient = &http.Client{Timeout: 50 * time.Millisecond}
	c, err := New(cfg, session.NewMemoryStore())
	require.NoError(t, err)
	ctx := context.Background()

	_, sid, err := c.BeginLogin(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = c.HandleCallback(ctx, url.Values{"code": {"code-1"}, "state": {sid}})
	elapsed := time.Since(start)

	var cbErr *CallbackError
	require.True(t, errors.As(err, &cbErr))
	assert.Equal(t, KindTokenExchange, cbErr.Kind)
	assert.Less(t, elapsed, 2*time.Second)
	assert.False(t, c.IsAuthenticated(ctx, sid))
}

func TestTokenForSession(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("code-1", "T1")
	c := newTestController(t, p)
	ctx := context.Background()

	_, sid, err := c.BeginLogin(ctx)
	require.NoError(t, err)

	_, err = c.TokenForSession(ctx, sid)
	assert.ErrorIs(t, err, google.ErrNoToken)

	_, err = c.HandleCallback(ctx, url.Values{"code": {"code-1"}, "state": {sid}})
	require.NoError(t, err)

	tok, err := c.TokenForSession(ctx, sid)
	require.NoError(t, err)
	assert.Equal(t, "T1", tok.AccessToken)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Empty(t, tok.RefreshToken)
}

func TestStartAndShutdown(t *testing.T) {
	p := newFakeProvider(t)
	p.issue("code-1", "T1")
	c := newTestController(t, p)
	ctx := context.Background()

	assert.False(t, c.Running())
	require.NoError(t, c.Shutdown(ctx), "shutdown before start is a no-op")

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Running())
	assert.ErrorIs(t, c.Start(ctx), ErrAlreadyStarted)

	addr := c.Addr()
	require.NotEmpty(t, addr)

	resp, err := http.Get(fmt.Sprintf("http://%s/callback", addr))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	_, sid, err := c.BeginLogin(ctx)
	require.NoError(t, err)
	resp, err = http.Get(fmt.Sprintf("http://%s/callback?code=code-1&state=%s", addr, sid))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, c.IsAuthenticated(ctx, sid))

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, c.Shutdown(shutdownCtx))
	assert.False(t, c.Running())
	assert.Empty(t, c.Addr())
	assert.NoError(t, c.Err())

	// The listener can be started again after a clean shutdown.
	require.NoError(t, c.Start(ctx))
	require.NoError(t, c.Shutdown(shutdownCtx))
}

func TestHandler_RateLimited(t *testing.T) {
	p := newFakeProvider(t)
	cfg := p.config()
	cfg.RateLimit = RateLimitConfig{Rate: 1, Burst: 1}
	c, err := New(cfg, session.NewMemoryStore())
	require.NoError(t, err)

	first := callback(t, c, "")
	assert.Equal(t, http.StatusNotFound, first.Code)

	second := callback(t, c, "")
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
}

func TestNew_Validation(t *testing.T) {
	store := session.NewMemoryStore()
	base := Config{ClientID: "id", ClientSecret: "secret", RedirectURL: testRedirectURL}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing client id", mutate: func(c *Config) { c.ClientID = "" }},
		{name: "missing secret", mutate: func(c *Config) { c.ClientSecret = "" }},
		{name: "missing redirect", mutate: func(c *Config) { c.RedirectURL = "" }},
		{name: "relative redirect", mutate: func(c *Config) { c.RedirectURL = "/callback" }},
		{name: "bad scheme", mutate: func(c *Config) { c.RedirectURL = "ftp://localhost/callback" }},
		{name: "negative rate", mutate: func(c *Config) { c.RateLimit.Rate = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(cfg, store)
			assert.Error(t, err)
		})
	}

	_, err := New(base, nil)
	assert.Error(t, err, "store is required")

	c, err := New(base, store)
	require.NoError(t, err)
	assert.Equal(t, DefaultCallbackPath, c.CallbackPath())
	assert.Equal(t, DefaultHTTPTimeout, c.cfg.HTTPClient.Timeout)
	assert.Equal(t, google.UserInfoURL, c.cfg.UserInfoURL)
	assert.Equal(t, oauth2.AuthStyleInParams, c.cfg.Endpoint.AuthStyle)
}
