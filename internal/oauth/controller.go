package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/calendar-mcp/internal/google"
	"github.com/teemow/calendar-mcp/internal/instrumentation"
	"github.com/teemow/calendar-mcp/internal/logging"
	"github.com/teemow/calendar-mcp/internal/session"
)

// ErrAlreadyStarted is returned by Start when the listener is running.
var ErrAlreadyStarted = errors.New("callback listener already started")

const loginSuccessBody = "Login successful. You can close this window and return to your assistant.\n"

// Controller drives the authorization-code flow for one OAuth client.
type Controller struct {
	cfg     Config
	oauth   *oauth2.Config
	store   *session.Store
	logger  *slog.Logger
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	limiter *ipRateLimiter

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
	serveErr error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithMetrics records login and callback metrics on m.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithAuditLogger writes one audit record per callback.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(c *Controller) {
		c.audit = al
	}
}

// New validates cfg and returns a controller writing to store.
func New(cfg Config, store *session.Store, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("session store is required")
	}
	cfg = cfg.withDefaults()

	c := &Controller{
		cfg:   cfg,
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
		},
		limiter: newIPRateLimiter(cfg.RateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithComponent(logging.OrDefault(c.logger), "oauth")
	return c, nil
}

// Store returns the session store the controller writes to.
func (c *Controller) Store() *session.Store {
	return c.store
}

// CallbackPath is the path the callback handler expects to be mounted at.
func (c *Controller) CallbackPath() string {
	return c.cfg.CallbackPath
}

// BeginLogin creates a pending session and returns the provider URL the
// user must open. The URL's state parameter is the returned session ID,
// and both must be passed to the user unmodified.
func (c *Controller) BeginLogin(ctx context.Context) (string, string, error) {
	sid, err := c.store.Create(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to start login: %w", err)
	}
	c.metrics.RecordLoginStarted(ctx)
	c.logger.Info("login started", logging.Session(sid))
	return c.AuthURL(sid), sid, nil
}

// AuthURL builds the authorization URL for state. It always requests
// offline access and forces the consent screen.
func (c *Controller) AuthURL(state string) string {
	return c.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// HandleCallback completes a login from the redirect's query parameters.
// Failures are returned as *CallbackError and never modify the session.
func (c *Controller) HandleCallback(ctx context.Context, query url.Values) (session.UserInfo, error) {
	start := time.Now()
	code := query.Get("code")
	state := query.Get("state")
	hashed := logging.SessionHash(state)

	if code == "" || state == "" {
		if providerErr := query.Get("error"); providerErr != "" {
			c.logger.Warn("provider returned an error to the callback",
				slog.String("provider_error", providerErr),
				slog.String("description", query.Get("error_description")),
				logging.Session(state))
		}
		cbErr := errMissingParams("Missing code or state parameter")
		c.finishCallback(ctx, hashed, "", cbErr, start)
		return nil, cbErr
	}

	ctx, span := instrumentation.StartSpan(ctx, "oauth.callback", instrumentation.SessionAttr(hashed))
	defer span.End()

	token, err := c.exchange(ctx, code, hashed)
	if err != nil {
		cbErr := errTokenExchange(err)
		instrumentation.SetSpanError(span, cbErr)
		c.finishCallback(ctx, hashed, "", cbErr, start)
		return nil, cbErr
	}

	info, err := c.userInfo(ctx, token.AccessToken, hashed)
	if err != nil {
		cbErr := errUserInfo(err)
		instrumentation.SetSpanError(span, cbErr)
		c.finishCallback(ctx, hashed, "", cbErr, start)
		return nil, cbErr
	}

	if err := c.store.MarkAuthenticated(ctx, state, info, token.AccessToken); err != nil {
		cbErr := errSessionStore(err)
		instrumentation.SetSpanError(span, cbErr)
		c.finishCallback(ctx, hashed, info.Email(), cbErr, start)
		return nil, cbErr
	}

	instrumentation.SetSpanSuccess(span)
	c.finishCallback(ctx, hashed, info.Email(), nil, start)
	return info.Clone(), nil
}

func (c *Controller) exchange(ctx context.Context, code, hashed string) (*oauth2.Token, error) {
	ctx, span := instrumentation.StartOAuthSpan(ctx, instrumentation.StepTokenExchange, instrumentation.SessionAttr(hashed))
	defer span.End()

	start := time.Now()
	token, err := c.oauth.Exchange(context.WithValue(ctx, oauth2.HTTPClient, c.cfg.HTTPClient), code)
	if err != nil {
		c.metrics.RecordOAuthUpstream(ctx, instrumentation.StepTokenExchange, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)

		attrs := []any{slog.String(logging.KeySession, hashed), logging.Err(err)}
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			attrs = append(attrs,
				slog.String("error_code", rErr.ErrorCode),
				slog.Int("upstream_status", retrieveStatus(rErr)))
		}
		c.logger.Error("failed to exchange code for token", attrs...)
		return nil, err
	}

	c.metrics.RecordOAuthUpstream(ctx, instrumentation.StepTokenExchange, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)
	return token, nil
}

func retrieveStatus(err *oauth2.RetrieveError) int {
	if err.Response == nil {
		return 0
	}
	return err.Response.StatusCode
}

func (c *Controller) userInfo(ctx context.Context, accessToken, hashed string) (session.UserInfo, error) {
	ctx, span := instrumentation.StartOAuthSpan(ctx, instrumentation.StepUserInfo, instrumentation.SessionAttr(hashed))
	defer span.End()

	start := time.Now()
	info, err := c.fetchUserInfo(ctx, accessToken)
	if err != nil {
		c.metrics.RecordOAuthUpstream(ctx, instrumentation.StepUserInfo, instrumentation.StatusError, time.Since(start))
		instrumentation.SetSpanError(span, err)
		c.logger.Error("failed to fetch user info", slog.String(logging.KeySession, hashed), logging.Err(err))
		return nil, err
	}

	c.metrics.RecordOAuthUpstream(ctx, instrumentation.StepUserInfo, instrumentation.StatusSuccess, time.Since(start))
	instrumentation.SetSpanSuccess(span)
	return info, nil
}

func (c *Controller) finishCallback(ctx context.Context, hashed, email string, cbErr *CallbackError, start time.Time) {
	result := instrumentation.OAuthResultSuccess
	if cbErr != nil {
		result = string(cbErr.Kind)
	}
	c.metrics.RecordOAuthCallback(ctx, result)
	c.audit.LogLogin(ctx, instrumentation.LoginEvent{
		Session:   hashed,
		UserEmail: email,
		Result:    result,
		Duration:  time.Since(start),
	})
	if cbErr == nil {
		c.logger.Info("login completed", slog.String(logging.KeySession, hashed), logging.UserHash(email))
	}
}

// ServeHTTP is the callback endpoint. It answers 200 on success, 404 when
// code or state is missing and 500 when the provider calls fail.
func (c *Controller) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if _, err := c.HandleCallback(r.Context(), r.URL.Query()); err != nil {
		var cbErr *CallbackError
		if errors.As(err, &cbErr) {
			http.Error(w, cbErr.Description, cbErr.Status)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(loginSuccessBody))
}

// Handler returns the callback endpoint wrapped in rate limiting, tracing
// and request metrics, ready to mount at CallbackPath.
func (c *Controller) Handler() http.Handler {
	return c.metrics.HTTPMiddleware(c.cfg.CallbackPath, c.limiter.middleware(c))
}

// IsAuthenticated reports whether sid completed a login.
func (c *Controller) IsAuthenticated(ctx context.Context, sid string) bool {
	return c.store.IsAuthenticated(ctx, sid)
}

// UserInfo returns the provider's profile document for an authenticated sid.
func (c *Controller) UserInfo(ctx context.Context, sid string) (session.UserInfo, bool) {
	return c.store.UserInfo(ctx, sid)
}

// AccessToken returns the stored access token for an authenticated sid.
func (c *Controller) AccessToken(ctx context.Context, sid string) (string, bool) {
	return c.store.AccessToken(ctx, sid)
}

// TokenForSession implements google.TokenProvider. The token carries no
// expiry and no refresh token, so it is used as-is until the provider
// rejects it.
func (c *Controller) TokenForSession(ctx context.Context, sid string) (*oauth2.Token, error) {
	token, ok := c.store.AccessToken(ctx, sid)
	if !ok {
		return nil, fmt.Errorf("%w: %s", google.ErrNoToken, logging.SessionHash(sid))
	}
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}, nil
}

var _ google.TokenProvider = (*Controller)(nil)

// Start binds the standalone callback listener on ListenAddr and serves
// CallbackPath in the background. It returns once the socket is bound.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.server != nil {
		return ErrAlreadyStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", c.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", c.cfg.ListenAddr, err)
	}

	mux := http.NewServeMux()
	mux.Handle(c.cfg.CallbackPath, c.Handler())

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2*DefaultHTTPTimeout + 15*time.Second,
		IdleTimeout:       120 * time.Second,
	}
	done := make(chan struct{})

	c.server = srv
	c.listener = ln
	c.done = done
	c.serveErr = nil

	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("callback listener stopped", logging.Err(err))
			c.mu.Lock()
			c.serveErr = err
			c.mu.Unlock()
		}
	}()

	c.logger.Info("callback listener started",
		slog.String("addr", ln.Addr().String()),
		slog.String("path", c.cfg.CallbackPath))
	return nil
}

// Addr returns the bound listener address, or "" when not started.
func (c *Controller) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return ""
	}
	return c.listener.Addr().String()
}

// Running reports whether the standalone listener is serving.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.server == nil {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Err returns the error that stopped the listener, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serveErr
}

// Shutdown stops the standalone listener, waiting for in-flight callbacks
// until ctx expires. It is a no-op when the listener was never started.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	srv, done := c.server, c.done
	c.server = nil
	c.listener = nil
	c.mu.Unlock()

	if srv == nil {
		return nil
	}

	c.logger.Info("shutting down callback listener")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown callback listener: %w", err)
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
