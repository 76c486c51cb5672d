// Package httpapi is the HTTP boundary of the auth subsystem. Handlers
// decode transport details, delegate to the auth service, and translate
// domain errors to status codes; no business rules live here.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/auth/oauth"
	"github.com/tradepost/tradepost/internal/gate"
	"github.com/tradepost/tradepost/internal/mail"
	"github.com/tradepost/tradepost/internal/metrics"
	"github.com/tradepost/tradepost/pkg/clientip"
)

// CookieConfig controls the session cookie the boundary issues.
type CookieConfig struct {
	Name   string
	Secure bool
	MaxAge time.Duration
}

// Server wires the auth endpoints together.
type Server struct {
	svc          *auth.Service
	gate         *gate.Gate
	providers    oauth.Registry
	states       *oauth.StateStore
	resetMailer  *mail.ResetMailer
	metrics      *metrics.Metrics
	cookie       CookieConfig
	frontendURL  string
	log          *slog.Logger
	healthChecks map[string]func(context.Context) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMetrics enables request instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealthCheck registers a named dependency probe for the health
// endpoint.
func WithHealthCheck(name string, check func(context.Context) error) Option {
	return func(s *Server) {
		if s.healthChecks == nil {
			s.healthChecks = make(map[string]func(context.Context) error)
		}
		s.healthChecks[name] = check
	}
}

// NewServer creates the HTTP boundary.
func NewServer(
	svc *auth.Service,
	g *gate.Gate,
	providers oauth.Registry,
	states *oauth.StateStore,
	resetMailer *mail.ResetMailer,
	cookie CookieConfig,
	frontendURL string,
	opts ...Option,
) *Server {
	s := &Server{
		svc:         svc,
		gate:        g,
		providers:   providers,
		states:      states,
		resetMailer: resetMailer,
		cookie:      cookie,
		frontendURL: frontendURL,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// route describes one endpoint. Protected routes are wrapped by the gate;
// public ones are mounted bare and never touch the session store.
type route struct {
	method    string
	pattern   string
	protected bool
	handler   http.HandlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodPost, "/auth/register", false, s.handleRegister},
		{http.MethodPost, "/auth/login", false, s.handleLogin},
		{http.MethodPost, "/auth/logout", false, s.handleLogout},
		{http.MethodPost, "/auth/forgot-password", false, s.handleForgotPassword},
		{http.MethodPost, "/auth/reset-password", false, s.handleResetPassword},
		{http.MethodGet, "/auth/me", true, s.handleMe},
		{http.MethodGet, "/auth/{provider}", false, s.handleOAuthRedirect},
		{http.MethodGet, "/auth/{provider}/callback", false, s.handleOAuthCallback},
		{http.MethodGet, "/health", false, s.handleHealth},
	}
}

// Router builds the chi router with all auth routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	for _, rt := range s.routes() {
		h := http.Handler(rt.handler)
		if rt.protected {
			h = s.gate.Require(h)
		}
		r.Method(rt.method, rt.pattern, h)
	}

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

// setSessionCookie issues the session cookie on w.
func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(s.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie on w.
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func requestMeta(r *http.Request) auth.RequestMeta {
	return auth.RequestMeta{
		IP:        clientip.GetIP(r),
		UserAgent: r.UserAgent(),
	}
}
