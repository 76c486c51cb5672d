// Package gate enforces session validity on every protected request. It is
// the only request-time authorizer: a request either proceeds with its owner
// attached to the context or is rejected with an opaque 401.
package gate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/pkg/logger"
)

// SessionResolver resolves a presented session identifier to the session and
// its owning user in one logical fetch.
type SessionResolver interface {
	ByIDWithUser(ctx context.Context, id string) (*auth.Session, *auth.User, error)
}

// Gate validates sessions presented via the session cookie.
type Gate struct {
	sessions   SessionResolver
	cookieName string
	now        func() time.Time
	log        *slog.Logger
	onReject   func()
	onAccept   func()
}

// Option configures the gate.
type Option func(*Gate)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// WithClock overrides the time source. Tests use this to exercise expiry.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// WithObserver registers accept/reject callbacks (metrics hooks). Nil
// callbacks are ignored.
func WithObserver(onAccept, onReject func()) Option {
	return func(g *Gate) {
		if onAccept != nil {
			g.onAccept = onAccept
		}
		if onReject != nil {
			g.onReject = onReject
		}
	}
}

// New creates a session gate reading the given cookie.
func New(sessions SessionResolver, cookieName string, opts ...Option) *Gate {
	g := &Gate{
		sessions:   sessions,
		cookieName: cookieName,
		now:        time.Now,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		onAccept:   func() {},
		onReject:   func() {},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Require wraps a protected handler. Missing, unknown, inactive, and expired
// sessions are rejected identically; valid sessions attach the owning user
// to the request context. Public operations are never wrapped, so they skip
// the lookup entirely.
func (g *Gate) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.Authorize(r)
		if err != nil {
			g.onReject()
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		g.onAccept()
		next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), user)))
	})
}

// Authorize resolves and validates the request's session, returning its
// owner. Every failure maps to auth.ErrUnauthorized; the distinction between
// missing, unknown, inactive, and expired never reaches the caller.
func (g *Gate) Authorize(r *http.Request) (*auth.User, error) {
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, auth.ErrUnauthorized
	}

	session, user, err := g.sessions.ByIDWithUser(r.Context(), cookie.Value)
	if err != nil {
		if !errors.Is(err, auth.ErrNotFound) {
			// Store failure, not an auth decision; log it but reject the
			// request the same opaque way.
			g.log.ErrorContext(r.Context(), "session lookup failed",
				logger.Error(err),
				logger.Component("gate"),
			)
		}
		return nil, auth.ErrUnauthorized
	}

	if !session.Usable(g.now()) {
		return nil, auth.ErrUnauthorized
	}

	return user, nil
}
