package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/auth/oauth"
	"github.com/tradepost/tradepost/pkg/logger"
)

// handleOAuthRedirect starts the provider flow: a single-use state is
// issued and the browser is sent to the provider's consent page.
func (s *Server) handleOAuthRedirect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, err := s.providers.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown provider")
		return
	}

	state, err := s.states.Issue(r.Context(), name)
	if err != nil {
		s.log.ErrorContext(r.Context(), "failed to issue oauth state",
			logger.Error(err), logger.Provider(name))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	http.Redirect(w, r, provider.AuthCodeURL(state), http.StatusFound)
}

// handleOAuthCallback completes the provider flow. Every failure lands the
// browser on the frontend login page with a generic error marker; only the
// logs carry the cause.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	provider, err := s.providers.Get(name)
	if err != nil {
		writeError(w, http.StatusNotFound, "Unknown provider")
		return
	}

	result, err := s.completeOAuth(r, provider)
	if s.metrics != nil {
		s.metrics.ObserveOAuthLogin(name, err == nil)
	}
	if err != nil {
		level := s.log.ErrorContext
		if errors.Is(err, oauth.ErrInvalidState) || errors.Is(err, oauth.ErrInvalidCode) {
			level = s.log.WarnContext
		}
		level(r.Context(), "oauth callback failed", logger.Error(err), logger.Provider(name))
		http.Redirect(w, r, s.frontendURL+"/login?error=oauth_failed", http.StatusFound)
		return
	}

	s.setSessionCookie(w, result.SessionID)
	http.Redirect(w, r, s.frontendURL+"/auth/callback", http.StatusFound)
}

func (s *Server) completeOAuth(r *http.Request, provider oauth.Provider) (*auth.AuthResult, error) {
	ctx := r.Context()

	if err := s.states.Consume(ctx, provider.Name(), r.URL.Query().Get("state")); err != nil {
		return nil, err
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		return nil, oauth.ErrInvalidCode
	}

	tok, err := provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	profile, err := provider.Profile(ctx, tok)
	if err != nil {
		return nil, err
	}

	return s.svc.HandleOAuthCallback(ctx, profile, requestMeta(r))
}
