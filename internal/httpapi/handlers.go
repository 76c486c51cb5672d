package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/pkg/logger"
)

const (
	minPasswordLen = 8

	// forgotPasswordMessage is returned for every forgot-password request,
	// known and unknown emails alike.
	forgotPasswordMessage = "If this email exists, a reset link has been sent."

	mailSendTimeout = 30 * time.Second
)

// userEnvelope wraps user payloads the way the frontend consumes them.
type userEnvelope struct {
	User auth.UserResponse `json:"user"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	UserType string `json:"userType"`
}

func (req registerRequest) validate() string {
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "A valid email is required"
	}
	if len(req.Password) < minPasswordLen {
		return "Password must be at least 8 characters"
	}
	if strings.TrimSpace(req.Name) == "" {
		return "Name is required"
	}
	if req.UserType != string(auth.KindBuyer) && req.UserType != string(auth.KindSeller) {
		return "User type must be buyer or seller"
	}
	return ""
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	result, err := s.svc.Register(r.Context(), auth.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Kind:     auth.AccountKind(req.UserType),
	}, requestMeta(r))
	if s.metrics != nil {
		s.metrics.ObserveRegistration(req.UserType, err == nil)
	}
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateAccount) {
			writeError(w, http.StatusConflict, "User with this email already exists")
			return
		}
		s.log.ErrorContext(r.Context(), "registration failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.setSessionCookie(w, result.SessionID)
	writeJSON(w, http.StatusCreated, userEnvelope{User: result.User})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	result, err := s.svc.Login(r.Context(), req.Email, req.Password, requestMeta(r))
	if s.metrics != nil {
		s.metrics.ObserveLogin(err == nil)
	}
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		s.log.ErrorContext(r.Context(), "login failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.setSessionCookie(w, result.SessionID)
	writeJSON(w, http.StatusOK, userEnvelope{User: result.User})
}

// handleLogout invalidates the presented session, if any, and clears the
// cookie either way.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cookie.Name); err == nil && cookie.Value != "" {
		if err := s.svc.Logout(r.Context(), cookie.Value); err != nil {
			s.log.ErrorContext(r.Context(), "logout failed", logger.Error(err))
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
	}

	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

// handleForgotPassword answers identically for known and unknown emails.
// Delivery happens off the request path; a send failure is logged, never
// reported to the client.
func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil || req.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	token, err := s.svc.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		s.log.ErrorContext(r.Context(), "forgot password failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if token != "" {
		go s.sendResetEmail(context.WithoutCancel(r.Context()), req.Email, token)
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: forgotPasswordMessage})
}

func (s *Server) sendResetEmail(ctx context.Context, email, token string) {
	ctx, cancel := context.WithTimeout(ctx, mailSendTimeout)
	defer cancel()

	if err := s.resetMailer.SendPasswordResetEmail(ctx, email, token); err != nil {
		s.log.ErrorContext(ctx, "failed to send reset email", logger.Error(err))
	}
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "Token is required")
		return
	}
	if len(req.Password) < minPasswordLen {
		writeError(w, http.StatusBadRequest, "Password must be at least 8 characters")
		return
	}

	err := s.svc.ResetPassword(r.Context(), req.Token, req.Password)
	if s.metrics != nil {
		s.metrics.ObservePasswordReset(err == nil)
	}
	if err != nil {
		if errors.Is(err, auth.ErrInvalidOrExpiredToken) {
			writeError(w, http.StatusBadRequest, "Invalid or expired reset token")
			return
		}
		s.log.ErrorContext(r.Context(), "password reset failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Password has been reset successfully"})
}

// handleMe returns the authenticated user's public profile. The gate
// guarantees a user is present in the context.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, userEnvelope{User: auth.BuildUserResponse(user)})
}

// handleHealth probes each registered dependency and reports per-dependency
// status. Any failing probe degrades the overall status to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{"status": "ok"}

	for name, check := range s.healthChecks {
		if err := check(r.Context()); err != nil {
			s.log.ErrorContext(r.Context(), "health check failed",
				slog.String("dependency", name), logger.Error(err))
			body[name] = "unavailable"
			body["status"] = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		body[name] = "ok"
	}

	writeJSON(w, status, body)
}
