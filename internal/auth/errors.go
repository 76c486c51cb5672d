package auth

import "errors"

// Store-level outcomes. Implementations return these so the service can
// distinguish domain conditions from infrastructure failures.
var (
	ErrNotFound      = errors.New("auth: not found")
	ErrAlreadyExists = errors.New("auth: already exists")
)

// Service-level taxonomy surfaced to the boundary layer.
var (
	// ErrDuplicateAccount means the email is already registered.
	ErrDuplicateAccount = errors.New("auth: email already exists")

	// ErrInvalidCredentials covers unknown email, missing password hash, and
	// hash mismatch alike, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid email or password")

	// ErrUnauthorized covers every session failure: missing, unknown,
	// inactive, or expired.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrInvalidOrExpiredToken covers reset tokens that are missing, already
	// used, or past their expiry.
	ErrInvalidOrExpiredToken = errors.New("auth: invalid or expired reset token")

	// ErrAccessDenied marks capability failures outside this subsystem
	// (e.g. seller-only operations).
	ErrAccessDenied = errors.New("auth: access denied")
)
