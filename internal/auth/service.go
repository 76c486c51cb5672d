package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradepost/tradepost/pkg/logger"
	"github.com/tradepost/tradepost/pkg/sanitizer"
	"github.com/tradepost/tradepost/pkg/slug"
	"github.com/tradepost/tradepost/pkg/token"
)

const (
	defaultSessionTTL    = 7 * 24 * time.Hour
	defaultResetTokenTTL = time.Hour

	resetTokenBytes  = 32
	maxUserAgentLen  = 255
	storeSlugBaseLen = 30
	slugSuffixLen    = 8
)

// Service orchestrates registration, login, logout, password reset, and
// external-identity callbacks. It holds no mutable state and is safe for
// concurrent use; all shared state lives in the stores.
type Service struct {
	storage       Storage
	hasher        Hasher
	sessionTTL    time.Duration
	resetTokenTTL time.Duration
	now           func() time.Time
	log           *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets a custom logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) { s.sessionTTL = ttl }
}

// WithResetTokenTTL overrides the reset-token lifetime.
func WithResetTokenTTL(ttl time.Duration) Option {
	return func(s *Service) { s.resetTokenTTL = ttl }
}

// WithClock overrides the time source. Tests use this to exercise expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the auth service. Defaults: 7-day sessions, 1-hour
// reset tokens, discarded logs.
func NewService(storage Storage, hasher Hasher, opts ...Option) *Service {
	s := &Service{
		storage:       storage,
		hasher:        hasher,
		sessionTTL:    defaultSessionTTL,
		resetTokenTTL: defaultResetTokenTTL,
		now:           time.Now,
		log:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterParams carries the registration request.
type RegisterParams struct {
	Email    string
	Password string
	Name     string
	Kind     AccountKind
}

// AuthResult pairs a user's public view with the session issued for it. The
// session ID is the bearer secret; the boundary layer transports it to the
// client as a cookie.
type AuthResult struct {
	User      UserResponse
	SessionID string
}

// Register creates a user account, a seller profile when the account kind is
// seller (atomically with the user), and a fresh session. A taken email
// surfaces ErrDuplicateAccount; the store's unique constraint is the final
// arbiter under concurrent registrations.
func (s *Service) Register(ctx context.Context, params RegisterParams, meta RequestMeta) (*AuthResult, error) {
	email := sanitizer.NormalizeEmail(params.Email)

	// Early existence check for a friendly fast path; the unique constraint
	// below still guards the race.
	if _, err := s.storage.Users().ByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateAccount
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	first, last := splitDisplayName(params.Name)

	user := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    first,
		LastName:     last,
		Kind:         params.Kind,
		CreatedAt:    s.now(),
	}

	err = s.storage.InTx(ctx, func(tx Storage) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return ErrDuplicateAccount
			}
			return fmt.Errorf("create user: %w", err)
		}

		if params.Kind == KindSeller {
			profile := &SellerProfile{
				ID:        uuid.New(),
				UserID:    user.ID,
				StoreName: params.Name + "'s Store",
				StoreSlug: storeSlug(params.Name, user.ID),
				CreatedAt: s.now(),
			}
			if err := tx.SellerProfiles().Create(ctx, profile); err != nil {
				return fmt.Errorf("create seller profile: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	sessionID, err := s.CreateSession(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: BuildUserResponse(user), SessionID: sessionID}, nil
}

// Login verifies credentials and issues a session. Unknown email, missing
// password hash, and hash mismatch all surface the same
// ErrInvalidCredentials so accounts cannot be enumerated.
func (s *Service) Login(ctx context.Context, email, password string, meta RequestMeta) (*AuthResult, error) {
	email = sanitizer.NormalizeEmail(email)

	user, err := s.storage.Users().ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if len(user.PasswordHash) == 0 || !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	sessionID, err := s.CreateSession(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: BuildUserResponse(user), SessionID: sessionID}, nil
}

// CreateSession persists a session for the user and returns its ID. The
// store generates the ID with cryptographically secure randomness.
func (s *Service) CreateSession(ctx context.Context, userID uuid.UUID, meta RequestMeta) (string, error) {
	ua := meta.UserAgent
	if len(ua) > maxUserAgentLen {
		ua = ua[:maxUserAgentLen]
	}

	session := &Session{
		UserID:     userID,
		DeviceName: deviceName(meta.UserAgent),
		UserAgent:  ua,
		IPAddress:  meta.IP,
		ExpiresAt:  s.now().Add(s.sessionTTL),
		Active:     true,
		CreatedAt:  s.now(),
	}

	if err := s.storage.Sessions().Create(ctx, session); err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}

	return session.ID, nil
}

// Logout destroys the session. A missing session is not an error.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if err := s.storage.Sessions().Delete(ctx, sessionID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ForgotPassword issues a reset token for the account, or returns an empty
// token for an unknown email. The caller must report generic success either
// way; the empty return only tells it to skip the email send.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = sanitizer.NormalizeEmail(email)

	user, err := s.storage.Users().ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	raw, err := token.NewHex(resetTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	reset := &ResetToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: s.now().Add(s.resetTokenTTL),
		CreatedAt: s.now(),
	}
	if err := s.storage.ResetTokens().Create(ctx, reset); err != nil {
		return "", fmt.Errorf("create reset token: %w", err)
	}

	return raw, nil
}

// ResetPassword consumes the token and changes the password. The password
// update, the token consumption, and the invalidation of every session owned
// by the user commit atomically; concurrent resets with the same token lose
// on the conditional used-flag flip and fail like an expired token.
func (s *Service) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	reset, err := s.storage.ResetTokens().ByToken(ctx, rawToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	if reset.Used || !s.now().Before(reset.ExpiresAt) {
		return ErrInvalidOrExpiredToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.storage.InTx(ctx, func(tx Storage) error {
		if err := tx.ResetTokens().MarkUsed(ctx, reset.ID); err != nil {
			if errors.Is(err, ErrNotFound) {
				// Another reset with the same token won the race.
				return ErrInvalidOrExpiredToken
			}
			return fmt.Errorf("consume reset token: %w", err)
		}
		if err := tx.Users().UpdatePasswordHash(ctx, reset.UserID, hash); err != nil {
			return fmt.Errorf("update password: %w", err)
		}
		if err := tx.Sessions().DeleteByUserID(ctx, reset.UserID); err != nil {
			return fmt.Errorf("invalidate sessions: %w", err)
		}
		return nil
	})
}

// HandleOAuthCallback resolves a normalized provider profile to a local
// user, creating the user and the identity link on first contact, and issues
// a session. Different providers presenting the same email resolve to the
// same local account: email is the merge key.
func (s *Service) HandleOAuthCallback(ctx context.Context, profile OAuthProfile, meta RequestMeta) (*AuthResult, error) {
	profile.Email = sanitizer.NormalizeEmail(profile.Email)

	user, err := s.resolveIdentity(ctx, profile)
	if err != nil {
		return nil, err
	}

	sessionID, err := s.CreateSession(ctx, user.ID, meta)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: BuildUserResponse(user), SessionID: sessionID}, nil
}

func (s *Service) resolveIdentity(ctx context.Context, profile OAuthProfile) (*User, error) {
	identity, owner, err := s.storage.Identities().ByProvider(ctx, profile.Provider, profile.ExternalID)
	if err == nil {
		if err := s.storage.Identities().UpdateTokens(ctx, identity.ID, profile.AccessToken, profile.RefreshToken); err != nil {
			return nil, fmt.Errorf("refresh identity tokens: %w", err)
		}
		return owner, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	user, err := s.linkNewIdentity(ctx, profile)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrAlreadyExists) {
		return nil, err
	}

	// Lost the race against a concurrent callback for the same identity; the
	// winner's link is authoritative, so retry the lookup.
	s.log.InfoContext(ctx, "identity link race lost, retrying lookup",
		logger.Provider(profile.Provider),
		logger.Component("auth"),
	)
	identity, owner, err = s.storage.Identities().ByProvider(ctx, profile.Provider, profile.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("lookup identity after race: %w", err)
	}
	if err := s.storage.Identities().UpdateTokens(ctx, identity.ID, profile.AccessToken, profile.RefreshToken); err != nil {
		return nil, fmt.Errorf("refresh identity tokens: %w", err)
	}
	return owner, nil
}

// linkNewIdentity creates the identity link and, when needed, the local
// account, in one transaction. Losing an email-uniqueness race on the user
// insert is absorbed here by linking to the winner's account; only a
// conflict on the identity link itself surfaces as ErrAlreadyExists, which
// tells the caller to re-resolve the identity.
func (s *Service) linkNewIdentity(ctx context.Context, profile OAuthProfile) (*User, error) {
	var user *User

	err := s.storage.InTx(ctx, func(tx Storage) error {
		var err error

		// An empty provider email never merges with existing accounts; the
		// new user simply carries an empty email.
		if profile.Email != "" {
			user, err = tx.Users().ByEmail(ctx, profile.Email)
			if err != nil && !errors.Is(err, ErrNotFound) {
				return fmt.Errorf("lookup user by email: %w", err)
			}
		} else {
			err = ErrNotFound
		}

		if user == nil || errors.Is(err, ErrNotFound) {
			first := profile.FirstName
			if first == "" {
				first = "User"
			}
			user = &User{
				ID:        uuid.New(),
				Email:     profile.Email,
				FirstName: first,
				LastName:  profile.LastName,
				Kind:      KindBuyer,
				Avatar:    profile.Avatar,
				CreatedAt: s.now(),
			}
			if createErr := tx.Users().Create(ctx, user); createErr != nil {
				if !errors.Is(createErr, ErrAlreadyExists) || profile.Email == "" {
					return fmt.Errorf("create user: %w", createErr)
				}
				// A concurrent signup claimed this email between the lookup
				// and the insert; adopt that account and link to it.
				existing, lookupErr := tx.Users().ByEmail(ctx, profile.Email)
				if lookupErr != nil {
					return fmt.Errorf("lookup user after email conflict: %w", lookupErr)
				}
				user = existing
			}
		}

		identity := &ExternalIdentity{
			ID:           uuid.New(),
			Provider:     profile.Provider,
			ExternalID:   profile.ExternalID,
			UserID:       user.ID,
			AccessToken:  profile.AccessToken,
			RefreshToken: profile.RefreshToken,
			CreatedAt:    s.now(),
			UpdatedAt:    s.now(),
		}
		if err := tx.Identities().Create(ctx, identity); err != nil {
			if errors.Is(err, ErrAlreadyExists) {
				return ErrAlreadyExists
			}
			return fmt.Errorf("create identity: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

// splitDisplayName splits on whitespace: first token becomes the first name,
// the remainder joins into the last name.
func splitDisplayName(name string) (first, last string) {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

// storeSlug builds a URL-safe storefront slug: the slugified name truncated
// to a bounded length plus a suffix taken from the owner's ID, which keeps
// slugs unique without a second round-trip.
func storeSlug(name string, userID uuid.UUID) string {
	base := slug.Make(name, slug.MaxLength(storeSlugBaseLen))
	compact := strings.ReplaceAll(userID.String(), "-", "")
	suffix := compact[len(compact)-slugSuffixLen:]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}
