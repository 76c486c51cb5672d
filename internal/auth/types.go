package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AccountKind distinguishes marketplace buyers from sellers.
type AccountKind string

const (
	KindBuyer  AccountKind = "buyer"
	KindSeller AccountKind = "seller"
)

// OAuth provider identifiers used for identity linking and logging.
const (
	ProviderGoogle = "google"
	ProviderGithub = "github"
)

// User is a marketplace account. PasswordHash is nil for accounts created
// through an OAuth callback; such accounts cannot log in with a password
// until a reset is issued.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	Kind         AccountKind
	Avatar       string
	CreatedAt    time.Time
}

// Session represents one authenticated device or browser. Its ID is the
// bearer secret transported to the client; it must never be logged whole.
type Session struct {
	ID         string
	UserID     uuid.UUID
	DeviceName string
	UserAgent  string
	IPAddress  string
	ExpiresAt  time.Time
	Active     bool
	CreatedAt  time.Time
}

// Usable reports whether the session admits requests at the given instant.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && s.Active && now.Before(s.ExpiresAt)
}

// ResetToken is a single-use, time-limited grant authorizing exactly one
// password change.
type ResetToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

// ExternalIdentity links a local user to one external provider account.
// The (Provider, ExternalID) pair is unique.
type ExternalIdentity struct {
	ID           uuid.UUID
	Provider     string
	ExternalID   string
	UserID       uuid.UUID
	AccessToken  string
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SellerProfile is the storefront record created alongside seller accounts.
type SellerProfile struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	StoreName string
	StoreSlug string
	CreatedAt time.Time
}

// OAuthProfile is the canonical shape every provider callback normalizes
// into. Missing name parts and a missing email are empty strings.
type OAuthProfile struct {
	Provider     string
	ExternalID   string
	Email        string
	FirstName    string
	LastName     string
	Avatar       string
	AccessToken  string
	RefreshToken string
}

// RequestMeta carries the per-request transport facts the service needs for
// session device labeling. Never used for authorization decisions.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// UserResponse is the public view of a user returned by auth endpoints.
type UserResponse struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	UserType string `json:"userType"`
}

// BuildUserResponse maps a user to its public view. Pure, no I/O.
func BuildUserResponse(u *User) UserResponse {
	userType := "buyer"
	if u.Kind == KindSeller {
		userType = "seller"
	}
	return UserResponse{
		Email:    u.Email,
		Name:     strings.TrimSpace(u.FirstName + " " + u.LastName),
		UserType: userType,
	}
}
