package auth

import (
	"context"

	"github.com/google/uuid"
)

// UserStore persists user accounts. Create returns ErrAlreadyExists when the
// email unique constraint fires; lookups return ErrNotFound for missing rows.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	ByID(ctx context.Context, id uuid.UUID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash []byte) error
}

// SessionStore persists issued sessions. Create generates the session ID
// with cryptographically secure randomness when it is empty; the ID is the
// bearer secret handed to the client. Delete is idempotent.
type SessionStore interface {
	Create(ctx context.Context, session *Session) error
	ByIDWithUser(ctx context.Context, id string) (*Session, *User, error)
	Delete(ctx context.Context, id string) error
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

// ResetTokenStore persists password-reset tokens. MarkUsed flips the used
// flag only if it is still false and returns ErrNotFound otherwise; it is
// the arbiter of at-most-once consumption under concurrent resets.
type ResetTokenStore interface {
	Create(ctx context.Context, token *ResetToken) error
	ByToken(ctx context.Context, token string) (*ResetToken, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
}

// IdentityStore persists external identity links. ByProvider resolves the
// identity together with its owning user in one logical fetch; an identity
// without a resolvable owner is a data-integrity fault surfaced as an
// infrastructure error, not ErrNotFound. Create returns ErrAlreadyExists
// when the (provider, external id) unique constraint fires.
type IdentityStore interface {
	ByProvider(ctx context.Context, provider, externalID string) (*ExternalIdentity, *User, error)
	Create(ctx context.Context, identity *ExternalIdentity) error
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string) error
}

// SellerProfileStore persists storefront records created with seller
// registrations.
type SellerProfileStore interface {
	Create(ctx context.Context, profile *SellerProfile) error
}

// Storage aggregates the stores and supplies the ambient transaction scope
// for multi-write operations. Inside InTx the callback receives a Storage
// whose stores all run on the same transaction; the transaction commits when
// the callback returns nil and rolls back otherwise.
type Storage interface {
	Users() UserStore
	Sessions() SessionStore
	ResetTokens() ResetTokenStore
	Identities() IdentityStore
	SellerProfiles() SellerProfileStore

	InTx(ctx context.Context, fn func(Storage) error) error
}
