package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/storage/memory"
)

func newUser(email string) *auth.User {
	return &auth.User{
		ID:        uuid.New(),
		Email:     email,
		FirstName: "Jane",
		Kind:      auth.KindBuyer,
		CreatedAt: time.Now(),
	}
}

func TestUserStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("create and lookup", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		user := newUser("jane@example.com")

		require.NoError(t, store.Users().Create(ctx, user))

		byID, err := store.Users().ByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Email, byID.Email)

		byEmail, err := store.Users().ByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, byEmail.ID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		t.Parallel()
		store := memory.New()

		require.NoError(t, store.Users().Create(ctx, newUser("jane@example.com")))
		err := store.Users().Create(ctx, newUser("jane@example.com"))
		assert.ErrorIs(t, err, auth.ErrAlreadyExists)
	})

	t.Run("empty emails never collide", func(t *testing.T) {
		t.Parallel()
		store := memory.New()

		require.NoError(t, store.Users().Create(ctx, newUser("")))
		require.NoError(t, store.Users().Create(ctx, newUser("")))

		_, err := store.Users().ByEmail(ctx, "")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("returned values are copies", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		user := newUser("jane@example.com")
		require.NoError(t, store.Users().Create(ctx, user))

		got, err := store.Users().ByID(ctx, user.ID)
		require.NoError(t, err)
		got.Email = "mutated@example.com"

		again, err := store.Users().ByID(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "jane@example.com", again.Email)
	})
}

func TestSessionStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("create generates an id", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		user := newUser("jane@example.com")
		require.NoError(t, store.Users().Create(ctx, user))

		session := &auth.Session{
			UserID:    user.ID,
			Active:    true,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, store.Sessions().Create(ctx, session))
		assert.NotEmpty(t, session.ID)

		got, owner, err := store.Sessions().ByIDWithUser(ctx, session.ID)
		require.NoError(t, err)
		assert.Equal(t, session.ID, got.ID)
		assert.Equal(t, user.ID, owner.ID)
	})

	t.Run("delete by user removes all sessions", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		user := newUser("jane@example.com")
		require.NoError(t, store.Users().Create(ctx, user))

		for range 3 {
			s := &auth.Session{UserID: user.ID, Active: true, ExpiresAt: time.Now().Add(time.Hour)}
			require.NoError(t, store.Sessions().Create(ctx, s))
		}
		require.Equal(t, 3, store.SessionCount(user.ID))

		require.NoError(t, store.Sessions().DeleteByUserID(ctx, user.ID))
		assert.Equal(t, 0, store.SessionCount(user.ID))
	})

	t.Run("delete unknown session", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		err := store.Sessions().Delete(ctx, "no-such-session")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})
}

func TestResetTokenStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("mark used is conditional", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		user := newUser("jane@example.com")
		require.NoError(t, store.Users().Create(ctx, user))

		reset := &auth.ResetToken{
			ID:        uuid.New(),
			UserID:    user.ID,
			Token:     "abc123",
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, store.ResetTokens().Create(ctx, reset))

		require.NoError(t, store.ResetTokens().MarkUsed(ctx, reset.ID))

		// The second consumer loses.
		err := store.ResetTokens().MarkUsed(ctx, reset.ID)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		got, err := store.ResetTokens().ByToken(ctx, "abc123")
		require.NoError(t, err)
		assert.True(t, got.Used)
	})
}

func TestIdentityStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unique per provider and external id", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		user := newUser("jane@example.com")
		require.NoError(t, store.Users().Create(ctx, user))

		identity := &auth.ExternalIdentity{
			ID:         uuid.New(),
			Provider:   auth.ProviderGoogle,
			ExternalID: "g-1",
			UserID:     user.ID,
		}
		require.NoError(t, store.Identities().Create(ctx, identity))

		dup := &auth.ExternalIdentity{
			ID:         uuid.New(),
			Provider:   auth.ProviderGoogle,
			ExternalID: "g-1",
			UserID:     user.ID,
		}
		assert.ErrorIs(t, store.Identities().Create(ctx, dup), auth.ErrAlreadyExists)

		// Same external id under another provider is a distinct identity.
		other := &auth.ExternalIdentity{
			ID:         uuid.New(),
			Provider:   auth.ProviderGithub,
			ExternalID: "g-1",
			UserID:     user.ID,
		}
		assert.NoError(t, store.Identities().Create(ctx, other))
	})

	t.Run("update tokens", func(t *testing.T) {
		t.Parallel()
		store := memory.New()
		user := newUser("jane@example.com")
		require.NoError(t, store.Users().Create(ctx, user))

		identity := &auth.ExternalIdentity{
			ID:          uuid.New(),
			Provider:    auth.ProviderGoogle,
			ExternalID:  "g-1",
			UserID:      user.ID,
			AccessToken: "old",
		}
		require.NoError(t, store.Identities().Create(ctx, identity))
		require.NoError(t, store.Identities().UpdateTokens(ctx, identity.ID, "new-at", "new-rt"))

		got, owner, err := store.Identities().ByProvider(ctx, auth.ProviderGoogle, "g-1")
		require.NoError(t, err)
		assert.Equal(t, "new-at", got.AccessToken)
		assert.Equal(t, "new-rt", got.RefreshToken)
		assert.Equal(t, user.ID, owner.ID)
	})
}

func TestInTx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rolls back on error", func(t *testing.T) {
		t.Parallel()
		store := memory.New()

		boom := errors.New("boom")
		err := store.InTx(ctx, func(tx auth.Storage) error {
			if err := tx.Users().Create(ctx, newUser("jane@example.com")); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = store.Users().ByEmail(ctx, "jane@example.com")
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("commits on success", func(t *testing.T) {
		t.Parallel()
		store := memory.New()

		user := newUser("jane@example.com")
		err := store.InTx(ctx, func(tx auth.Storage) error {
			if err := tx.Users().Create(ctx, user); err != nil {
				return err
			}
			return tx.SellerProfiles().Create(ctx, &auth.SellerProfile{
				ID:        uuid.New(),
				UserID:    user.ID,
				StoreName: "Jane's Store",
				StoreSlug: "jane-12345678",
			})
		})
		require.NoError(t, err)

		_, err = store.Users().ByEmail(ctx, "jane@example.com")
		assert.NoError(t, err)
		_, ok := store.SellerProfileByUserID(user.ID)
		assert.True(t, ok)
	})
}
