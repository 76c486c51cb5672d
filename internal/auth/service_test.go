package auth_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/internal/storage/memory"
)

var testMeta = auth.RequestMeta{
	IP:        "203.0.113.7",
	UserAgent: "Mozilla/5.0 (Macintosh) Chrome/126.0",
}

func newTestService(t *testing.T, opts ...auth.Option) (*auth.Service, *memory.Storage) {
	t.Helper()
	store := memory.New()
	svc := auth.NewService(store, auth.NewBcryptHasher(bcrypt.MinCost), opts...)
	return svc, store
}

func registerBuyer(t *testing.T, svc *auth.Service, email string) *auth.AuthResult {
	t.Helper()
	result, err := svc.Register(context.Background(), auth.RegisterParams{
		Email:    email,
		Password: "correct horse battery",
		Name:     "Jane Doe",
		Kind:     auth.KindBuyer,
	}, testMeta)
	require.NoError(t, err)
	return result
}

func TestRegister(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("buyer gets account and session", func(t *testing.T) {
		t.Parallel()
		svc, store := newTestService(t)

		result, err := svc.Register(ctx, auth.RegisterParams{
			Email:    "Jane@Example.COM",
			Password: "hunter2hunter2",
			Name:     "Jane Doe",
			Kind:     auth.KindBuyer,
		}, testMeta)
		require.NoError(t, err)

		assert.NotEmpty(t, result.SessionID)
		assert.Equal(t, "jane@example.com", result.User.Email)
		assert.Equal(t, "Jane Doe", result.User.Name)
		assert.Equal(t, "buyer", result.User.UserType)

		// The stored account carries the normalized email.
		user, err := store.Users().ByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Jane", user.FirstName)
		assert.Equal(t, "Doe", user.LastName)
		assert.Equal(t, 1, store.SessionCount(user.ID))
	})

	t.Run("seller gets a storefront", func(t *testing.T) {
		t.Parallel()
		svc, store := newTestService(t)

		result, err := svc.Register(ctx, auth.RegisterParams{
			Email:    "vendor@example.com",
			Password: "hunter2hunter2",
			Name:     "Grace Hopper",
			Kind:     auth.KindSeller,
		}, testMeta)
		require.NoError(t, err)
		assert.Equal(t, "seller", result.User.UserType)

		user, err := store.Users().ByEmail(ctx, "vendor@example.com")
		require.NoError(t, err)

		profile, ok := store.SellerProfileByUserID(user.ID)
		require.True(t, ok)
		assert.Equal(t, "Grace Hopper's Store", profile.StoreName)
		assert.True(t, strings.HasPrefix(profile.StoreSlug, "grace-hopper-"))

		// Slug suffix comes from the owner's ID, eight characters.
		suffix := profile.StoreSlug[strings.LastIndex(profile.StoreSlug, "-")+1:]
		assert.Len(t, suffix, 8)
	})

	t.Run("duplicate email conflicts regardless of case", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		registerBuyer(t, svc, "taken@example.com")

		_, err := svc.Register(ctx, auth.RegisterParams{
			Email:    "TAKEN@example.com",
			Password: "different-pass-1",
			Name:     "Someone Else",
			Kind:     auth.KindSeller,
		}, testMeta)
		assert.ErrorIs(t, err, auth.ErrDuplicateAccount)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("valid credentials issue a fresh session", func(t *testing.T) {
		t.Parallel()
		svc, store := newTestService(t)
		first := registerBuyer(t, svc, "jane@example.com")

		result, err := svc.Login(ctx, "JANE@example.com", "correct horse battery", testMeta)
		require.NoError(t, err)
		assert.NotEmpty(t, result.SessionID)
		assert.NotEqual(t, first.SessionID, result.SessionID)

		user, err := store.Users().ByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, 2, store.SessionCount(user.ID))
	})

	t.Run("failures are indistinguishable", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		registerBuyer(t, svc, "jane@example.com")

		_, wrongPass := svc.Login(ctx, "jane@example.com", "not the password", testMeta)
		_, unknownEmail := svc.Login(ctx, "nobody@example.com", "whatever12345", testMeta)

		assert.ErrorIs(t, wrongPass, auth.ErrInvalidCredentials)
		assert.ErrorIs(t, unknownEmail, auth.ErrInvalidCredentials)
		assert.Equal(t, wrongPass.Error(), unknownEmail.Error())
	})

	t.Run("password login rejected for oauth-only account", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		_, err := svc.HandleOAuthCallback(ctx, auth.OAuthProfile{
			Provider:   auth.ProviderGoogle,
			ExternalID: "g-1",
			Email:      "oauth@example.com",
			FirstName:  "Jane",
		}, testMeta)
		require.NoError(t, err)

		_, err = svc.Login(ctx, "oauth@example.com", "any password 1", testMeta)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, store := newTestService(t)
	result := registerBuyer(t, svc, "jane@example.com")

	require.NoError(t, svc.Logout(ctx, result.SessionID))

	user, err := store.Users().ByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, 0, store.SessionCount(user.ID))

	// Repeating or presenting garbage is not an error.
	assert.NoError(t, svc.Logout(ctx, result.SessionID))
	assert.NoError(t, svc.Logout(ctx, "no-such-session"))
}

func TestForgotPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown email yields no token", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		token, err := svc.ForgotPassword(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("known email yields a hex token", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		registerBuyer(t, svc, "jane@example.com")

		token, err := svc.ForgotPassword(ctx, "Jane@Example.com")
		require.NoError(t, err)
		assert.Len(t, token, 64)
	})
}

func TestResetPassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("changes password and invalidates sessions", func(t *testing.T) {
		t.Parallel()
		svc, store := newTestService(t)
		registerBuyer(t, svc, "jane@example.com")
		_, err := svc.Login(ctx, "jane@example.com", "correct horse battery", testMeta)
		require.NoError(t, err)

		token, err := svc.ForgotPassword(ctx, "jane@example.com")
		require.NoError(t, err)

		require.NoError(t, svc.ResetPassword(ctx, token, "a brand new password"))

		user, err := store.Users().ByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, 0, store.SessionCount(user.ID))

		_, err = svc.Login(ctx, "jane@example.com", "correct horse battery", testMeta)
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

		_, err = svc.Login(ctx, "jane@example.com", "a brand new password", testMeta)
		assert.NoError(t, err)
	})

	t.Run("token is single use", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		registerBuyer(t, svc, "jane@example.com")

		token, err := svc.ForgotPassword(ctx, "jane@example.com")
		require.NoError(t, err)

		require.NoError(t, svc.ResetPassword(ctx, token, "a brand new password"))
		err = svc.ResetPassword(ctx, token, "yet another password")
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		clock := &now
		svc, _ := newTestService(t, auth.WithClock(func() time.Time { return *clock }))
		registerBuyer(t, svc, "jane@example.com")

		token, err := svc.ForgotPassword(ctx, "jane@example.com")
		require.NoError(t, err)

		later := now.Add(time.Hour + time.Minute)
		clock = &later

		err = svc.ResetPassword(ctx, token, "a brand new password")
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})

	t.Run("unknown token is rejected", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		err := svc.ResetPassword(ctx, "deadbeef", "a brand new password")
		assert.ErrorIs(t, err, auth.ErrInvalidOrExpiredToken)
	})
}

func TestHandleOAuthCallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	googleProfile := auth.OAuthProfile{
		Provider:    auth.ProviderGoogle,
		ExternalID:  "g-1001",
		Email:       "jane@example.com",
		FirstName:   "Jane",
		LastName:    "Doe",
		AccessToken: "at-1",
	}

	t.Run("first callback creates buyer account", func(t *testing.T) {
		t.Parallel()
		svc, store := newTestService(t)

		result, err := svc.HandleOAuthCallback(ctx, googleProfile, testMeta)
		require.NoError(t, err)
		assert.Equal(t, "buyer", result.User.UserType)
		assert.NotEmpty(t, result.SessionID)

		user, err := store.Users().ByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Empty(t, user.PasswordHash)
	})

	t.Run("repeat callback resolves to the same account", func(t *testing.T) {
		t.Parallel()
		svc, store := newTestService(t)

		_, err := svc.HandleOAuthCallback(ctx, googleProfile, testMeta)
		require.NoError(t, err)
		_, err = svc.HandleOAuthCallback(ctx, googleProfile, testMeta)
		require.NoError(t, err)

		user, err := store.Users().ByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, 2, store.SessionCount(user.ID))
	})

	t.Run("email merges identities across providers", func(t *testing.T) {
		t.Parallel()
		svc, store := newTestService(t)

		_, err := svc.HandleOAuthCallback(ctx, googleProfile, testMeta)
		require.NoError(t, err)

		github := auth.OAuthProfile{
			Provider:   auth.ProviderGithub,
			ExternalID: "4242",
			Email:      "Jane@Example.com",
			FirstName:  "Jane",
		}
		_, err = svc.HandleOAuthCallback(ctx, github, testMeta)
		require.NoError(t, err)

		user, err := store.Users().ByEmail(ctx, "jane@example.com")
		require.NoError(t, err)
		assert.Equal(t, 2, store.SessionCount(user.ID))
	})

	t.Run("existing password account gains identity link", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)
		registerBuyer(t, svc, "jane@example.com")

		_, err := svc.HandleOAuthCallback(ctx, googleProfile, testMeta)
		require.NoError(t, err)

		// The original password still works after linking.
		_, err = svc.Login(ctx, "jane@example.com", "correct horse battery", testMeta)
		assert.NoError(t, err)
	})

	t.Run("empty provider email never merges", func(t *testing.T) {
		t.Parallel()
		svc, store := newTestService(t)

		noEmailA := auth.OAuthProfile{Provider: auth.ProviderGithub, ExternalID: "1", FirstName: "A"}
		noEmailB := auth.OAuthProfile{Provider: auth.ProviderGithub, ExternalID: "2", FirstName: "B"}

		resA, err := svc.HandleOAuthCallback(ctx, noEmailA, testMeta)
		require.NoError(t, err)
		resB, err := svc.HandleOAuthCallback(ctx, noEmailB, testMeta)
		require.NoError(t, err)

		sessA, userA, err := store.Sessions().ByIDWithUser(ctx, resA.SessionID)
		require.NoError(t, err)
		_, userB, err := store.Sessions().ByIDWithUser(ctx, resB.SessionID)
		require.NoError(t, err)

		assert.NotEqual(t, userA.ID, userB.ID)
		assert.True(t, sessA.Active)
	})

	t.Run("missing first name falls back to User", func(t *testing.T) {
		t.Parallel()
		svc, _ := newTestService(t)

		result, err := svc.HandleOAuthCallback(ctx, auth.OAuthProfile{
			Provider:   auth.ProviderGithub,
			ExternalID: "7",
			Email:      "ghost@example.com",
		}, testMeta)
		require.NoError(t, err)
		assert.Equal(t, "User", result.User.Name)
	})
}

// hookStorage scripts store interleavings the serialized memory storage
// cannot produce on its own. Hooks are re-applied inside transactions so a
// scripted store behaves the same on both sides of InTx.
type hookStorage struct {
	auth.Storage
	userHooks     func(auth.UserStore) auth.UserStore
	identityHooks func(auth.IdentityStore) auth.IdentityStore
}

func (h *hookStorage) Users() auth.UserStore {
	users := h.Storage.Users()
	if h.userHooks != nil {
		return h.userHooks(users)
	}
	return users
}

func (h *hookStorage) Identities() auth.IdentityStore {
	identities := h.Storage.Identities()
	if h.identityHooks != nil {
		return h.identityHooks(identities)
	}
	return identities
}

func (h *hookStorage) InTx(ctx context.Context, fn func(auth.Storage) error) error {
	return h.Storage.InTx(ctx, func(tx auth.Storage) error {
		return fn(&hookStorage{Storage: tx, userHooks: h.userHooks, identityHooks: h.identityHooks})
	})
}

type scriptedUserStore struct {
	auth.UserStore
	createFn  func(ctx context.Context, user *auth.User) error
	byEmailFn func(ctx context.Context, email string) (*auth.User, error)
}

func (s scriptedUserStore) Create(ctx context.Context, user *auth.User) error {
	if s.createFn != nil {
		return s.createFn(ctx, user)
	}
	return s.UserStore.Create(ctx, user)
}

func (s scriptedUserStore) ByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.byEmailFn != nil {
		return s.byEmailFn(ctx, email)
	}
	return s.UserStore.ByEmail(ctx, email)
}

type scriptedIdentityStore struct {
	auth.IdentityStore
	byProviderFn func(ctx context.Context, provider, externalID string) (*auth.ExternalIdentity, *auth.User, error)
}

func (s scriptedIdentityStore) ByProvider(ctx context.Context, provider, externalID string) (*auth.ExternalIdentity, *auth.User, error) {
	if s.byProviderFn != nil {
		return s.byProviderFn(ctx, provider, externalID)
	}
	return s.IdentityStore.ByProvider(ctx, provider, externalID)
}

func TestRegisterConcurrentDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// The existence pre-check sees nothing, then the insert hits the unique
	// constraint: a concurrent signup claimed the email in between. The
	// constraint signal alone must surface as a duplicate account.
	store := &hookStorage{
		Storage: memory.New(),
		userHooks: func(next auth.UserStore) auth.UserStore {
			return scriptedUserStore{
				UserStore: next,
				byEmailFn: func(context.Context, string) (*auth.User, error) {
					return nil, auth.ErrNotFound
				},
				createFn: func(context.Context, *auth.User) error {
					return auth.ErrAlreadyExists
				},
			}
		},
	}
	svc := auth.NewService(store, auth.NewBcryptHasher(bcrypt.MinCost))

	_, err := svc.Register(ctx, auth.RegisterParams{
		Email:    "taken@example.com",
		Password: "hunter2hunter2",
		Name:     "Jane Doe",
		Kind:     auth.KindBuyer,
	}, testMeta)
	assert.ErrorIs(t, err, auth.ErrDuplicateAccount)
}

func TestOAuthCallbackIdentityRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backing := memory.New()
	profile := auth.OAuthProfile{
		Provider:   auth.ProviderGithub,
		ExternalID: "4242",
		FirstName:  "Jane",
	}

	// The winner links the identity first.
	winnerSvc := auth.NewService(backing, auth.NewBcryptHasher(bcrypt.MinCost))
	winner, err := winnerSvc.HandleOAuthCallback(ctx, profile, testMeta)
	require.NoError(t, err)

	// The loser's first identity lookup predates the winner's commit; its
	// own link attempt then collides and the re-resolution must land on the
	// winner's account.
	lookups := 0
	store := &hookStorage{
		Storage: backing,
		identityHooks: func(next auth.IdentityStore) auth.IdentityStore {
			return scriptedIdentityStore{
				IdentityStore: next,
				byProviderFn: func(ctx context.Context, provider, externalID string) (*auth.ExternalIdentity, *auth.User, error) {
					lookups++
					if lookups == 1 {
						return nil, nil, auth.ErrNotFound
					}
					return next.ByProvider(ctx, provider, externalID)
				},
			}
		},
	}
	svc := auth.NewService(store, auth.NewBcryptHasher(bcrypt.MinCost))

	loser, err := svc.HandleOAuthCallback(ctx, profile, testMeta)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, lookups, 2)

	_, winnerUser, err := backing.Sessions().ByIDWithUser(ctx, winner.SessionID)
	require.NoError(t, err)
	_, loserUser, err := backing.Sessions().ByIDWithUser(ctx, loser.SessionID)
	require.NoError(t, err)
	assert.Equal(t, winnerUser.ID, loserUser.ID)
}

func TestOAuthCallbackEmailRace(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	backing := memory.New()

	// The winner signs up through one provider.
	winnerSvc := auth.NewService(backing, auth.NewBcryptHasher(bcrypt.MinCost))
	winner, err := winnerSvc.HandleOAuthCallback(ctx, auth.OAuthProfile{
		Provider:   auth.ProviderGoogle,
		ExternalID: "g-1001",
		Email:      "jane@example.com",
		FirstName:  "Jane",
	}, testMeta)
	require.NoError(t, err)

	// The loser arrives through another provider with the same email; its
	// email lookup predates the winner's commit, so its user insert hits
	// the unique constraint. It must link to the winner's account, not fail.
	emailLookups := 0
	store := &hookStorage{
		Storage: backing,
		userHooks: func(next auth.UserStore) auth.UserStore {
			return scriptedUserStore{
				UserStore: next,
				byEmailFn: func(ctx context.Context, email string) (*auth.User, error) {
					emailLookups++
					if emailLookups == 1 {
						return nil, auth.ErrNotFound
					}
					return next.ByEmail(ctx, email)
				},
			}
		},
	}
	svc := auth.NewService(store, auth.NewBcryptHasher(bcrypt.MinCost))

	loser, err := svc.HandleOAuthCallback(ctx, auth.OAuthProfile{
		Provider:   auth.ProviderGithub,
		ExternalID: "4242",
		Email:      "jane@example.com",
		FirstName:  "Jane",
	}, testMeta)
	require.NoError(t, err)

	_, winnerUser, err := backing.Sessions().ByIDWithUser(ctx, winner.SessionID)
	require.NoError(t, err)
	_, loserUser, err := backing.Sessions().ByIDWithUser(ctx, loser.SessionID)
	require.NoError(t, err)
	assert.Equal(t, winnerUser.ID, loserUser.ID)

	// Both identities now point at the one account.
	_, googleOwner, err := backing.Identities().ByProvider(ctx, auth.ProviderGoogle, "g-1001")
	require.NoError(t, err)
	_, githubOwner, err := backing.Identities().ByProvider(ctx, auth.ProviderGithub, "4242")
	require.NoError(t, err)
	assert.Equal(t, googleOwner.ID, githubOwner.ID)
}
