// Package memory implements auth.Storage with in-process maps. It backs
// unit tests and local development; production uses the postgres package.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/pkg/token"
)

const sessionIDBytes = 32

// Storage holds all entities behind one RWMutex. Transactions serialize on
// a dedicated mutex and roll back by restoring a snapshot, which preserves
// the all-or-nothing contract multi-write operations rely on.
type Storage struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	users          map[uuid.UUID]auth.User
	usersByEmail   map[string]uuid.UUID
	sessions       map[string]auth.Session
	resets         map[uuid.UUID]auth.ResetToken
	resetsByToken  map[string]uuid.UUID
	identities     map[uuid.UUID]auth.ExternalIdentity
	identityByKey  map[string]uuid.UUID
	sellerProfiles map[uuid.UUID]auth.SellerProfile
}

// New creates an empty in-memory storage.
func New() *Storage {
	return &Storage{
		users:          make(map[uuid.UUID]auth.User),
		usersByEmail:   make(map[string]uuid.UUID),
		sessions:       make(map[string]auth.Session),
		resets:         make(map[uuid.UUID]auth.ResetToken),
		resetsByToken:  make(map[string]uuid.UUID),
		identities:     make(map[uuid.UUID]auth.ExternalIdentity),
		identityByKey:  make(map[string]uuid.UUID),
		sellerProfiles: make(map[uuid.UUID]auth.SellerProfile),
	}
}

func (s *Storage) Users() auth.UserStore                   { return userStore{s} }
func (s *Storage) Sessions() auth.SessionStore             { return sessionStore{s} }
func (s *Storage) ResetTokens() auth.ResetTokenStore       { return resetTokenStore{s} }
func (s *Storage) Identities() auth.IdentityStore          { return identityStore{s} }
func (s *Storage) SellerProfiles() auth.SellerProfileStore { return sellerProfileStore{s} }

// InTx runs fn against this storage, restoring the pre-transaction snapshot
// when fn fails. Transactions are fully serialized.
func (s *Storage) InTx(ctx context.Context, fn func(auth.Storage) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshotState struct {
	users          map[uuid.UUID]auth.User
	usersByEmail   map[string]uuid.UUID
	sessions       map[string]auth.Session
	resets         map[uuid.UUID]auth.ResetToken
	resetsByToken  map[string]uuid.UUID
	identities     map[uuid.UUID]auth.ExternalIdentity
	identityByKey  map[string]uuid.UUID
	sellerProfiles map[uuid.UUID]auth.SellerProfile
}

func (s *Storage) snapshot() snapshotState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return snapshotState{
		users:          cloneMap(s.users),
		usersByEmail:   cloneMap(s.usersByEmail),
		sessions:       cloneMap(s.sessions),
		resets:         cloneMap(s.resets),
		resetsByToken:  cloneMap(s.resetsByToken),
		identities:     cloneMap(s.identities),
		identityByKey:  cloneMap(s.identityByKey),
		sellerProfiles: cloneMap(s.sellerProfiles),
	}
}

func (s *Storage) restore(snap snapshotState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.usersByEmail = snap.usersByEmail
	s.sessions = snap.sessions
	s.resets = snap.resets
	s.resetsByToken = snap.resetsByToken
	s.identities = snap.identities
	s.identityByKey = snap.identityByKey
	s.sellerProfiles = snap.sellerProfiles
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func identityKey(provider, externalID string) string {
	return provider + "\x00" + externalID
}

type userStore struct{ s *Storage }

func (st userStore) Create(ctx context.Context, user *auth.User) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	// Empty emails are not unique: OAuth-originated accounts may lack one.
	if user.Email != "" {
		if _, taken := st.s.usersByEmail[user.Email]; taken {
			return auth.ErrAlreadyExists
		}
		st.s.usersByEmail[user.Email] = user.ID
	}
	st.s.users[user.ID] = *user
	return nil
}

func (st userStore) ByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	user, ok := st.s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &user, nil
}

func (st userStore) ByEmail(ctx context.Context, email string) (*auth.User, error) {
	if email == "" {
		return nil, auth.ErrNotFound
	}

	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	id, ok := st.s.usersByEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	user := st.s.users[id]
	return &user, nil
}

func (st userStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash []byte) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	user, ok := st.s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	user.PasswordHash = hash
	st.s.users[id] = user
	return nil
}

type sessionStore struct{ s *Storage }

func (st sessionStore) Create(ctx context.Context, session *auth.Session) error {
	if session.ID == "" {
		id, err := token.New(sessionIDBytes)
		if err != nil {
			return err
		}
		session.ID = id
	}

	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	st.s.sessions[session.ID] = *session
	return nil
}

func (st sessionStore) ByIDWithUser(ctx context.Context, id string) (*auth.Session, *auth.User, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	session, ok := st.s.sessions[id]
	if !ok {
		return nil, nil, auth.ErrNotFound
	}
	user, ok := st.s.users[session.UserID]
	if !ok {
		return nil, nil, fmt.Errorf("memory: session %.8s has no owner", id)
	}
	return &session, &user, nil
}

func (st sessionStore) Delete(ctx context.Context, id string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	if _, ok := st.s.sessions[id]; !ok {
		return auth.ErrNotFound
	}
	delete(st.s.sessions, id)
	return nil
}

func (st sessionStore) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	for id, session := range st.s.sessions {
		if session.UserID == userID {
			delete(st.s.sessions, id)
		}
	}
	return nil
}

type resetTokenStore struct{ s *Storage }

func (st resetTokenStore) Create(ctx context.Context, reset *auth.ResetToken) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	st.s.resets[reset.ID] = *reset
	st.s.resetsByToken[reset.Token] = reset.ID
	return nil
}

func (st resetTokenStore) ByToken(ctx context.Context, raw string) (*auth.ResetToken, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	id, ok := st.s.resetsByToken[raw]
	if !ok {
		return nil, auth.ErrNotFound
	}
	reset := st.s.resets[id]
	return &reset, nil
}

func (st resetTokenStore) MarkUsed(ctx context.Context, id uuid.UUID) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	reset, ok := st.s.resets[id]
	if !ok || reset.Used {
		return auth.ErrNotFound
	}
	reset.Used = true
	st.s.resets[id] = reset
	return nil
}

type identityStore struct{ s *Storage }

func (st identityStore) ByProvider(ctx context.Context, provider, externalID string) (*auth.ExternalIdentity, *auth.User, error) {
	st.s.mu.RLock()
	defer st.s.mu.RUnlock()

	id, ok := st.s.identityByKey[identityKey(provider, externalID)]
	if !ok {
		return nil, nil, auth.ErrNotFound
	}
	identity := st.s.identities[id]
	user, ok := st.s.users[identity.UserID]
	if !ok {
		return nil, nil, fmt.Errorf("memory: identity %s/%s has no owner", provider, externalID)
	}
	return &identity, &user, nil
}

func (st identityStore) Create(ctx context.Context, identity *auth.ExternalIdentity) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	key := identityKey(identity.Provider, identity.ExternalID)
	if _, taken := st.s.identityByKey[key]; taken {
		return auth.ErrAlreadyExists
	}
	st.s.identities[identity.ID] = *identity
	st.s.identityByKey[key] = identity.ID
	return nil
}

func (st identityStore) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	identity, ok := st.s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.AccessToken = accessToken
	identity.RefreshToken = refreshToken
	st.s.identities[id] = identity
	return nil
}

type sellerProfileStore struct{ s *Storage }

func (st sellerProfileStore) Create(ctx context.Context, profile *auth.SellerProfile) error {
	st.s.mu.Lock()
	defer st.s.mu.Unlock()

	st.s.sellerProfiles[profile.ID] = *profile
	return nil
}

// SellerProfileByUserID is a test helper to inspect created storefronts.
func (s *Storage) SellerProfileByUserID(userID uuid.UUID) (*auth.SellerProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.sellerProfiles {
		if p.UserID == userID {
			return &p, true
		}
	}
	return nil, false
}

// SessionCount is a test helper reporting live sessions for a user.
func (s *Storage) SessionCount(userID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, session := range s.sessions {
		if session.UserID == userID {
			n++
		}
	}
	return n
}
