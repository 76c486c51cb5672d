package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tradepost/tradepost/pkg/token"
)

const (
	stateTokenBytes = 32
	stateKeyPrefix  = "oauth:state:"
	defaultStateTTL = 10 * time.Minute
)

// StateStore issues and consumes single-use OAuth state parameters.
// Each state is valid for one callback within its TTL; consuming is
// destructive so a replayed callback fails.
type StateStore struct {
	client *redis.Client
	ttl    time.Duration
}

// StateOption configures a StateStore.
type StateOption func(*StateStore)

// WithStateTTL overrides how long an issued state stays valid.
func WithStateTTL(ttl time.Duration) StateOption {
	return func(s *StateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewStateStore creates a redis-backed state store.
func NewStateStore(client *redis.Client, opts ...StateOption) *StateStore {
	s := &StateStore{
		client: client,
		ttl:    defaultStateTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue generates a fresh state value for provider and stores it.
func (s *StateStore) Issue(ctx context.Context, provider string) (string, error) {
	state, err := token.New(stateTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate oauth state: %w", err)
	}
	if err := s.client.Set(ctx, stateKeyPrefix+state, provider, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store oauth state: %w", err)
	}
	return state, nil
}

// Consume validates state for provider and deletes it atomically.
// Unknown, expired, replayed, or cross-provider states all return
// ErrInvalidState.
func (s *StateStore) Consume(ctx context.Context, provider, state string) error {
	if state == "" {
		return ErrInvalidState
	}
	stored, err := s.client.GetDel(ctx, stateKeyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return ErrInvalidState
	}
	if err != nil {
		return fmt.Errorf("consume oauth state: %w", err)
	}
	if stored != provider {
		return ErrInvalidState
	}
	return nil
}
