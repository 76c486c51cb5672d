// Package postgres implements auth.Storage on PostgreSQL via pgx. All
// uniqueness races (duplicate email, duplicate identity link, reset-token
// consumption) are decided by the database, not by in-process checks.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradepost/tradepost/internal/auth"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx, letting every store run
// either on the pool or inside an ambient transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Storage implements auth.Storage.
type Storage struct {
	begin func(ctx context.Context) (pgx.Tx, error) // nil when this Storage is a transaction scope
	db    querier
}

// New creates a pool-backed storage.
func New(pool *pgxpool.Pool) *Storage {
	return &Storage{begin: pool.Begin, db: pool}
}

func (s *Storage) Users() auth.UserStore                   { return userStore{s.db} }
func (s *Storage) Sessions() auth.SessionStore             { return sessionStore{s.db} }
func (s *Storage) ResetTokens() auth.ResetTokenStore       { return resetTokenStore{s.db} }
func (s *Storage) Identities() auth.IdentityStore          { return identityStore{s.db} }
func (s *Storage) SellerProfiles() auth.SellerProfileStore { return sellerProfileStore{s.db} }

// InTx runs fn inside a single database transaction. A nested call joins
// the ambient transaction instead of opening another one.
func (s *Storage) InTx(ctx context.Context, fn func(auth.Storage) error) error {
	if s.begin == nil {
		return fn(s)
	}

	tx, err := s.begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&Storage{db: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
