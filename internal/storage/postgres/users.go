package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/pkg/pg"
)

type userStore struct{ db querier }

const userColumns = `id, email, password_hash, first_name, last_name, kind, avatar, created_at`

func (st userStore) Create(ctx context.Context, user *auth.User) error {
	_, err := st.db.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, first_name, last_name, kind, avatar, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName, user.Kind, user.Avatar, user.CreatedAt,
	)
	if pg.IsUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (st userStore) ByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	row := st.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row)
}

func (st userStore) ByEmail(ctx context.Context, email string) (*auth.User, error) {
	if email == "" {
		// Empty emails are not unique; a point lookup makes no sense.
		return nil, auth.ErrNotFound
	}
	row := st.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row)
}

func (st userStore) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash []byte) error {
	tag, err := st.db.Exec(ctx, `UPDATE users SET password_hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Kind, &u.Avatar, &u.CreatedAt)
	if pg.IsNotFound(err) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return &u, nil
}
