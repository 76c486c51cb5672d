package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/pkg/pg"
)

type resetTokenStore struct{ db querier }

func (st resetTokenStore) Create(ctx context.Context, reset *auth.ResetToken) error {
	_, err := st.db.Exec(ctx, `
		INSERT INTO password_resets (id, user_id, token, expires_at, used, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		reset.ID, reset.UserID, reset.Token, reset.ExpiresAt, reset.Used, reset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

func (st resetTokenStore) ByToken(ctx context.Context, raw string) (*auth.ResetToken, error) {
	row := st.db.QueryRow(ctx, `
		SELECT id, user_id, token, expires_at, used, created_at
		FROM password_resets WHERE token = $1`, raw)

	var r auth.ResetToken
	err := row.Scan(&r.ID, &r.UserID, &r.Token, &r.ExpiresAt, &r.Used, &r.CreatedAt)
	if pg.IsNotFound(err) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan reset token: %w", err)
	}
	return &r, nil
}

// MarkUsed flips the used flag only when it is still false, making the
// database the arbiter of at-most-once consumption.
func (st resetTokenStore) MarkUsed(ctx context.Context, id uuid.UUID) error {
	tag, err := st.db.Exec(ctx, `
		UPDATE password_resets SET used = TRUE WHERE id = $1 AND used = FALSE`, id)
	if err != nil {
		return fmt.Errorf("mark reset token used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}
