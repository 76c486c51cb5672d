package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/pkg/pg"
	"github.com/tradepost/tradepost/pkg/token"
)

const sessionIDBytes = 32

type sessionStore struct{ db querier }

func (st sessionStore) Create(ctx context.Context, session *auth.Session) error {
	if session.ID == "" {
		id, err := token.New(sessionIDBytes)
		if err != nil {
			return fmt.Errorf("generate session id: %w", err)
		}
		session.ID = id
	}

	_, err := st.db.Exec(ctx, `
		INSERT INTO sessions (id, user_id, device_name, user_agent, ip_address, expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.UserID, session.DeviceName, session.UserAgent, session.IPAddress,
		session.ExpiresAt, session.Active, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (st sessionStore) ByIDWithUser(ctx context.Context, id string) (*auth.Session, *auth.User, error) {
	row := st.db.QueryRow(ctx, `
		SELECT s.id, s.user_id, s.device_name, s.user_agent, s.ip_address, s.expires_at, s.active, s.created_at,
		       u.id, u.email, u.password_hash, u.first_name, u.last_name, u.kind, u.avatar, u.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1`, id)

	var s auth.Session
	var u auth.User
	err := row.Scan(
		&s.ID, &s.UserID, &s.DeviceName, &s.UserAgent, &s.IPAddress, &s.ExpiresAt, &s.Active, &s.CreatedAt,
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Kind, &u.Avatar, &u.CreatedAt,
	)
	if pg.IsNotFound(err) {
		return nil, nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan session: %w", err)
	}
	return &s, &u, nil
}

func (st sessionStore) Delete(ctx context.Context, id string) error {
	tag, err := st.db.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (st sessionStore) DeleteByUserID(ctx context.Context, userID uuid.UUID) error {
	if _, err := st.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete sessions by user: %w", err)
	}
	return nil
}
