package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/tradepost/tradepost/internal/auth"
	"github.com/tradepost/tradepost/pkg/pg"
)

type identityStore struct{ db querier }

func (st identityStore) ByProvider(ctx context.Context, provider, externalID string) (*auth.ExternalIdentity, *auth.User, error) {
	row := st.db.QueryRow(ctx, `
		SELECT i.id, i.provider, i.external_id, i.user_id, i.access_token, i.refresh_token, i.created_at, i.updated_at,
		       u.id, u.email, u.password_hash, u.first_name, u.last_name, u.kind, u.avatar, u.created_at
		FROM external_identities i
		JOIN users u ON u.id = i.user_id
		WHERE i.provider = $1 AND i.external_id = $2`, provider, externalID)

	var i auth.ExternalIdentity
	var u auth.User
	err := row.Scan(
		&i.ID, &i.Provider, &i.ExternalID, &i.UserID, &i.AccessToken, &i.RefreshToken, &i.CreatedAt, &i.UpdatedAt,
		&u.ID, &u.Email, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Kind, &u.Avatar, &u.CreatedAt,
	)
	if pg.IsNotFound(err) {
		return nil, nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("scan identity: %w", err)
	}
	return &i, &u, nil
}

func (st identityStore) Create(ctx context.Context, identity *auth.ExternalIdentity) error {
	_, err := st.db.Exec(ctx, `
		INSERT INTO external_identities (id, provider, external_id, user_id, access_token, refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		identity.ID, identity.Provider, identity.ExternalID, identity.UserID,
		identity.AccessToken, identity.RefreshToken, identity.CreatedAt, identity.UpdatedAt,
	)
	if pg.IsUniqueViolation(err) {
		return auth.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert identity: %w", err)
	}
	return nil
}

func (st identityStore) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string) error {
	tag, err := st.db.Exec(ctx, `
		UPDATE external_identities
		SET access_token = $2, refresh_token = $3, updated_at = now()
		WHERE id = $1`, id, accessToken, refreshToken)
	if err != nil {
		return fmt.Errorf("update identity tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return auth.ErrNotFound
	}
	return nil
}

type sellerProfileStore struct{ db querier }

func (st sellerProfileStore) Create(ctx context.Context, profile *auth.SellerProfile) error {
	_, err := st.db.Exec(ctx, `
		INSERT INTO seller_profiles (id, user_id, store_name, store_slug, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		profile.ID, profile.UserID, profile.StoreName, profile.StoreSlug, profile.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert seller profile: %w", err)
	}
	return nil
}
