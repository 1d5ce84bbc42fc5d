package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/chatvault/chatvault/internal/models"
)

func (s *SQLStorage) UpsertAPIKey(ctx context.Context, k *models.APIKey) error {
	return s.inTxMapped(ctx, "upsert api key", func(tx *sql.Tx) error {
		var existing models.APIKey
		err := tx.QueryRowContext(ctx, s.rebind(`
			SELECT id, created_at FROM api_keys WHERE platform = ?`),
			k.Platform,
		).Scan(&existing.ID, &existing.CreatedAt)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			k.IsActive = true
			k.CreatedAt = time.Now().UTC()
			return tx.QueryRowContext(ctx, s.rebind(`
				INSERT INTO api_keys (platform, secret, is_active, created_at)
				VALUES (?, ?, ?, ?)
				RETURNING id`),
				k.Platform, k.Secret, k.IsActive, k.CreatedAt,
			).Scan(&k.ID)
		case err != nil:
			return err
		default:
			k.ID = existing.ID
			k.IsActive = true
			k.CreatedAt = existing.CreatedAt
			_, err := tx.ExecContext(ctx, s.rebind(`
				UPDATE api_keys SET secret = ?, is_active = ? WHERE id = ?`),
				k.Secret, true, k.ID)
			return err
		}
	})
}

func (s *SQLStorage) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, platform, secret, is_active, created_at FROM api_keys ORDER BY platform ASC")
	if err != nil {
		return nil, storageErr("list api keys", err)
	}
	defer rows.Close()

	keys := []*models.APIKey{}
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Platform, &k.Secret, &k.IsActive, &k.CreatedAt); err != nil {
			return nil, storageErr("scan api key", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *SQLStorage) SetAPIKeyActive(ctx context.Context, id int64, active bool) error {
	result, err := s.db.ExecContext(ctx,
		s.rebind("UPDATE api_keys SET is_active = ? WHERE id = ?"), active, id)
	if err != nil {
		return storageErr("set api key active", err)
	}
	return requireAffected(result, "api key", id, "set api key active")
}

func (s *SQLStorage) DeleteAPIKey(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM api_keys WHERE id = ?"), id)
	if err != nil {
		return storageErr("delete api key", err)
	}
	return requireAffected(result, "api key", id, "delete api key")
}

func (s *SQLStorage) ActiveAPIKey(ctx context.Context, platform models.Platform) (*models.APIKey, error) {
	var k models.APIKey
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, platform, secret, is_active, created_at
		FROM api_keys
		WHERE platform = ? AND is_active = ?`),
		platform, true,
	).Scan(&k.ID, &k.Platform, &k.Secret, &k.IsActive, &k.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &models.NotFoundError{Entity: "api key", ID: 0}
	}
	if err != nil {
		return nil, storageErr("get active api key", err)
	}
	return &k, nil
}
