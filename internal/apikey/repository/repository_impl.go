package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/smallbiznis/tollgate/internal/apikey/domain"
	"gorm.io/gorm"
)

const selectColumns = `SELECT id, user_id, key_id, key_hash, is_active, created_at, last_used_at FROM api_keys`

type repo struct{}

func Provide() apikeydomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, key *apikeydomain.APIKey) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO api_keys (id, user_id, key_id, key_hash, is_active, created_at, last_used_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID,
		key.UserID,
		key.KeyID,
		key.KeyHash,
		key.IsActive,
		key.CreatedAt,
		key.LastUsedAt,
	).Error
}

func (r *repo) FindByHash(ctx context.Context, db *gorm.DB, keyHash string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE key_hash = ?`, keyHash).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) FindByKeyID(ctx context.Context, db *gorm.DB, userID snowflake.ID, keyID string) (*apikeydomain.APIKey, error) {
	var key apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE user_id = ? AND key_id = ?`, userID, keyID).Scan(&key).Error
	if err != nil {
		return nil, err
	}
	if key.ID == 0 {
		return nil, nil
	}
	return &key, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]apikeydomain.APIKey, error) {
	var keys []apikeydomain.APIKey
	err := db.WithContext(ctx).Raw(selectColumns+` WHERE user_id = ? ORDER BY id DESC`, userID).Scan(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, userID snowflake.ID, keyID string) error {
	return db.WithContext(ctx).Exec(
		`UPDATE api_keys SET is_active = ? WHERE user_id = ? AND key_id = ?`,
		false,
		userID,
		keyID,
	).Error
}

func (r *repo) TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error {
	return db.WithContext(ctx).Exec(`UPDATE api_keys SET last_used_at = ? WHERE id = ?`, at, id).Error
}
