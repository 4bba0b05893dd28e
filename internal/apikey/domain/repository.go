package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, key *APIKey) error
	FindByHash(ctx context.Context, db *gorm.DB, keyHash string) (*APIKey, error)
	FindByKeyID(ctx context.Context, db *gorm.DB, userID snowflake.ID, keyID string) (*APIKey, error)
	List(ctx context.Context, db *gorm.DB, userID snowflake.ID) ([]APIKey, error)
	Deactivate(ctx context.Context, db *gorm.DB, userID snowflake.ID, keyID string) error
	TouchLastUsed(ctx context.Context, db *gorm.DB, id snowflake.ID, at time.Time) error
}
