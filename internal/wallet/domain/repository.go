package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/money"
	"gorm.io/gorm"
)

//go:generate mockgen -source=repository.go -destination=../mocks/mock_repository.go -package=mocks

// Repository runs against whatever *gorm.DB it is handed so callers control the transaction.
type Repository interface {
	// AdjustBalance applies delta with a store-side increment and returns the resulting balance.
	AdjustBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID, delta money.Amount) (money.Amount, error)
	GetBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (money.Amount, error)
	InsertUsage(ctx context.Context, db *gorm.DB, record *UsageRecord) error
	InsertTransaction(ctx context.Context, db *gorm.DB, txn *Transaction) error
	ListUsage(ctx context.Context, db *gorm.DB, userID snowflake.ID, afterID snowflake.ID, limit int) ([]UsageRecord, error)
	ListTransactions(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]Transaction, error)
}
