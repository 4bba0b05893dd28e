package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/money"
	"github.com/smallbiznis/tollgate/pkg/db/pagination"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	Credit(ctx context.Context, userID snowflake.ID, amount money.Amount, reference string) (money.Amount, error)
	Balance(ctx context.Context, userID snowflake.ID) (money.Amount, error)
	PrecheckFunds(ctx context.Context, userID snowflake.ID) error
	SettleAndRecord(ctx context.Context, userID snowflake.ID, debit money.Amount, usage UsageInput) (*Settlement, error)
	ListUsage(ctx context.Context, userID snowflake.ID) ([]UsageRecord, error)
	ListUsagePage(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]UsageRecord, pagination.PageInfo, error)
	ListTransactions(ctx context.Context, userID snowflake.ID, limit int) ([]Transaction, error)
}
