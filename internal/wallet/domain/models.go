// Package domain contains the wallet ledger types.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/money"
	"gorm.io/datatypes"
)

// UsageRecord is the immutable record of one metered generation.
type UsageRecord struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	UserID           snowflake.ID      `gorm:"column:user_id;not null;index:ix_usage_records_user_id_id,priority:1"`
	PromptTokens     int64             `gorm:"column:prompt_tokens;not null"`
	CompletionTokens int64             `gorm:"column:completion_tokens;not null"`
	TotalTokens      int64             `gorm:"column:total_tokens;not null"`
	Cost             money.Amount      `gorm:"column:cost;not null"`
	Model            string            `gorm:"column:model;type:varchar(128);not null;default:''"`
	Metadata         datatypes.JSONMap `gorm:"column:metadata"`
	CreatedAt        time.Time         `gorm:"column:created_at;not null"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }

type TransactionType string

const (
	TransactionTypeDeposit     TransactionType = "deposit"
	TransactionTypeUsageCharge TransactionType = "usage_charge"
)

// Transaction is an append-only audit row written with every balance change.
type Transaction struct {
	ID           snowflake.ID    `gorm:"primaryKey"`
	UserID       snowflake.ID    `gorm:"column:user_id;not null;index:ix_wallet_transactions_user_id_id,priority:1"`
	Type         TransactionType `gorm:"column:type;type:varchar(32);not null"`
	Amount       money.Amount    `gorm:"column:amount;not null"`
	BalanceAfter money.Amount    `gorm:"column:balance_after;not null"`
	ReferenceID  string          `gorm:"column:reference_id;type:varchar(64);not null;default:''"`
	CreatedAt    time.Time       `gorm:"column:created_at;not null"`
}

// TableName sets the database table name.
func (Transaction) TableName() string { return "wallet_transactions" }

// UsageInput describes a provider call to be charged.
type UsageInput struct {
	PromptTokens     int64
	CompletionTokens int64
	Model            string
	Metadata         map[string]any
}

// Settlement is the result of a successful SettleAndRecord.
type Settlement struct {
	Record     UsageRecord
	NewBalance money.Amount
}
