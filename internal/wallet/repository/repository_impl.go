package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/money"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() walletdomain.Repository {
	return &repo{}
}

func (r *repo) AdjustBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID, delta money.Amount) (money.Amount, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE users SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		int64(delta),
		time.Now().UTC(),
		userID,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, walletdomain.ErrWalletNotFound
	}
	return r.GetBalance(ctx, db, userID)
}

func (r *repo) GetBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID) (money.Amount, error) {
	var balances []int64
	err := db.WithContext(ctx).
		Table("users").
		Where("id = ?", userID).
		Limit(1).
		Pluck("balance", &balances).Error
	if err != nil {
		return 0, err
	}
	if len(balances) == 0 {
		return 0, walletdomain.ErrWalletNotFound
	}
	return money.Amount(balances[0]), nil
}

func (r *repo) InsertUsage(ctx context.Context, db *gorm.DB, record *walletdomain.UsageRecord) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *walletdomain.Transaction) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO wallet_transactions (id, user_id, type, amount, balance_after, reference_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		txn.ID,
		txn.UserID,
		string(txn.Type),
		int64(txn.Amount),
		int64(txn.BalanceAfter),
		txn.ReferenceID,
		txn.CreatedAt,
	).Error
}

func (r *repo) ListUsage(ctx context.Context, db *gorm.DB, userID snowflake.ID, afterID snowflake.ID, limit int) ([]walletdomain.UsageRecord, error) {
	var records []walletdomain.UsageRecord
	// Snowflake ids are time-ordered, so id order is creation order.
	query := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC")
	if afterID != 0 {
		query = query.Where("id > ?", afterID)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]walletdomain.Transaction, error) {
	var txns []walletdomain.Transaction
	query := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
