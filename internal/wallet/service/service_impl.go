package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/money"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/smallbiznis/tollgate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTransactionLimit = 100

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       walletdomain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       walletdomain.Repository
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) walletdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("wallet.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

// Credit adds a positive amount to the wallet and appends a deposit transaction in the same unit of work.
func (s *Service) Credit(ctx context.Context, userID snowflake.ID, amount money.Amount, reference string) (money.Amount, error) {
	if userID == 0 {
		return 0, walletdomain.ErrWalletNotFound
	}
	if !amount.IsPositive() {
		s.obsMetrics.RecordDeposit(ctx, "rejected")
		return 0, walletdomain.ErrInvalidAmount
	}

	var balance money.Amount
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newBalance, err := s.repo.AdjustBalance(ctx, tx, userID, amount)
		if err != nil {
			return err
		}
		if err := s.repo.InsertTransaction(ctx, tx, &walletdomain.Transaction{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Type:         walletdomain.TransactionTypeDeposit,
			Amount:       amount,
			BalanceAfter: newBalance,
			ReferenceID:  strings.TrimSpace(reference),
			CreatedAt:    time.Now().UTC(),
		}); err != nil {
			return err
		}
		balance = newBalance
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordDeposit(ctx, "failed")
		return 0, storeError(err)
	}

	s.obsMetrics.RecordDeposit(ctx, "ok")
	s.log.Info("wallet credited",
		zap.String("user_id", userID.String()),
		zap.String("amount", amount.String()),
		zap.String("balance", balance.String()),
	)
	return balance, nil
}

func (s *Service) Balance(ctx context.Context, userID snowflake.ID) (money.Amount, error) {
	balance, err := s.repo.GetBalance(ctx, s.db, userID)
	if err != nil {
		return 0, storeError(err)
	}
	return balance, nil
}

// PrecheckFunds admits a request only while the balance is strictly positive.
func (s *Service) PrecheckFunds(ctx context.Context, userID snowflake.ID) error {
	balance, err := s.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if balance <= 0 {
		return walletdomain.ErrInsufficientFunds
	}
	return nil
}

// SettleAndRecord debits the wallet and appends the usage record atomically. The balance
// may end below zero when concurrent requests passed the precheck together.
func (s *Service) SettleAndRecord(ctx context.Context, userID snowflake.ID, debit money.Amount, usage walletdomain.UsageInput) (*walletdomain.Settlement, error) {
	if debit < 0 {
		return nil, walletdomain.ErrInvalidAmount
	}
	if usage.PromptTokens < 0 || usage.CompletionTokens < 0 {
		return nil, walletdomain.ErrInvalidUsage
	}
	total := usage.PromptTokens + usage.CompletionTokens

	var settlement walletdomain.Settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		newBalance, err := s.repo.AdjustBalance(ctx, tx, userID, -debit)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		record := walletdomain.UsageRecord{
			ID:               s.genID.Generate(),
			UserID:           userID,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      total,
			Cost:             debit,
			Model:            usage.Model,
			Metadata:         usage.Metadata,
			CreatedAt:        now,
		}
		if err := s.repo.InsertUsage(ctx, tx, &record); err != nil {
			return err
		}
		if err := s.repo.InsertTransaction(ctx, tx, &walletdomain.Transaction{
			ID:           s.genID.Generate(),
			UserID:       userID,
			Type:         walletdomain.TransactionTypeUsageCharge,
			Amount:       -debit,
			BalanceAfter: newBalance,
			ReferenceID:  record.ID.String(),
			CreatedAt:    now,
		}); err != nil {
			return err
		}

		settlement = walletdomain.Settlement{Record: record, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordSettlement(ctx, "failed", 0)
		return nil, storeError(err)
	}

	s.obsMetrics.RecordSettlement(ctx, "ok", total)
	if settlement.NewBalance < 0 {
		s.log.Warn("wallet overdrawn by concurrent settlement",
			zap.String("user_id", userID.String()),
			zap.String("balance", settlement.NewBalance.String()),
		)
	}
	return &settlement, nil
}

func (s *Service) ListUsage(ctx context.Context, userID snowflake.ID) ([]walletdomain.UsageRecord, error) {
	records, err := s.repo.ListUsage(ctx, s.db, userID, 0, 0)
	if err != nil {
		return nil, storeError(err)
	}
	return records, nil
}

func (s *Service) ListUsagePage(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]walletdomain.UsageRecord, pagination.PageInfo, error) {
	var afterID snowflake.ID
	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return nil, pagination.PageInfo{}, err
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.PageInfo{}, pagination.ErrInvalidPageToken
		}
		afterID = id
	}

	limit := page.Limit()
	records, err := s.repo.ListUsage(ctx, s.db, userID, afterID, limit+1)
	if err != nil {
		return nil, pagination.PageInfo{}, storeError(err)
	}
	return pagination.Trim(records, limit, func(r walletdomain.UsageRecord) string {
		return strconv.FormatInt(int64(r.ID), 10)
	})
}

func (s *Service) ListTransactions(ctx context.Context, userID snowflake.ID, limit int) ([]walletdomain.Transaction, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	txns, err := s.repo.ListTransactions(ctx, s.db, userID, limit)
	if err != nil {
		return nil, storeError(err)
	}
	return txns, nil
}

// storeError passes domain errors through and marks everything else as a retryable store failure.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, walletdomain.ErrWalletNotFound),
		errors.Is(err, walletdomain.ErrInvalidAmount),
		errors.Is(err, walletdomain.ErrInsufficientFunds),
		errors.Is(err, walletdomain.ErrInvalidUsage),
		errors.Is(err, context.Canceled):
		return err
	default:
		return fmt.Errorf("%w: %v", walletdomain.ErrStoreUnavailable, err)
	}
}
