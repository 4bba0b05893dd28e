package service

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/tollgate/internal/auth/domain"
	"github.com/smallbiznis/tollgate/internal/money"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"github.com/smallbiznis/tollgate/internal/wallet/repository"
	"github.com/smallbiznis/tollgate/pkg/db"
	"github.com/smallbiznis/tollgate/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type failingUsageRepo struct {
	walletdomain.Repository
}

func (failingUsageRepo) InsertUsage(context.Context, *gorm.DB, *walletdomain.UsageRecord) error {
	return errors.New("disk full")
}

func setupWallet(t *testing.T, repo walletdomain.Repository) (*gorm.DB, walletdomain.Service, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	return setupWalletOn(t, conn, repo)
}

// setupConcurrentWallet runs on a file-backed store where transactions really overlap.
func setupConcurrentWallet(t *testing.T, repo walletdomain.Repository) (*gorm.DB, walletdomain.Service, *snowflake.Node) {
	t.Helper()

	conn, err := db.NewTestFile(t.TempDir(), 8)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return setupWalletOn(t, conn, repo)
}

func setupWalletOn(t *testing.T, conn *gorm.DB, repo walletdomain.Repository) (*gorm.DB, walletdomain.Service, *snowflake.Node) {
	t.Helper()

	if err := conn.AutoMigrate(&authdomain.User{}, &walletdomain.UsageRecord{}, &walletdomain.Transaction{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	if repo == nil {
		repo = repository.Provide()
	}
	svc := New(Params{DB: conn, Log: zap.NewNop(), GenID: node, Repo: repo})
	return conn, svc, node
}

func seedUser(t *testing.T, conn *gorm.DB, node *snowflake.Node, username string) snowflake.ID {
	t.Helper()
	now := time.Now().UTC()
	user := authdomain.User{
		ID:           node.Generate(),
		Username:     username,
		PasswordHash: "x",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user.ID
}

func TestCreditAddsToBalanceAndRecordsDeposit(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	balance, err := svc.Credit(ctx, userID, money.MustParse("100"), "dep-1")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("100"), balance)

	balance, err = svc.Credit(ctx, userID, money.MustParse("0.5"), "")
	require.NoError(t, err)
	assert.Equal(t, "100.5", balance.String())

	txns, err := svc.ListTransactions(ctx, userID, 0)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, walletdomain.TransactionTypeDeposit, txns[0].Type)
	assert.Equal(t, money.MustParse("100.5"), txns[0].BalanceAfter)
	assert.Equal(t, "dep-1", txns[1].ReferenceID)
}

func TestCreditRejectsNonPositiveAmounts(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	for _, amount := range []money.Amount{0, money.MustParse("-5")} {
		if _, err := svc.Credit(ctx, userID, amount, ""); !errors.Is(err, walletdomain.ErrInvalidAmount) {
			t.Fatalf("amount %s: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	balance, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, money.Amount(0), balance)
}

func TestCreditUnknownUser(t *testing.T) {
	_, svc, node := setupWallet(t, nil)
	_, err := svc.Credit(context.Background(), node.Generate(), money.MustParse("1"), "")
	if !errors.Is(err, walletdomain.ErrWalletNotFound) {
		t.Fatalf("expected ErrWalletNotFound, got %v", err)
	}
}

func TestConcurrentBalanceChangesAreNotLost(t *testing.T) {
	conn, svc, node := setupConcurrentWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	seed := time.Now().UnixNano()
	t.Logf("seed %d", seed)
	rng := rand.New(rand.NewSource(seed))

	initial := money.Amount(rng.Int63n(50_000_000))
	require.NoError(t, conn.Exec(`UPDATE users SET balance = ? WHERE id = ?`, int64(initial), userID).Error)

	type balanceOp struct {
		credit bool
		amount money.Amount
	}
	ops := make([]balanceOp, 16+rng.Intn(33))
	expected := initial
	credits := 0
	for i := range ops {
		ops[i] = balanceOp{credit: rng.Intn(2) == 0, amount: money.Amount(1 + rng.Int63n(5_000_000))}
		if ops[i].credit {
			expected += ops[i].amount
			credits++
		} else {
			expected -= ops[i].amount
		}
	}

	start := make(chan struct{})
	var wg sync.WaitGroup
	for _, op := range ops {
		wg.Add(1)
		go func(op balanceOp) {
			defer wg.Done()
			<-start
			if op.credit {
				if _, err := svc.Credit(ctx, userID, op.amount, ""); err != nil {
					t.Errorf("credit %s: %v", op.amount, err)
				}
				return
			}
			usage := walletdomain.UsageInput{PromptTokens: 1, CompletionTokens: 1, Model: "test"}
			if _, err := svc.SettleAndRecord(ctx, userID, op.amount, usage); err != nil {
				t.Errorf("settle %s: %v", op.amount, err)
			}
		}(op)
	}
	close(start)
	wg.Wait()

	balance, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, expected, balance, "seed %d", seed)

	var txns, usage int64
	require.NoError(t, conn.Model(&walletdomain.Transaction{}).Where("user_id = ?", userID).Count(&txns).Error)
	require.NoError(t, conn.Model(&walletdomain.UsageRecord{}).Where("user_id = ?", userID).Count(&usage).Error)
	assert.Equal(t, int64(len(ops)), txns)
	assert.Equal(t, int64(len(ops)-credits), usage)
}

// staleReadRepo adjusts the balance by reading it and writing the sum back.
type staleReadRepo struct {
	walletdomain.Repository
}

func (r staleReadRepo) AdjustBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID, delta money.Amount) (money.Amount, error) {
	current, err := r.GetBalance(ctx, db, userID)
	if err != nil {
		return 0, err
	}
	next := current + delta
	if err := db.WithContext(ctx).Exec(`UPDATE users SET balance = ? WHERE id = ?`, int64(next), userID).Error; err != nil {
		return 0, err
	}
	return next, nil
}

func isBalanceWrite(tx *gorm.DB) bool {
	if tx.Statement.Table == "users" {
		return true
	}
	return strings.Contains(strings.ToLower(tx.Statement.SQL.String()), "update users")
}

// interleaveBalanceWrite commits extra to the wallet from another connection right
// before the next balance write issued through conn.
func interleaveBalanceWrite(t *testing.T, conn *gorm.DB, userID snowflake.ID, extra money.Amount) {
	t.Helper()

	var fired atomic.Bool
	hook := func(tx *gorm.DB) {
		if !isBalanceWrite(tx) || !fired.CompareAndSwap(false, true) {
			return
		}
		if err := conn.Exec(`UPDATE users SET balance = balance + ? WHERE id = ?`, int64(extra), userID).Error; err != nil {
			t.Errorf("interleaved write: %v", err)
		}
	}
	require.NoError(t, conn.Callback().Raw().Before("gorm:raw").Register("wallet_test:interleave_raw", hook))
	require.NoError(t, conn.Callback().Update().Before("gorm:update").Register("wallet_test:interleave_update", hook))
}

func TestCreditAppliesOnLatestCommittedBalance(t *testing.T) {
	conn, svc, node := setupConcurrentWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	_, err := svc.Credit(ctx, userID, money.MustParse("10"), "")
	require.NoError(t, err)

	interleaveBalanceWrite(t, conn, userID, money.MustParse("1"))
	balance, err := svc.Credit(ctx, userID, money.MustParse("2.5"), "")
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("13.5"), balance)

	stored, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("13.5"), stored)
}

func TestSettleAppliesOnLatestCommittedBalance(t *testing.T) {
	conn, svc, node := setupConcurrentWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	_, err := svc.Credit(ctx, userID, money.MustParse("10"), "")
	require.NoError(t, err)

	interleaveBalanceWrite(t, conn, userID, money.MustParse("1"))
	settlement, err := svc.SettleAndRecord(ctx, userID, money.MustParse("2.5"), walletdomain.UsageInput{PromptTokens: 3, CompletionTokens: 4})
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("8.5"), settlement.NewBalance)

	stored, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("8.5"), stored)
}

func TestInterleavedWriteCatchesReadModifyWrite(t *testing.T) {
	conn, svc, node := setupConcurrentWallet(t, staleReadRepo{Repository: repository.Provide()})
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	_, err := svc.Credit(ctx, userID, money.MustParse("10"), "")
	require.NoError(t, err)

	interleaveBalanceWrite(t, conn, userID, money.MustParse("1"))
	_, creditErr := svc.Credit(ctx, userID, money.MustParse("2.5"), "")

	stored, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	if creditErr == nil && stored == money.MustParse("13.5") {
		t.Fatalf("read-then-write balance update kept both writes; the interleaving did not happen")
	}
}

func TestPrecheckRequiresStrictlyPositiveBalance(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	if err := svc.PrecheckFunds(ctx, userID); !errors.Is(err, walletdomain.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds at zero balance, got %v", err)
	}

	_, err := svc.Credit(ctx, userID, money.MustParse("0.000001"), "")
	require.NoError(t, err)
	require.NoError(t, svc.PrecheckFunds(ctx, userID))
}

func TestSettleAndRecordDebitsAndAppendsUsage(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	_, err := svc.Credit(ctx, userID, money.MustParse("100"), "")
	require.NoError(t, err)

	settlement, err := svc.SettleAndRecord(ctx, userID, money.MustParse("0.45"), walletdomain.UsageInput{
		PromptTokens:     5,
		CompletionTokens: 10,
		Model:            "test-model",
		Metadata:         map[string]any{"payment_ref": "abc"},
	})
	require.NoError(t, err)
	assert.Equal(t, "99.55", settlement.NewBalance.String())
	assert.Equal(t, int64(15), settlement.Record.TotalTokens)
	assert.Equal(t, money.MustParse("0.45"), settlement.Record.Cost)

	records, err := svc.ListUsage(ctx, userID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, settlement.Record.ID, records[0].ID)
	assert.Equal(t, "abc", records[0].Metadata["payment_ref"])

	txns, err := svc.ListTransactions(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, walletdomain.TransactionTypeUsageCharge, txns[0].Type)
	assert.Equal(t, money.MustParse("-0.45"), txns[0].Amount)
	assert.Equal(t, settlement.Record.ID.String(), txns[0].ReferenceID)
}

func TestSettleAndRecordMayOverdraw(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	_, err := svc.Credit(ctx, userID, money.MustParse("0.1"), "")
	require.NoError(t, err)

	settlement, err := svc.SettleAndRecord(ctx, userID, money.MustParse("0.3"), walletdomain.UsageInput{PromptTokens: 1, CompletionTokens: 9})
	require.NoError(t, err)
	assert.Equal(t, "-0.2", settlement.NewBalance.String())

	if err := svc.PrecheckFunds(ctx, userID); !errors.Is(err, walletdomain.ErrInsufficientFunds) {
		t.Fatalf("expected overdrawn wallet to fail precheck, got %v", err)
	}
}

func TestSettleAndRecordRollsBackWhenUsageInsertFails(t *testing.T) {
	conn, svc, node := setupWallet(t, failingUsageRepo{Repository: repository.Provide()})
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	_, err := svc.Credit(ctx, userID, money.MustParse("10"), "")
	require.NoError(t, err)

	_, err = svc.SettleAndRecord(ctx, userID, money.MustParse("1"), walletdomain.UsageInput{PromptTokens: 1, CompletionTokens: 1})
	if !errors.Is(err, walletdomain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}

	balance, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, money.MustParse("10"), balance, "debit must roll back with the failed usage insert")

	var count int64
	require.NoError(t, conn.Model(&walletdomain.UsageRecord{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSettleAndRecordRejectsNegativeInputs(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	if _, err := svc.SettleAndRecord(ctx, userID, money.MustParse("-1"), walletdomain.UsageInput{}); !errors.Is(err, walletdomain.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := svc.SettleAndRecord(ctx, userID, 0, walletdomain.UsageInput{PromptTokens: -1}); !errors.Is(err, walletdomain.ErrInvalidUsage) {
		t.Fatalf("expected ErrInvalidUsage, got %v", err)
	}
}

func TestRepeatedTinyChargesDoNotDrift(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	_, err := svc.Credit(ctx, userID, money.MustParse("1"), "")
	require.NoError(t, err)

	charge := money.MustParse("0.000003")
	for i := 0; i < 1000; i++ {
		if _, err := svc.SettleAndRecord(ctx, userID, charge, walletdomain.UsageInput{PromptTokens: 1}); err != nil {
			t.Fatalf("settle %d: %v", i, err)
		}
	}

	balance, err := svc.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "0.997", balance.String())
}

func TestListUsageIsOrderedAndScopedToUser(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	alice := seedUser(t, conn, node, "alice")
	bob := seedUser(t, conn, node, "bob")

	for _, id := range []snowflake.ID{alice, bob} {
		_, err := svc.Credit(ctx, id, money.MustParse("10"), "")
		require.NoError(t, err)
	}
	for i := int64(1); i <= 3; i++ {
		_, err := svc.SettleAndRecord(ctx, alice, money.Amount(i), walletdomain.UsageInput{PromptTokens: i})
		require.NoError(t, err)
	}
	_, err := svc.SettleAndRecord(ctx, bob, 1, walletdomain.UsageInput{PromptTokens: 99})
	require.NoError(t, err)

	records, err := svc.ListUsage(ctx, alice)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, int64(i+1), r.PromptTokens)
		assert.Equal(t, alice, r.UserID)
	}

	empty, err := svc.ListUsage(ctx, seedUser(t, conn, node, "carol"))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListUsagePage(t *testing.T) {
	conn, svc, node := setupWallet(t, nil)
	ctx := context.Background()
	userID := seedUser(t, conn, node, "alice")

	_, err := svc.Credit(ctx, userID, money.MustParse("10"), "")
	require.NoError(t, err)
	for i := int64(1); i <= 5; i++ {
		_, err := svc.SettleAndRecord(ctx, userID, 1, walletdomain.UsageInput{PromptTokens: i})
		require.NoError(t, err)
	}

	first, info, err := svc.ListUsagePage(ctx, userID, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, info.HasMore)
	assert.Equal(t, int64(1), first[0].PromptTokens)

	second, info, err := svc.ListUsagePage(ctx, userID, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, int64(3), second[0].PromptTokens)

	third, info, err := svc.ListUsagePage(ctx, userID, pagination.Pagination{PageSize: 2, PageToken: info.NextPageToken})
	require.NoError(t, err)
	require.Len(t, third, 1)
	assert.False(t, info.HasMore)

	_, _, err = svc.ListUsagePage(ctx, userID, pagination.Pagination{PageToken: "%%%"})
	assert.ErrorIs(t, err, pagination.ErrInvalidPageToken)
}
