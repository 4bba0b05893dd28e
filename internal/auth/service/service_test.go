package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/smallbiznis/tollgate/internal/auth/domain"
	"github.com/smallbiznis/tollgate/internal/auth/repository"
	"github.com/smallbiznis/tollgate/internal/auth/token"
	"github.com/smallbiznis/tollgate/internal/clock"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	svc   authdomain.Service
	db    *gorm.DB
	clock *clock.FakeClock
}

func newTestService(t *testing.T) testEnv {
	t.Helper()

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&authdomain.User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	clk := clock.NewFakeClock(time.Now().Truncate(time.Second))
	issuer, err := token.NewIssuer(config.AuthConfig{
		JWTSecret:  "test-secret",
		AccessTTL:  time.Hour,
		RefreshTTL: 30 * 24 * time.Hour,
	}, clk)
	if err != nil {
		t.Fatalf("failed to create issuer: %v", err)
	}

	svc := New(Params{
		Log:    zap.NewNop(),
		Repo:   repository.New(dbConn),
		Tokens: issuer,
		GenID:  node,
	})
	return testEnv{svc: svc, db: dbConn, clock: clk}
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	user, err := env.svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "pw123"})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.PasswordHash == "pw123" || user.PasswordHash == "" {
		t.Fatalf("expected password to be hashed")
	}
	if user.Balance != 0 {
		t.Fatalf("expected zero balance, got %s", user.Balance)
	}

	pair, err := env.svc.Login(ctx, authdomain.LoginRequest{Username: "alice", Password: "pw123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	userID, err := env.svc.Authenticate(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if userID != user.ID {
		t.Fatalf("expected user %s, got %s", user.ID, userID)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, authdomain.RegisterRequest{Username: "  ", Password: "pw"}); !errors.Is(err, authdomain.ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
	if _, err := env.svc.Register(ctx, authdomain.RegisterRequest{Username: "bob", Password: ""}); !errors.Is(err, authdomain.ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "correct-password"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := env.svc.Login(ctx, authdomain.LoginRequest{Username: "alice", Password: "wrong-password"})
		if err != authdomain.ErrInvalidCredentials {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}

	_, err := env.svc.Login(ctx, authdomain.LoginRequest{Username: "nobody", Password: "whatever"})
	if err != authdomain.ErrInvalidCredentials {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestConcurrentDuplicateRegisterCreatesOneUser(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	const attempts = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "pw123"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, authdomain.ErrUserExists):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 || conflicts != attempts-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d and %d", attempts-1, succeeded, conflicts)
	}
	var count int64
	if err := env.db.Model(&authdomain.User{}).Where("username = ?", "alice").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one user row, got %d", count)
	}
}

func TestRefreshFlow(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "pw123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := env.svc.Login(ctx, authdomain.LoginRequest{Username: "alice", Password: "pw123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := env.svc.Authenticate(ctx, pair.RefreshToken); !errors.Is(err, authdomain.ErrTokenWrongType) {
		t.Fatalf("expected refresh token to be rejected as access token, got %v", err)
	}
	if _, err := env.svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, authdomain.ErrTokenWrongType) {
		t.Fatalf("expected access token to be rejected for refresh, got %v", err)
	}

	env.clock.Advance(2 * time.Hour)
	if _, err := env.svc.Authenticate(ctx, pair.AccessToken); !errors.Is(err, authdomain.ErrTokenExpired) {
		t.Fatalf("expected expired access token, got %v", err)
	}

	fresh, err := env.svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, err := env.svc.Authenticate(ctx, fresh.Token); err != nil {
		t.Fatalf("authenticate refreshed token: %v", err)
	}
}

func TestLogoutRequiresValidAccessToken(t *testing.T) {
	env := newTestService(t)
	ctx := context.Background()

	if _, err := env.svc.Register(ctx, authdomain.RegisterRequest{Username: "alice", Password: "pw123"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair, err := env.svc.Login(ctx, authdomain.LoginRequest{Username: "alice", Password: "pw123"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := env.svc.Logout(ctx, pair.AccessToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if err := env.svc.Logout(ctx, "bogus"); !errors.Is(err, authdomain.ErrTokenInvalid) {
		t.Fatalf("expected invalid token, got %v", err)
	}
}
