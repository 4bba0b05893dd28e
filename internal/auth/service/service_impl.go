package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/auth/domain"
	"github.com/smallbiznis/tollgate/internal/auth/password"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxUsernameLength = 64
	maxPasswordLength = 1024
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Repo   domain.Repository
	Tokens domain.TokenIssuer
	GenID  *snowflake.Node
}

type Service struct {
	log    *zap.Logger
	repo   domain.Repository
	tokens domain.TokenIssuer
	genID  *snowflake.Node
}

func New(p Params) domain.Service {
	return &Service{
		log:    p.Log.Named("auth.service"),
		repo:   p.Repo,
		tokens: p.Tokens,
		genID:  p.GenID,
	}
}

func (s *Service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	username, err := normalizeUsername(req.Username)
	if err != nil {
		return nil, err
	}
	if req.Password == "" || len(req.Password) > maxPasswordLength {
		return nil, domain.ErrInvalidPassword
	}

	hashed, err := password.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           s.genID.Generate(),
		Username:     username,
		PasswordHash: hashed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, domain.ErrUserExists) {
			s.log.Info("registration rejected", zap.String("reason", "username_taken"))
		}
		return nil, err
	}

	s.log.Info("user registered", zap.String("user_id", user.ID.String()))
	return user, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.TokenPair, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			password.VerifyMissing(req.Password)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	if !password.Verify(req.Password, user.PasswordHash) {
		s.log.Info("login rejected", zap.String("user_id", user.ID.String()), zap.String("reason", "invalid_credentials"))
		return nil, domain.ErrInvalidCredentials
	}

	return s.tokens.Issue(user.ID)
}

func (s *Service) Authenticate(ctx context.Context, accessToken string) (snowflake.ID, error) {
	return s.tokens.Parse(accessToken, domain.TokenTypeAccess)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (*domain.AccessToken, error) {
	userID, err := s.tokens.Parse(refreshToken, domain.TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, err
	}
	return s.tokens.IssueAccess(userID)
}

// Logout validates the access token and acknowledges. Tokens are stateless and
// remain valid until they expire.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	userID, err := s.tokens.Parse(accessToken, domain.TokenTypeAccess)
	if err != nil {
		return err
	}
	s.log.Debug("logout acknowledged", zap.String("user_id", userID.String()))
	return nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return s.repo.FindByID(ctx, id)
}

func normalizeUsername(raw string) (string, error) {
	username := strings.TrimSpace(raw)
	if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
		return "", domain.ErrInvalidUsername
	}
	return username, nil
}
