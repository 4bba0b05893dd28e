package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

//go:generate mockgen -source=service.go -destination=../mocks/mock_service.go -package=mocks
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Login(ctx context.Context, req LoginRequest) (*TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (snowflake.ID, error)
	Refresh(ctx context.Context, refreshToken string) (*AccessToken, error)
	Logout(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, id snowflake.ID) (*User, error)
}

type RegisterRequest struct {
	Username string
	Password string
}

type LoginRequest struct {
	Username string
	Password string
}

// TokenIssuer signs and verifies bearer tokens.
type TokenIssuer interface {
	Issue(userID snowflake.ID) (*TokenPair, error)
	IssueAccess(userID snowflake.ID) (*AccessToken, error)
	Parse(raw string, want TokenType) (snowflake.ID, error)
}
