package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Create(ctx context.Context, userID snowflake.ID) (*SecretResponse, error)
	Authenticate(ctx context.Context, rawKey string) (snowflake.ID, error)
	List(ctx context.Context, userID snowflake.ID) ([]Response, error)
	Revoke(ctx context.Context, userID snowflake.ID, keyID string) error
}

type Response struct {
	KeyID      string     `json:"key_id"`
	IsActive   bool       `json:"is_active"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}

// SecretResponse carries the plaintext key. It is only ever returned once.
type SecretResponse struct {
	KeyID     string `json:"key_id"`
	SecretKey string `json:"secret_key"`
}

var (
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidKeyID = errors.New("invalid_key_id")
	ErrInvalidKey   = errors.New("invalid_api_key")
	ErrNotFound     = errors.New("not_found")
)
