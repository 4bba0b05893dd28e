// Package domain contains core types for the credential store and token issuer.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/money"
)

// User is an account that owns a wallet. Balance is mutated only by the wallet ledger.
type User struct {
	ID           snowflake.ID `gorm:"primaryKey"`
	Username     string       `gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	PasswordHash string       `gorm:"column:password_hash;type:text;not null"`
	Balance      money.Amount `gorm:"column:balance;not null;default:0"`
	CreatedAt    time.Time    `gorm:"not null"`
	UpdatedAt    time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

// TokenType discriminates access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair is returned on login.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AccessToken is returned on refresh.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}
