// Package domain defines how deposits are paid for before the wallet is credited.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/money"
)

// ChargeRequest asks a charger to collect Amount from the user.
type ChargeRequest struct {
	UserID snowflake.ID
	Amount money.Amount
}

// Charge is a collected payment. Reference ends up on the deposit transaction.
type Charge struct {
	Provider  string
	Reference string
	Amount    money.Amount
	CreatedAt time.Time
}

// Charger collects money from the user's payment instrument.
type Charger interface {
	Provider() string
	Charge(ctx context.Context, req ChargeRequest) (*Charge, error)
}

// ChargerConfig is the provider-specific configuration handed to a factory.
type ChargerConfig struct {
	MaxCharge money.Amount
	Config    map[string]any
}

type ChargerFactory interface {
	Provider() string
	NewCharger(cfg ChargerConfig) (Charger, error)
}

type Service interface {
	// Deposit charges the user and credits the wallet with the charged amount.
	Deposit(ctx context.Context, userID snowflake.ID, amount money.Amount) (*DepositResult, error)
}

type DepositResult struct {
	Charge  Charge
	Balance money.Amount
}

var (
	ErrProviderNotFound = errors.New("payment_provider_not_found")
	ErrInvalidConfig    = errors.New("invalid_payment_config")
	ErrChargeDeclined   = errors.New("payment_declined")
)
