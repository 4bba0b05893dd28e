// Package domain describes one metered generation request and its outcomes.
package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/money"
)

// State is a step of the per-request state machine.
type State string

const (
	StateAuthenticated  State = "authenticated"
	StateFundsChecked   State = "funds_checked"
	StateProviderCalled State = "provider_called"
	StateSettled        State = "settled"
	StateResponded      State = "responded"
	StateRejected       State = "rejected"
	StateFailed         State = "failed"
)

type Service interface {
	// Generate runs a request for an already authenticated user.
	Generate(ctx context.Context, req GenerateRequest) (*GenerationResult, error)
	// GenerateWithToken authenticates an access token first.
	GenerateWithToken(ctx context.Context, accessToken, prompt string) (*GenerationResult, error)
}

type GenerateRequest struct {
	UserID snowflake.ID
	Prompt string
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type GenerationResult struct {
	Response      string       `json:"response"`
	Usage         Usage        `json:"usage"`
	CostCharged   money.Amount `json:"cost_charged"`
	WalletBalance money.Amount `json:"wallet_balance"`
	UsageID       snowflake.ID `json:"-"`
}

var (
	ErrMissingPrompt = errors.New("missing_prompt")
	ErrSettlement    = errors.New("settlement_failed")
)

// SettlementError reports a provider call that could not be charged. The wallet was
// not debited; Ref identifies the reconciliation log entry for the lost provider cost.
type SettlementError struct {
	Ref string
	Err error
}

func (e *SettlementError) Error() string {
	return fmt.Sprintf("settlement failed (ref %s): %v", e.Ref, e.Err)
}

func (e *SettlementError) Unwrap() []error {
	return []error{ErrSettlement, e.Err}
}
