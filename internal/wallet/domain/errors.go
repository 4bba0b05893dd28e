package domain

import "errors"

var (
	ErrInvalidAmount     = errors.New("invalid_amount")
	ErrInvalidUsage      = errors.New("invalid_usage")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrWalletNotFound    = errors.New("wallet_not_found")
	ErrStoreUnavailable  = errors.New("store_unavailable")
)
