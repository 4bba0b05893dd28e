// Package domain defines the text generation capability the gateway meters.
package domain

import (
	"context"
	"errors"
	"fmt"
)

//go:generate mockgen -source=generator.go -destination=../mocks/mock_generator.go -package=mocks

// Generator calls an upstream model. Implementations must not touch the wallet.
type Generator interface {
	Name() string
	Generate(ctx context.Context, prompt string) (*Result, error)
}

// Result is the generated text plus the token counts the provider reported.
type Result struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
	Model            string
}

func (r Result) TotalTokens() int64 {
	return r.PromptTokens + r.CompletionTokens
}

var ErrProvider = errors.New("provider_error")

// Error carries the upstream status when there was one.
type Error struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: upstream returned %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return ErrProvider }
