package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/tollgate/internal/auth/domain"
	"github.com/smallbiznis/tollgate/internal/config"
	gatewaydomain "github.com/smallbiznis/tollgate/internal/gateway/domain"
	"github.com/smallbiznis/tollgate/internal/money"
	obscontext "github.com/smallbiznis/tollgate/internal/observability/context"
	obslogger "github.com/smallbiznis/tollgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	"github.com/smallbiznis/tollgate/internal/observability/tracing"
	providerdomain "github.com/smallbiznis/tollgate/internal/provider/domain"
	"github.com/smallbiznis/tollgate/internal/ratelimit"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const tracerName = "tollgate/gateway"

type Params struct {
	fx.In

	Log        *zap.Logger
	AuthSvc    authdomain.Service
	WalletSvc  walletdomain.Service
	Generator  providerdomain.Generator
	Pricing    *config.PricingHolder
	Limiter    ratelimit.UserLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics   `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	authSvc    authdomain.Service
	walletSvc  walletdomain.Service
	generator  providerdomain.Generator
	pricing    *config.PricingHolder
	limiter    ratelimit.UserLimiter
	obsMetrics *obsmetrics.Metrics
	tracer     trace.Tracer
}

func New(p Params) gatewaydomain.Service {
	return &Service{
		log:        p.Log.Named("gateway.service"),
		authSvc:    p.AuthSvc,
		walletSvc:  p.WalletSvc,
		generator:  p.Generator,
		pricing:    p.Pricing,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
		tracer:     otel.Tracer(tracerName),
	}
}

func (s *Service) GenerateWithToken(ctx context.Context, accessToken, prompt string) (*gatewaydomain.GenerationResult, error) {
	userID, err := s.authSvc.Authenticate(ctx, accessToken)
	if err != nil {
		s.obsMetrics.RecordGeneration(ctx, string(gatewaydomain.StateRejected), "unauthorized")
		return nil, err
	}
	return s.Generate(ctx, gatewaydomain.GenerateRequest{UserID: userID, Prompt: prompt})
}

// Generate calls the provider exactly once and attempts settlement exactly once.
// Nothing before the provider call has side effects, and a failed settlement never
// leaves a partial charge behind.
func (s *Service) Generate(ctx context.Context, req gatewaydomain.GenerateRequest) (*gatewaydomain.GenerationResult, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.generate", trace.WithAttributes(
		tracing.SafeAttributes(attribute.String("enduser.id", req.UserID.String()))...,
	))
	defer span.End()

	log := obslogger.WithContext(ctx, s.log)
	if principal, _ := obscontext.PrincipalFromContext(ctx); principal == "" {
		log = obslogger.WithUser(log, req.UserID.String())
	}
	s.transition(ctx, log, gatewaydomain.StateAuthenticated)

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, s.reject(ctx, log, span, "missing_prompt", gatewaydomain.ErrMissingPrompt)
	}

	if s.limiter != nil {
		release, err := s.limiter.Acquire(ctx, req.UserID)
		if err != nil {
			return nil, s.reject(ctx, log, span, limiterReason(err), err)
		}
		defer release()
	}

	if err := s.walletSvc.PrecheckFunds(ctx, req.UserID); err != nil {
		reason := "store_unavailable"
		if errors.Is(err, walletdomain.ErrInsufficientFunds) {
			reason = "insufficient_funds"
		}
		return nil, s.reject(ctx, log, span, reason, err)
	}
	pricing := s.pricing.Get()
	s.transition(ctx, log, gatewaydomain.StateFundsChecked)

	result, err := s.callProvider(ctx, prompt)
	if err != nil {
		s.obsMetrics.RecordGeneration(ctx, string(gatewaydomain.StateFailed), "provider")
		span.SetStatus(codes.Error, "provider")
		span.RecordError(tracing.SafeError(err))
		log.Warn("provider call failed", zap.String("provider", s.generator.Name()), zap.Error(err))
		if errors.Is(err, providerdomain.ErrProvider) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", providerdomain.ErrProvider, err)
	}
	s.transition(ctx, log, gatewaydomain.StateProviderCalled)

	usage := gatewaydomain.Usage{
		PromptTokens:     result.PromptTokens,
		CompletionTokens: result.CompletionTokens,
		TotalTokens:      result.TotalTokens(),
	}
	span.SetAttributes(
		attribute.Int64("gateway.prompt_tokens", usage.PromptTokens),
		attribute.Int64("gateway.completion_tokens", usage.CompletionTokens),
	)

	// The provider cost is already incurred; a client disconnect must not skip settlement.
	settleCtx := context.WithoutCancel(ctx)
	cost, err := Cost(usage.TotalTokens, pricing)
	if err != nil {
		return nil, s.settlementFailed(settleCtx, log, span, usage, cost, err)
	}

	settlement, err := s.walletSvc.SettleAndRecord(settleCtx, req.UserID, cost, walletdomain.UsageInput{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		Model:            result.Model,
		Metadata: map[string]any{
			"provider":   s.generator.Name(),
			"unit_price": pricing.UnitPrice.String(),
			"multiplier": pricing.Multiplier.String(),
		},
	})
	if err != nil {
		return nil, s.settlementFailed(settleCtx, log, span, usage, cost, err)
	}
	s.transition(ctx, log, gatewaydomain.StateSettled)

	s.obsMetrics.RecordGeneration(ctx, string(gatewaydomain.StateResponded), "")
	s.transition(ctx, log, gatewaydomain.StateResponded)
	log.Info("generation settled",
		zap.Int64("total_tokens", usage.TotalTokens),
		zap.String("cost", cost.String()),
		zap.String("balance", settlement.NewBalance.String()),
	)

	return &gatewaydomain.GenerationResult{
		Response:      result.Text,
		Usage:         usage,
		CostCharged:   cost,
		WalletBalance: settlement.NewBalance,
		UsageID:       settlement.Record.ID,
	}, nil
}

// Cost is totalTokens * unitPrice * multiplier rounded half away from zero to money.Scale digits.
func Cost(totalTokens int64, pricing config.PricingConfig) (money.Amount, error) {
	if totalTokens < 0 {
		return 0, walletdomain.ErrInvalidUsage
	}
	raw := decimal.NewFromInt(totalTokens).Mul(pricing.UnitPrice).Mul(pricing.Multiplier)
	return money.Round(raw)
}

func (s *Service) callProvider(ctx context.Context, prompt string) (*providerdomain.Result, error) {
	ctx, span := s.tracer.Start(ctx, "gateway.provider", trace.WithAttributes(
		attribute.String("gateway.provider", s.generator.Name()),
	))
	defer span.End()

	started := time.Now()
	result, err := s.generator.Generate(ctx, prompt)
	if err == nil && result == nil {
		err = &providerdomain.Error{Provider: s.generator.Name(), Message: "empty result"}
	}
	if err == nil && (result.PromptTokens < 0 || result.CompletionTokens < 0) {
		err = &providerdomain.Error{Provider: s.generator.Name(), Message: "negative token counts"}
	}
	s.obsMetrics.ObserveProviderLatency(ctx, s.generator.Name(), time.Since(started), err != nil)
	if err != nil {
		span.SetStatus(codes.Error, "provider")
		span.RecordError(tracing.SafeError(err))
		return nil, err
	}
	return result, nil
}

func (s *Service) transition(ctx context.Context, log *zap.Logger, state gatewaydomain.State) {
	log.Debug("generation state", zap.String("state", string(state)))
	trace.SpanFromContext(ctx).AddEvent(string(state))
}

func (s *Service) reject(ctx context.Context, log *zap.Logger, span trace.Span, reason string, err error) error {
	s.obsMetrics.RecordGeneration(ctx, string(gatewaydomain.StateRejected), reason)
	span.SetStatus(codes.Error, reason)
	log.Debug("generation state",
		zap.String("state", string(gatewaydomain.StateRejected)),
		zap.String("reason", reason),
	)
	return err
}

// settlementFailed records the unbilled provider call for reconciliation.
func (s *Service) settlementFailed(ctx context.Context, log *zap.Logger, span trace.Span, usage gatewaydomain.Usage, cost money.Amount, err error) error {
	ref := ulid.Make().String()

	s.obsMetrics.RecordGeneration(ctx, string(gatewaydomain.StateFailed), "settlement")
	s.obsMetrics.RecordReconciliation(ctx, "settlement_failed")
	span.SetStatus(codes.Error, "settlement")
	span.SetAttributes(attribute.String("gateway.reconciliation_ref", ref))
	span.RecordError(tracing.SafeError(err))

	log.Error("provider cost not charged",
		zap.String("state", string(gatewaydomain.StateFailed)),
		zap.String("reconciliation_ref", ref),
		zap.String("provider", s.generator.Name()),
		zap.Int64("prompt_tokens", usage.PromptTokens),
		zap.Int64("completion_tokens", usage.CompletionTokens),
		zap.String("cost", cost.String()),
		zap.Error(err),
	)
	return &gatewaydomain.SettlementError{Ref: ref, Err: err}
}

func limiterReason(err error) string {
	switch {
	case errors.Is(err, ratelimit.ErrConcurrentRequest):
		return "concurrent_request"
	case errors.Is(err, ratelimit.ErrRateLimited):
		return "rate_limited"
	default:
		return "limiter_unavailable"
	}
}
