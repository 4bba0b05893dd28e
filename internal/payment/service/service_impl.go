package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tollgate/internal/config"
	"github.com/smallbiznis/tollgate/internal/money"
	obsmetrics "github.com/smallbiznis/tollgate/internal/observability/metrics"
	"github.com/smallbiznis/tollgate/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
	walletdomain "github.com/smallbiznis/tollgate/internal/wallet/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg        config.Config
	Log        *zap.Logger
	Registry   *adapters.Registry
	WalletSvc  walletdomain.Service
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	charger    paymentdomain.Charger
	walletSvc  walletdomain.Service
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) (paymentdomain.Service, error) {
	maxCharge := money.Amount(0)
	if p.Cfg.Payment.MaxCharge.IsPositive() {
		amount, err := money.FromDecimal(p.Cfg.Payment.MaxCharge)
		if err != nil {
			return nil, err
		}
		maxCharge = amount
	}

	charger, err := p.Registry.NewCharger(p.Cfg.Payment.Provider, paymentdomain.ChargerConfig{MaxCharge: maxCharge})
	if err != nil {
		return nil, err
	}
	return New(charger, p.WalletSvc, p.Log, p.ObsMetrics), nil
}

func New(charger paymentdomain.Charger, walletSvc walletdomain.Service, log *zap.Logger, m *obsmetrics.Metrics) *Service {
	return &Service{
		log:        log.Named("payment.service"),
		charger:    charger,
		walletSvc:  walletSvc,
		obsMetrics: m,
	}
}

func (s *Service) Deposit(ctx context.Context, userID snowflake.ID, amount money.Amount) (*paymentdomain.DepositResult, error) {
	if !amount.IsPositive() {
		s.obsMetrics.RecordDeposit(ctx, "rejected")
		return nil, walletdomain.ErrInvalidAmount
	}

	charge, err := s.charger.Charge(ctx, paymentdomain.ChargeRequest{UserID: userID, Amount: amount})
	if err != nil {
		s.obsMetrics.RecordDeposit(ctx, "declined")
		if errors.Is(err, paymentdomain.ErrChargeDeclined) {
			return nil, err
		}
		return nil, errors.Join(paymentdomain.ErrChargeDeclined, err)
	}

	balance, err := s.walletSvc.Credit(ctx, userID, charge.Amount, charge.Reference)
	if err != nil {
		// The payment was collected but the wallet was not credited.
		s.obsMetrics.RecordReconciliation(ctx, "deposit_credit_failed")
		s.log.Error("deposit charged but not credited",
			zap.String("user_id", userID.String()),
			zap.String("provider", charge.Provider),
			zap.String("reference", charge.Reference),
			zap.String("amount", charge.Amount.String()),
			zap.Error(err),
		)
		return nil, err
	}

	return &paymentdomain.DepositResult{Charge: *charge, Balance: balance}, nil
}
