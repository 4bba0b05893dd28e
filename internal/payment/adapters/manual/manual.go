// Package manual accepts every deposit without contacting a processor. It backs
// development and test deployments, and operators who top wallets up by hand.
package manual

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/tollgate/internal/money"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
)

const providerName = "manual"

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return providerName
}

func (f *Factory) NewCharger(cfg paymentdomain.ChargerConfig) (paymentdomain.Charger, error) {
	if cfg.MaxCharge < 0 {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return &Charger{
		maxCharge: cfg.MaxCharge,
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}, nil
}

type Charger struct {
	maxCharge money.Amount
	mu        sync.Mutex
	entropy   *ulid.MonotonicEntropy
}

func (c *Charger) Provider() string {
	return providerName
}

func (c *Charger) Charge(ctx context.Context, req paymentdomain.ChargeRequest) (*paymentdomain.Charge, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, paymentdomain.ErrChargeDeclined
	}
	if c.maxCharge > 0 && req.Amount > c.maxCharge {
		return nil, paymentdomain.ErrChargeDeclined
	}

	now := time.Now().UTC()
	c.mu.Lock()
	id, err := ulid.New(ulid.Timestamp(now), c.entropy)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	return &paymentdomain.Charge{
		Provider:  providerName,
		Reference: "pay_" + id.String(),
		Amount:    req.Amount,
		CreatedAt: now,
	}, nil
}
