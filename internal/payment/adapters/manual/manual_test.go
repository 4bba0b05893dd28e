package manual

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/smallbiznis/tollgate/internal/money"
	paymentdomain "github.com/smallbiznis/tollgate/internal/payment/domain"
)

func TestChargeReturnsUniqueReferences(t *testing.T) {
	charger, err := NewFactory().NewCharger(paymentdomain.ChargerConfig{})
	if err != nil {
		t.Fatalf("new charger: %v", err)
	}

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		charge, err := charger.Charge(context.Background(), paymentdomain.ChargeRequest{UserID: 1, Amount: money.MustParse("10")})
		if err != nil {
			t.Fatalf("charge: %v", err)
		}
		if !strings.HasPrefix(charge.Reference, "pay_") {
			t.Fatalf("unexpected reference %q", charge.Reference)
		}
		if seen[charge.Reference] {
			t.Fatalf("duplicate reference %q", charge.Reference)
		}
		seen[charge.Reference] = true
	}
}

func TestChargeRespectsMaxCharge(t *testing.T) {
	charger, err := NewFactory().NewCharger(paymentdomain.ChargerConfig{MaxCharge: money.MustParse("100")})
	if err != nil {
		t.Fatalf("new charger: %v", err)
	}

	if _, err := charger.Charge(context.Background(), paymentdomain.ChargeRequest{Amount: money.MustParse("100.000001")}); !errors.Is(err, paymentdomain.ErrChargeDeclined) {
		t.Fatalf("expected ErrChargeDeclined, got %v", err)
	}
	if _, err := charger.Charge(context.Background(), paymentdomain.ChargeRequest{Amount: money.MustParse("100")}); err != nil {
		t.Fatalf("expected charge at the limit to pass, got %v", err)
	}
}

func TestNewChargerRejectsNegativeLimit(t *testing.T) {
	if _, err := NewFactory().NewCharger(paymentdomain.ChargerConfig{MaxCharge: -1}); !errors.Is(err, paymentdomain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
