package payment

import (
	"github.com/smallbiznis/tollgate/internal/payment/adapters"
	"github.com/smallbiznis/tollgate/internal/payment/adapters/manual"
	paymentservice "github.com/smallbiznis/tollgate/internal/payment/service"
	"go.uber.org/fx"
)

var Module = fx.Module("payment.service",
	fx.Provide(func() *adapters.Registry {
		return adapters.NewRegistry(
			manual.NewFactory(),
		)
	}),
	fx.Provide(paymentservice.NewService),
)
