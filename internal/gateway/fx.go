package gateway

import (
	"github.com/smallbiznis/tollgate/internal/gateway/service"
	"go.uber.org/fx"
)

var Module = fx.Module("gateway.service",
	fx.Provide(service.New),
)
