package provider

import (
	"github.com/smallbiznis/tollgate/internal/provider/openai"
	"go.uber.org/fx"
)

var Module = fx.Module("provider",
	fx.Provide(openai.New),
)
