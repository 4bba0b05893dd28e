package auth

import (
	"github.com/smallbiznis/tollgate/internal/auth/repository"
	"github.com/smallbiznis/tollgate/internal/auth/service"
	"github.com/smallbiznis/tollgate/internal/auth/token"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	fx.Provide(repository.New),
	fx.Provide(token.New),
	fx.Provide(service.New),
)
