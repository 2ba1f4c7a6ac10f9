package consumption

import (
	"github.com/smallbiznis/logoforge/internal/consumption/service"
	"go.uber.org/fx"
)

var Module = fx.Module("consumption.service",
	fx.Provide(service.NewService),
)
