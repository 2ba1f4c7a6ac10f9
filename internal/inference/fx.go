package inference

import "go.uber.org/fx"

var Module = fx.Module("inference",
	fx.Provide(fx.Annotate(NewClient, fx.As(new(Generator)))),
)
