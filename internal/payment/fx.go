package payment

import (
	"github.com/smallbiznis/logoforge/internal/payment/adapters"
	"github.com/smallbiznis/logoforge/internal/payment/adapters/lemonsqueezy"
	"github.com/smallbiznis/logoforge/internal/payment/checkout"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
	"github.com/smallbiznis/logoforge/internal/payment/repository"
	paymentservice "github.com/smallbiznis/logoforge/internal/payment/service"
	"github.com/smallbiznis/logoforge/internal/payment/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(log *zap.Logger) *adapters.Registry {
		registry := adapters.NewRegistry(lemonsqueezy.NewFactory())
		log.Info("payment providers registered", zap.Strings("providers", registry.Providers()))
		return registry
	}),
	fx.Provide(fx.Annotate(lemonsqueezy.NewCheckoutClient, fx.As(new(paymentdomain.CheckoutClient)))),
	fx.Provide(paymentservice.NewService),
	fx.Provide(webhook.NewService),
	fx.Provide(checkout.NewService),
)
