package checkout

import (
	"context"
	"strings"

	"github.com/smallbiznis/logoforge/internal/auth"
	generationdomain "github.com/smallbiznis/logoforge/internal/generation/domain"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log           *zap.Logger
	Client        paymentdomain.CheckoutClient
	GenerationSvc generationdomain.Service
}

type Service struct {
	log           *zap.Logger
	client        paymentdomain.CheckoutClient
	generationSvc generationdomain.Service
}

func NewService(p Params) paymentdomain.CheckoutService {
	return &Service{
		log:           p.Log.Named("payment.checkout"),
		client:        p.Client,
		generationSvc: p.GenerationSvc,
	}
}

// CreateCheckout opens a hosted checkout tagged with the caller and, for
// high-res purchases, the generation being unlocked.
func (s *Service) CreateCheckout(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return paymentdomain.CheckoutResult{}, auth.ErrUnauthenticated
	}
	req.VariantID = strings.TrimSpace(req.VariantID)
	if req.VariantID == "" {
		return paymentdomain.CheckoutResult{}, paymentdomain.ErrInvalidVariant
	}

	req.GenerationID = strings.TrimSpace(req.GenerationID)
	if req.GenerationID != "" {
		generation, err := s.generationSvc.Get(ctx, req.UserID, req.GenerationID)
		if err != nil {
			return paymentdomain.CheckoutResult{}, err
		}
		req.GenerationID = generation.ID.String()
	}

	url, err := s.client.CreateCheckout(ctx, req)
	if err != nil {
		s.log.Error("create checkout failed",
			zap.String("user_id", req.UserID),
			zap.String("variant_id", req.VariantID),
			zap.Error(err),
		)
		return paymentdomain.CheckoutResult{}, err
	}
	return paymentdomain.CheckoutResult{CheckoutURL: url}, nil
}
