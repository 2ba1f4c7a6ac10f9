package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/logoforge/internal/clock"
	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
	generationdomain "github.com/smallbiznis/logoforge/internal/generation/domain"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/logoforge/internal/payment/domain"
	transactiondomain "github.com/smallbiznis/logoforge/internal/transaction/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	GenID          *snowflake.Node
	Clock          clock.Clock
	Repo           paymentdomain.Repository
	EntitlementSvc entitlementdomain.Service
	GenerationSvc  generationdomain.Service
	TransactionSvc transactiondomain.Service
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	genID          *snowflake.Node
	clock          clock.Clock
	repo           paymentdomain.Repository
	entitlementSvc entitlementdomain.Service
	generationSvc  generationdomain.Service
	transactionSvc transactiondomain.Service
	obsMetrics     *obsmetrics.Metrics
}

func NewService(p Params) paymentdomain.EventProcessor {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("payment.service"),
		genID:          p.GenID,
		clock:          clk,
		repo:           p.Repo,
		entitlementSvc: p.EntitlementSvc,
		generationSvc:  p.GenerationSvc,
		transactionSvc: p.TransactionSvc,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Service) ProcessEvent(ctx context.Context, event *paymentdomain.OrderEvent) (paymentdomain.Outcome, error) {
	if err := validateEvent(event); err != nil {
		return "", err
	}
	log := s.log.With(
		zap.String("provider", event.Provider),
		zap.String("provider_event_id", event.ProviderEventID),
		zap.String("event_name", event.EventName),
	)

	switch event.EventName {
	case paymentdomain.EventOrderRefunded, paymentdomain.EventOrderFailed:
		log.Warn("order event received, no handler", zap.String("order_kind", string(event.Kind)))
		s.recordOutcome(ctx, event, paymentdomain.OutcomeNoop)
		return paymentdomain.OutcomeNoop, nil
	case paymentdomain.EventOrderCreated:
	default:
		return "", paymentdomain.ErrInvalidEvent
	}

	payload := event.RawPayload
	if !json.Valid(payload) {
		payload = []byte("{}")
	}
	received := paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ProviderEventID,
		EventName:       event.EventName,
		UserID:          event.UserID,
		Payload:         datatypes.JSON(payload),
		ReceivedAt:      s.clock.Now(),
	}

	inserted, err := s.repo.InsertEvent(ctx, s.db, &received)
	if err != nil {
		return "", err
	}
	stored := &received
	if !inserted {
		stored, err = s.repo.FindEvent(ctx, s.db, event.Provider, event.ProviderEventID)
		if err != nil {
			return "", err
		}
		if stored == nil {
			return "", paymentdomain.ErrInvalidEvent
		}
		if stored.ProcessedAt != nil {
			log.Info("order event already processed")
			s.recordOutcome(ctx, event, paymentdomain.OutcomeReplayed)
			return paymentdomain.OutcomeReplayed, nil
		}
	}

	outcome := paymentdomain.OutcomeApplied
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		claimed, err := s.repo.MarkProcessed(ctx, tx, stored.ID, s.clock.Now())
		if err != nil {
			return err
		}
		if !claimed {
			outcome = paymentdomain.OutcomeReplayed
			return nil
		}
		return s.dispatch(ctx, tx, stored, event)
	})
	if err != nil {
		if errors.Is(err, paymentdomain.ErrReconciliation) {
			log.Error("order event could not be reconciled", zap.Error(err))
		}
		s.recordOutcome(ctx, event, "failed")
		return "", err
	}

	log.Info("order event processed",
		zap.String("order_kind", string(event.Kind)),
		zap.String("outcome", string(outcome)),
	)
	s.recordOutcome(ctx, event, outcome)
	return outcome, nil
}

func validateEvent(event *paymentdomain.OrderEvent) error {
	if event == nil {
		return paymentdomain.ErrInvalidEvent
	}
	event.Provider = strings.ToLower(strings.TrimSpace(event.Provider))
	if event.Provider == "" {
		return paymentdomain.ErrInvalidProvider
	}
	event.ProviderEventID = strings.TrimSpace(event.ProviderEventID)
	if event.ProviderEventID == "" {
		return paymentdomain.ErrInvalidEvent
	}
	if event.EventName != paymentdomain.EventOrderCreated {
		return nil
	}
	event.UserID = strings.TrimSpace(event.UserID)
	if event.UserID == "" || event.AmountCents < 0 {
		return paymentdomain.ErrInvalidPayload
	}
	switch event.Kind {
	case paymentdomain.OrderKindHighResImage:
		if event.GenerationID <= 0 {
			return paymentdomain.ErrInvalidPayload
		}
	case paymentdomain.OrderKindGenerationPlan:
	default:
		return paymentdomain.ErrInvalidEvent
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, stored *paymentdomain.EventRecord, event *paymentdomain.OrderEvent) error {
	switch event.Kind {
	case paymentdomain.OrderKindHighResImage:
		return s.settleHighRes(ctx, tx, stored, event)
	case paymentdomain.OrderKindGenerationPlan:
		return s.settleGenerationPlan(ctx, tx, stored, event)
	default:
		return paymentdomain.ErrInvalidEvent
	}
}

func (s *Service) settleHighRes(ctx context.Context, tx *gorm.DB, stored *paymentdomain.EventRecord, event *paymentdomain.OrderEvent) error {
	generation, err := s.generationSvc.MarkHighResPurchased(ctx, tx, event.GenerationID)
	if err != nil {
		if errors.Is(err, generationdomain.ErrNotFound) {
			return fmt.Errorf("%w: generation %s not found", paymentdomain.ErrReconciliation, event.GenerationID)
		}
		return err
	}
	if generation.OwnerUserID != event.UserID {
		s.log.Warn("high-res order user does not own generation",
			zap.String("generation_id", event.GenerationID.String()),
			zap.String("order_user_id", event.UserID),
			zap.String("owner_user_id", generation.OwnerUserID),
		)
	}

	generationID := event.GenerationID
	_, err = s.transactionSvc.Record(ctx, tx, transactiondomain.RecordRequest{
		UserID:        event.UserID,
		Type:          transactiondomain.TypeHighResImage,
		AmountCents:   event.AmountCents,
		GenerationID:  &generationID,
		SourceEventID: stored.ID,
	})
	return err
}

func (s *Service) settleGenerationPlan(ctx context.Context, tx *gorm.DB, stored *paymentdomain.EventRecord, event *paymentdomain.OrderEvent) error {
	if _, err := s.transactionSvc.Record(ctx, tx, transactiondomain.RecordRequest{
		UserID:        event.UserID,
		Type:          transactiondomain.TypeGenerationPlan,
		AmountCents:   event.AmountCents,
		SourceEventID: stored.ID,
	}); err != nil {
		return err
	}

	grant, err := s.entitlementSvc.GrantPack(ctx, tx, event.UserID)
	if err != nil {
		return err
	}
	s.log.Info("granted generation pack",
		zap.String("user_id", event.UserID),
		zap.String("grant_mode", grant.Mode),
		zap.Int("purchased_generations_left", grant.Purchased),
	)
	return nil
}

func (s *Service) recordOutcome(ctx context.Context, event *paymentdomain.OrderEvent, outcome paymentdomain.Outcome) {
	s.obsMetrics.RecordPaymentEvent(ctx, event.Provider, event.EventName, string(outcome))
}
