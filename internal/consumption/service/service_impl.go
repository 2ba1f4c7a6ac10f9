package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/config"
	"github.com/smallbiznis/logoforge/internal/consumption/domain"
	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
	generationdomain "github.com/smallbiznis/logoforge/internal/generation/domain"
	"github.com/smallbiznis/logoforge/internal/inference"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	"github.com/smallbiznis/logoforge/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	imageContentType = "image/png"
	cleanupTimeout   = 10 * time.Second
)

type Params struct {
	fx.In

	DB             *gorm.DB
	Log            *zap.Logger
	Credits        *config.CreditsConfigHolder
	EntitlementSvc entitlementdomain.Service
	GenerationSvc  generationdomain.Service
	Generator      inference.Generator
	Store          storage.ObjectStore
	ObsMetrics     *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	credits        *config.CreditsConfigHolder
	entitlementSvc entitlementdomain.Service
	generationSvc  generationdomain.Service
	generator      inference.Generator
	store          storage.ObjectStore
	obsMetrics     *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("consumption.service"),
		credits:        p.Credits,
		entitlementSvc: p.EntitlementSvc,
		generationSvc:  p.GenerationSvc,
		generator:      p.Generator,
		store:          p.Store,
		obsMetrics:     p.ObsMetrics,
	}
}

func (s *Service) TryConsume(ctx context.Context, userID string) (domain.Grant, error) {
	if userID == "" {
		return domain.Grant{}, auth.ErrUnauthenticated
	}

	var kind entitlementdomain.CreditKind
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		kind, err = s.entitlementSvc.Debit(ctx, tx, userID)
		return err
	})
	if err != nil {
		s.recordDenied(ctx, err)
		return domain.Grant{}, err
	}

	s.obsMetrics.RecordGenerationConsumed(ctx, string(kind))
	return domain.Grant{CreditKind: kind, UsedFreeCredit: kind == entitlementdomain.CreditKindFree}, nil
}

// Generate runs the paid work first and debits last: the prompt is checked,
// the balance pre-checked, the images produced and stored, and only then is a
// unit debited together with the generation insert. Any failure after upload
// removes the stored images and leaves the balance untouched.
func (s *Service) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResult, error) {
	userID := req.UserID
	if userID == "" {
		return domain.GenerateResult{}, auth.ErrUnauthenticated
	}
	if err := domain.ValidatePrompt(req.Prompt); err != nil {
		return domain.GenerateResult{}, err
	}
	log := s.log.With(zap.String("user_id", userID))

	balance, err := s.entitlementSvc.GetEntitlement(ctx, userID)
	if err != nil {
		return domain.GenerateResult{}, err
	}
	if balance.Total <= 0 {
		s.recordDenied(ctx, entitlementdomain.ErrOutOfCredits)
		return domain.GenerateResult{}, entitlementdomain.ErrOutOfCredits
	}

	images, err := s.generator.Generate(ctx, req.Prompt)
	if err != nil {
		log.Error("inference request failed", zap.Error(err))
		s.obsMetrics.RecordGenerationDenied(ctx, "upstream_failure")
		return domain.GenerateResult{}, fmt.Errorf("%w: %v", domain.ErrUpstreamGenerationFailure, err)
	}

	previewID := ulid.Make().String()
	highResID := ulid.Make().String()
	previewKey := generationdomain.AssetKey(userID, previewID)
	highResKey := generationdomain.AssetKey(userID, highResID)
	keys := []string{previewKey, highResKey}

	if err := s.persistAssets(ctx, map[string][]byte{previewKey: images.Preview, highResKey: images.HighRes}); err != nil {
		log.Error("asset persistence failed", zap.Error(err))
		s.cleanup(ctx, keys)
		s.obsMetrics.RecordGenerationDenied(ctx, "asset_persistence")
		return domain.GenerateResult{}, fmt.Errorf("%w: %v", domain.ErrAssetPersistenceFailure, err)
	}

	var (
		kind       entitlementdomain.CreditKind
		generation *generationdomain.Generation
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		kind, err = s.entitlementSvc.Debit(ctx, tx, userID)
		if err != nil {
			return err
		}
		generation, err = s.generationSvc.Create(ctx, tx, generationdomain.CreateRequest{
			OwnerUserID:      userID,
			IsFreeGeneration: kind == entitlementdomain.CreditKindFree,
			PreviewAssetID:   previewID,
			HighResAssetID:   highResID,
			Prompt:           req.Prompt,
		})
		return err
	})
	if err != nil {
		s.cleanup(ctx, keys)
		s.recordDenied(ctx, err)
		if !errors.Is(err, entitlementdomain.ErrOutOfCredits) {
			log.Error("recording generation failed", zap.Error(err))
		}
		return domain.GenerateResult{}, err
	}
	s.obsMetrics.RecordGenerationConsumed(ctx, string(kind))

	result := domain.GenerateResult{
		GenerationID:   generation.ID.String(),
		DownloadURL:    fmt.Sprintf("/api/generations/%s/download", generation.ID.String()),
		UsedFreeCredit: kind == entitlementdomain.CreditKindFree,
	}
	previewURL, err := s.store.PresignGet(ctx, previewKey, s.credits.Get().AssetURLTTL)
	if err != nil {
		log.Warn("presign preview failed", zap.String("generation_id", result.GenerationID), zap.Error(err))
	} else {
		result.PreviewURL = previewURL
	}

	log.Info("generation recorded",
		zap.String("generation_id", result.GenerationID),
		zap.String("credit_kind", string(kind)),
	)
	return result, nil
}

func (s *Service) persistAssets(ctx context.Context, objects map[string][]byte) error {
	for key, data := range objects {
		if err := s.store.Put(ctx, key, data, imageContentType); err != nil {
			return err
		}
	}
	for key := range objects {
		ok, err := s.store.Exists(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("object %s missing after upload", key)
		}
	}
	return nil
}

// cleanup removes uploaded objects even if the request context is gone.
func (s *Service) cleanup(ctx context.Context, keys []string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.log.Warn("delete orphaned asset failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (s *Service) recordDenied(ctx context.Context, err error) {
	reason := "error"
	if errors.Is(err, entitlementdomain.ErrOutOfCredits) {
		reason = "out_of_credits"
	}
	s.obsMetrics.RecordGenerationDenied(ctx, reason)
}
