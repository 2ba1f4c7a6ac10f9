package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/clock"
	"github.com/smallbiznis/logoforge/internal/config"
	"github.com/smallbiznis/logoforge/internal/entitlement/domain"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Credits    *config.CreditsConfigHolder
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	credits    *config.CreditsConfigHolder
	repo       domain.Repository
	obsMetrics *obsmetrics.Metrics
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("entitlement.service"),
		clock:      clk,
		credits:    p.Credits,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetEntitlement(ctx context.Context, userID string) (domain.Balance, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Balance{}, auth.ErrUnauthenticated
	}

	item, err := s.Ensure(ctx, s.db, userID)
	if err != nil {
		return domain.Balance{}, err
	}

	return domain.Balance{
		UserID:        item.UserID,
		Free:          item.FreeGenerationsLeft,
		Purchased:     item.PurchasedGenerationsLeft,
		Total:         item.Total(),
		LastFreeReset: item.LastFreeReset,
		DailyLimit:    s.credits.Get().FreeDailyLimit,
	}, nil
}

// Ensure provisions a first-time user with the daily free allotment and
// returns the current row.
func (s *Service) Ensure(ctx context.Context, db *gorm.DB, userID string) (*domain.Entitlement, error) {
	if db == nil {
		db = s.db
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, auth.ErrUnauthenticated
	}

	now := s.clock.Now()
	inserted, err := s.repo.Ensure(ctx, db, &domain.Entitlement{
		UserID:              userID,
		FreeGenerationsLeft: s.credits.Get().FreeDailyLimit,
		LastFreeReset:       now,
		CreatedAt:           now,
		UpdatedAt:           now,
	})
	if err != nil {
		return nil, err
	}
	if inserted {
		s.log.Info("provisioned entitlement", zap.String("user_id", userID))
	}

	item, err := s.repo.Find(ctx, db, userID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}
	return item, nil
}

func (s *Service) Debit(ctx context.Context, tx *gorm.DB, userID string) (domain.CreditKind, error) {
	if tx == nil {
		tx = s.db
	}
	if _, err := s.Ensure(ctx, tx, userID); err != nil {
		return "", err
	}

	now := s.clock.Now()
	ok, err := s.repo.DebitFree(ctx, tx, userID, now)
	if err != nil {
		return "", err
	}
	if ok {
		return domain.CreditKindFree, nil
	}

	ok, err = s.repo.DebitPurchased(ctx, tx, userID, now)
	if err != nil {
		return "", err
	}
	if ok {
		return domain.CreditKindPurchased, nil
	}
	return "", domain.ErrOutOfCredits
}

func (s *Service) GrantPack(ctx context.Context, tx *gorm.DB, userID string) (domain.GrantResult, error) {
	if tx == nil {
		tx = s.db
	}
	policy := s.credits.Get()
	if policy.PackSize <= 0 {
		return domain.GrantResult{}, domain.ErrInvalidPolicy
	}

	if _, err := s.Ensure(ctx, tx, userID); err != nil {
		return domain.GrantResult{}, err
	}

	now := s.clock.Now()
	switch policy.GrantMode {
	case config.GrantModeSet:
		if err := s.repo.SetPurchased(ctx, tx, userID, policy.PackSize, now); err != nil {
			return domain.GrantResult{}, err
		}
	case config.GrantModeAdd:
		if err := s.repo.AddPurchased(ctx, tx, userID, policy.PackSize, now); err != nil {
			return domain.GrantResult{}, err
		}
	default:
		return domain.GrantResult{}, domain.ErrInvalidPolicy
	}

	item, err := s.repo.Find(ctx, tx, userID)
	if err != nil {
		return domain.GrantResult{}, err
	}
	if item == nil {
		return domain.GrantResult{}, domain.ErrNotFound
	}

	s.obsMetrics.RecordCreditGrant(ctx, policy.GrantMode)
	return domain.GrantResult{
		UserID:    userID,
		Mode:      policy.GrantMode,
		PackSize:  policy.PackSize,
		Purchased: item.PurchasedGenerationsLeft,
	}, nil
}

// ResetFreeAllotments restores the daily free allotment for every user whose
// last reset is at least one reset interval old.
func (s *Service) ResetFreeAllotments(ctx context.Context) (int64, error) {
	policy := s.credits.Get()
	now := s.clock.Now()
	affected, err := s.repo.ResetFree(ctx, s.db, policy.FreeDailyLimit, now.Add(-policy.FreeResetInterval), now)
	if err != nil {
		return 0, err
	}
	if affected > 0 {
		s.log.Info("reset free allotments",
			zap.Int64("users", affected),
			zap.Int("daily_limit", policy.FreeDailyLimit),
		)
	}
	return affected, nil
}
