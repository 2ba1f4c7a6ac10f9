package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/clock"
	obsmetrics "github.com/smallbiznis/logoforge/internal/observability/metrics"
	"github.com/smallbiznis/logoforge/internal/transaction/domain"
	"github.com/smallbiznis/logoforge/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	clock      clock.Clock
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
		log:        p.Log.Named("transaction.service"),
		genID:      p.GenID,
		clock:      clk,
		repo:       p.Repo,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, req domain.RecordRequest) (bool, error) {
	if tx == nil {
		tx = s.db
	}
	if err := validateRecord(&req); err != nil {
		return false, err
	}

	item := &domain.Transaction{
		ID:            s.genID.Generate(),
		UserID:        req.UserID,
		Type:          req.Type,
		AmountCents:   req.AmountCents,
		GenerationID:  req.GenerationID,
		SourceEventID: req.SourceEventID,
		CreatedAt:     s.clock.Now(),
	}
	recorded, err := s.repo.Insert(ctx, tx, item)
	if err != nil {
		return false, err
	}
	if !recorded {
		s.log.Info("transaction already recorded", zap.String("source_event_id", req.SourceEventID.String()))
		return false, nil
	}

	s.obsMetrics.RecordTransaction(ctx, string(req.Type))
	return true, nil
}

func validateRecord(req *domain.RecordRequest) error {
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		return auth.ErrUnauthenticated
	}
	if !req.Type.Valid() {
		return domain.ErrInvalidType
	}
	if req.AmountCents < 0 {
		return domain.ErrInvalidAmount
	}
	if req.SourceEventID <= 0 {
		return domain.ErrInvalidSource
	}
	switch req.Type {
	case domain.TypeHighResImage:
		if req.GenerationID == nil || *req.GenerationID <= 0 {
			return domain.ErrInvalidGeneration
		}
	case domain.TypeGenerationPlan:
		if req.GenerationID != nil {
			return domain.ErrInvalidGeneration
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string, page pagination.Pagination) (domain.ListResponse, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ListResponse{}, auth.ErrUnauthenticated
	}

	var before snowflake.ID
	if token := strings.TrimSpace(page.PageToken); token != "" {
		cursor, err := pagination.DecodeCursor(token)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		before, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
	}

	limit := page.Limit()
	items, err := s.repo.ListByUser(ctx, s.db, userID, before, limit+1)
	if err != nil {
		return domain.ListResponse{}, err
	}
	items, pageInfo := pagination.BuildCursorPage(items, limit, func(t *domain.Transaction) pagination.Cursor {
		return pagination.Cursor{ID: t.ID.String()}
	})

	out := make([]domain.Transaction, 0, len(items))
	for _, item := range items {
		item.AmountUSD = domain.CentsToUSD(item.AmountCents)
		out = append(out, *item)
	}
	return domain.ListResponse{PageInfo: pageInfo, Transactions: out}, nil
}
