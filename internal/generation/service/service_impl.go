package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/logoforge/internal/auth"
	"github.com/smallbiznis/logoforge/internal/clock"
	"github.com/smallbiznis/logoforge/internal/generation/domain"
	"github.com/smallbiznis/logoforge/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("generation.service"),
		genID: p.GenID,
		clock: clk,
		repo:  p.Repo,
	}
}

func (s *Service) Create(ctx context.Context, tx *gorm.DB, req domain.CreateRequest) (*domain.Generation, error) {
	if tx == nil {
		tx = s.db
	}
	owner := strings.TrimSpace(req.OwnerUserID)
	if owner == "" {
		return nil, auth.ErrUnauthenticated
	}
	if strings.TrimSpace(req.PreviewAssetID) == "" || strings.TrimSpace(req.HighResAssetID) == "" {
		return nil, domain.ErrInvalidAsset
	}

	id := req.ID
	if id == 0 {
		id = s.genID.Generate()
	}
	item := &domain.Generation{
		ID:               id,
		OwnerUserID:      owner,
		IsFreeGeneration: req.IsFreeGeneration,
		PreviewAssetID:   req.PreviewAssetID,
		HighResAssetID:   req.HighResAssetID,
		PromptDetails:    domain.NewPromptDetails(req.Prompt),
		CreatedAt:        s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, tx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// Get returns a generation owned by userID. Other owners' generations are
// reported as not found.
func (s *Service) Get(ctx context.Context, userID string, id string) (*domain.Generation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, auth.ErrUnauthenticated
	}
	genID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil || genID <= 0 {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, s.db, genID)
	if err != nil {
		return nil, err
	}
	if item == nil || item.OwnerUserID != userID {
		return nil, domain.ErrNotFound
	}
	return item, nil
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
			return domain.ListResponse{}, domain.ErrInvalidID
		}
		before, err = snowflake.ParseString(cursor.ID)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidID
		}
	}

	limit := page.Limit()
	items, err := s.repo.ListByUser(ctx, s.db, userID, before, limit+1)
	if err != nil {
		return domain.ListResponse{}, err
	}

	items, pageInfo := pagination.BuildCursorPage(items, limit, func(g *domain.Generation) pagination.Cursor {
		return pagination.Cursor{ID: g.ID.String()}
	})

	out := make([]domain.Generation, 0, len(items))
	for _, item := range items {
		out = append(out, *item)
	}
	return domain.ListResponse{PageInfo: pageInfo, Generations: out}, nil
}

func (s *Service) MarkHighResPurchased(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Generation, error) {
	if tx == nil {
		tx = s.db
	}
	if id <= 0 {
		return nil, domain.ErrInvalidID
	}

	item, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, domain.ErrNotFound
	}

	changed, err := s.repo.MarkHighResPurchased(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("unlocked high-res asset",
			zap.String("generation_id", id.String()),
			zap.String("user_id", item.OwnerUserID),
		)
	}
	item.IsHighResPurchased = true
	return item, nil
}
