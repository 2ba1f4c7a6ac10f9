package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/logoforge/internal/generation/domain"
	pkgdb "github.com/smallbiznis/logoforge/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, generation *domain.Generation) error {
	err := db.WithContext(ctx).Create(generation).Error
	if pkgdb.IsDuplicateKeyErr(err) {
		return domain.ErrAlreadyExists
	}
	return err
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Generation, error) {
	var item domain.Generation
	err := db.WithContext(ctx).Raw(
		`SELECT id, owner_user_id, is_free_generation, preview_asset_id, high_res_asset_id,
			is_high_res_purchased, prompt_details, created_at
		 FROM generations
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID string, beforeID snowflake.ID, limit int) ([]*domain.Generation, error) {
	query := db.WithContext(ctx).
		Model(&domain.Generation{}).
		Where("owner_user_id = ?", userID)
	if beforeID != 0 {
		query = query.Where("id < ?", beforeID)
	}

	var items []*domain.Generation
	if err := query.Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkHighResPurchased(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE generations
		 SET is_high_res_purchased = ?
		 WHERE id = ? AND is_high_res_purchased = ?`,
		true,
		id,
		false,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
