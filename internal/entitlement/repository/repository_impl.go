package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/logoforge/internal/entitlement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Ensure(ctx context.Context, db *gorm.DB, entitlement *domain.Entitlement) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(entitlement)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) Find(ctx context.Context, db *gorm.DB, userID string) (*domain.Entitlement, error) {
	var item domain.Entitlement
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, free_generations_left, purchased_generations_left,
			last_free_reset, created_at, updated_at
		 FROM user_entitlements
		 WHERE user_id = ?
		 LIMIT 1`,
		userID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.UserID == "" {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) DebitFree(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_entitlements
		 SET free_generations_left = free_generations_left - 1, updated_at = ?
		 WHERE user_id = ? AND free_generations_left > 0`,
		now,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) DebitPurchased(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_entitlements
		 SET purchased_generations_left = purchased_generations_left - 1, updated_at = ?
		 WHERE user_id = ? AND purchased_generations_left > 0`,
		now,
		userID,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) SetPurchased(ctx context.Context, db *gorm.DB, userID string, amount int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_entitlements
		 SET purchased_generations_left = ?, updated_at = ?
		 WHERE user_id = ?`,
		amount,
		now,
		userID,
	).Error
}

func (r *repo) AddPurchased(ctx context.Context, db *gorm.DB, userID string, amount int, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE user_entitlements
		 SET purchased_generations_left = purchased_generations_left + ?, updated_at = ?
		 WHERE user_id = ?`,
		amount,
		now,
		userID,
	).Error
}

func (r *repo) ResetFree(ctx context.Context, db *gorm.DB, limit int, resetBefore time.Time, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE user_entitlements
		 SET free_generations_left = ?, last_free_reset = ?, updated_at = ?
		 WHERE last_free_reset <= ?`,
		limit,
		now,
		now,
		resetBefore,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
