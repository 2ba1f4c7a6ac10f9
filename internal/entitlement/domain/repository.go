package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	// Ensure inserts the row unless one already exists. Returns true when inserted.
	Ensure(ctx context.Context, db *gorm.DB, entitlement *Entitlement) (bool, error)
	Find(ctx context.Context, db *gorm.DB, userID string) (*Entitlement, error)
	// DebitFree and DebitPurchased decrement one unit only when the counter is
	// positive. They report whether a unit was taken.
	DebitFree(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error)
	DebitPurchased(ctx context.Context, db *gorm.DB, userID string, now time.Time) (bool, error)
	SetPurchased(ctx context.Context, db *gorm.DB, userID string, amount int, now time.Time) error
	AddPurchased(ctx context.Context, db *gorm.DB, userID string, amount int, now time.Time) error
	ResetFree(ctx context.Context, db *gorm.DB, limit int, resetBefore time.Time, now time.Time) (int64, error)
}
