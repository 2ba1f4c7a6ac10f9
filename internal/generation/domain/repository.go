package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, generation *Generation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Generation, error)
	// ListByUser returns up to limit rows newest first, strictly older than beforeID when set.
	ListByUser(ctx context.Context, db *gorm.DB, userID string, beforeID snowflake.ID, limit int) ([]*Generation, error)
	// MarkHighResPurchased flips the flag if not yet set and reports whether it changed.
	MarkHighResPurchased(ctx context.Context, db *gorm.DB, id snowflake.ID) (bool, error)
}
