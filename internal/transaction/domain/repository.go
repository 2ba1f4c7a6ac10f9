package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert appends the row unless one with the same source event exists.
	Insert(ctx context.Context, db *gorm.DB, tx *Transaction) (bool, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID string, beforeID snowflake.ID, limit int) ([]*Transaction, error)
}
