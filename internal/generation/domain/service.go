package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/logoforge/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateRequest struct {
	ID               snowflake.ID
	OwnerUserID      string
	IsFreeGeneration bool
	PreviewAssetID   string
	HighResAssetID   string
	Prompt           string
}

type ListResponse struct {
	pagination.PageInfo
	Generations []Generation `json:"generations"`
}

type Service interface {
	// Create inserts the record inside tx. The caller owns the transaction.
	Create(ctx context.Context, tx *gorm.DB, req CreateRequest) (*Generation, error)
	Get(ctx context.Context, userID string, id string) (*Generation, error)
	List(ctx context.Context, userID string, page pagination.Pagination) (ListResponse, error)
	// MarkHighResPurchased unlocks the high-res asset. Unknown ids return ErrNotFound.
	MarkHighResPurchased(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*Generation, error)
}

var (
	ErrInvalidID     = errors.New("invalid_generation_id")
	ErrInvalidAsset  = errors.New("invalid_asset_id")
	ErrNotFound      = errors.New("generation_not_found")
	ErrAlreadyExists = errors.New("generation_already_exists")
)
