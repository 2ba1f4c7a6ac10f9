package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/logoforge/pkg/db/pagination"
	"gorm.io/gorm"
)

type RecordRequest struct {
	UserID        string
	Type          Type
	AmountCents   int64
	GenerationID  *snowflake.ID
	SourceEventID snowflake.ID
}

type ListResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type Service interface {
	// Record appends a transaction inside tx. A second record for the same
	// source event is a no-op and returns recorded=false.
	Record(ctx context.Context, tx *gorm.DB, req RecordRequest) (recorded bool, err error)
	List(ctx context.Context, userID string, page pagination.Pagination) (ListResponse, error)
}

var (
	ErrInvalidType       = errors.New("invalid_transaction_type")
	ErrInvalidAmount     = errors.New("invalid_transaction_amount")
	ErrInvalidGeneration = errors.New("invalid_transaction_generation")
	ErrInvalidSource     = errors.New("invalid_transaction_source")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)
