package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type GrantResult struct {
	UserID    string `json:"user_id"`
	Mode      string `json:"grant_mode"`
	PackSize  int    `json:"pack_size"`
	Purchased int    `json:"purchased_generations_left"`
}

type Service interface {
	GetEntitlement(ctx context.Context, userID string) (Balance, error)
	Ensure(ctx context.Context, db *gorm.DB, userID string) (*Entitlement, error)
	// Debit takes one unit, free before purchased, inside the caller's transaction.
	Debit(ctx context.Context, tx *gorm.DB, userID string) (CreditKind, error)
	// GrantPack applies the configured pack to the user inside tx (or the
	// service DB when tx is nil).
	GrantPack(ctx context.Context, tx *gorm.DB, userID string) (GrantResult, error)
	ResetFreeAllotments(ctx context.Context) (int64, error)
}

var (
	ErrOutOfCredits  = errors.New("out_of_credits")
	ErrNotFound      = errors.New("entitlement_not_found")
	ErrInvalidPolicy = errors.New("invalid_credits_policy")
)
