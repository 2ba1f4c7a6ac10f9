package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Type string

const (
	TypeHighResImage   Type = "high_res_image"
	TypeGenerationPlan Type = "generation_plan"
)

func (t Type) Valid() bool {
	switch t {
	case TypeHighResImage, TypeGenerationPlan:
		return true
	default:
		return false
	}
}

// Transaction is an immutable record of a completed purchase. Amounts are kept
// in cents; AmountUSD is derived on read.
type Transaction struct {
	ID            snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID        string        `gorm:"type:text;not null;index" json:"user_id"`
	Type          Type          `gorm:"type:text;not null" json:"type"`
	AmountCents   int64         `gorm:"not null" json:"amount_cents"`
	AmountUSD     float64       `gorm:"-" json:"amount_usd"`
	GenerationID  *snowflake.ID `json:"generation_id,omitempty"`
	SourceEventID snowflake.ID  `gorm:"not null;uniqueIndex" json:"-"`
	CreatedAt     time.Time     `gorm:"not null" json:"timestamp"`
}

func (Transaction) TableName() string { return "transactions" }

func CentsToUSD(cents int64) float64 {
	return float64(cents) / 100
}
