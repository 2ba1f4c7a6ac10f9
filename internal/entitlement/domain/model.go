package domain

import "time"

// Entitlement holds the generation allowance of one user. Both counters are
// only ever changed by conditional statements that keep them at or above zero.
type Entitlement struct {
	UserID                   string    `gorm:"primaryKey;type:text" json:"user_id"`
	FreeGenerationsLeft      int       `gorm:"not null;default:0" json:"free_generations_left"`
	PurchasedGenerationsLeft int       `gorm:"not null;default:0" json:"purchased_generations_left"`
	LastFreeReset            time.Time `gorm:"not null;index" json:"last_free_reset"`
	CreatedAt                time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt                time.Time `gorm:"not null" json:"updated_at"`
}

func (Entitlement) TableName() string { return "user_entitlements" }

// Total is the spendable allowance, never negative.
func (e Entitlement) Total() int {
	total := e.FreeGenerationsLeft + e.PurchasedGenerationsLeft
	if total < 0 {
		return 0
	}
	return total
}

type CreditKind string

const (
	CreditKindFree      CreditKind = "free"
	CreditKindPurchased CreditKind = "purchased"
)

// Balance is the read model returned to clients.
type Balance struct {
	UserID        string    `json:"user_id"`
	Free          int       `json:"free_generations_left"`
	Purchased     int       `json:"purchased_generations_left"`
	Total         int       `json:"total_generations_left"`
	LastFreeReset time.Time `json:"last_free_reset"`
	DailyLimit    int       `json:"free_daily_limit"`
}
