package domain

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	entitlementdomain "github.com/smallbiznis/logoforge/internal/entitlement/domain"
)

const MaxPromptLength = 256

var promptPattern = regexp.MustCompile(`^[a-zA-Z0-9,;.!\s]+$`)

// Grant is a successful consumption of one generation unit.
type Grant struct {
	CreditKind     entitlementdomain.CreditKind `json:"credit_kind"`
	UsedFreeCredit bool                         `json:"used_free_credit"`
}

type GenerateRequest struct {
	UserID string
	Prompt string
}

type GenerateResult struct {
	GenerationID   string `json:"generation_id"`
	PreviewURL     string `json:"preview_url,omitempty"`
	DownloadURL    string `json:"download_url"`
	UsedFreeCredit bool   `json:"used_free_credit"`
}

type Service interface {
	// TryConsume debits one unit, free before purchased, or fails with
	// ErrOutOfCredits without touching the balance.
	TryConsume(ctx context.Context, userID string) (Grant, error)
	// Generate produces and stores a logo, then debits and records it atomically.
	Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error)
}

var (
	ErrInvalidPrompt             = errors.New("invalid_prompt")
	ErrUpstreamGenerationFailure = errors.New("upstream_generation_failure")
	ErrAssetPersistenceFailure   = errors.New("asset_persistence_failure")
)

// ValidatePrompt accepts 1 to 256 characters of letters, digits, whitespace and ,;.!
func ValidatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return ErrInvalidPrompt
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return ErrInvalidPrompt
	}
	if !promptPattern.MatchString(prompt) {
		return ErrInvalidPrompt
	}
	return nil
}
