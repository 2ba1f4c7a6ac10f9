package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Generation is one produced logo. IsHighResPurchased only ever moves from
// false to true.
type Generation struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	OwnerUserID        string         `gorm:"type:text;not null;index" json:"owner_user_id"`
	IsFreeGeneration   bool           `gorm:"not null;default:false" json:"is_free_generation"`
	PreviewAssetID     string         `gorm:"type:text;not null" json:"preview_asset_id"`
	HighResAssetID     string         `gorm:"type:text;not null" json:"high_res_asset_id"`
	IsHighResPurchased bool           `gorm:"not null;default:false" json:"is_high_res_purchased"`
	PromptDetails      datatypes.JSON `gorm:"not null" json:"prompt_details"`
	CreatedAt          time.Time      `gorm:"not null" json:"created_at"`
}

func (Generation) TableName() string { return "generations" }

type promptDetails struct {
	Prompt string `json:"prompt"`
}

func NewPromptDetails(prompt string) datatypes.JSON {
	b, _ := json.Marshal(promptDetails{Prompt: prompt})
	return datatypes.JSON(b)
}

// Prompt returns the prompt text recorded with the generation.
func (g Generation) Prompt() string {
	var details promptDetails
	if err := json.Unmarshal(g.PromptDetails, &details); err != nil {
		return ""
	}
	return details.Prompt
}

// AssetKey is the object-storage key of an asset owned by userID.
func AssetKey(userID, assetID string) string {
	return fmt.Sprintf("generations/%s/%s.png", userID, assetID)
}

// DownloadAssetKey resolves the high-res key once purchased, the preview otherwise.
func (g Generation) DownloadAssetKey() string {
	if g.IsHighResPurchased {
		return AssetKey(g.OwnerUserID, g.HighResAssetID)
	}
	return AssetKey(g.OwnerUserID, g.PreviewAssetID)
}
