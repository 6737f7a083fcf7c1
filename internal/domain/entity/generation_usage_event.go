package entity

import (
	"time"

	"github.com/lib/pq"
)

// GenerationUsageStatus 生成结算结果
type GenerationUsageStatus string

const (
	GenerationUsageSucceeded GenerationUsageStatus = "succeeded"
	GenerationUsageFailed    GenerationUsageStatus = "failed"
)

type GenerationUsageEvent struct {
	ID               string                `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MessageID        string                `json:"message_id" gorm:"type:varchar(64);uniqueIndex;not null"`
	WalletID         string                `json:"wallet_id" gorm:"type:varchar(128);index;not null"`
	SessionID        string                `json:"session_id" gorm:"type:uuid;index;not null"`
	TurnID           string                `json:"turn_id" gorm:"type:uuid;not null"`
	ActionType       ActionType            `json:"action_type" gorm:"type:varchar(32);not null"`
	Model            string                `json:"model" gorm:"type:varchar(64)"`
	Status           GenerationUsageStatus `json:"status" gorm:"type:varchar(16);not null"`
	CreditsEstimated int                   `json:"credits_estimated" gorm:"not null;default:0"`
	CreditsUsed      int                   `json:"credits_used" gorm:"not null;default:0"`
	RemainingCredits int                   `json:"remaining_credits" gorm:"not null;default:0"`
	URLs             pq.StringArray        `json:"urls" gorm:"type:text[]"`
	Error            string                `json:"error,omitempty" gorm:"type:text"`
	DurationMs       int                   `json:"duration_ms" gorm:"not null;default:0"`
	CreatedAt        time.Time             `json:"created_at" gorm:"autoCreateTime"`
}

func (GenerationUsageEvent) TableName() string {
	return "generation_usage_events"
}
