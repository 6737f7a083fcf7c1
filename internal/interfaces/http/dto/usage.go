package dto

import (
	"time"

	"z-genstudio-api/internal/domain/entity"
)

// UsageEventResponse 单次生成结算记录
type UsageEventResponse struct {
	SessionID        string    `json:"session_id"`
	TurnID           string    `json:"turn_id"`
	ActionType       string    `json:"action_type"`
	Model            string    `json:"model,omitempty"`
	Status           string    `json:"status"`
	CreditsEstimated int       `json:"credits_estimated"`
	CreditsUsed      int       `json:"credits_used"`
	RemainingCredits int       `json:"remaining_credits"`
	URLs             []string  `json:"urls"`
	Error            string    `json:"error,omitempty"`
	DurationMs       int       `json:"duration_ms"`
	CreatedAt        time.Time `json:"created_at"`
}

// NewUsageEventResponses 实体列表转响应
func NewUsageEventResponses(events []*entity.GenerationUsageEvent) []*UsageEventResponse {
	out := make([]*UsageEventResponse, 0, len(events))
	for _, e := range events {
		urls := []string(e.URLs)
		if urls == nil {
			urls = []string{}
		}
		out = append(out, &UsageEventResponse{
			SessionID:        e.SessionID,
			TurnID:           e.TurnID,
			ActionType:       e.ActionType.Short(),
			Model:            e.Model,
			Status:           string(e.Status),
			CreditsEstimated: e.CreditsEstimated,
			CreditsUsed:      e.CreditsUsed,
			RemainingCredits: e.RemainingCredits,
			URLs:             urls,
			Error:            e.Error,
			DurationMs:       e.DurationMs,
			CreatedAt:        e.CreatedAt,
		})
	}
	return out
}
