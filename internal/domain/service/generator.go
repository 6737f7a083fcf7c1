package service

import (
	"context"
	"fmt"

	"z-genstudio-api/internal/domain/entity"
)

// GenerateRequest 生成请求
type GenerateRequest struct {
	WalletID string
	Params   entity.Params
}

// GenerateResult 生成服务返回的结果与服务端余额
// RemainingCredits 为 nil 表示服务端未报告余额
type GenerateResult struct {
	URLs             []string `json:"urls"`
	CreditsUsed      int      `json:"credits_used"`
	RemainingCredits *int     `json:"remaining_credits,omitempty"`
}

// Generator 单一类型的生成服务
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
}

// ProviderError 生成服务完成了调用但拒绝了请求，Message 原样展示给用户
type ProviderError struct {
	StatusCode         int
	Message            string
	InsufficientCredit bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider rejected request (%d): %s", e.StatusCode, e.Message)
	}
	return e.Message
}
