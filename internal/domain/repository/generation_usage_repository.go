package repository

import (
	"context"

	"z-genstudio-api/internal/domain/entity"
)

// GenerationUsageRepository 生成结算事件仓储
type GenerationUsageRepository interface {
	// Create 按 MessageID 幂等，重复投递返回 nil
	Create(ctx context.Context, event *entity.GenerationUsageEvent) error
	ListByWallet(ctx context.Context, walletID string, pagination Pagination) (*PagedResult[*entity.GenerationUsageEvent], error)
}
