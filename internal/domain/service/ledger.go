package service

import (
	"context"

	"z-genstudio-api/internal/domain/entity"
)

// CreditRefresher 权威余额查询
type CreditRefresher interface {
	Refresh(ctx context.Context, walletID string) (int, error)
}

// UsagePublisher 生成结算事件发布
type UsagePublisher interface {
	PublishSettled(ctx context.Context, event *entity.GenerationUsageEvent) error
}
