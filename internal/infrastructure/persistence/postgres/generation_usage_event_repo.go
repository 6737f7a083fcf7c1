package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/repository"
)

type GenerationUsageEventRepository struct {
	client *Client
}

var _ repository.GenerationUsageRepository = (*GenerationUsageEventRepository)(nil)

func NewGenerationUsageEventRepository(client *Client) *GenerationUsageEventRepository {
	return &GenerationUsageEventRepository{client: client}
}

// Create 以 message_id 去重，Stream 重投不会产生重复记录
func (r *GenerationUsageEventRepository) Create(ctx context.Context, event *entity.GenerationUsageEvent) error {
	ctx, span := tracer.Start(ctx, "postgres.GenerationUsageEventRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoNothing: true,
	}).Create(event).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create generation usage event: %w", err)
	}
	return nil
}

func (r *GenerationUsageEventRepository) ListByWallet(ctx context.Context, walletID string, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationUsageEvent], error) {
	ctx, span := tracer.Start(ctx, "postgres.GenerationUsageEventRepository.ListByWallet")
	defer span.End()

	db := getDB(ctx, r.client.db)

	var total int64
	if err := db.Model(&entity.GenerationUsageEvent{}).Where("wallet_id = ?", walletID).Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count generation usage events: %w", err)
	}

	var events []*entity.GenerationUsageEvent
	if err := getDB(ctx, r.client.db).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&events).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list generation usage events: %w", err)
	}

	return repository.NewPagedResult(events, total, pagination), nil
}
