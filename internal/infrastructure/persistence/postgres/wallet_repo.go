// Package postgres 提供 PostgreSQL Repository 实现
package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/repository"
)

// WalletRepository 钱包仓储实现
type WalletRepository struct {
	client *Client
}

var _ repository.WalletRepository = (*WalletRepository)(nil)

// NewWalletRepository 创建钱包仓储
func NewWalletRepository(client *Client) *WalletRepository {
	return &WalletRepository{client: client}
}

// GetByID 根据 ID 获取钱包
func (r *WalletRepository) GetByID(ctx context.Context, id string) (*entity.Wallet, error) {
	ctx, span := tracer.Start(ctx, "postgres.WalletRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var wallet entity.Wallet
	if err := db.First(&wallet, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}
	return &wallet, nil
}

// Create 创建钱包
func (r *WalletRepository) Create(ctx context.Context, wallet *entity.Wallet) error {
	ctx, span := tracer.Start(ctx, "postgres.WalletRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(wallet).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}
