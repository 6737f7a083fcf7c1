package repository

import (
	"context"

	"z-genstudio-api/internal/domain/entity"
)

// WalletRepository 积分钱包仓储
type WalletRepository interface {
	// GetByID 不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.Wallet, error)
	Create(ctx context.Context, wallet *entity.Wallet) error
}
