// Package wallet 提供积分钱包的权威余额查询
package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"z-genstudio-api/internal/domain/repository"
	"z-genstudio-api/internal/domain/service"
	"z-genstudio-api/pkg/logger"
)

// ErrWalletNotFound 钱包不存在
var ErrWalletNotFound = errors.New("wallet not found")

// BalanceCache 余额缓存，由 redis.Cache 实现
type BalanceCache interface {
	GetOrLoad(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (any, error)) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Service 钱包服务；Refresh 始终读库，Bootstrap 走缓存
type Service struct {
	repo  repository.WalletRepository
	cache BalanceCache
	ttl   time.Duration
}

var _ service.CreditRefresher = (*Service)(nil)

// NewService cache 可以为空
func NewService(repo repository.WalletRepository, cache BalanceCache, ttl time.Duration) *Service {
	return &Service{repo: repo, cache: cache, ttl: ttl}
}

func balanceKey(walletID string) string {
	return "wallet:balance:" + walletID
}

// Refresh 读取权威余额并回填缓存
func (s *Service) Refresh(ctx context.Context, walletID string) (int, error) {
	balance, err := s.load(ctx, walletID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, balanceKey(walletID), balance, s.ttl); err != nil {
			logger.Warn(ctx, "failed to refresh wallet balance cache", "wallet_id", walletID, "error", err.Error())
		}
	}
	return balance, nil
}

// Bootstrap 会话创建时的初始余额，允许短暂陈旧
func (s *Service) Bootstrap(ctx context.Context, walletID string) (int, error) {
	if s.cache == nil {
		return s.load(ctx, walletID)
	}
	raw, err := s.cache.GetOrLoad(ctx, balanceKey(walletID), s.ttl, func(ctx context.Context) (any, error) {
		return s.load(ctx, walletID)
	})
	if err != nil {
		return 0, err
	}
	var balance int
	if err := json.Unmarshal(raw, &balance); err != nil {
		return s.load(ctx, walletID)
	}
	return balance, nil
}

func (s *Service) load(ctx context.Context, walletID string) (int, error) {
	w, err := s.repo.GetByID(ctx, walletID)
	if err != nil {
		return 0, fmt.Errorf("failed to load wallet %s: %w", walletID, err)
	}
	if w == nil {
		return 0, fmt.Errorf("%w: %s", ErrWalletNotFound, walletID)
	}
	return max(w.Balance, 0), nil
}
