package credit

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/singleflight"

	"z-genstudio-api/internal/domain/service"
	"z-genstudio-api/pkg/logger"
	"z-genstudio-api/pkg/metrics"
)

// ErrInsufficientCredit 余额不足以支付动作
var ErrInsufficientCredit = errors.New("insufficient credit")

// InsufficientCreditError 确认前检测到余额不足
type InsufficientCreditError struct {
	WalletID  string
	Required  int
	Available int
}

func (e InsufficientCreditError) Error() string {
	return fmt.Sprintf("insufficient credit: wallet=%s required=%d available=%d", e.WalletID, e.Required, e.Available)
}

func (e InsufficientCreditError) Is(target error) bool {
	return target == ErrInsufficientCredit
}

// LedgerSync Store 的唯一写入方
type LedgerSync struct {
	store     *Store
	refresher service.CreditRefresher
	walletID  string
	group     singleflight.Group
}

// NewLedgerSync 创建账本同步器
func NewLedgerSync(store *Store, refresher service.CreditRefresher, walletID string) *LedgerSync {
	return &LedgerSync{
		store:     store,
		refresher: refresher,
		walletID:  walletID,
	}
}

// Store 只读访问
func (l *LedgerSync) Store() *Store { return l.store }

// Balance 当前展示余额
func (l *LedgerSync) Balance() int { return l.store.Value() }

// Precheck 确认前检查余额是否足够
func (l *LedgerSync) Precheck(cost int) error {
	if available := l.store.Value(); cost > available {
		return InsufficientCreditError{WalletID: l.walletID, Required: cost, Available: available}
	}
	return nil
}

// OptimisticDecrement 基于调用时刻的余额扣减，结果不小于 0
func (l *LedgerSync) OptimisticDecrement(amount int) int {
	if amount <= 0 {
		return l.store.Value()
	}
	_, after := l.store.update(func(cur int) int { return cur - amount })
	return after
}

// ApplyAuthoritative 权威值无条件覆盖本地值
func (l *LedgerSync) ApplyAuthoritative(v int) int {
	before, after := l.store.set(v)
	observeDrift(before, after)
	return after
}

// Reconcile 拉取权威余额并覆盖；并发调用合并为一次
// 失败只记录日志，保留当前值直到下一次成功对账
func (l *LedgerSync) Reconcile(ctx context.Context) error {
	if l.refresher == nil || l.walletID == "" {
		return nil
	}

	_, err, _ := l.group.Do(l.walletID, func() (interface{}, error) {
		balance, err := l.refresher.Refresh(ctx, l.walletID)
		if err != nil {
			return nil, err
		}
		return l.ApplyAuthoritative(balance), nil
	})
	if err != nil {
		metrics.LedgerReconcileTotal.WithLabelValues("failed").Inc()
		logger.Warn(ctx, "credit reconcile failed, keeping local balance",
			"wallet_id", l.walletID,
			"balance", l.store.Value(),
			"error", err.Error(),
		)
		return err
	}
	metrics.LedgerReconcileTotal.WithLabelValues("success").Inc()
	return nil
}

func observeDrift(before, after int) {
	d := before - after
	if d < 0 {
		d = -d
	}
	metrics.LedgerDrift.Observe(float64(d))
}
