// Package usage 记录并查询生成结算事件
package usage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/repository"
)

// ErrInvalidEvent 事件缺少必需字段，重试也不会成功
var ErrInvalidEvent = errors.New("invalid generation usage event")

// Recorder 生成用量记录器
type Recorder struct {
	repo repository.GenerationUsageRepository
}

func NewRecorder(repo repository.GenerationUsageRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Record 持久化一条结算事件，重复的 MessageID 被忽略
func (r *Recorder) Record(ctx context.Context, evt *entity.GenerationUsageEvent) error {
	if err := validate(evt); err != nil {
		return err
	}
	evt.ID = ""
	evt.WalletID = strings.TrimSpace(evt.WalletID)
	if evt.URLs == nil {
		evt.URLs = []string{}
	}
	return r.repo.Create(ctx, evt)
}

// List 分页查询钱包的生成记录，最新在前
func (r *Recorder) List(ctx context.Context, walletID string, page, pageSize int) (*repository.PagedResult[*entity.GenerationUsageEvent], error) {
	return r.repo.ListByWallet(ctx, walletID, repository.NewPagination(page, pageSize))
}

func validate(evt *entity.GenerationUsageEvent) error {
	switch {
	case evt == nil:
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	case strings.TrimSpace(evt.MessageID) == "":
		return fmt.Errorf("%w: message_id is required", ErrInvalidEvent)
	case strings.TrimSpace(evt.WalletID) == "":
		return fmt.Errorf("%w: wallet_id is required", ErrInvalidEvent)
	case !evt.ActionType.Valid():
		return fmt.Errorf("%w: unknown action type %q", ErrInvalidEvent, evt.ActionType)
	case evt.Status != entity.GenerationUsageSucceeded && evt.Status != entity.GenerationUsageFailed:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidEvent, evt.Status)
	case evt.CreditsEstimated < 0 || evt.CreditsUsed < 0:
		return fmt.Errorf("%w: negative credits", ErrInvalidEvent)
	}
	return nil
}
