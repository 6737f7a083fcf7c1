package conversation

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"z-genstudio-api/internal/domain/service"
	"z-genstudio-api/pkg/metrics"
)

// ErrSessionNotFound 会话不存在或不属于当前钱包
var ErrSessionNotFound = errors.New("session not found")

// Factory 为已认证会话构造编排器
type Factory func(ctx context.Context, id string, session service.Session) (*Orchestrator, error)

// Registry 进程内会话表，按 ID 索引并校验归属
type Registry struct {
	factory Factory

	mu       sync.RWMutex
	sessions map[string]*Orchestrator
}

// NewRegistry 创建会话表
func NewRegistry(factory Factory) *Registry {
	return &Registry{
		factory:  factory,
		sessions: make(map[string]*Orchestrator),
	}
}

// Create 创建新会话
func (r *Registry) Create(ctx context.Context, session service.Session) (*Orchestrator, error) {
	if session == nil || !session.IsAuthenticated() {
		return nil, ErrUnauthenticated
	}
	o, err := r.factory(ctx, uuid.NewString(), session)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[o.ID()] = o
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	return o, nil
}

// Get 按 ID 取会话，钱包不匹配时同样视为不存在
func (r *Registry) Get(id, walletID string) (*Orchestrator, error) {
	r.mu.RLock()
	o, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || o.WalletID() != walletID {
		return nil, ErrSessionNotFound
	}
	return o, nil
}

// Delete 移除并关闭会话，等待其后台执行结束
func (r *Registry) Delete(id, walletID string) error {
	r.mu.Lock()
	o, ok := r.sessions[id]
	if !ok || o.WalletID() != walletID {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(float64(n))
	o.Close()
	return nil
}

// CloseAll 关闭全部会话，用于进程退出
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*Orchestrator, 0, len(r.sessions))
	for _, o := range r.sessions {
		all = append(all, o)
	}
	r.sessions = make(map[string]*Orchestrator)
	r.mu.Unlock()

	metrics.ActiveSessions.Set(0)
	var wg sync.WaitGroup
	for _, o := range all {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.Close()
		}()
	}
	wg.Wait()
}

// Len 当前会话数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
