// Package conversation 编排一次对话：消息发送、动作确认、执行与余额同步
package conversation

import (
	"errors"
	"sync"

	"z-genstudio-api/internal/domain/entity"
	"z-genstudio-api/internal/domain/service"
)

// ErrTurnTerminal 终态 Turn 不可修改
var ErrTurnTerminal = errors.New("turn is terminal")

// Log 有序、只追加的对话记录，外部只拿到副本
type Log struct {
	mu    sync.RWMutex
	turns []*entity.Turn
	index map[string]int
}

// NewLog 创建对话记录
func NewLog() *Log {
	return &Log{index: make(map[string]int)}
}

// Append 追加 Turn
func (l *Log) Append(t *entity.Turn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.index[t.ID] = len(l.turns)
	l.turns = append(l.turns, t.Clone())
}

// Update 原地修改未到终态的 Turn
func (l *Log) Update(id string, fn func(t *entity.Turn)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, ok := l.index[id]
	if !ok {
		return ErrTurnNotFound
	}
	t := l.turns[i]
	if t.IsTerminal() {
		return ErrTurnTerminal
	}
	fn(t)
	return nil
}

// Get 按 ID 查找
func (l *Log) Get(id string) (*entity.Turn, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[id]
	if !ok {
		return nil, false
	}
	return l.turns[i].Clone(), true
}

// Len Turn 数量
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.turns)
}

// Snapshot 全部 Turn 的副本
func (l *Log) Snapshot() []*entity.Turn {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*entity.Turn, len(l.turns))
	for i, t := range l.turns {
		out[i] = t.Clone()
	}
	return out
}

// History 最近 limit 条可作为上下文的消息，跳过 loading、系统消息和空内容
func (l *Log) History(limit int) []service.HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []service.HistoryEntry
	for _, t := range l.turns {
		if t.IsLoading || t.Role == entity.RoleSystem || t.Content == "" {
			continue
		}
		out = append(out, service.HistoryEntry{Role: string(t.Role), Content: t.Content})
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
