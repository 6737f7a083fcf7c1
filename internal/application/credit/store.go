// Package credit 维护本地展示的积分余额并与权威账本对账
package credit

import (
	"sync"
)

// Store 单值余额单元，对外只读
// 写入只能经由同包的 LedgerSync，数值始终不小于 0
type Store struct {
	mu      sync.RWMutex
	value   int
	nextID  int
	subs    map[int]func(int)
	subsMux sync.Mutex
}

// NewStore 创建余额单元
func NewStore(initial int) *Store {
	return &Store{
		value: floor(initial),
		subs:  make(map[int]func(int)),
	}
}

// Value 当前余额
func (s *Store) Value() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

// Subscribe 注册余额变更回调，返回取消函数
// 回调在写入方的 goroutine 中同步执行，不持有 Store 的锁
func (s *Store) Subscribe(fn func(int)) func() {
	s.subsMux.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subsMux.Unlock()

	return func() {
		s.subsMux.Lock()
		delete(s.subs, id)
		s.subsMux.Unlock()
	}
}

// update 在锁内基于当前值计算新值
func (s *Store) update(fn func(cur int) int) (before, after int) {
	s.mu.Lock()
	before = s.value
	s.value = floor(fn(before))
	after = s.value
	s.mu.Unlock()

	if before != after {
		s.notify(after)
	}
	return before, after
}

func (s *Store) set(v int) (before, after int) {
	return s.update(func(int) int { return v })
}

func (s *Store) notify(v int) {
	s.subsMux.Lock()
	fns := make([]func(int), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subsMux.Unlock()

	for _, fn := range fns {
		fn(v)
	}
}

func floor(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
