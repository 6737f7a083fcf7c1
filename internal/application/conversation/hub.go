package conversation

import (
	"sync"

	"z-genstudio-api/internal/application/attachment"
	"z-genstudio-api/internal/domain/entity"
)

// State 与渲染无关的对话状态快照
type State struct {
	Version      uint64            `json:"version"`
	Turns        []*entity.Turn    `json:"turns"`
	Balance      int               `json:"balance"`
	Attachments  []attachment.Slot `json:"attachments"`
	IsLoading    bool              `json:"is_loading"`
	IsGenerating bool              `json:"is_generating"`
}

// Hub 把状态快照分发给订阅者
// 订阅者只关心最新状态，通道满时丢弃旧快照
type Hub struct {
	mu     sync.Mutex
	subs   map[int]chan State
	nextID int
	last   uint64
	closed bool
}

// NewHub 创建分发器
func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan State)}
}

// Subscribe 订阅状态，返回只读通道和取消函数
func (h *Hub) Subscribe(buffer int) (<-chan State, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(c)
			}
		})
	}
}

// Publish 分发快照，版本不大于已发送版本的快照被丢弃
func (h *Hub) Publish(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || s.Version <= h.last {
		return
	}
	h.last = s.Version

	for _, ch := range h.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// Close 关闭全部订阅
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
}
