package services

import (
	"sync"

	"github.com/betbot/vaultgate/internal/domain"
)

// Hub 状态快照的广播中心。订阅者消费慢时丢弃旧快照，不阻塞广播方。
type Hub struct {
	mu   sync.Mutex
	subs map[int]chan *domain.Status
	next int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int]chan *domain.Status)}
}

// Subscribe 返回快照通道与取消函数
func (h *Hub) Subscribe() (<-chan *domain.Status, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	ch := make(chan *domain.Status, 1)
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			close(ch)
		})
	}
}

// Broadcast 非阻塞推送
func (h *Hub) Broadcast(st *domain.Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs {
		select {
		case ch <- st:
		default:
			// 丢弃积压的旧快照，换成最新的
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
}

// Len 当前订阅者数量
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
