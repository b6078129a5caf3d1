// Package events fans project change events out to live subscribers.
package events

import (
	"sync"

	"go.uber.org/zap"

	"stelgent-web/internal/domain/models"
	"stelgent-web/pkg/logger"
)

// DefaultBuffer 是每个订阅者的默认缓冲大小
const DefaultBuffer = 16

// Hub 按项目维护订阅者。Publish 从不阻塞：缓冲已满的订阅者会被移除并关闭。
type Hub struct {
	mu     sync.Mutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	closed bool
}

// Subscription 是一个项目的事件订阅，C 在订阅结束时关闭
type Subscription struct {
	C <-chan models.ProjectEvent

	ch        chan models.ProjectEvent
	projectID string
	hub       *Hub
}

// NewHub 创建事件中心，buffer <= 0 时使用 DefaultBuffer
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe 订阅项目事件。Hub 已关闭时返回的订阅立即结束。
func (h *Hub) Subscribe(projectID string) *Subscription {
	ch := make(chan models.ProjectEvent, h.buffer)
	sub := &Subscription{C: ch, ch: ch, projectID: projectID, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return sub
	}
	if h.subs[projectID] == nil {
		h.subs[projectID] = make(map[*Subscription]struct{})
	}
	h.subs[projectID][sub] = struct{}{}
	return sub
}

// Close 取消订阅，可重复调用
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.removeLocked(s)
}

// removeLocked 移除并关闭订阅；调用方持有 mu
func (h *Hub) removeLocked(s *Subscription) {
	set, ok := h.subs[s.projectID]
	if !ok {
		return
	}
	if _, ok := set[s]; !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.projectID)
	}
	close(s.ch)
}

// Publish 把事件投递给项目的全部订阅者
func (h *Hub) Publish(ev models.ProjectEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[ev.ProjectID] {
		select {
		case sub.ch <- ev:
		default:
			logger.Warn("订阅者处理过慢，已断开",
				zap.String("project_id", ev.ProjectID),
				zap.String("event", string(ev.Type)))
			h.removeLocked(sub)
		}
	}
}

// Subscribers 返回项目当前的订阅者数量
func (h *Hub) Subscribers(projectID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[projectID])
}

// Close 结束全部订阅，之后的 Subscribe 立即结束
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, set := range h.subs {
		for sub := range set {
			h.removeLocked(sub)
		}
	}
	h.closed = true
}
