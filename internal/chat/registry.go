package chat

import (
	"log/slog"
	"sync"
)

// Registry хранит подключённых клиентов чата.
// Thread-safe for concurrent access.
type Registry struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		clients: make(map[uint64]*Client),
	}
}

// Register добавляет клиента.
func (r *Registry) Register(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.id] = c
}

// Unregister удаляет клиента. Отсутствующий клиент игнорируется.
func (r *Registry) Unregister(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, c.id)
}

// Count возвращает число зарегистрированных клиентов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ForEach обходит клиентов. Если fn возвращает false, обход прекращается.
func (r *Registry) ForEach(fn func(*Client) bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.clients {
		if !fn(c) {
			return
		}
	}
}

// Broadcast отправляет msg всем клиентам. Ошибка отправки одному клиенту
// логируется и не мешает остальным. Возвращает число успешных отправок.
func (r *Registry) Broadcast(msg string) int {
	var sent int
	r.ForEach(func(c *Client) bool {
		if err := c.Send(msg); err != nil {
			slog.Warn("error sending chat message", "client_id", c.id, "name", c.name, "err", err)
			return true
		}
		sent++
		return true
	})
	return sent
}
