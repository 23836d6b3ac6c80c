package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/cwrk-planet/roomcast/internal/domain"
)

// HandlerFunc обрабатывает одно входящее событие соединения id.
type HandlerFunc func(ctx context.Context, id string, payload json.RawMessage) error

// Router — таблица диспетчеризации: тег события -> обработчик.
type Router struct {
	mu     sync.RWMutex
	routes map[string]HandlerFunc
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]HandlerFunc)}
}

func (r *Router) Handle(tag string, fn HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[tag] = fn
}

func (r *Router) Remove(tag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.routes, tag)
}

func (r *Router) Tags() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]string, 0, len(r.routes))
	for tag := range r.routes {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (r *Router) Dispatch(ctx context.Context, id string, in domain.Inbound) error {
	r.mu.RLock()
	fn, ok := r.routes[in.Type]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnknownEvent, in.Type)
	}
	return fn(ctx, id, in.Payload)
}

// decode разбирает payload; отсутствующий payload эквивалентен {}.
func decode(payload json.RawMessage, dst any) error {
	if len(payload) == 0 || string(payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedPayload, err)
	}
	return nil
}
