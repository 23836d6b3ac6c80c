package broadcast

import (
	"errors"
	"sync"

	"github.com/cwrk-planet/roomcast/internal/domain"
)

var (
	ErrSinkClosed = errors.New("sink closed")
	ErrSinkFull   = errors.New("sink buffer full")
)

// Sink — транспорт одного соединения. Send не должен блокироваться:
// медленный клиент не может задерживать остальных.
type Sink interface {
	Send(ev domain.Event) error
}

// Sinks — connection id -> Sink. Читается без блокировки координатора.
type Sinks struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewSinks() *Sinks {
	return &Sinks{sinks: make(map[string]Sink)}
}

func (s *Sinks) Attach(id string, sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks[id] = sink
}

func (s *Sinks) Detach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sinks, id)
}

func (s *Sinks) Get(id string) (Sink, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sink, ok := s.sinks[id]
	return sink, ok
}

func (s *Sinks) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sinks)
}

// SinkFunc позволяет использовать функцию как Sink.
type SinkFunc func(ev domain.Event) error

func (f SinkFunc) Send(ev domain.Event) error { return f(ev) }
