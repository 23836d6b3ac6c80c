package registry

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cwrk-planet/roomcast/internal/domain"

	nanoid "github.com/jaevor/go-nanoid"
)

const (
	placeholderPrefix   = "User_"
	placeholderAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	placeholderLength   = 6
)

// Registry хранит метаданные соединений по их id.
// Синхронизации нет: все вызовы идут под блокировкой координатора.
type Registry struct {
	conns       map[string]*domain.Connection
	placeholder func() string
}

func New() *Registry {
	gen, err := nanoid.CustomASCII(placeholderAlphabet, placeholderLength)
	if err != nil {
		// алфавит и длина константные, ошибка здесь означает баг
		panic(fmt.Sprintf("registry: placeholder generator: %v", err))
	}
	return &Registry{
		conns:       make(map[string]*domain.Connection),
		placeholder: gen,
	}
}

func (r *Registry) Register(id string) (domain.Connection, error) {
	if _, ok := r.conns[id]; ok {
		return domain.Connection{}, fmt.Errorf("register %q: %w", id, domain.ErrDuplicateConnection)
	}
	c := &domain.Connection{ID: id}
	r.conns[id] = c
	return *c, nil
}

func (r *Registry) Unregister(id string) error {
	if _, ok := r.conns[id]; !ok {
		return fmt.Errorf("unregister %q: %w", id, domain.ErrUnknownConnection)
	}
	delete(r.conns, id)
	return nil
}

func (r *Registry) Get(id string) (domain.Connection, error) {
	c, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, fmt.Errorf("get %q: %w", id, domain.ErrUnknownConnection)
	}
	return *c, nil
}

// SetRoom обновляет только обратную ссылку; Room Table синхронизирует вызывающий.
func (r *Registry) SetRoom(id, room string) error {
	c, ok := r.conns[id]
	if !ok {
		return fmt.Errorf("set room %q: %w", id, domain.ErrUnknownConnection)
	}
	c.Room = room
	return nil
}

// SetDisplayName сохраняет имя после trim. Пустое имя заменяется на User_xxxxxx.
func (r *Registry) SetDisplayName(id, name string) (string, error) {
	c, ok := r.conns[id]
	if !ok {
		return "", fmt.Errorf("set display name %q: %w", id, domain.ErrUnknownConnection)
	}
	name, err := r.normalizeName(name)
	if err != nil {
		return "", err
	}
	c.DisplayName = name
	return name, nil
}

// DisplayName возвращает имя соединения, при необходимости назначая placeholder.
func (r *Registry) DisplayName(id string) (string, error) {
	c, ok := r.conns[id]
	if !ok {
		return "", fmt.Errorf("display name %q: %w", id, domain.ErrUnknownConnection)
	}
	if c.DisplayName == "" {
		c.DisplayName = r.newPlaceholder()
	}
	return c.DisplayName, nil
}

func (r *Registry) normalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return r.newPlaceholder(), nil
	}
	if utf8.RuneCountInString(trimmed) > domain.MaxDisplayNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", domain.ErrInvalidDisplayName, domain.MaxDisplayNameLength)
	}
	return trimmed, nil
}

func (r *Registry) newPlaceholder() string {
	return placeholderPrefix + r.placeholder()
}

func (r *Registry) Len() int { return len(r.conns) }

// Each обходит все соединения в произвольном порядке.
func (r *Registry) Each(fn func(domain.Connection)) {
	for _, c := range r.conns {
		fn(*c)
	}
}
