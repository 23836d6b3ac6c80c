// Package membership: единственная точка изменения пары (Registry, Room Table).
//
// Все переходы join/leave/disconnect выполняются под одной глобальной
// блокировкой. Снапшоты участников для рассылки считаются под той же
// блокировкой, а доставка идёт уже после её снятия.
package membership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/roomcast/internal/broadcast"
	"github.com/cwrk-planet/roomcast/internal/domain"
	"github.com/cwrk-planet/roomcast/internal/registry"
	"github.com/cwrk-planet/roomcast/internal/rooms"
	"github.com/cwrk-planet/roomcast/pkg/logger"
)

type Coordinator struct {
	mu       sync.Mutex
	registry *registry.Registry
	rooms    *rooms.Table
	dispatch *broadcast.Dispatcher

	now func() time.Time
	log *slog.Logger
}

type Option func(*Coordinator)

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

func New(dispatch *broadcast.Dispatcher, opts ...Option) *Coordinator {
	c := &Coordinator{
		registry: registry.New(),
		rooms:    rooms.NewTable(),
		dispatch: dispatch,
		now:      func() time.Time { return time.Now().UTC() },
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.Component(c.log, "membership")
	return c
}

// Connect регистрирует новое соединение без комнаты.
func (c *Coordinator) Connect(id string) (domain.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.registry.Register(id)
}

// Join переводит соединение в комнату room.
//
// Unjoined -> Joined(room): остальным участникам уходит user_joined.
// Joined(A) -> Joined(B): выход из A и вход в B выполняются в одной критической секции,
// снаружи соединение никогда не видно в нуле или двух комнатах.
// Joined(room) -> Joined(room): состояние не меняется, соединение получает
// текущий снапшот.
func (c *Coordinator) Join(ctx context.Context, id, room, username string) (domain.JoinResult, error) {
	name, err := domain.NormalizeRoomName(room)
	if err != nil {
		return domain.JoinResult{}, err
	}

	c.mu.Lock()
	conn, err := c.registry.Get(id)
	if err != nil {
		c.mu.Unlock()
		return domain.JoinResult{}, err
	}
	if strings.TrimSpace(username) != "" {
		if _, err := c.registry.SetDisplayName(id, username); err != nil {
			c.mu.Unlock()
			return domain.JoinResult{}, err
		}
	}

	now := c.now()
	res := domain.JoinResult{Room: name}
	var batches []broadcast.Batch

	if conn.Room == name {
		res.Participants = c.rooms.MembersOf(name)
		batches = append(batches, c.dispatch.Direct(id, joinedEvent(name, id, res.Participants, now)))
	} else {
		if conn.Joined() {
			remaining := c.rooms.Leave(conn.Room, id)
			res.PreviousRoom = conn.Room
			batches = append(batches,
				c.dispatch.Direct(id, leftEvent(conn.Room, id, now)),
				c.dispatch.Prepare(remaining, presenceEvent(domain.TagUserLeft, conn.Room, id, remaining, now), id),
			)
		}
		if err := c.registry.SetRoom(id, name); err != nil {
			// соединение только что прочитано под этой же блокировкой
			c.mu.Unlock()
			return domain.JoinResult{}, fmt.Errorf("join: %w", err)
		}
		members := c.rooms.Join(name, id)
		res.Participants = members
		res.Changed = true
		batches = append(batches,
			c.dispatch.Direct(id, joinedEvent(name, id, members, now)),
			c.dispatch.Prepare(members, presenceEvent(domain.TagUserJoined, name, id, members, now), id),
		)
	}
	c.mu.Unlock()

	c.dispatch.Deliver(ctx, batches...)

	if res.Changed {
		c.logAttrs(ctx, slog.LevelInfo, "client joined room",
			slog.String("sid", id),
			slog.String("room", name),
			slog.String("prev_room", res.PreviousRoom),
			slog.Int("participants", len(res.Participants)))
	}
	return res, nil
}

// Leave выводит соединение из текущей комнаты; аргумент room у клиента
// носит справочный характер и здесь не нужен. Без комнаты это no-op.
func (c *Coordinator) Leave(ctx context.Context, id string) (domain.LeaveResult, error) {
	c.mu.Lock()
	conn, err := c.registry.Get(id)
	if err != nil {
		c.mu.Unlock()
		return domain.LeaveResult{}, err
	}
	if !conn.Joined() {
		c.mu.Unlock()
		return domain.LeaveResult{}, nil
	}

	now := c.now()
	remaining := c.rooms.Leave(conn.Room, id)
	_ = c.registry.SetRoom(id, "")
	batches := []broadcast.Batch{
		c.dispatch.Direct(id, leftEvent(conn.Room, id, now)),
		c.dispatch.Prepare(remaining, presenceEvent(domain.TagUserLeft, conn.Room, id, remaining, now), id),
	}
	c.mu.Unlock()

	c.dispatch.Deliver(ctx, batches...)

	c.logAttrs(ctx, slog.LevelInfo, "client left room",
		slog.String("sid", id),
		slog.String("room", conn.Room),
		slog.Int("participants", len(remaining)))
	return domain.LeaveResult{Room: conn.Room, Participants: remaining}, nil
}

// SendMessage рассылает text всем участникам room, включая отправителя.
// Если отправитель не состоит в room, ничего не происходит.
func (c *Coordinator) SendMessage(ctx context.Context, id, room, text, username string) error {
	name, err := domain.NormalizeRoomName(room)
	if err != nil {
		return err
	}
	if err := domain.ValidateMessage(text); err != nil {
		return err
	}

	c.mu.Lock()
	conn, err := c.registry.Get(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if conn.Room != name {
		c.mu.Unlock()
		c.logAttrs(ctx, slog.LevelDebug, "message dropped: sender not in room",
			slog.String("sid", id), slog.String("room", name), slog.String("current_room", conn.Room))
		return nil
	}
	if strings.TrimSpace(username) != "" {
		if _, err := c.registry.SetDisplayName(id, username); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	display, err := c.registry.DisplayName(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	members := c.rooms.MembersOf(name)
	batch := c.dispatch.Prepare(members, messageEvent(name, id, display, text, c.now()), "")
	c.mu.Unlock()

	c.dispatch.Deliver(ctx, batch)

	c.logAttrs(ctx, slog.LevelDebug, "message broadcast",
		slog.String("sid", id),
		slog.String("room", name),
		slog.Int("recipients", len(members)))
	return nil
}

// Disconnect: обязательная очистка, leave (если есть комната) + unregister.
// Повторный вызов возвращает ErrUnknownConnection и ничего не меняет.
func (c *Coordinator) Disconnect(ctx context.Context, id string) error {
	c.mu.Lock()
	conn, err := c.registry.Get(id)
	if err != nil {
		c.mu.Unlock()
		return err
	}

	var (
		batches   []broadcast.Batch
		remaining []string
	)
	if conn.Joined() {
		remaining = c.rooms.Leave(conn.Room, id)
		batches = append(batches,
			c.dispatch.Prepare(remaining, presenceEvent(domain.TagUserLeft, conn.Room, id, remaining, c.now()), id))
	}
	if err := c.registry.Unregister(id); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	c.dispatch.Deliver(ctx, batches...)

	c.logAttrs(ctx, slog.LevelInfo, "client disconnected",
		slog.String("sid", id),
		slog.String("room", conn.Room),
		slog.Int("participants", len(remaining)))
	return nil
}

func (c *Coordinator) CurrentRoom(id string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.registry.Get(id)
	if err != nil {
		return "", err
	}
	return conn.Room, nil
}

func (c *Coordinator) Connection(id string) (domain.Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.registry.Get(id)
}

func (c *Coordinator) Members(room string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rooms.MembersOf(room)
}

func (c *Coordinator) Rooms() []domain.RoomSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rooms.Rooms()
}

type Stats struct {
	Connections int `json:"connections"`
	Joined      int `json:"joined"`
	Rooms       int `json:"rooms"`
}

func (c *Coordinator) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Stats{Connections: c.registry.Len(), Rooms: c.rooms.Len()}
	c.registry.Each(func(conn domain.Connection) {
		if conn.Joined() {
			st.Joined++
		}
	})
	return st
}

var ErrInvariant = errors.New("membership invariant violated")

// Verify проверяет согласованность реестра и таблицы комнат.
func (c *Coordinator) Verify() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	c.registry.Each(func(conn domain.Connection) {
		if conn.Joined() && !c.rooms.Contains(conn.Room, conn.ID) {
			errs = append(errs, fmt.Errorf("%w: %s points to %q but is not a member", ErrInvariant, conn.ID, conn.Room))
		}
	})
	c.rooms.Each(func(room, id string) {
		conn, err := c.registry.Get(id)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("%w: room %q holds unregistered %s", ErrInvariant, room, id))
		case conn.Room != room:
			errs = append(errs, fmt.Errorf("%w: %s listed in %q but points to %q", ErrInvariant, id, room, conn.Room))
		}
	})
	for _, rs := range c.rooms.Rooms() {
		if rs.Count == 0 {
			errs = append(errs, fmt.Errorf("%w: empty room %q left in table", ErrInvariant, rs.Name))
		}
	}
	return errors.Join(errs...)
}

func (c *Coordinator) logAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	attrs = append(attrs, logger.AttrsFromCtx(ctx)...)
	c.log.LogAttrs(ctx, level, msg, attrs...)
}
