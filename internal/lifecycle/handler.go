// Package lifecycle связывает транспорт с координатором: connect/disconnect
// соединений и маршрутизация входящих событий по тегу.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/cwrk-planet/roomcast/internal/broadcast"
	"github.com/cwrk-planet/roomcast/internal/domain"
	"github.com/cwrk-planet/roomcast/internal/membership"
	"github.com/cwrk-planet/roomcast/pkg/logger"
)

type Handler struct {
	coord    *membership.Coordinator
	dispatch *broadcast.Dispatcher
	router   *Router

	now func() time.Time
	log *slog.Logger
}

type Option func(*Handler)

func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHandler регистрирует встроенные обработчики join, leave, message, test_message.
func NewHandler(coord *membership.Coordinator, dispatch *broadcast.Dispatcher, opts ...Option) *Handler {
	h := &Handler{
		coord:    coord,
		dispatch: dispatch,
		router:   NewRouter(),
		now:      func() time.Time { return time.Now().UTC() },
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = logger.Component(h.log, "lifecycle")

	h.router.Handle(domain.TagJoin, h.onJoin)
	h.router.Handle(domain.TagLeave, h.onLeave)
	h.router.Handle(domain.TagMessage, h.onMessage)
	h.router.Handle(domain.TagTestMessage, h.onTestMessage)
	return h
}

func (h *Handler) Router() *Router { return h.router }

// Connect регистрирует соединение без комнаты и подключает его sink.
// При ошибке регистрации sink уже живого соединения с тем же id не трогается.
func (h *Handler) Connect(ctx context.Context, id string, sink broadcast.Sink) error {
	if _, err := h.coord.Connect(id); err != nil {
		return err
	}
	h.dispatch.Sinks().Attach(id, sink)

	h.dispatch.Deliver(ctx, h.dispatch.Direct(id, domain.Event{
		Type: domain.TagConnected,
		Payload: domain.ConnectedPayload{
			SID:       id,
			Message:   "Connected to server",
			Status:    "success",
			Timestamp: h.now(),
		},
	}))
	h.logAttrs(ctx, slog.LevelInfo, "client connected", slog.String("sid", id))
	return nil
}

// Disconnect безопасно вызывать сколько угодно раз: очистка выполнится однажды.
func (h *Handler) Disconnect(ctx context.Context, id string) {
	err := h.coord.Disconnect(ctx, id)
	h.dispatch.Sinks().Detach(id)

	switch {
	case err == nil:
	case errors.Is(err, domain.ErrUnknownConnection):
		h.logAttrs(ctx, slog.LevelDebug, "disconnect of unregistered client", slog.String("sid", id))
	default:
		h.logAttrs(ctx, slog.LevelError, "disconnect failed", slog.String("sid", id), slog.Any("err", err))
	}
}

// Handle маршрутизирует входящее событие. Ошибка уходит отправителю событием
// error; если клиент запросил ack, ack отправляется сразу после перехода.
func (h *Handler) Handle(ctx context.Context, id string, in domain.Inbound) error {
	err := h.router.Dispatch(ctx, id, in)

	var batches []broadcast.Batch
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, domain.ErrUnknownEvent) {
			level = slog.LevelDebug
		}
		h.logAttrs(ctx, level, "event rejected",
			slog.String("sid", id), slog.String("type", in.Type), slog.Any("err", err))
		batches = append(batches, h.dispatch.Direct(id, domain.ErrorEvent(err)))
	}
	if in.Ack != "" {
		batches = append(batches, h.dispatch.Direct(id, domain.Event{
			Type:    domain.TagAck,
			Payload: domain.AckPayload{ID: in.Ack, Error: domain.PublicMessage(err)},
		}))
	}
	h.dispatch.Deliver(ctx, batches...)
	return err
}

func (h *Handler) onJoin(ctx context.Context, id string, payload json.RawMessage) error {
	var req domain.JoinRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := h.coord.Join(ctx, id, req.Room, req.Username)
	return err
}

// Поле room в leave не используется: выходим из фактической текущей комнаты.
func (h *Handler) onLeave(ctx context.Context, id string, payload json.RawMessage) error {
	var req domain.LeaveRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	_, err := h.coord.Leave(ctx, id)
	return err
}

func (h *Handler) onMessage(ctx context.Context, id string, payload json.RawMessage) error {
	var req domain.MessageRequest
	if err := decode(payload, &req); err != nil {
		return err
	}
	return h.coord.SendMessage(ctx, id, req.Room, req.Message, req.Username)
}

func (h *Handler) onTestMessage(ctx context.Context, id string, payload json.RawMessage) error {
	h.logAttrs(ctx, slog.LevelDebug, "test message received", slog.String("sid", id))
	h.dispatch.Deliver(ctx, h.dispatch.Direct(id, domain.Event{
		Type: domain.TagTestResponse,
		Payload: domain.TestResponsePayload{
			Message:      "Test message received",
			OriginalData: payload,
			SID:          id,
			Status:       "success",
		},
	}))
	return nil
}

func (h *Handler) logAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	attrs = append(attrs, logger.AttrsFromCtx(ctx)...)
	h.log.LogAttrs(ctx, level, msg, attrs...)
}
