package broadcast

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cwrk-planet/roomcast/internal/domain"
	"github.com/cwrk-planet/roomcast/pkg/logger"
)

type recipient struct {
	id   string
	sink Sink
}

// Batch — одно событие и заранее вычисленный список получателей.
type Batch struct {
	Event      domain.Event
	recipients []recipient
}

// Recipients возвращает id получателей в порядке доставки.
func (b Batch) Recipients() []string {
	ids := make([]string, 0, len(b.recipients))
	for _, r := range b.recipients {
		ids = append(ids, r.id)
	}
	return ids
}

func (b Batch) Empty() bool { return len(b.recipients) == 0 }

type Dispatcher struct {
	sinks *Sinks
	log   *slog.Logger
}

func NewDispatcher(sinks *Sinks, log *slog.Logger) *Dispatcher {
	return &Dispatcher{sinks: sinks, log: logger.Component(log, "dispatcher")}
}

func (d *Dispatcher) Sinks() *Sinks { return d.sinks }

// Prepare фиксирует получателей события: все members, кроме exclude.
// Вызывается под блокировкой координатора, сам ничего не отправляет.
func (d *Dispatcher) Prepare(members []string, ev domain.Event, exclude string) Batch {
	b := Batch{Event: ev, recipients: make([]recipient, 0, len(members))}
	for _, id := range members {
		if exclude != "" && id == exclude {
			continue
		}
		sink, ok := d.sinks.Get(id)
		if !ok {
			d.log.Debug("no sink for member", slog.String("sid", id), slog.String("event", ev.Type))
			continue
		}
		b.recipients = append(b.recipients, recipient{id: id, sink: sink})
	}
	return b
}

// Direct готовит событие для одного соединения.
func (d *Dispatcher) Direct(id string, ev domain.Event) Batch {
	return d.Prepare([]string{id}, ev, "")
}

// Deliver доставляет подготовленные пачки. Ошибки доставки логируются и
// проглатываются: без ретраев и без сохранения недоставленного.
func (d *Dispatcher) Deliver(ctx context.Context, batches ...Batch) {
	for _, b := range batches {
		for _, r := range b.recipients {
			if err := r.sink.Send(b.Event); err != nil {
				level := slog.LevelWarn
				if errors.Is(err, ErrSinkClosed) {
					level = slog.LevelDebug
				}
				d.log.Log(ctx, level, "delivery failed",
					slog.String("sid", r.id),
					slog.String("event", b.Event.Type),
					slog.Any("err", err))
			}
		}
	}
}

