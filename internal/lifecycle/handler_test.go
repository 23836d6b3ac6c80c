package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cwrk-planet/roomcast/internal/broadcast"
	"github.com/cwrk-planet/roomcast/internal/domain"
	"github.com/cwrk-planet/roomcast/internal/membership"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 5, 6, 7, 8, 9, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Send(ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) snapshot() []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Event(nil), r.events...)
}

func (r *recorder) types() []string {
	var out []string
	for _, ev := range r.snapshot() {
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func newTestHandler(t *testing.T) (*Handler, *membership.Coordinator) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return fixedNow }
	dispatch := broadcast.NewDispatcher(broadcast.NewSinks(), log)
	coord := membership.New(dispatch, membership.WithLogger(log), membership.WithClock(clock))
	return NewHandler(coord, dispatch, WithLogger(log), WithClock(clock)), coord
}

func inbound(t *testing.T, tag string, payload any, ack string) domain.Inbound {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return domain.Inbound{Type: tag, Payload: raw, Ack: ack}
}

func TestConnect_EmitsConnected(t *testing.T) {
	h, coord := newTestHandler(t)
	rec := &recorder{}

	require.NoError(t, h.Connect(context.Background(), "X", rec))

	evs := rec.snapshot()
	require.Len(t, evs, 1)
	assert.Equal(t, domain.TagConnected, evs[0].Type)
	assert.Equal(t, domain.ConnectedPayload{
		SID:       "X",
		Message:   "Connected to server",
		Status:    "success",
		Timestamp: fixedNow,
	}, evs[0].Payload)

	conn, err := coord.Connection("X")
	require.NoError(t, err)
	assert.False(t, conn.Joined())
}

func TestConnect_DuplicateKeepsFirstSink(t *testing.T) {
	h, coord := newTestHandler(t)
	ctx := context.Background()
	first, y := &recorder{}, &recorder{}
	require.NoError(t, h.Connect(ctx, "X", first))
	require.NoError(t, h.Connect(ctx, "Y", y))
	for _, id := range []string{"X", "Y"} {
		require.NoError(t, h.Handle(ctx, id, inbound(t, domain.TagJoin, domain.JoinRequest{Room: "general"}, "")))
	}
	first.reset()

	second := &recorder{}
	err := h.Connect(ctx, "X", second)
	require.ErrorIs(t, err, domain.ErrDuplicateConnection)

	sink, ok := h.dispatch.Sinks().Get("X")
	require.True(t, ok)
	assert.Same(t, first, sink)

	msg := domain.MessageRequest{Room: "general", Message: "still there?"}
	require.NoError(t, h.Handle(ctx, "Y", inbound(t, domain.TagMessage, msg, "")))

	assert.Equal(t, []string{domain.TagMessage}, first.types())
	assert.Empty(t, second.types())
	assert.Equal(t, []string{"X", "Y"}, coord.Members("general"))
}

func TestDisconnect_RunsOnce(t *testing.T) {
	h, coord := newTestHandler(t)
	x, y := &recorder{}, &recorder{}
	ctx := context.Background()
	require.NoError(t, h.Connect(ctx, "X", x))
	require.NoError(t, h.Connect(ctx, "Y", y))
	require.NoError(t, h.Handle(ctx, "X", inbound(t, domain.TagJoin, domain.JoinRequest{Room: "general"}, "")))
	require.NoError(t, h.Handle(ctx, "Y", inbound(t, domain.TagJoin, domain.JoinRequest{Room: "general"}, "")))
	y.reset()

	h.Disconnect(ctx, "X")
	h.Disconnect(ctx, "X")

	assert.Equal(t, []string{domain.TagUserLeft}, y.types())
	assert.Equal(t, []string{"Y"}, coord.Members("general"))
	_, ok := h.dispatch.Sinks().Get("X")
	assert.False(t, ok)
}

func TestHandle_JoinWithAck(t *testing.T) {
	h, coord := newTestHandler(t)
	x := &recorder{}
	ctx := context.Background()
	require.NoError(t, h.Connect(ctx, "X", x))
	x.reset()

	err := h.Handle(ctx, "X", inbound(t, domain.TagJoin, domain.JoinRequest{Room: "general", Username: "bob"}, "a1"))
	require.NoError(t, err)

	evs := x.snapshot()
	require.Len(t, evs, 2)
	assert.Equal(t, domain.TagJoined, evs[0].Type)
	assert.Equal(t, domain.Event{Type: domain.TagAck, Payload: domain.AckPayload{ID: "a1"}}, evs[1])

	conn, err := coord.Connection("X")
	require.NoError(t, err)
	assert.Equal(t, "general", conn.Room)
	assert.Equal(t, "bob", conn.DisplayName)
}

func TestHandle_ErrorsReachOriginator(t *testing.T) {
	tests := []struct {
		name    string
		in      domain.Inbound
		wantErr error
		wantMsg string
	}{
		{
			name:    "join without room",
			in:      domain.Inbound{Type: domain.TagJoin, Payload: json.RawMessage(`{}`), Ack: "k"},
			wantErr: domain.ErrInvalidRoomName,
			wantMsg: "Room name is required",
		},
		{
			name:    "message without text",
			in:      domain.Inbound{Type: domain.TagMessage, Payload: json.RawMessage(`{"room":"general"}`), Ack: "k"},
			wantErr: domain.ErrInvalidMessage,
			wantMsg: "Message is required",
		},
		{
			name:    "malformed payload",
			in:      domain.Inbound{Type: domain.TagMessage, Payload: json.RawMessage(`"hello"`), Ack: "k"},
			wantErr: domain.ErrMalformedPayload,
			wantMsg: "Invalid message format",
		},
		{
			name:    "unknown event",
			in:      domain.Inbound{Type: "dance", Ack: "k"},
			wantErr: domain.ErrUnknownEvent,
			wantMsg: "Unknown event",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t)
			x := &recorder{}
			ctx := context.Background()
			require.NoError(t, h.Connect(ctx, "X", x))
			x.reset()

			err := h.Handle(ctx, "X", tt.in)
			require.ErrorIs(t, err, tt.wantErr)

			evs := x.snapshot()
			require.Len(t, evs, 2)
			assert.Equal(t, domain.Event{Type: domain.TagError, Payload: domain.ErrorPayload{Message: tt.wantMsg}}, evs[0])
			assert.Equal(t, domain.Event{Type: domain.TagAck, Payload: domain.AckPayload{ID: "k", Error: tt.wantMsg}}, evs[1])
		})
	}
}

func TestHandle_LeaveUsesActualRoom(t *testing.T) {
	h, coord := newTestHandler(t)
	x := &recorder{}
	ctx := context.Background()
	require.NoError(t, h.Connect(ctx, "X", x))
	require.NoError(t, h.Handle(ctx, "X", inbound(t, domain.TagJoin, domain.JoinRequest{Room: "general"}, "")))
	x.reset()

	require.NoError(t, h.Handle(ctx, "X", inbound(t, domain.TagLeave, domain.LeaveRequest{Room: "elsewhere"}, "")))

	assert.Equal(t, []string{domain.TagLeft}, x.types())
	assert.Empty(t, coord.Rooms())
}

func TestHandle_MessageFanOut(t *testing.T) {
	h, _ := newTestHandler(t)
	x, y := &recorder{}, &recorder{}
	ctx := context.Background()
	require.NoError(t, h.Connect(ctx, "X", x))
	require.NoError(t, h.Connect(ctx, "Y", y))
	for _, id := range []string{"X", "Y"} {
		require.NoError(t, h.Handle(ctx, id, inbound(t, domain.TagJoin, domain.JoinRequest{Room: "general"}, "")))
	}
	x.reset()
	y.reset()

	msg := domain.MessageRequest{Room: "general", Message: "hi", Username: "alice"}
	require.NoError(t, h.Handle(ctx, "X", inbound(t, domain.TagMessage, msg, "")))

	want := domain.Event{Type: domain.TagMessage, Payload: domain.MessagePayload{
		Room: "general", SID: "X", Username: "alice", Message: "hi", Timestamp: fixedNow,
	}}
	assert.Equal(t, []domain.Event{want}, x.snapshot())
	assert.Equal(t, []domain.Event{want}, y.snapshot())
}

func TestHandle_TestMessageEcho(t *testing.T) {
	h, _ := newTestHandler(t)
	x := &recorder{}
	ctx := context.Background()
	require.NoError(t, h.Connect(ctx, "X", x))
	x.reset()

	raw := json.RawMessage(`{"message":"ping"}`)
	require.NoError(t, h.Handle(ctx, "X", domain.Inbound{Type: domain.TagTestMessage, Payload: raw}))

	evs := x.snapshot()
	require.Len(t, evs, 1)
	assert.Equal(t, domain.TagTestResponse, evs[0].Type)
	p := evs[0].Payload.(domain.TestResponsePayload)
	assert.Equal(t, "Test message received", p.Message)
	assert.JSONEq(t, `{"message":"ping"}`, string(p.OriginalData))
	assert.Equal(t, "X", p.SID)
}

func TestRouter_HandleAndRemove(t *testing.T) {
	h, _ := newTestHandler(t)
	r := h.Router()
	assert.Equal(t, []string{domain.TagJoin, domain.TagLeave, domain.TagMessage, domain.TagTestMessage}, r.Tags())

	called := errors.New("custom called")
	r.Handle("typing", func(context.Context, string, json.RawMessage) error { return called })
	err := r.Dispatch(context.Background(), "X", domain.Inbound{Type: "typing"})
	require.ErrorIs(t, err, called)

	r.Remove(domain.TagTestMessage)
	err = r.Dispatch(context.Background(), "X", domain.Inbound{Type: domain.TagTestMessage})
	require.ErrorIs(t, err, domain.ErrUnknownEvent)
}
