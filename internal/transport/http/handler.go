package http

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/cwrk-planet/roomcast/internal/domain"
	"github.com/cwrk-planet/roomcast/internal/membership"
	"github.com/cwrk-planet/roomcast/pkg/httputil"

	"github.com/go-chi/chi/v5"
)

// Inspector: read-only доступ к состоянию комнат.
type Inspector interface {
	Rooms() []domain.RoomSummary
	Members(room string) []string
	Stats() membership.Stats
	Verify() error
}

type RoomHandlers struct {
	Rooms Inspector
}

type roomsResponse struct {
	Rooms []domain.RoomSummary `json:"rooms"`
	Stats membership.Stats     `json:"stats"`
}

type membersResponse struct {
	Room    string   `json:"room"`
	Members []string `json:"members"`
	Count   int      `json:"count"`
}

// GET /rooms
func (h *RoomHandlers) ListRooms(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, roomsResponse{Rooms: h.Rooms.Rooms(), Stats: h.Rooms.Stats()})
}

// GET /rooms/{name}/members
func (h *RoomHandlers) Members(w http.ResponseWriter, r *http.Request) {
	raw, err := url.PathUnescape(chi.URLParam(r, "name"))
	if err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid room name", nil)
		return
	}
	name, err := domain.NormalizeRoomName(raw)
	if err != nil {
		httputil.Error(r.Context(), w, statusFor(err), domain.PublicMessage(err), nil)
		return
	}

	members := h.Rooms.Members(name)
	httputil.OK(w, membersResponse{Room: name, Members: members, Count: len(members)})
}

// GET /debug/invariants
func (h *RoomHandlers) Invariants(w http.ResponseWriter, r *http.Request) {
	if err := h.Rooms.Verify(); err != nil {
		L(r.Context()).Error("membership invariants violated", slog.Any("err", err))
		httputil.Error(r.Context(), w, http.StatusInternalServerError, "invariant violated",
			map[string]any{"violations": err.Error()})
		return
	}
	httputil.OK(w, map[string]any{"status": "ok", "stats": h.Rooms.Stats()})
}
