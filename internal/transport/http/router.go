package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/cwrk-planet/roomcast/pkg/httputil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Deps struct {
	WS             http.HandlerFunc
	Rooms          Inspector
	Logger         *slog.Logger
	AllowedOrigins []string
	RequestTimeout time.Duration
	EnableDebug    bool
}

func NewRouter(d Deps) http.Handler {
	base := d.Logger
	if base == nil {
		base = slog.Default()
	}
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httputil.MiddlewareRequestID)
	r.Use(WithRequestLoggerCtx(base))
	r.Use(RequestLogger)

	// ws живёт дольше любого таймаута запроса
	if d.WS != nil {
		r.Get("/ws", d.WS)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(timeout))
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("ok"))
		})
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			httputil.OK(w, map[string]string{"status": "ok"})
		})

		rh := &RoomHandlers{Rooms: d.Rooms}
		r.Route("/rooms", func(rt chi.Router) {
			rt.Get("/", rh.ListRooms)
			rt.Get("/{name}/members", rh.Members)
		})

		if d.EnableDebug {
			r.Get("/debug/invariants", rh.Invariants)
		}
	})

	return r
}
