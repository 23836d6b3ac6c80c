// Package ws — WebSocket-транспорт: апгрейд, read/write-циклы соединения,
// ping/pong и передача входящих событий в lifecycle.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwrk-planet/roomcast/internal/broadcast"
	"github.com/cwrk-planet/roomcast/internal/domain"
	"github.com/cwrk-planet/roomcast/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Lifecycle interface {
	Connect(ctx context.Context, id string, sink broadcast.Sink) error
	Disconnect(ctx context.Context, id string)
	Handle(ctx context.Context, id string, in domain.Inbound) error
}

type Config struct {
	PingEvery       time.Duration // 15s
	WriteWait       time.Duration // 5s
	SendBuffer      int           // 64
	MaxMessageBytes int64         // 64 KiB
	AllowedOrigins  []string      // пусто или "*" — любой origin
}

func (c Config) withDefaults() Config {
	if c.PingEvery <= 0 {
		c.PingEvery = 15 * time.Second
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 << 10
	}
	return c
}

type Server struct {
	upgrader websocket.Upgrader
	lc       Lifecycle
	cfg      Config
	log      *slog.Logger
	newID    func() string

	mu      sync.Mutex
	conns   map[string]*wsConn
	closing bool
	wg      sync.WaitGroup
}

func NewServer(lc Lifecycle, cfg Config, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	cfg = cfg.withDefaults()
	s := &Server{
		lc:    lc,
		cfg:   cfg,
		log:   logger.Component(log, "ws"),
		newID: uuid.NewString,
		conns: make(map[string]*wsConn),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return s
}

// HandleWS: GET /ws
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	if !s.begin() {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade уже ответил клиенту
		s.log.Warn("ws upgrade failed", slog.String("remote", r.RemoteAddr), slog.Any("err", err))
		return
	}

	// Соединение живёт дольше запроса: контекст запроса нужен только ради значений.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := newWsConn(conn, s.newID(), s.cfg.SendBuffer)
	s.track(c)
	defer s.untrack(c)

	go s.writeLoop(c)

	if err := s.lc.Connect(ctx, c.id, c); err != nil {
		s.logAttrs(ctx, slog.LevelError, "ws connect failed", slog.String("sid", c.id), slog.Any("err", err))
		_ = c.closeWith(websocket.CloseInternalServerErr, "connect failed", s.cfg.WriteWait)
		return
	}

	s.readLoop(ctx, c)

	s.lc.Disconnect(ctx, c.id)
	if err := c.Close(); err != nil && !isExpectedCloseError(err) {
		s.logAttrs(ctx, slog.LevelDebug, "ws close failed", slog.String("sid", c.id), slog.Any("err", err))
	}
}

func (s *Server) readLoop(ctx context.Context, c *wsConn) {
	deadline := 2 * s.cfg.PingEvery

	c.conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			s.logReadError(ctx, c, err)
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(deadline))

		var in domain.Inbound
		if err := json.Unmarshal(data, &in); err != nil {
			s.logAttrs(ctx, slog.LevelDebug, "ws invalid frame", slog.String("sid", c.id), slog.Any("err", err))
			_ = c.Send(domain.ErrorEvent(domain.ErrMalformedPayload))
			continue
		}
		_ = s.lc.Handle(ctx, c.id, in)
	}
}

func (s *Server) writeLoop(c *wsConn) {
	ticker := time.NewTicker(s.cfg.PingEvery)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("ws write failed", slog.String("sid", c.id), slog.Any("err", err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteWait)); err != nil {
				s.log.Debug("ws ping failed", slog.String("sid", c.id), slog.Any("err", err))
				_ = c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// Shutdown закрывает все соединения кадром 1001 и ждёт, пока отработает
// их disconnect, либо истечения ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	conns := make([]*wsConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		_ = c.closeWith(websocket.CloseGoingAway, "server shutdown", s.cfg.WriteWait)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Info("ws connections drained", slog.Int("closed", len(conns)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active — число открытых соединений.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) track(c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) untrack(c *wsConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.id)
}

func (s *Server) logReadError(ctx context.Context, c *wsConn, err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		s.logAttrs(ctx, slog.LevelWarn, "ws frame exceeds read limit",
			slog.String("sid", c.id), slog.Int64("limit", s.cfg.MaxMessageBytes))
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway),
		errors.Is(err, io.EOF), isExpectedCloseError(err):
		s.logAttrs(ctx, slog.LevelDebug, "ws closed", slog.String("sid", c.id), slog.Any("err", err))
	default:
		s.logAttrs(ctx, slog.LevelInfo, "ws read failed", slog.String("sid", c.id), slog.Any("err", err))
	}
}

func (s *Server) logAttrs(ctx context.Context, level slog.Level, msg string, attrs ...slog.Attr) {
	attrs = append(attrs, logger.AttrsFromCtx(ctx)...)
	s.log.LogAttrs(ctx, level, msg, attrs...)
}

func isExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "use of closed network connection") ||
		errors.Is(err, websocket.ErrCloseSent)
}
