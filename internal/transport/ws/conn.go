package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cwrk-planet/roomcast/internal/broadcast"
	"github.com/cwrk-planet/roomcast/internal/domain"

	"github.com/gorilla/websocket"
)

// wsConn — sink одного WebSocket-соединения. Send только кладёт кадр
// в буфер; в сокет пишет writeLoop.
type wsConn struct {
	conn   *websocket.Conn
	id     string
	send   chan []byte
	closed chan struct{}
	once   sync.Once
}

func newWsConn(c *websocket.Conn, id string, buffer int) *wsConn {
	if buffer <= 0 {
		buffer = 1
	}
	return &wsConn{
		conn:   c,
		id:     id,
		send:   make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

var _ broadcast.Sink = (*wsConn)(nil)

func (c *wsConn) Send(ev domain.Event) error {
	frame, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return broadcast.ErrSinkClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.closed:
		return broadcast.ErrSinkClosed
	default:
		return broadcast.ErrSinkFull
	}
}

// closeWith отправляет close-кадр и закрывает соединение.
func (c *wsConn) closeWith(code int, reason string, wait time.Duration) error {
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason), time.Now().Add(wait))
	}
	return c.Close()
}

func (c *wsConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.closed)
		if c.conn != nil {
			err = c.conn.Close()
		}
	})

	return err
}
