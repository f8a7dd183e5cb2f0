package devserver

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type signalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool

	// set by the read pump only
	room   domain.RoomID
	client domain.ClientID
}

func (c *signalConn) TrySend(f []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *signalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()
}

func (c *signalConn) registered() bool { return c.client != "" }

// SignalController serves the signaling socket.
type SignalController struct {
	Registry *Registry
	Limiter  *RegisterLimiter

	WriteTimeout time.Duration
	ReadLimit    int64
	QueueSize    int

	upgrader websocket.Upgrader
}

func NewSignalController(reg *Registry, limiter *RegisterLimiter) *SignalController {
	return &SignalController{
		Registry:     reg,
		Limiter:      limiter,
		WriteTimeout: 5 * time.Second,
		ReadLimit:    32768,
		QueueSize:    32,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (ctl *SignalController) HandleSignal(ctx context.Context, c *gin.Context) {
	log.Info().Str("module", "devserver.signal").Str("token", c.GetString("client_token")).Msg("new WS connection")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver.signal").Msg("ws upgrade")
		return
	}
	ws.SetReadLimit(ctl.ReadLimit)

	conn := &signalConn{
		conn: ws,
		send: make(chan []byte, ctl.QueueSize),
	}
	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, conn)
}

// writePump owns the socket: it closes it when the queue is closed or the
// server shuts down, which also ends the read pump.
func (ctl *SignalController) writePump(ctx context.Context, c *signalConn) {
	defer func() {
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "devserver.signal").Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutdown"),
				time.Now().Add(ctl.WriteTimeout))
			c.Close()
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "devserver.signal").Msg("writePump channel closed")
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(ctl.WriteTimeout))
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "devserver.signal").Msg("writePump set deadline")
				c.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "devserver.signal").Msg("writePump write error")
				c.Close()
				return
			}
		}
	}
}

func (ctl *SignalController) readPump(ctx context.Context, c *signalConn) {
	defer func() {
		log.Info().Str("module", "devserver.signal").Str("client", string(c.client)).Msg("readPump closing")
		ctl.leave(c)
		c.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "devserver.signal").Str("client", string(c.client)).Msg("readPump read error")
			}
			return
		}
		ctl.handleFrame(c, data)
	}
}
