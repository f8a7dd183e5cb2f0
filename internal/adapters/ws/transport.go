// Package ws is the gorilla/websocket implementation of core.Transport.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/VoiceClient/internal/core"
)

var (
	ErrBackpressure    = errors.New("backpressure")
	ErrTransportClosed = errors.New("transport closed")
)

type Options struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingPeriod       time.Duration
	ReadLimit        int64
	QueueSize        int
}

func DefaultOptions() Options {
	return Options{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		PingPeriod:       54 * time.Second,
		ReadLimit:        32768,
		QueueSize:        32,
	}
}

// Dialer opens client sockets. It implements core.Dialer.
type Dialer struct {
	opts   Options
	dialer websocket.Dialer
}

func NewDialer(opts Options) *Dialer {
	def := DefaultOptions()
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = def.HandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = def.PingPeriod
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	return &Dialer{
		opts:   opts,
		dialer: websocket.Dialer{HandshakeTimeout: opts.HandshakeTimeout},
	}
}

// Open returns at once; the handshake runs in the background and its
// outcome arrives through events.
func (d *Dialer) Open(endpoint *url.URL, events core.TransportEvents) core.Transport {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		opts:       d.opts,
		events:     events,
		send:       make(chan []byte, d.opts.QueueSize),
		cancelDial: cancel,
		logger:     log.With().Str("module", "adapters.ws").Str("endpoint", endpoint.Redacted()).Logger(),
	}
	go c.run(ctx, d.dialer, endpoint)
	return c
}

// Conn is one client socket.
type Conn struct {
	opts       Options
	events     core.TransportEvents
	logger     zerolog.Logger
	cancelDial context.CancelFunc

	mu     sync.RWMutex
	send   chan []byte
	closed bool
}

func (c *Conn) SendText(text string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrTransportClosed
	}
	select {
	case c.send <- []byte(text):
	default:
		return ErrBackpressure
	}
	return nil
}

// Close flushes queued frames, sends a close frame and tears the socket
// down. OnClose always follows.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	c.cancelDial()
}

func (c *Conn) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Conn) run(ctx context.Context, dialer websocket.Dialer, endpoint *url.URL) {
	defer c.cancelDial()

	conn, resp, err := dialer.DialContext(ctx, endpoint.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if c.isClosed() {
			c.events.OnClose(websocket.CloseNormalClosure, "closed while connecting")
			return
		}
		c.logger.Error().Err(err).Msg("dial")
		c.events.OnError(fmt.Errorf("dial: %w", err))
		return
	}
	if c.opts.ReadLimit > 0 {
		conn.SetReadLimit(c.opts.ReadLimit)
	}
	c.logger.Debug().Msg("connected")
	if !c.isClosed() {
		c.events.OnOpen()
	}

	g, gctx := errgroup.WithContext(context.Background())
	g.Go(func() error { return c.readPump(conn) })
	g.Go(func() error { return c.writePump(gctx, conn) })
	g.Go(func() error {
		<-gctx.Done()
		_ = conn.Close()
		return nil
	})
	err = g.Wait()

	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		c.logger.Debug().Int("code", ce.Code).Str("reason", ce.Text).Msg("closed by peer")
		c.events.OnClose(ce.Code, ce.Text)
	case c.isClosed():
		c.events.OnClose(websocket.CloseNormalClosure, "")
	default:
		c.logger.Error().Err(err).Msg("connection lost")
		c.events.OnError(err)
	}
}

// readPump always ends with an error, which cancels the group.
func (c *Conn) readPump(conn *websocket.Conn) error {
	pongWait := c.opts.PingPeriod * 10 / 9
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			continue
		}
		c.events.OnText(string(data))
	}
}

func (c *Conn) writePump(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-c.send:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				_ = conn.WriteControl(websocket.CloseMessage, msg, deadline)
				// wait for the peer's close frame, not forever
				_ = conn.SetReadDeadline(deadline)
				return nil
			}
			if err := conn.SetWriteDeadline(deadline); err != nil {
				return fmt.Errorf("set write deadline: %w", err)
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
