// Package channel owns the signaling socket of one call attempt: it
// connects, registers, buffers outbound frames until registration and
// reports close/error exactly once.
//
// Every exported method except the transport callbacks must be called on
// the looper the channel was built with.
package channel

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/app/looper"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

// DefaultCloseTimeout bounds how long Disconnect(true) waits for the close.
const DefaultCloseTimeout = 1000 * time.Millisecond

// Channel is one signaling websocket. Every method must run on its looper.
type Channel struct {
	looper *looper.Looper
	dialer core.Dialer
	events core.ChannelEvents
	logger zerolog.Logger

	closeTimeout time.Duration

	m  Machine
	ws core.Transport

	closeOnce  sync.Once
	closeEvent chan struct{}
}

// Option configures a Channel.
type Option func(*Channel)

// WithCloseTimeout overrides DefaultCloseTimeout. Non-positive values are ignored.
func WithCloseTimeout(d time.Duration) Option {
	return func(c *Channel) {
		if d > 0 {
			c.closeTimeout = d
		}
	}
}

// New returns a channel in NEW state. Nothing is dialed until Connect.
func New(
	l *looper.Looper,
	dialer core.Dialer,
	events core.ChannelEvents,
	roomID domain.RoomID,
	clientID domain.ClientID,
	opts ...Option,
) *Channel {
	c := &Channel{
		looper:       l,
		dialer:       dialer,
		events:       events,
		closeTimeout: DefaultCloseTimeout,
		m:            Machine{State: core.ConnNew, RoomID: roomID, ClientID: clientID},
		closeEvent:   make(chan struct{}),
		logger: log.With().
			Str("module", "app.channel").
			Str("room", string(roomID)).
			Str("client", string(clientID)).
			Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Channel) State() core.ConnState {
	c.looper.CheckOnLoop()
	return c.m.State
}

func (c *Channel) Connect(endpoint string) {
	c.looper.CheckOnLoop()
	c.logger.Debug().Str("endpoint", endpoint).Msg("connecting websocket")
	c.dispatch(Connect{Endpoint: endpoint})
}

func (c *Channel) Register(roomID domain.RoomID, clientID domain.ClientID) {
	c.looper.CheckOnLoop()
	c.dispatch(Register{RoomID: roomID, ClientID: clientID})
}

func (c *Channel) Send(text string) {
	c.looper.CheckOnLoop()
	c.dispatch(Send{Text: text})
}

// Disconnect says bye when registered and closes the socket. With
// waitForCompletion it blocks the looper until the transport confirmed the
// close or closeTimeout passed, so no transport callback outlives the looper.
func (c *Channel) Disconnect(waitForCompletion bool) {
	c.looper.CheckOnLoop()
	c.logger.Debug().Str("state", c.m.State.String()).Msg("disconnect websocket")

	effects := c.dispatch(Disconnect{})
	closing := false
	for _, e := range effects {
		if _, ok := e.(CloseTransport); ok {
			closing = true
		}
	}
	if closing && waitForCompletion {
		select {
		case <-c.closeEvent:
		case <-time.After(c.closeTimeout):
			c.logger.Warn().Dur("timeout", c.closeTimeout).Msg("websocket close not confirmed")
		}
	}
	c.logger.Debug().Msg("disconnecting websocket done")
}

func (c *Channel) dispatch(ev Event) []Effect {
	prev := c.m.State
	next, effects := Step(c.m, ev)
	c.m = next
	if prev != next.State {
		c.logger.Debug().
			Str("from", prev.String()).
			Str("to", next.State.String()).
			Msgf("%T", ev)
	}
	c.apply(effects)
	return effects
}

func (c *Channel) apply(effects []Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case Dial:
			c.ws = c.dialer.Open(e.URL, wsObserver{c: c})
		case Transmit:
			c.transmit(e.Text)
		case CloseTransport:
			if c.ws != nil {
				c.ws.Close()
			} else {
				c.markClosed()
			}
		case NotifyClose:
			c.events.OnChannelClose()
		case NotifyError:
			c.logger.Error().Str("description", e.Description).Msg("websocket error")
			// posted, so the caller finishes its own transition first
			desc := e.Description
			c.looper.Execute(func() { c.events.OnChannelError(desc) })
		case Deliver:
			c.events.OnChannelMessage(e.Payload)
		case Diagnostic:
			c.logger.WithLevel(e.Level).Msg(e.Message)
		}
	}
}

func (c *Channel) transmit(text string) {
	if c.m.State == core.ConnError || c.ws == nil {
		c.logger.Warn().Str("state", c.m.State.String()).Msg("transmit skipped")
		return
	}
	c.logger.Debug().Str("frame", text).Msg("C->WSS")
	if err := c.ws.SendText(text); err != nil {
		c.dispatch(Failed{Description: "websocket send error: " + err.Error()})
	}
}

func (c *Channel) markClosed() {
	c.closeOnce.Do(func() { close(c.closeEvent) })
}

// wsObserver marshals transport callbacks onto the looper.
type wsObserver struct {
	c *Channel
}

func (o wsObserver) OnOpen() {
	o.c.logger.Debug().Msg("websocket connection opened")
	o.c.looper.Execute(func() { o.c.dispatch(Opened{}) })
}

func (o wsObserver) OnClose(code int, reason string) {
	o.c.logger.Debug().Int("code", code).Str("reason", reason).Msg("websocket connection closed")
	o.c.markClosed()
	o.c.looper.Execute(func() { o.c.dispatch(Closed{}) })
}

func (o wsObserver) OnError(err error) {
	desc := "websocket connection error: " + err.Error()
	o.c.looper.Execute(func() { o.c.dispatch(Failed{Description: desc}) })
}

func (o wsObserver) OnText(payload string) {
	o.c.logger.Debug().Str("frame", payload).Msg("WSS->C")
	o.c.looper.Execute(func() { o.c.dispatch(TextReceived{Payload: payload}) })
}
