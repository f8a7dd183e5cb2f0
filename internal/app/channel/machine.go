package channel

import (
	"errors"
	"fmt"
	"net/url"
	"slices"

	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
)

var ErrMalformedEndpoint = errors.New("malformed endpoint")

// Machine is the whole state of a signaling connection. Step never mutates
// its argument.
type Machine struct {
	State    core.ConnState
	Backlog  []string
	RoomID   domain.RoomID
	ClientID domain.ClientID
	Endpoint *url.URL

	// each notification fires at most once per connection
	closeNotified bool
	errorNotified bool
}

type Event interface{ isEvent() }

type (
	Connect      struct{ Endpoint string }
	Opened       struct{}
	Send         struct{ Text string }
	Disconnect   struct{}
	Closed       struct{}
	Failed       struct{ Description string }
	TextReceived struct{ Payload string }
)

type Register struct {
	RoomID   domain.RoomID
	ClientID domain.ClientID
}

func (Connect) isEvent()      {}
func (Opened) isEvent()       {}
func (Register) isEvent()     {}
func (Send) isEvent()         {}
func (Disconnect) isEvent()   {}
func (Closed) isEvent()       {}
func (Failed) isEvent()       {}
func (TextReceived) isEvent() {}

type Effect interface{ isEffect() }

type (
	Dial           struct{ URL *url.URL }
	Transmit       struct{ Text string }
	CloseTransport struct{}
	NotifyClose    struct{}
	NotifyError    struct{ Description string }
	Deliver        struct{ Payload string }
)

type Diagnostic struct {
	Level   zerolog.Level
	Message string
}

func (Dial) isEffect()           {}
func (Transmit) isEffect()       {}
func (CloseTransport) isEffect() {}
func (NotifyClose) isEffect()    {}
func (NotifyError) isEffect()    {}
func (Deliver) isEffect()        {}
func (Diagnostic) isEffect()     {}

func diag(level zerolog.Level, format string, args ...any) []Effect {
	return []Effect{Diagnostic{Level: level, Message: fmt.Sprintf(format, args...)}}
}

// Step is the transition function of the connection.
func Step(m Machine, ev Event) (Machine, []Effect) {
	switch ev := ev.(type) {
	case Connect:
		if m.State != core.ConnNew {
			return m, diag(zerolog.ErrorLevel, "websocket is already connected, state %s", m.State)
		}
		u, err := ParseEndpoint(ev.Endpoint)
		if err != nil {
			return m.fail("URI error: " + err.Error())
		}
		m.Endpoint = u
		return m, []Effect{Dial{URL: u}}

	case Opened:
		if m.State != core.ConnNew {
			return m, diag(zerolog.WarnLevel, "websocket opened in state %s", m.State)
		}
		m.State = core.ConnConnected
		return m.register()

	case Register:
		// ids are kept even when register is a no-op, Opened uses them later
		m.RoomID, m.ClientID = ev.RoomID, ev.ClientID
		return m.register()

	case Send:
		switch m.State {
		case core.ConnNew, core.ConnConnected:
			m.Backlog = append(slices.Clip(m.Backlog), ev.Text)
			return m, diag(zerolog.DebugLevel, "WS ACC: %s", ev.Text)
		case core.ConnRegistered:
			return m, []Effect{Transmit{Text: ev.Text}}
		default:
			return m, diag(zerolog.ErrorLevel, "websocket send() in %s state: %s", m.State, ev.Text)
		}

	case Disconnect:
		var effects []Effect
		if m.State == core.ConnRegistered {
			effects = append(effects, Transmit{Text: protocol.EncodeBye()})
			m.State = core.ConnConnected
		}
		// NEW with a dial in flight is torn down as well.
		dialing := m.State == core.ConnNew && m.Endpoint != nil
		if m.State == core.ConnConnected || m.State == core.ConnError || dialing {
			effects = append(effects, CloseTransport{})
			m.State = core.ConnClosed
			m.Backlog = nil
		}
		return m, effects

	case Closed:
		if m.State == core.ConnClosed || m.closeNotified {
			return m, nil
		}
		m.State = core.ConnClosed
		m.Backlog = nil
		m.closeNotified = true
		return m, []Effect{NotifyClose{}}

	case Failed:
		return m.fail(ev.Description)

	case TextReceived:
		if m.State != core.ConnConnected && m.State != core.ConnRegistered {
			return m, diag(zerolog.DebugLevel, "message in state %s dropped", m.State)
		}
		return m, []Effect{Deliver{Payload: ev.Payload}}
	}
	return m, diag(zerolog.ErrorLevel, "unhandled event %T", ev)
}

func (m Machine) register() (Machine, []Effect) {
	if m.State != core.ConnConnected {
		return m, diag(zerolog.WarnLevel, "websocket register() in state %s", m.State)
	}
	frame, err := protocol.EncodeRegister(m.RoomID, m.ClientID)
	if err != nil {
		return m.fail("websocket register JSON error: " + err.Error())
	}
	effects := make([]Effect, 0, len(m.Backlog)+1)
	effects = append(effects, Transmit{Text: frame})
	m.State = core.ConnRegistered
	for _, text := range m.Backlog {
		effects = append(effects, Transmit{Text: text})
	}
	m.Backlog = nil
	return m, effects
}

// fail never leaves CLOSED: a send error on the bye frame or a late transport
// error after close is only logged.
func (m Machine) fail(description string) (Machine, []Effect) {
	if m.State == core.ConnClosed || m.errorNotified {
		return m, diag(zerolog.DebugLevel, "error in state %s: %s", m.State, description)
	}
	m.State = core.ConnError
	m.Backlog = nil
	m.errorNotified = true
	return m, []Effect{NotifyError{Description: description}}
}

// ParseEndpoint accepts ws:// and wss:// URLs with a host.
func ParseEndpoint(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEndpoint, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("%w: scheme %q", ErrMalformedEndpoint, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host", ErrMalformedEndpoint)
	}
	return u, nil
}
