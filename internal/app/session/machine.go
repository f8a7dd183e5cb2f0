package session

import (
	"fmt"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
)

// Room is the whole state of a session. Step never mutates its argument;
// the roster is copied before it changes.
type Room struct {
	State    core.SessionState
	Roster   *domain.Roster
	RemoteID domain.ClientID
	Servers  []domain.ConnectivityServer
	ClientID domain.ClientID

	// Joining is set once ConnectToRoom was accepted.
	Joining bool
}

func NewRoom(clientID domain.ClientID) Room {
	return Room{State: core.SessionNew, Roster: domain.NewRoster(), ClientID: clientID}
}

type Event interface{ isEvent() }

type Join struct {
	UseDirectory bool
	Static       []domain.ConnectivityServer
}

type (
	ServersFetched struct{ Servers []domain.ConnectivityServer }
	FetchFailed    struct{ Err error }
	SendOffer      struct{ Description webrtc.SessionDescription }
	SendAnswer     struct{ Description webrtc.SessionDescription }
	SendCandidate  struct{ Candidate webrtc.ICECandidateInit }
	SendRemovals   struct{ Candidates []webrtc.ICECandidateInit }
	Leave          struct{}
	ChannelClosed  struct{}
	ChannelFailed  struct{ Description string }
)

// Inbound is a text frame from the channel. Registered is the channel state
// at delivery time.
type Inbound struct {
	Payload    string
	Registered bool
}

func (Join) isEvent()           {}
func (ServersFetched) isEvent() {}
func (FetchFailed) isEvent()    {}
func (Inbound) isEvent()        {}
func (SendOffer) isEvent()      {}
func (SendAnswer) isEvent()     {}
func (SendCandidate) isEvent()  {}
func (SendRemovals) isEvent()   {}
func (Leave) isEvent()          {}
func (ChannelClosed) isEvent()  {}
func (ChannelFailed) isEvent()  {}

type Effect interface{ isEffect() }

type (
	FetchServers struct{}
	OpenChannel  struct{}
	ChannelSend  struct{ Text string }
	CloseChannel struct{}
	Notify       struct{ Event core.Event }
)

type Diagnostic struct {
	Level   zerolog.Level
	Message string
}

func (FetchServers) isEffect() {}
func (OpenChannel) isEffect()  {}
func (ChannelSend) isEffect()  {}
func (CloseChannel) isEffect() {}
func (Notify) isEffect()       {}
func (Diagnostic) isEffect()   {}

func diag(level zerolog.Level, format string, args ...any) []Effect {
	return []Effect{Diagnostic{Level: level, Message: fmt.Sprintf(format, args...)}}
}

// Step is the transition function of the session.
func Step(r Room, ev Event) (Room, []Effect) {
	switch ev := ev.(type) {
	case Join:
		if r.State != core.SessionNew || r.Joining {
			return r, diag(zerolog.WarnLevel, "connect to room in state %s ignored", r.State)
		}
		r.Joining = true
		if ev.UseDirectory {
			return r, []Effect{FetchServers{}}
		}
		r.Servers = ev.Static
		return r, []Effect{OpenChannel{}}

	case ServersFetched:
		if r.State != core.SessionNew {
			return r, diag(zerolog.DebugLevel, "server list arrived in state %s", r.State)
		}
		r.Servers = ev.Servers
		return r, []Effect{OpenChannel{}}

	case FetchFailed:
		return r.fail("ICE server directory error: " + ev.Err.Error())

	case Inbound:
		return r.inbound(ev)

	case SendOffer:
		if r.State != core.SessionConnected {
			return r.fail("Sending offer SDP in non connected state.")
		}
		switch r.Roster.Len() {
		case 0:
			return r.fail("Sending offer SDP with nobody in the room.")
		case 1:
			to, _ := r.Roster.First()
			return r.send(protocol.EncodeOffer(ev.Description, to))
		default:
			next, effects := r.overcrowded()
			return next, append(diag(zerolog.WarnLevel, "offer with %d members in the room", r.Roster.Len()), effects...)
		}

	case SendAnswer:
		return r.send(protocol.EncodeAnswer(ev.Description, r.RemoteID))

	case SendCandidate:
		return r.send(protocol.EncodeCandidate(ev.Candidate, r.RemoteID))

	case SendRemovals:
		if r.State != core.SessionConnected {
			return r.fail("Sending ICE candidate removals in non connected state.")
		}
		return r.send(protocol.EncodeCandidateRemovals(ev.Candidates, r.RemoteID))

	case Leave:
		r.State = core.SessionClosed
		return r, []Effect{CloseChannel{}}

	case ChannelClosed:
		return r.close()

	case ChannelFailed:
		return r.fail("WebSocket error: " + ev.Description)
	}
	return r, diag(zerolog.ErrorLevel, "unhandled event %T", ev)
}

func (r Room) inbound(ev Inbound) (Room, []Effect) {
	if !ev.Registered {
		return r, diag(zerolog.WarnLevel, "got WebSocket message in non registered state")
	}
	msg, err := protocol.Decode([]byte(ev.Payload))
	if err != nil {
		return r.fail("WebSocket message JSON parsing error: " + err.Error())
	}
	if msg.From != "" {
		r.RemoteID = msg.From
	}

	switch msg.Cmd {
	case protocol.CmdICE:
		return r, notify(core.RemoteCandidate{Candidate: *msg.Candidate})

	case protocol.CmdRemoveCandidates:
		return r, notify(core.RemoteCandidatesRemoved{Candidates: msg.Candidates})

	case protocol.CmdAnswer:
		return r, notify(core.RemoteDescription{Description: *msg.Description})

	case protocol.CmdOffer:
		if msg.From == "" {
			return r.fail("Unexpected WebSocket message: offer without sender")
		}
		if r.Roster.Contains(msg.From) {
			if r.Roster.Len() == 1 {
				return r, notify(core.RemoteDescription{Description: *msg.Description})
			}
			return r, diag(zerolog.WarnLevel, "offer from %s ignored, room has %d members", msg.From, r.Roster.Len())
		}
		r.Roster = r.Roster.Clone()
		r.Roster.Add(msg.From)
		if r.Roster.Len() == 1 {
			return r, notify(core.RemoteDescription{Description: *msg.Description})
		}
		next, effects := r.overcrowded()
		return next, append(diag(zerolog.WarnLevel, "second offerer %s, room has %d members", msg.From, r.Roster.Len()), effects...)

	case protocol.CmdLeave, protocol.CmdBye:
		first, ok := r.Roster.First()
		if !ok {
			return r, diag(zerolog.DebugLevel, "%s from %q with an empty roster", msg.Cmd, msg.From)
		}
		r.Roster = r.Roster.Clone()
		if msg.From != first {
			r.Roster.Remove(msg.From)
			return r, diag(zerolog.DebugLevel, "%s from %q, peer is %s", msg.Cmd, msg.From, first)
		}
		r.Roster.Remove(first)
		return r.close()

	case protocol.CmdLoginAck:
		if r.State != core.SessionNew {
			return r, diag(zerolog.WarnLevel, "login-ack in state %s ignored", r.State)
		}
		r.Roster = r.Roster.Clone()
		for _, id := range msg.Members {
			if id != r.ClientID {
				r.Roster.Add(id)
			}
		}
		// the offerer addresses its candidates before the peer ever wrote
		if first, ok := r.Roster.First(); ok && r.RemoteID == "" {
			r.RemoteID = first
		}
		r.State = core.SessionConnected
		return r, notify(core.ConnectedToRoom{IsFirst: r.Roster.Len() == 0, Servers: r.Servers})

	case protocol.CmdBrowser:
		return r, diag(zerolog.InfoLevel, "browser notice: %s", msg.Raw)

	case protocol.CmdError:
		return r.fail("WebSocket error message: " + msg.Error)
	}
	return r.fail("Unexpected WebSocket message: " + msg.Raw)
}

func (r Room) send(frame string, err error) (Room, []Effect) {
	if err != nil {
		return r.fail("signaling JSON error: " + err.Error())
	}
	return r, []Effect{ChannelSend{Text: frame}}
}

// close is absorbing: once CLOSED the session reports nothing else.
func (r Room) close() (Room, []Effect) {
	if r.State == core.SessionClosed {
		return r, diag(zerolog.DebugLevel, "already closed")
	}
	r.State = core.SessionClosed
	return r, notify(core.ChannelClosed{})
}

// overcrowded closes a session that found more than one peer. The channel is
// still open, so it is torn down along with the notification.
func (r Room) overcrowded() (Room, []Effect) {
	next, effects := r.close()
	if r.State == core.SessionClosed {
		return next, effects
	}
	return next, append([]Effect{CloseChannel{}}, effects...)
}

func (r Room) fail(description string) (Room, []Effect) {
	if r.State == core.SessionError || r.State == core.SessionClosed {
		return r, diag(zerolog.DebugLevel, "error in state %s: %s", r.State, description)
	}
	r.State = core.SessionError
	return r, notify(core.ChannelError{Description: description})
}

func notify(e core.Event) []Effect {
	return []Effect{Notify{Event: e}}
}
