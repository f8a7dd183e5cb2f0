package core

import (
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceClient/internal/domain"
)

// Event is one notification for the consumer of a signaling session.
type Event interface {
	isEvent()
}

// ConnectedToRoom fires once the server acknowledged registration.
// IsFirst means nobody else is in the room and the local side waits for an offer.
type ConnectedToRoom struct {
	IsFirst bool
	Servers []domain.ConnectivityServer
}

type RemoteDescription struct {
	Description webrtc.SessionDescription
}

type RemoteCandidate struct {
	Candidate webrtc.ICECandidateInit
}

type RemoteCandidatesRemoved struct {
	Candidates []webrtc.ICECandidateInit
}

type ChannelClosed struct{}

type ChannelError struct {
	Description string
}

func (ConnectedToRoom) isEvent()         {}
func (RemoteDescription) isEvent()       {}
func (RemoteCandidate) isEvent()         {}
func (RemoteCandidatesRemoved) isEvent() {}
func (ChannelClosed) isEvent()           {}
func (ChannelError) isEvent()            {}

// Listener receives session events on the looper goroutine.
// Implementations must not block for long.
type Listener interface {
	OnSignalEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnSignalEvent(e Event) { f(e) }
