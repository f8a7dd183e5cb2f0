package core

// ConnState is the lifecycle of the signaling socket.
type ConnState int

const (
	ConnNew ConnState = iota
	ConnConnected
	ConnRegistered
	ConnClosed
	ConnError
)

func (s ConnState) String() string {
	switch s {
	case ConnNew:
		return "NEW"
	case ConnConnected:
		return "CONNECTED"
	case ConnRegistered:
		return "REGISTERED"
	case ConnClosed:
		return "CLOSED"
	case ConnError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// SessionState is the room-level lifecycle, driven by the connection.
type SessionState int

const (
	SessionNew SessionState = iota
	SessionConnected
	SessionClosed
	SessionError
)

func (s SessionState) String() string {
	switch s {
	case SessionNew:
		return "NEW"
	case SessionConnected:
		return "CONNECTED"
	case SessionClosed:
		return "CLOSED"
	case SessionError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
