package core

import "net/url"

// Transport abstracts the long-lived text socket.
// Owned by the adapter; the channel must Close() it.
type Transport interface {
	SendText(text string) error
	Close()
}

// TransportEvents are fired by the adapter from its own goroutines.
type TransportEvents interface {
	OnOpen()
	OnClose(code int, reason string)
	OnError(err error)
	OnText(payload string)
}

// Dialer starts connecting and returns immediately; the outcome arrives
// through TransportEvents.
type Dialer interface {
	Open(endpoint *url.URL, events TransportEvents) Transport
}

// ChannelEvents is what the connection state machine reports upwards.
// All methods are invoked on the looper.
type ChannelEvents interface {
	OnChannelMessage(message string)
	OnChannelClose()
	OnChannelError(description string)
}
