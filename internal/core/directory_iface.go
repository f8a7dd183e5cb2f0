package core

import (
	"context"

	"github.com/dkeye/VoiceClient/internal/domain"
)

// ServerDirectory hands out the STUN/TURN list for a call attempt.
type ServerDirectory interface {
	Fetch(ctx context.Context) ([]domain.ConnectivityServer, error)
}

// Rendezvous creates or joins rooms over one-shot HTTP calls.
type Rendezvous interface {
	Create(ctx context.Context, room domain.RoomID, client domain.ClientID) (domain.RoomTicket, error)
	Join(ctx context.Context, room domain.RoomID, client domain.ClientID) (domain.RoomTicket, error)
}
