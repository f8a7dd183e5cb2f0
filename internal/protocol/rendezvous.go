package protocol

import (
	"strconv"
	"time"

	"github.com/dkeye/VoiceClient/internal/domain"
)

// RendezvousRequest is the body of /login/create and /login/join.
// Timestamp is milliseconds since the epoch, as a string.
type RendezvousRequest struct {
	RoomID    domain.RoomID   `json:"roomId"`
	ClientID  domain.ClientID `json:"clientId"`
	Timestamp string          `json:"timestamp"`
}

func NewRendezvousRequest(room domain.RoomID, client domain.ClientID, now time.Time) RendezvousRequest {
	return RendezvousRequest{
		RoomID:    room,
		ClientID:  client,
		Timestamp: strconv.FormatInt(now.UnixMilli(), 10),
	}
}
