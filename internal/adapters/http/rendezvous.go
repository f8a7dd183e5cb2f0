package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
)

var ErrRendezvousRejected = errors.New("rendezvous rejected")

// Rendezvous talks to the room service. It implements core.Rendezvous.
type Rendezvous struct {
	client *Client
	base   string
	now    func() time.Time
}

func NewRendezvous(client *Client, base string) *Rendezvous {
	return &Rendezvous{client: client, base: strings.TrimRight(base, "/"), now: time.Now}
}

func (r *Rendezvous) Create(ctx context.Context, room domain.RoomID, client domain.ClientID) (domain.RoomTicket, error) {
	return r.call(ctx, "/login/create", room, client)
}

func (r *Rendezvous) Join(ctx context.Context, room domain.RoomID, client domain.ClientID) (domain.RoomTicket, error) {
	return r.call(ctx, "/login/join", room, client)
}

func (r *Rendezvous) call(ctx context.Context, path string, room domain.RoomID, client domain.ClientID) (domain.RoomTicket, error) {
	req := protocol.NewRendezvousRequest(room, client, r.now())
	body, err := r.client.do(ctx, http.MethodPost, r.base+path, req)
	if err != nil {
		return domain.RoomTicket{}, err
	}
	var ticket domain.RoomTicket
	if err := json.Unmarshal(body, &ticket); err != nil {
		return domain.RoomTicket{}, fmt.Errorf("decode %s response: %w", path, err)
	}
	if !ticket.OK() {
		return ticket, fmt.Errorf("%w: %s returned %q", ErrRendezvousRejected, path, ticket.Ret)
	}
	log.Info().
		Str("module", "adapters.http").
		Str("room", string(ticket.RoomID)).
		Str("client", string(ticket.ClientID)).
		Str("host", ticket.Host).
		Msg(strings.TrimPrefix(path, "/login/"))
	return ticket, nil
}
