package http

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
)

// Directory fetches the STUN/TURN list. It implements core.ServerDirectory.
type Directory struct {
	client   *Client
	endpoint string
}

func NewDirectory(client *Client, endpoint string) *Directory {
	return &Directory{client: client, endpoint: endpoint}
}

func (d *Directory) Fetch(ctx context.Context) ([]domain.ConnectivityServer, error) {
	body, err := d.client.do(ctx, http.MethodGet, d.endpoint, nil)
	if err != nil {
		return nil, err
	}
	servers, err := protocol.DecodeServerList(body)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("module", "adapters.http").Int("servers", len(servers)).Msg("ice servers fetched")
	return servers, nil
}
