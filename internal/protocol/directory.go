package protocol

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dkeye/VoiceClient/internal/domain"
)

// directoryEnvelope is the response of the connectivity directory. The
// payload "d" is usually a JSON document encoded as a string.
type directoryEnvelope struct {
	S string          `json:"s,omitempty"`
	D json.RawMessage `json:"d"`
}

type iceServersJSON struct {
	ICEServers []iceServerJSON `json:"iceServers"`
}

type iceServerJSON struct {
	URL        string              `json:"url,omitempty"`
	URLs       stringOrStringSlice `json:"urls,omitempty"`
	Username   string              `json:"username,omitempty"`
	Credential string              `json:"credential,omitempty"`
}

type stringOrStringSlice []string

func (s *stringOrStringSlice) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*s = many
	return nil
}

// DecodeServerList parses a directory response into an ordered server list.
func DecodeServerList(data []byte) ([]domain.ConnectivityServer, error) {
	var env directoryEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var payload iceServersJSON
	if err := unmarshalNested(env.D, "d", &payload); err != nil {
		return nil, err
	}

	var out []domain.ConnectivityServer
	for _, s := range payload.ICEServers {
		urls := []string(s.URLs)
		if s.URL != "" {
			urls = append([]string{s.URL}, urls...)
		}
		for _, u := range urls {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			out = append(out, domain.ConnectivityServer{
				URL:        u,
				Username:   s.Username,
				Credential: s.Credential,
			})
		}
	}
	return out, nil
}

// EncodeServerList produces the same envelope a directory would return.
func EncodeServerList(servers []domain.ConnectivityServer) ([]byte, error) {
	payload := iceServersJSON{ICEServers: make([]iceServerJSON, 0, len(servers))}
	for _, s := range servers {
		payload.ICEServers = append(payload.ICEServers, iceServerJSON{
			URL:        s.URL,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	inner, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	d, err := json.Marshal(string(inner))
	if err != nil {
		return nil, err
	}
	return json.Marshal(directoryEnvelope{S: "ok", D: d})
}
