package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/VoiceClient/internal/domain"
)

// ClientFrame is an outbound frame as seen by a server.
type ClientFrame struct {
	Cmd      Cmd
	RoomID   domain.RoomID
	ClientID domain.ClientID
	ToID     domain.ClientID
	raw      map[string]json.RawMessage
}

type clientHeader struct {
	Cmd      string `json:"cmd"`
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	ClientID string `json:"clientId"`
	ToID     string `json:"toId"`
}

func DecodeClientFrame(data []byte) (ClientFrame, error) {
	var h clientHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	cmd := h.Cmd
	if cmd == "" {
		cmd = h.Type
	}
	if cmd == "" {
		return ClientFrame{}, fmt.Errorf("%w: cmd", ErrMissingField)
	}
	return ClientFrame{
		Cmd:      Cmd(cmd),
		RoomID:   domain.RoomID(h.RoomID),
		ClientID: domain.ClientID(h.ClientID),
		ToID:     domain.ClientID(h.ToID),
		raw:      raw,
	}, nil
}

// Relay rewrites a directed frame for its recipient: toId is dropped and
// from is stamped with the sender.
func (f ClientFrame) Relay(from domain.ClientID) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(f.raw)+1)
	for k, v := range f.raw {
		if k == "toId" {
			continue
		}
		out[k] = v
	}
	if _, ok := out["cmd"]; !ok {
		cmdJSON, err := json.Marshal(f.Cmd)
		if err != nil {
			return nil, err
		}
		out["cmd"] = cmdJSON
	}
	fromJSON, err := json.Marshal(from)
	if err != nil {
		return nil, err
	}
	out["from"] = fromJSON
	return json.Marshal(out)
}

// EncodeLoginAck carries members as a JSON string holding an array, which
// is what deployed servers send.
func EncodeLoginAck(members []domain.ClientID) ([]byte, error) {
	if members == nil {
		members = []domain.ClientID{}
	}
	list, err := json.Marshal(members)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		Cmd     Cmd    `json:"cmd"`
		Members string `json:"members"`
	}{Cmd: CmdLoginAck, Members: string(list)})
}

func EncodeLeave(from domain.ClientID) ([]byte, error) {
	return json.Marshal(struct {
		Cmd  Cmd             `json:"cmd"`
		From domain.ClientID `json:"from"`
	}{Cmd: CmdLeave, From: from})
}

func EncodeError(text string) ([]byte, error) {
	return json.Marshal(struct {
		Error string `json:"error"`
	}{Error: text})
}
