package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceClient/internal/domain"
)

type registerFrame struct {
	Cmd      Cmd             `json:"cmd"`
	RoomID   domain.RoomID   `json:"roomId"`
	ClientID domain.ClientID `json:"clientId"`
}

type directedFrame struct {
	Cmd  Cmd             `json:"cmd"`
	Msg  any             `json:"msg"`
	ToID domain.ClientID `json:"toId"`
}

type removalFrame struct {
	Type       Cmd             `json:"type"`
	Cmd        Cmd             `json:"cmd"`
	ToID       domain.ClientID `json:"toId,omitempty"`
	Candidates []candidateJSON `json:"candidates"`
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode frame: %w", err)
	}
	return string(b), nil
}

func EncodeRegister(room domain.RoomID, client domain.ClientID) (string, error) {
	return encode(registerFrame{Cmd: CmdRegister, RoomID: room, ClientID: client})
}

func EncodeOffer(sdp webrtc.SessionDescription, to domain.ClientID) (string, error) {
	return encodeDescription(CmdOffer, sdp.SDP, to)
}

func EncodeAnswer(sdp webrtc.SessionDescription, to domain.ClientID) (string, error) {
	return encodeDescription(CmdAnswer, sdp.SDP, to)
}

func encodeDescription(cmd Cmd, sdp string, to domain.ClientID) (string, error) {
	desc := descriptionJSON{SDP: &sdp, Type: string(cmd)}
	return encode(directedFrame{Cmd: cmd, Msg: desc, ToID: to})
}

func EncodeCandidate(c webrtc.ICECandidateInit, to domain.ClientID) (string, error) {
	return encode(directedFrame{Cmd: CmdICE, Msg: candidateToWire(c), ToID: to})
}

// EncodeCandidateRemovals keeps the legacy "type" tag and adds cmd/toId so
// the server can route it like the other directed frames.
func EncodeCandidateRemovals(cs []webrtc.ICECandidateInit, to domain.ClientID) (string, error) {
	wire := make([]candidateJSON, 0, len(cs))
	for _, c := range cs {
		wire = append(wire, candidateToWire(c))
	}
	return encode(removalFrame{Type: CmdRemoveCandidates, Cmd: CmdRemoveCandidates, ToID: to, Candidates: wire})
}

func EncodeBye() string {
	return `{"cmd":"bye"}`
}
