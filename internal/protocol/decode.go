package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceClient/internal/domain"
)

type inboundFrame struct {
	Cmd        string          `json:"cmd"`
	Type       string          `json:"type"`
	From       string          `json:"from"`
	Msg        json.RawMessage `json:"msg"`
	Candidates json.RawMessage `json:"candidates"`
	Members    json.RawMessage `json:"members"`
	Error      string          `json:"error"`
}

// Decode parses an inbound frame. Unknown commands decode to CmdUnknown
// without an error; the caller decides how to report them.
func Decode(data []byte) (Message, error) {
	var f inboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	m := Message{From: domain.ClientID(f.From), Raw: string(data)}

	cmd := f.Cmd
	if cmd == "" && f.Type == string(CmdRemoveCandidates) {
		cmd = f.Type
	}

	switch cmd {
	case string(CmdICE):
		var c candidateJSON
		if err := unmarshalNested(f.Msg, "msg", &c); err != nil {
			return m, err
		}
		cand, err := c.toPion()
		if err != nil {
			return m, err
		}
		m.Cmd = CmdICE
		m.Candidate = &cand
	case string(CmdRemoveCandidates):
		var wire []candidateJSON
		if err := unmarshalNested(f.Candidates, "candidates", &wire); err != nil {
			return m, err
		}
		m.Cmd = CmdRemoveCandidates
		m.Candidates = make([]webrtc.ICECandidateInit, 0, len(wire))
		for _, c := range wire {
			cand, err := c.toPion()
			if err != nil {
				return m, err
			}
			m.Candidates = append(m.Candidates, cand)
		}
	case string(CmdOffer), string(CmdAnswer):
		var d descriptionJSON
		if err := unmarshalNested(f.Msg, "msg", &d); err != nil {
			return m, err
		}
		if d.SDP == nil {
			return m, fmt.Errorf("%w: sdp", ErrMissingField)
		}
		m.Cmd = Cmd(cmd)
		sdpType := webrtc.SDPTypeOffer
		if m.Cmd == CmdAnswer {
			sdpType = webrtc.SDPTypeAnswer
		}
		m.Description = &webrtc.SessionDescription{Type: sdpType, SDP: *d.SDP}
	case string(CmdLeave), string(CmdBye), string(CmdBrowser):
		m.Cmd = Cmd(cmd)
	case string(CmdLoginAck), cmdLoginAckLegacy:
		m.Cmd = CmdLoginAck
		members, err := decodeMembers(f.Members)
		if err != nil {
			return m, err
		}
		m.Members = members
	case "":
		if f.Error == "" {
			m.Cmd = CmdUnknown
			return m, nil
		}
		m.Cmd = CmdError
		m.Error = f.Error
	default:
		m.Cmd = CmdUnknown
	}
	return m, nil
}

// unwrap accepts both an embedded object and a JSON string holding one.
func unwrap(raw json.RawMessage, field string) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, field)
	}
	if raw[0] != '"' {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
	}
	return []byte(s), nil
}

func unmarshalNested(raw json.RawMessage, field string, v any) error {
	inner, err := unwrap(raw, field)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(inner, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
	}
	return nil
}

func decodeMembers(raw json.RawMessage) ([]domain.ClientID, error) {
	inner, err := unwrap(raw, "members")
	if errors.Is(err, ErrMissingField) {
		// a lonely room may omit the list entirely
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(inner)) == 0 {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(inner, &ids); err != nil {
		return nil, fmt.Errorf("%w: members: %v", ErrMalformed, err)
	}
	out := make([]domain.ClientID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.ClientID(id))
	}
	return out, nil
}
