// Package protocol is the JSON wire format spoken with the signaling server.
package protocol

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceClient/internal/domain"
)

type Cmd string

const (
	CmdRegister         Cmd = "register"
	CmdOffer            Cmd = "offer"
	CmdAnswer           Cmd = "answer"
	CmdICE              Cmd = "ice"
	CmdRemoveCandidates Cmd = "remove-candidates"
	CmdBye              Cmd = "bye"
	CmdLeave            Cmd = "leave"
	CmdLoginAck         Cmd = "login-ack"
	CmdBrowser          Cmd = "browser"
	CmdError            Cmd = "error"
	CmdUnknown          Cmd = "unknown"

	// older servers spell the acknowledgement without a dash
	cmdLoginAckLegacy = "loginack"
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrMissingField = errors.New("missing field")
)

// Message is one decoded inbound frame. Only the fields relevant to Cmd are set.
type Message struct {
	Cmd  Cmd
	From domain.ClientID

	Description *webrtc.SessionDescription
	Candidate   *webrtc.ICECandidateInit
	Candidates  []webrtc.ICECandidateInit
	Members     []domain.ClientID
	Error       string

	// Raw keeps the frame for diagnostics.
	Raw string
}

type candidateJSON struct {
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
	SDPMid        *string `json:"sdpMid"`
	Candidate     *string `json:"candidate"`
}

func candidateToWire(c webrtc.ICECandidateInit) candidateJSON {
	var (
		idx uint16
		mid string
	)
	if c.SDPMLineIndex != nil {
		idx = *c.SDPMLineIndex
	}
	if c.SDPMid != nil {
		mid = *c.SDPMid
	}
	cand := c.Candidate
	return candidateJSON{SDPMLineIndex: &idx, SDPMid: &mid, Candidate: &cand}
}

func (c candidateJSON) toPion() (webrtc.ICECandidateInit, error) {
	switch {
	case c.Candidate == nil:
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: candidate", ErrMissingField)
	case c.SDPMid == nil:
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: sdpMid", ErrMissingField)
	case c.SDPMLineIndex == nil:
		return webrtc.ICECandidateInit{}, fmt.Errorf("%w: sdpMLineIndex", ErrMissingField)
	}
	mid := *c.SDPMid
	idx := *c.SDPMLineIndex
	return webrtc.ICECandidateInit{
		Candidate:     *c.Candidate,
		SDPMid:        &mid,
		SDPMLineIndex: &idx,
	}, nil
}

type descriptionJSON struct {
	SDP  *string `json:"sdp"`
	Type string  `json:"type"`
}
