package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceClient/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func TestCandidateRoundTrip(t *testing.T) {
	in := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2122260223 192.0.2.10 54321 typ host",
		SDPMid:        ptr("0"),
		SDPMLineIndex: ptr(uint16(1)),
	}
	frame, err := EncodeCandidate(in, "peer1")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	msg, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Cmd != CmdICE || msg.Candidate == nil {
		t.Fatalf("unexpected message: %+v", msg)
	}
	got := *msg.Candidate
	if got.Candidate != in.Candidate || *got.SDPMid != *in.SDPMid || *got.SDPMLineIndex != *in.SDPMLineIndex {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestCandidateRemovalsRoundTrip(t *testing.T) {
	in := []webrtc.ICECandidateInit{
		{Candidate: "candidate:a", SDPMid: ptr("audio"), SDPMLineIndex: ptr(uint16(0))},
		{Candidate: "candidate:b", SDPMid: ptr("video"), SDPMLineIndex: ptr(uint16(1))},
	}
	frame, err := EncodeCandidateRemovals(in, "peer1")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	var shape map[string]any
	if err := json.Unmarshal([]byte(frame), &shape); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if shape["type"] != "remove-candidates" {
		t.Fatalf("missing type tag: %s", frame)
	}

	msg, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Cmd != CmdRemoveCandidates || len(msg.Candidates) != 2 {
		t.Fatalf("unexpected message: %+v", msg)
	}
	for i := range in {
		if msg.Candidates[i].Candidate != in[i].Candidate || *msg.Candidates[i].SDPMid != *in[i].SDPMid {
			t.Fatalf("candidate %d mismatch: %+v", i, msg.Candidates[i])
		}
	}
}

func TestEncodeRegisterShape(t *testing.T) {
	frame, err := EncodeRegister("room1", "alice")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"cmd":"register","roomId":"room1","clientId":"alice"}`
	if frame != want {
		t.Fatalf("frame=%s, want %s", frame, want)
	}
}

func TestEncodeOfferShape(t *testing.T) {
	frame, err := EncodeOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, "peer1")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"cmd":"offer","msg":{"sdp":"v=0","type":"offer"},"toId":"peer1"}`
	if frame != want {
		t.Fatalf("frame=%s, want %s", frame, want)
	}
}

func TestDecodeAcceptsStringEncodedMsg(t *testing.T) {
	frame := `{"cmd":"answer","from":"peer1","msg":"{\"sdp\":\"v=0\",\"type\":\"answer\"}"}`
	msg, err := Decode([]byte(frame))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Cmd != CmdAnswer || msg.From != "peer1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.Description.Type != webrtc.SDPTypeAnswer || msg.Description.SDP != "v=0" {
		t.Fatalf("unexpected description: %+v", msg.Description)
	}
}

func TestDecodeLoginAck(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  []domain.ClientID
	}{
		{name: "string list", frame: `{"cmd":"login-ack","members":"[\"me\",\"peer1\"]"}`, want: []domain.ClientID{"me", "peer1"}},
		{name: "raw list", frame: `{"cmd":"login-ack","members":["peer1"]}`, want: []domain.ClientID{"peer1"}},
		{name: "legacy spelling", frame: `{"cmd":"loginack","members":"[]"}`, want: []domain.ClientID{}},
		{name: "absent", frame: `{"cmd":"login-ack"}`, want: nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := Decode([]byte(tc.frame))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Cmd != CmdLoginAck {
				t.Fatalf("cmd=%q", msg.Cmd)
			}
			if len(msg.Members) != len(tc.want) {
				t.Fatalf("members=%v, want %v", msg.Members, tc.want)
			}
			for i := range tc.want {
				if msg.Members[i] != tc.want[i] {
					t.Fatalf("members=%v, want %v", msg.Members, tc.want)
				}
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		err   error
	}{
		{name: "not json", frame: `{`, err: ErrMalformed},
		{name: "ice without msg", frame: `{"cmd":"ice","from":"p"}`, err: ErrMissingField},
		{name: "ice without sdpMid", frame: `{"cmd":"ice","msg":{"sdpMLineIndex":0,"candidate":"c"}}`, err: ErrMissingField},
		{name: "offer without sdp", frame: `{"cmd":"offer","msg":{"type":"offer"}}`, err: ErrMissingField},
		{name: "bad members", frame: `{"cmd":"login-ack","members":"not json"}`, err: ErrMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.frame))
			if !errors.Is(err, tc.err) {
				t.Fatalf("err=%v, want %v", err, tc.err)
			}
		})
	}
}

func TestDecodeUntaggedFrames(t *testing.T) {
	msg, err := Decode([]byte(`{"error":"room full"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Cmd != CmdError || msg.Error != "room full" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	msg, err = Decode([]byte(`{"cmd":"dance"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Cmd != CmdUnknown {
		t.Fatalf("cmd=%q", msg.Cmd)
	}
}

func TestServerListRoundTrip(t *testing.T) {
	in := []domain.ConnectivityServer{
		{URL: "stun:stun.example.com:3478"},
		{URL: "turn:turn.example.com:3478", Username: "u", Credential: "p"},
	}
	data, err := EncodeServerList(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeServerList(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("servers=%v", out)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("servers[%d]=%+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestDecodeServerListObjectPayloadWithURLs(t *testing.T) {
	data := `{"d":{"iceServers":[{"urls":["stun:a","stun:b"]},{"url":"turn:c","username":"u","credential":"p"}]}}`
	out, err := DecodeServerList([]byte(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 3 || out[0].URL != "stun:a" || out[2].Username != "u" {
		t.Fatalf("unexpected servers: %+v", out)
	}
}

func TestRelayStampsSender(t *testing.T) {
	frame, _ := EncodeAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, "bob")
	cf, err := DecodeClientFrame([]byte(frame))
	if err != nil {
		t.Fatalf("decode client frame: %v", err)
	}
	if cf.Cmd != CmdAnswer || cf.ToID != "bob" {
		t.Fatalf("unexpected header: %+v", cf)
	}
	relayed, err := cf.Relay("alice")
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	msg, err := Decode(relayed)
	if err != nil {
		t.Fatalf("decode relayed: %v", err)
	}
	if msg.From != "alice" || msg.Cmd != CmdAnswer {
		t.Fatalf("unexpected relayed message: %+v", msg)
	}
}

func TestLoginAckEncodesMembersAsString(t *testing.T) {
	data, err := EncodeLoginAck([]domain.ClientID{"peer1"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := `{"cmd":"login-ack","members":"[\"peer1\"]"}`
	if string(data) != want {
		t.Fatalf("frame=%s, want %s", data, want)
	}
}
