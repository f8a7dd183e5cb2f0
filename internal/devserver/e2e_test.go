package devserver

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceClient/internal/adapters/ws"
	"github.com/dkeye/VoiceClient/internal/app/looper"
	"github.com/dkeye/VoiceClient/internal/app/session"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

func joinRoom(t *testing.T, base string, client domain.ClientID) (*session.Session, <-chan core.Event) {
	t.Helper()
	events := make(chan core.Event, 16)
	s := session.New(
		session.Config{
			SignalURL:    "ws" + strings.TrimPrefix(base, "http") + "/ws",
			RoomID:       "e2e",
			ClientID:     client,
			CloseTimeout: time.Second,
		},
		looper.New(string(client)),
		ws.NewDialer(ws.DefaultOptions()),
		nil,
		core.ListenerFunc(func(e core.Event) { events <- e }),
	)
	t.Cleanup(func() {
		s.DisconnectFromRoom()
		<-s.Done()
	})
	s.ConnectToRoom(context.Background())
	return s, events
}

func next[T core.Event](t *testing.T, events <-chan core.Event) T {
	t.Helper()
	select {
	case e := <-events:
		got, ok := e.(T)
		if !ok {
			t.Fatalf("got %T %+v, want %T", e, e, got)
		}
		return got
	case <-time.After(3 * time.Second):
		var zero T
		t.Fatalf("no %T", zero)
		return zero
	}
}

func TestTwoSessionsMeetThroughServer(t *testing.T) {
	defer test.TimeOut(20 * time.Second).Stop()
	base := startServer(t, testConfig())

	alice, aliceEvents := joinRoom(t, base, "alice")
	if ev := next[core.ConnectedToRoom](t, aliceEvents); !ev.IsFirst {
		t.Fatal("alice should be first in the room")
	}
	bob, bobEvents := joinRoom(t, base, "bob")
	if ev := next[core.ConnectedToRoom](t, bobEvents); ev.IsFirst {
		t.Fatal("bob should find alice in the room")
	}
	if got := bob.RemoteID(); got != "alice" {
		t.Fatalf("bob remote=%q", got)
	}

	bob.SendOfferSdp(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 bob"})
	offer := next[core.RemoteDescription](t, aliceEvents)
	if offer.Description.Type != webrtc.SDPTypeOffer || offer.Description.SDP != "v=0 bob" {
		t.Fatalf("alice got %+v", offer.Description)
	}

	alice.SendAnswerSdp(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 alice"})
	answer := next[core.RemoteDescription](t, bobEvents)
	if answer.Description.Type != webrtc.SDPTypeAnswer || answer.Description.SDP != "v=0 alice" {
		t.Fatalf("bob got %+v", answer.Description)
	}

	mid, idx := "0", uint16(0)
	bob.SendLocalIceCandidate(webrtc.ICECandidateInit{Candidate: "candidate:7 1 udp 1 10.0.0.2 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx})
	cand := next[core.RemoteCandidate](t, aliceEvents)
	if !strings.HasPrefix(cand.Candidate.Candidate, "candidate:7") {
		t.Fatalf("alice got %+v", cand.Candidate)
	}

	bob.DisconnectFromRoom()
	<-bob.Done()
	next[core.ChannelClosed](t, aliceEvents)
	if st := alice.State(); st != core.SessionClosed {
		t.Fatalf("alice state=%s", st)
	}
	select {
	case e := <-bobEvents:
		t.Fatalf("bob notified after leaving: %T", e)
	default:
	}
}

func TestSessionReportsServerError(t *testing.T) {
	defer test.TimeOut(20 * time.Second).Stop()
	base := startServer(t, testConfig())

	_, aEvents := joinRoom(t, base, "alice")
	next[core.ConnectedToRoom](t, aEvents)
	_, bEvents := joinRoom(t, base, "bob")
	next[core.ConnectedToRoom](t, bEvents)

	// the room is full, the server answers register with an error frame
	carol, cEvents := joinRoom(t, base, "carol")
	ev := next[core.ChannelError](t, cEvents)
	if ev.Description != "WebSocket error message: "+ErrRoomFull.Error() {
		t.Fatalf("carol got %q", ev.Description)
	}
	if st := carol.State(); st != core.SessionError {
		t.Fatalf("carol state=%s", st)
	}
}
