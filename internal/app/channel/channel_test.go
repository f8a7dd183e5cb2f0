package channel

import (
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/pion/transport/v3/test"

	"github.com/dkeye/VoiceClient/internal/app/looper"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/protocol"
)

type fakeTransport struct {
	mu      sync.Mutex
	frames  []string
	closed  bool
	sendErr error

	events     core.TransportEvents
	closeDelay time.Duration
	silent     bool
}

func (f *fakeTransport) SendText(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, text)
	return nil
}

func (f *fakeTransport) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	if f.silent {
		return
	}
	go func() {
		time.Sleep(f.closeDelay)
		f.events.OnClose(1000, "bye")
	}()
}

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.frames...)
}

type fakeDialer struct {
	transport *fakeTransport
	opened    chan *url.URL
}

func (d *fakeDialer) Open(endpoint *url.URL, events core.TransportEvents) core.Transport {
	d.transport.events = events
	d.opened <- endpoint
	return d.transport
}

type recorder struct {
	mu       sync.Mutex
	messages []string
	closes   int
	errs     []string
	notify   chan struct{}
}

func newRecorder() *recorder { return &recorder{notify: make(chan struct{}, 16)} }

func (r *recorder) OnChannelMessage(m string) {
	r.mu.Lock()
	r.messages = append(r.messages, m)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) OnChannelClose() {
	r.mu.Lock()
	r.closes++
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) OnChannelError(d string) {
	r.mu.Lock()
	r.errs = append(r.errs, d)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.notify:
	case <-time.After(time.Second):
		t.Fatal("no channel event")
	}
}

type harness struct {
	l         *looper.Looper
	ch        *Channel
	transport *fakeTransport
	dialer    *fakeDialer
	events    *recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		l:         looper.New(t.Name()),
		transport: &fakeTransport{},
		events:    newRecorder(),
	}
	h.dialer = &fakeDialer{transport: h.transport, opened: make(chan *url.URL, 1)}
	h.l.RequestStart()
	h.ch = New(h.l, h.dialer, h.events, "room1", "alice", opts...)
	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.l.RequestStop()
	select {
	case <-h.l.Done():
	case <-time.After(2 * time.Second):
		t.Error("looper did not exit")
	}
}

// do runs fn on the looper and waits for it to return.
func (h *harness) do(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	h.l.Execute(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("looper task timed out")
	}
}

func (h *harness) state(t *testing.T) core.ConnState {
	t.Helper()
	var s core.ConnState
	h.do(t, func() { s = h.ch.State() })
	return s
}

func (h *harness) connectAndOpen(t *testing.T) {
	t.Helper()
	h.do(t, func() { h.ch.Connect("ws://signal.test/ws") })
	<-h.dialer.opened
	wsObserver{c: h.ch}.OnOpen()
	h.do(t, func() {})
}

func TestConnectOpenRegistersAndFlushes(t *testing.T) {
	defer test.CheckRoutines(t)()
	h := newHarness(t)
	defer h.stop(t)

	h.do(t, func() {
		h.ch.Send("early-1")
		h.ch.Send("early-2")
	})
	h.connectAndOpen(t)

	if s := h.state(t); s != core.ConnRegistered {
		t.Fatalf("state=%s", s)
	}
	h.do(t, func() { h.ch.Send("late") })

	register, _ := protocol.EncodeRegister("room1", "alice")
	want := []string{register, "early-1", "early-2", "late"}
	got := h.transport.sent()
	if len(got) != len(want) {
		t.Fatalf("sent %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sent %v, want %v", got, want)
		}
	}
}

func TestInboundTextForwarded(t *testing.T) {
	h := newHarness(t)
	defer h.stop(t)
	h.connectAndOpen(t)

	wsObserver{c: h.ch}.OnText(`{"cmd":"browser"}`)
	h.events.wait(t)

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if len(h.events.messages) != 1 || h.events.messages[0] != `{"cmd":"browser"}` {
		t.Fatalf("messages=%v", h.events.messages)
	}
}

func TestDisconnectWaitsForCloseNotification(t *testing.T) {
	h := newHarness(t)
	defer h.stop(t)
	h.transport.closeDelay = 50 * time.Millisecond
	h.connectAndOpen(t)

	var elapsed time.Duration
	h.do(t, func() {
		start := time.Now()
		h.ch.Disconnect(true)
		elapsed = time.Since(start)
	})

	if elapsed < h.transport.closeDelay {
		t.Fatalf("disconnect returned after %v, before the close notification", elapsed)
	}
	if elapsed >= DefaultCloseTimeout {
		t.Fatalf("disconnect waited for the full timeout (%v)", elapsed)
	}
	sent := h.transport.sent()
	if len(sent) == 0 || sent[len(sent)-1] != protocol.EncodeBye() {
		t.Fatalf("last frame %v, want bye", sent)
	}
	if s := h.state(t); s != core.ConnClosed {
		t.Fatalf("state=%s", s)
	}
	// Our own disconnect never surfaces as a remote close.
	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if h.events.closes != 0 {
		t.Fatalf("closes=%d", h.events.closes)
	}
}

func TestDisconnectWaitIsBounded(t *testing.T) {
	h := newHarness(t, WithCloseTimeout(80*time.Millisecond))
	defer h.stop(t)
	h.transport.silent = true
	h.connectAndOpen(t)

	var elapsed time.Duration
	h.do(t, func() {
		start := time.Now()
		h.ch.Disconnect(true)
		elapsed = time.Since(start)
	})
	if elapsed < 80*time.Millisecond || elapsed > time.Second {
		t.Fatalf("elapsed=%v", elapsed)
	}
}

func TestTransportErrorsReportedOnce(t *testing.T) {
	h := newHarness(t)
	defer h.stop(t)
	h.connectAndOpen(t)

	obs := wsObserver{c: h.ch}
	obs.OnError(errors.New("reset"))
	obs.OnError(errors.New("reset again"))
	h.events.wait(t)
	h.do(t, func() {})

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if len(h.events.errs) != 1 {
		t.Fatalf("errs=%v", h.events.errs)
	}
}

func TestRemoteCloseReportedOnce(t *testing.T) {
	h := newHarness(t)
	defer h.stop(t)
	h.connectAndOpen(t)

	obs := wsObserver{c: h.ch}
	obs.OnClose(1006, "gone")
	obs.OnClose(1006, "gone")
	h.events.wait(t)
	h.do(t, func() {})

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if h.events.closes != 1 {
		t.Fatalf("closes=%d", h.events.closes)
	}
}

func TestSendFailureMovesToError(t *testing.T) {
	h := newHarness(t)
	defer h.stop(t)
	h.connectAndOpen(t)

	h.transport.mu.Lock()
	h.transport.sendErr = errors.New("broken pipe")
	h.transport.mu.Unlock()

	h.do(t, func() { h.ch.Send("x") })
	h.events.wait(t)
	if s := h.state(t); s != core.ConnError {
		t.Fatalf("state=%s", s)
	}
}

func TestFailedByeDuringDisconnectIsNotReported(t *testing.T) {
	h := newHarness(t)
	defer h.stop(t)
	h.connectAndOpen(t)

	h.transport.mu.Lock()
	h.transport.sendErr = errors.New("broken pipe")
	h.transport.mu.Unlock()

	h.do(t, func() { h.ch.Disconnect(true) })
	h.do(t, func() {})
	if s := h.state(t); s != core.ConnClosed {
		t.Fatalf("state=%s", s)
	}

	h.events.mu.Lock()
	defer h.events.mu.Unlock()
	if len(h.events.errs) != 0 || h.events.closes != 0 {
		t.Fatalf("errs=%v closes=%d", h.events.errs, h.events.closes)
	}
}

func TestMalformedEndpointReportsError(t *testing.T) {
	h := newHarness(t)
	defer h.stop(t)

	h.do(t, func() { h.ch.Connect("http://nope") })
	h.events.wait(t)
	if s := h.state(t); s != core.ConnError {
		t.Fatalf("state=%s", s)
	}
	select {
	case <-h.dialer.opened:
		t.Fatal("malformed endpoint must not be dialed")
	default:
	}
}

func TestMethodsPanicOffLoop(t *testing.T) {
	h := newHarness(t)
	defer h.stop(t)

	defer func() {
		var wt *looper.WrongThreadError
		err, _ := recover().(error)
		if !errors.As(err, &wt) {
			t.Fatalf("expected WrongThreadError, got %v", err)
		}
	}()
	h.ch.Send("off loop")
}
