package ws

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/transport/v3/test"
)

type closeInfo struct {
	code   int
	reason string
}

type recorder struct {
	opened chan struct{}
	texts  chan string
	closed chan closeInfo
	errs   chan error
}

func newRecorder() *recorder {
	return &recorder{
		opened: make(chan struct{}, 1),
		texts:  make(chan string, 16),
		closed: make(chan closeInfo, 1),
		errs:   make(chan error, 1),
	}
}

func (r *recorder) OnOpen() { r.opened <- struct{}{} }
func (r *recorder) OnClose(code int, reason string) { r.closed <- closeInfo{code, reason} }
func (r *recorder) OnError(err error) { r.errs <- err }
func (r *recorder) OnText(text string) { r.texts <- text }

func waitFor[T any](t *testing.T, ch <-chan T, what string) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
		var zero T
		return zero
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// echoServer answers every text frame with "echo:<frame>" and reports what
// it received on got.
func echoServer(t *testing.T, got chan<- string) *url.URL {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			got <- string(data)
			if err := conn.WriteMessage(websocket.TextMessage, append([]byte("echo:"), data...)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	u, err := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestSendReceiveAndClose(t *testing.T) {
	defer test.TimeOut(10 * time.Second).Stop()

	got := make(chan string, 16)
	u := echoServer(t, got)
	rec := newRecorder()

	tr := NewDialer(Options{}).Open(u, rec)
	waitFor(t, rec.opened, "open")

	if err := tr.SendText(`{"cmd":"register"}`); err != nil {
		t.Fatal(err)
	}
	if f := waitFor(t, got, "server frame"); f != `{"cmd":"register"}` {
		t.Fatalf("server got %s", f)
	}
	if f := waitFor(t, rec.texts, "echo"); f != `echo:{"cmd":"register"}` {
		t.Fatalf("client got %s", f)
	}

	tr.Close()
	info := waitFor(t, rec.closed, "close")
	if info.code != websocket.CloseNormalClosure {
		t.Fatalf("close code %d", info.code)
	}
	if err := tr.SendText("late"); !errors.Is(err, ErrTransportClosed) {
		t.Fatalf("send after close: %v", err)
	}
	tr.Close()
}

func TestQueuedFramesFlushedBeforeClose(t *testing.T) {
	got := make(chan string, 16)
	u := echoServer(t, got)
	rec := newRecorder()

	tr := NewDialer(Options{}).Open(u, rec)
	waitFor(t, rec.opened, "open")
	for _, f := range []string{"a", "b", "c"} {
		if err := tr.SendText(f); err != nil {
			t.Fatal(err)
		}
	}
	tr.Close()

	for _, want := range []string{"a", "b", "c"} {
		if f := waitFor(t, got, "server frame"); f != want {
			t.Fatalf("server got %s, want %s", f, want)
		}
	}
	waitFor(t, rec.closed, "close")
}

func TestServerCloseReported(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()
	u, _ := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))

	rec := newRecorder()
	tr := NewDialer(Options{}).Open(u, rec)
	defer tr.Close()

	info := waitFor(t, rec.closed, "close")
	if info.code != websocket.CloseGoingAway || info.reason != "shutting down" {
		t.Fatalf("close=%+v", info)
	}
}

func TestDialFailureReportedAsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))
	srv.Close()

	rec := newRecorder()
	tr := NewDialer(Options{HandshakeTimeout: time.Second}).Open(u, rec)
	defer tr.Close()

	if err := waitFor(t, rec.errs, "error"); err == nil {
		t.Fatal("nil error")
	}
	select {
	case <-rec.opened:
		t.Fatal("opened a refused connection")
	default:
	}
}

func TestCloseWhileDialing(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)
	u, _ := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))

	rec := newRecorder()
	tr := NewDialer(Options{}).Open(u, rec)
	tr.Close()

	waitFor(t, rec.closed, "close")
}

func TestBackpressure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)
	u, _ := url.Parse("ws" + strings.TrimPrefix(srv.URL, "http"))

	rec := newRecorder()
	tr := NewDialer(Options{QueueSize: 2}).Open(u, rec)
	defer tr.Close()

	_ = tr.SendText("1")
	_ = tr.SendText("2")
	if err := tr.SendText("3"); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("err=%v", err)
	}
}
