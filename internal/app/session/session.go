// Package session drives one room visit: it fetches connectivity servers,
// opens the signaling channel, keeps the member roster and turns inbound
// frames into listener events.
package session

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/app/channel"
	"github.com/dkeye/VoiceClient/internal/app/looper"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

// Config holds what a session needs to join one room.
type Config struct {
	SignalURL    string
	RoomID       domain.RoomID
	ClientID     domain.ClientID
	Servers      []domain.ConnectivityServer
	CloseTimeout time.Duration
}

// Session drives one room membership over a channel. Public methods are safe
// from any goroutine, the work runs on the session looper.
type Session struct {
	cfg       Config
	looper    *looper.Looper
	dialer    core.Dialer
	directory core.ServerDirectory
	listener  core.Listener
	logger    zerolog.Logger

	room Room
	ch   *channel.Channel
}

// New starts the looper. directory may be nil, then cfg.Servers is used as is.
func New(
	cfg Config,
	l *looper.Looper,
	dialer core.Dialer,
	directory core.ServerDirectory,
	listener core.Listener,
) *Session {
	if cfg.ClientID == "" {
		cfg.ClientID = domain.NewClientID()
	}
	s := &Session{
		cfg:       cfg,
		looper:    l,
		dialer:    dialer,
		directory: directory,
		listener:  listener,
		room:      NewRoom(cfg.ClientID),
		logger: log.With().
			Str("module", "app.session").
			Str("room", string(cfg.RoomID)).
			Str("client", string(cfg.ClientID)).
			Logger(),
	}
	l.RequestStart()
	return s
}

func (s *Session) ClientID() domain.ClientID { return s.cfg.ClientID }

func (s *Session) ConnectToRoom(ctx context.Context) {
	s.post(func() {
		s.logger.Info().Str("endpoint", s.cfg.SignalURL).Msg("connect to room")
		s.dispatchCtx(ctx, Join{UseDirectory: s.directory != nil, Static: s.cfg.Servers})
	})
}

func (s *Session) SendOfferSdp(sdp webrtc.SessionDescription) {
	s.post(func() { s.dispatch(SendOffer{Description: sdp}) })
}

func (s *Session) SendAnswerSdp(sdp webrtc.SessionDescription) {
	s.post(func() { s.dispatch(SendAnswer{Description: sdp}) })
}

func (s *Session) SendLocalIceCandidate(c webrtc.ICECandidateInit) {
	s.post(func() { s.dispatch(SendCandidate{Candidate: c}) })
}

func (s *Session) SendLocalIceCandidateRemovals(cs []webrtc.ICECandidateInit) {
	s.post(func() { s.dispatch(SendRemovals{Candidates: cs}) })
}

// DisconnectFromRoom closes the channel and stops the looper once the
// disconnect task ran. The session cannot be reused afterwards.
func (s *Session) DisconnectFromRoom() {
	s.post(func() {
		s.logger.Info().Str("state", s.room.State.String()).Msg("disconnect from room")
		s.dispatch(Leave{})
	})
	s.looper.RequestStop()
}

// Done closes when the session looper has exited.
func (s *Session) Done() <-chan struct{} { return s.looper.Done() }

func (s *Session) State() core.SessionState {
	var st core.SessionState
	s.query(func() { st = s.room.State })
	return st
}

func (s *Session) Roster() []domain.ClientID {
	var ids []domain.ClientID
	s.query(func() { ids = s.room.Roster.IDs() })
	return ids
}

func (s *Session) RemoteID() domain.ClientID {
	var id domain.ClientID
	s.query(func() { id = s.room.RemoteID })
	return id
}

// OnChannelMessage implements core.ChannelEvents.
func (s *Session) OnChannelMessage(text string) {
	s.looper.CheckOnLoop()
	registered := s.ch != nil && s.ch.State() == core.ConnRegistered
	s.dispatch(Inbound{Payload: text, Registered: registered})
}

func (s *Session) OnChannelClose() {
	s.looper.CheckOnLoop()
	s.dispatch(ChannelClosed{})
}

func (s *Session) OnChannelError(description string) {
	s.looper.CheckOnLoop()
	s.dispatch(ChannelFailed{Description: description})
}

func (s *Session) post(task func()) {
	if !s.looper.Execute(task) {
		s.logger.Warn().Msg("session looper is not running, call dropped")
	}
}

// query runs fn on the looper and waits for it. Once the looper exited the
// state is frozen and fn runs on the caller.
func (s *Session) query(fn func()) {
	if s.looper.OnLoop() {
		fn()
		return
	}
	done := make(chan struct{})
	if s.looper.Execute(func() {
		defer close(done)
		fn()
	}) {
		select {
		case <-done:
			return
		case <-s.looper.Done():
			// the task may still have run before the exit
			select {
			case <-done:
				return
			default:
			}
		}
	} else {
		<-s.looper.Done()
	}
	fn()
}

func (s *Session) dispatch(ev Event) {
	s.dispatchCtx(context.Background(), ev)
}

func (s *Session) dispatchCtx(ctx context.Context, ev Event) {
	prev := s.room.State
	next, effects := Step(s.room, ev)
	s.room = next
	if prev != next.State {
		s.logger.Debug().
			Str("from", prev.String()).
			Str("to", next.State.String()).
			Msgf("%T", ev)
	}
	s.apply(ctx, effects)
}

func (s *Session) apply(ctx context.Context, effects []Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case FetchServers:
			s.fetchServers(ctx)
		case OpenChannel:
			s.openChannel()
		case ChannelSend:
			if s.ch == nil {
				s.logger.Warn().Str("frame", e.Text).Msg("no channel, frame dropped")
				continue
			}
			s.ch.Send(e.Text)
		case CloseChannel:
			if s.ch != nil {
				s.ch.Disconnect(true)
			}
		case Notify:
			s.logger.Debug().Msgf("event %T", e.Event)
			s.listener.OnSignalEvent(e.Event)
		case Diagnostic:
			s.logger.WithLevel(e.Level).Msg(e.Message)
		}
	}
}

func (s *Session) fetchServers(ctx context.Context) {
	go func() {
		servers, err := s.directory.Fetch(ctx)
		if err != nil {
			s.post(func() { s.dispatch(FetchFailed{Err: err}) })
			return
		}
		s.logger.Debug().Int("servers", len(servers)).Msg("server list fetched")
		s.post(func() { s.dispatch(ServersFetched{Servers: servers}) })
	}()
}

func (s *Session) openChannel() {
	s.ch = channel.New(
		s.looper,
		s.dialer,
		s,
		s.cfg.RoomID,
		s.cfg.ClientID,
		channel.WithCloseTimeout(s.cfg.CloseTimeout),
	)
	s.ch.Connect(s.cfg.SignalURL)
}
