// Package rtc is a pion peer driven by signaling session events. It opens
// one data channel per call, which is enough to prove the call is up.
package rtc

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

const DataChannelLabel = "voice"

var ErrNotStarted = errors.New("peer connection not started")

// Signaler is the outbound half of a signaling session.
type Signaler interface {
	SendOfferSdp(webrtc.SessionDescription)
	SendAnswerSdp(webrtc.SessionDescription)
	SendLocalIceCandidate(webrtc.ICECandidateInit)
	DisconnectFromRoom()
}

// NewAPI builds a pion API whose internal logs go through zerolog.
func NewAPI(opts ...func(*webrtc.SettingEngine)) *webrtc.API {
	se := webrtc.SettingEngine{LoggerFactory: NewLoggerFactory()}
	for _, opt := range opts {
		opt(&se)
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// Peer implements core.Listener.
type Peer struct {
	api      *webrtc.API
	signaler Signaler
	logger   zerolog.Logger

	onMessage func(string)
	onClosed  func()

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	remoteSet bool
	pending   []webrtc.ICECandidateInit
	// local candidates wait until our description went out
	localSent bool
	gathered  []webrtc.ICECandidateInit

	open      chan struct{}
	openOnce  sync.Once
	closeOnce sync.Once
}

func NewPeer(api *webrtc.API, signaler Signaler) *Peer {
	return &Peer{
		api:      api,
		signaler: signaler,
		logger:   log.With().Str("module", "adapters.rtc").Logger(),
		open:     make(chan struct{}),
	}
}

// OnMessage sets the callback for data channel text. Set it before the call starts.
func (p *Peer) OnMessage(fn func(string)) { p.onMessage = fn }

// OnClosed sets the callback fired once the call ended for any reason.
func (p *Peer) OnClosed(fn func()) { p.onClosed = fn }

// Open closes when the data channel is usable.
func (p *Peer) Open() <-chan struct{} { return p.open }

func (p *Peer) Send(text string) error {
	p.mu.Lock()
	dc := p.dc
	p.mu.Unlock()
	if dc == nil {
		return ErrNotStarted
	}
	return dc.SendText(text)
}

func (p *Peer) OnSignalEvent(ev core.Event) {
	switch ev := ev.(type) {
	case core.ConnectedToRoom:
		p.logger.Info().Bool("first", ev.IsFirst).Int("servers", len(ev.Servers)).Msg("connected to room")
		if err := p.start(ev.Servers); err != nil {
			p.fail("start", err)
			return
		}
		if !ev.IsFirst {
			if err := p.offer(); err != nil {
				p.fail("offer", err)
			}
		}
	case core.RemoteDescription:
		if err := p.applyRemote(ev.Description); err != nil {
			p.fail("remote description", err)
		}
	case core.RemoteCandidate:
		if err := p.addCandidate(ev.Candidate); err != nil {
			p.logger.Warn().Err(err).Msg("add ice candidate")
		}
	case core.RemoteCandidatesRemoved:
		// pion has no API to withdraw a remote candidate
		p.logger.Debug().Int("candidates", len(ev.Candidates)).Msg("remote candidates removed")
	case core.ChannelClosed:
		p.logger.Info().Msg("remote end left")
		p.Close()
		p.signaler.DisconnectFromRoom()
	case core.ChannelError:
		p.logger.Error().Str("description", ev.Description).Msg("signaling error")
		p.Close()
		p.signaler.DisconnectFromRoom()
	}
}

func (p *Peer) start(servers []domain.ConnectivityServer) error {
	pc, err := p.api.NewPeerConnection(webrtc.Configuration{ICEServers: domain.ICEServers(servers)})
	if err != nil {
		return err
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cand := c.ToJSON()
		p.mu.Lock()
		if !p.localSent {
			p.gathered = append(p.gathered, cand)
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()
		p.signaler.SendLocalIceCandidate(cand)
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		p.logger.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			p.closed()
		}
	})
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			return
		}
		p.bind(dc)
	})

	p.mu.Lock()
	p.pc = pc
	p.mu.Unlock()
	return nil
}

func (p *Peer) offer() error {
	pc := p.peerConnection()
	if pc == nil {
		return ErrNotStarted
	}
	dc, err := pc.CreateDataChannel(DataChannelLabel, nil)
	if err != nil {
		return err
	}
	p.bind(dc)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return err
	}
	p.signaler.SendOfferSdp(offer)
	p.flushLocal()
	return nil
}

func (p *Peer) applyRemote(desc webrtc.SessionDescription) error {
	pc := p.peerConnection()
	if pc == nil {
		return ErrNotStarted
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		return err
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()
	for _, c := range pending {
		if err := pc.AddICECandidate(c); err != nil {
			p.logger.Warn().Err(err).Msg("add buffered ice candidate")
		}
	}

	if desc.Type != webrtc.SDPTypeOffer {
		return nil
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return err
	}
	p.signaler.SendAnswerSdp(answer)
	p.flushLocal()
	return nil
}

func (p *Peer) addCandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	pc := p.pc
	if pc == nil || !p.remoteSet {
		p.pending = append(p.pending, c)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return pc.AddICECandidate(c)
}

func (p *Peer) flushLocal() {
	p.mu.Lock()
	p.localSent = true
	gathered := p.gathered
	p.gathered = nil
	p.mu.Unlock()
	for _, c := range gathered {
		p.signaler.SendLocalIceCandidate(c)
	}
}

func (p *Peer) bind(dc *webrtc.DataChannel) {
	p.mu.Lock()
	p.dc = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.logger.Info().Str("label", dc.Label()).Msg("data channel open")
		p.openOnce.Do(func() { close(p.open) })
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString && p.onMessage != nil {
			p.onMessage(string(msg.Data))
		}
	})
}

func (p *Peer) peerConnection() *webrtc.PeerConnection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pc
}

func (p *Peer) fail(step string, err error) {
	p.logger.Error().Err(err).Str("step", step).Msg("webrtc")
	p.Close()
}

func (p *Peer) closed() {
	p.closeOnce.Do(func() {
		if p.onClosed != nil {
			p.onClosed()
		}
	})
}

func (p *Peer) Close() {
	pc := p.peerConnection()
	if pc != nil {
		if err := pc.Close(); err != nil {
			p.logger.Error().Err(err).Msg("close error")
		} else {
			p.logger.Info().Msg("closed")
		}
	}
	p.closed()
}
