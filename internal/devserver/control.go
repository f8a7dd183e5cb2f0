package devserver

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
)

func (ctl *SignalController) handleFrame(c *signalConn, data []byte) {
	frame, err := protocol.DecodeClientFrame(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "devserver.signal").Msg("bad frame")
		ctl.sendError(c, err.Error())
		return
	}

	switch frame.Cmd {
	case protocol.CmdRegister:
		ctl.handleRegister(c, frame)
	case protocol.CmdOffer, protocol.CmdAnswer, protocol.CmdICE, protocol.CmdRemoveCandidates:
		ctl.handleRelay(c, frame)
	case protocol.CmdBye:
		ctl.leave(c)
	default:
		log.Warn().Str("module", "devserver.signal").Str("cmd", string(frame.Cmd)).Msg("unknown signal")
		ctl.sendError(c, fmt.Sprintf("unknown command %q", frame.Cmd))
	}
}

func (ctl *SignalController) handleRegister(c *signalConn, frame protocol.ClientFrame) {
	if c.registered() {
		ctl.sendError(c, "already registered")
		return
	}
	roomID, err := domain.ParseRoomID(string(frame.RoomID))
	if err != nil {
		ctl.sendError(c, "roomId: "+err.Error())
		return
	}
	clientID, err := domain.ParseClientID(string(frame.ClientID))
	if err != nil {
		ctl.sendError(c, "clientId: "+err.Error())
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(clientID) {
		log.Warn().Str("module", "devserver.signal").Str("client", string(clientID)).Msg("register throttled")
		ctl.sendError(c, "too many registrations")
		return
	}

	members, err := ctl.Registry.Register(roomID, clientID, c)
	if err != nil {
		ctl.sendError(c, err.Error())
		return
	}
	c.room, c.client = roomID, clientID

	ack, err := protocol.EncodeLoginAck(members)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver.signal").Msg("encode login-ack")
		return
	}
	ctl.deliver(c, ack)
	log.Info().Str("module", "devserver.signal").Str("room", string(roomID)).Str("client", string(clientID)).Int("members", len(members)).Msg("register")
}

func (ctl *SignalController) handleRelay(c *signalConn, frame protocol.ClientFrame) {
	if !c.registered() {
		ctl.sendError(c, "not registered")
		return
	}
	if frame.ToID == "" {
		ctl.sendError(c, string(frame.Cmd)+" without toId")
		return
	}
	to, ok := ctl.Registry.Lookup(c.room, frame.ToID)
	if !ok {
		ctl.sendError(c, fmt.Sprintf("unknown peer %q", frame.ToID))
		return
	}
	out, err := frame.Relay(c.client)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver.signal").Msg("relay encode")
		return
	}
	log.Debug().Str("module", "devserver.signal").Str("cmd", string(frame.Cmd)).Str("from", string(c.client)).Str("to", string(frame.ToID)).Msg("relay")
	ctl.deliver(to, out)
}

// leave drops the connection from its room and tells whoever is left.
func (ctl *SignalController) leave(c *signalConn) {
	if !c.registered() {
		return
	}
	from := c.client
	rest := ctl.Registry.Unregister(c.room, from, c)
	c.room, c.client = "", ""

	frame, err := protocol.EncodeLeave(from)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver.signal").Msg("encode leave")
		return
	}
	for _, peer := range rest {
		ctl.deliver(peer, frame)
	}
}

// deliver queues a frame; a peer that cannot keep up is disconnected.
func (ctl *SignalController) deliver(c *signalConn, frame []byte) {
	err := c.TrySend(frame)
	switch {
	case err == nil, errors.Is(err, ErrConnClosed):
	case errors.Is(err, ErrBackpressure):
		log.Warn().Str("module", "devserver.signal").Msg("slow peer kicked")
		c.Close()
	}
}

func (ctl *SignalController) sendError(c *signalConn, text string) {
	frame, err := protocol.EncodeError(text)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver.signal").Msg("encode error frame")
		return
	}
	ctl.deliver(c, frame)
}
