// Package devserver is a small rendezvous, directory and signaling server
// speaking the client's wire protocol. It is meant for local runs and tests.
package devserver

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceClient/internal/config"
	"github.com/dkeye/VoiceClient/internal/domain"
	"github.com/dkeye/VoiceClient/internal/protocol"
)

// Rendezvous result codes besides domain.TicketSuccess.
const (
	RetBadRequest   = "BAD_REQUEST"
	RetRoomExists   = "ROOM_EXISTS"
	RetRoomNotFound = "ROOM_NOT_FOUND"
	RetRoomFull     = "ROOM_FULL"
)

const sessionClientKey = "client_id"

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

type Server struct {
	Registry *Registry
	Signal   *SignalController
	Servers  []domain.ConnectivityServer

	mode   string
	secret string
}

func New(cfg *config.Config) *Server {
	reg := NewRegistry()
	ctl := NewSignalController(reg, NewRegisterLimiter(cfg.RegisterRate, cfg.RegisterBurst))
	if cfg.WriteTimeout > 0 {
		ctl.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.ReadLimit > 0 {
		ctl.ReadLimit = cfg.ReadLimit
	}
	return &Server{
		Registry: reg,
		Signal:   ctl,
		Servers:  cfg.ICEServers,
		mode:     cfg.Mode,
		secret:   cfg.Secret,
	}
}

// Router wires the endpoints. Signaling sockets are closed when ctx ends.
func (s *Server) Router(ctx context.Context) *gin.Engine {
	if s.mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if s.mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(s.secret))
	r.Use(sessions.Sessions("VoiceSessions", store))
	r.Use(ClientTokenMiddleware())

	login := r.Group("/login")
	login.POST("/create", s.handleCreate)
	login.POST("/join", s.handleJoin)

	r.GET("/ice", s.handleDirectory)
	r.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Registry.List())
	})
	r.GET("/ws", func(c *gin.Context) {
		s.Signal.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "devserver").Int("ice_servers", len(s.Servers)).Msg("router setup")
	return r
}

func (s *Server) handleCreate(c *gin.Context) {
	req, ok := s.bindRendezvous(c)
	if !ok {
		return
	}
	if req.RoomID == "" {
		req.RoomID = domain.RoomID(uuid.NewString())
	}
	if err := s.Registry.Create(req.RoomID, req.ClientID); err != nil {
		s.reject(c, req, RetRoomExists, err)
		return
	}
	s.ticket(c, req, "caller")
}

func (s *Server) handleJoin(c *gin.Context) {
	req, ok := s.bindRendezvous(c)
	if !ok {
		return
	}
	err := s.Registry.Reserve(req.RoomID, req.ClientID)
	switch {
	case errors.Is(err, ErrRoomNotFound):
		s.reject(c, req, RetRoomNotFound, err)
	case errors.Is(err, ErrRoomFull):
		s.reject(c, req, RetRoomFull, err)
	case err != nil:
		s.reject(c, req, RetBadRequest, err)
	default:
		s.ticket(c, req, "callee")
	}
}

// bindRendezvous decodes the body and settles the client id: the body wins,
// then the cookie session, then the client token.
func (s *Server) bindRendezvous(c *gin.Context) (protocol.RendezvousRequest, bool) {
	var req protocol.RendezvousRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.RoomTicket{Ret: RetBadRequest})
		return req, false
	}

	session := sessions.Default(c)
	if req.ClientID == "" {
		if id, ok := session.Get(sessionClientKey).(string); ok {
			req.ClientID = domain.ClientID(id)
		} else {
			req.ClientID = domain.ClientID(c.GetString("client_token"))
		}
	}

	if req.RoomID != "" {
		if _, err := domain.ParseRoomID(string(req.RoomID)); err != nil {
			c.JSON(http.StatusBadRequest, domain.RoomTicket{Ret: RetBadRequest})
			return req, false
		}
	}
	if _, err := domain.ParseClientID(string(req.ClientID)); err != nil {
		c.JSON(http.StatusBadRequest, domain.RoomTicket{Ret: RetBadRequest})
		return req, false
	}

	session.Set(sessionClientKey, string(req.ClientID))
	if err := session.Save(); err != nil {
		log.Warn().Err(err).Str("module", "devserver").Msg("save session")
	}
	return req, true
}

func (s *Server) ticket(c *gin.Context, req protocol.RendezvousRequest, character string) {
	scheme := "ws"
	if c.Request.TLS != nil {
		scheme = "wss"
	}
	t := domain.RoomTicket{
		Ret:       domain.TicketSuccess,
		ClientID:  req.ClientID,
		RoomID:    req.RoomID,
		Host:      scheme + "://" + c.Request.Host + "/ws",
		Character: character,
	}
	log.Info().Str("module", "devserver").Str("room", string(t.RoomID)).Str("client", string(t.ClientID)).Str("character", character).Msg("ticket")
	c.JSON(http.StatusOK, t)
}

func (s *Server) reject(c *gin.Context, req protocol.RendezvousRequest, ret string, err error) {
	log.Info().Err(err).Str("module", "devserver").Str("room", string(req.RoomID)).Str("client", string(req.ClientID)).Msg("rendezvous rejected")
	c.JSON(http.StatusOK, domain.RoomTicket{Ret: ret, ClientID: req.ClientID, RoomID: req.RoomID})
}

func (s *Server) handleDirectory(c *gin.Context) {
	body, err := protocol.EncodeServerList(s.Servers)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("encode server list")
		c.Status(http.StatusInternalServerError)
		return
	}
	c.Data(http.StatusOK, "application/json", body)
}
