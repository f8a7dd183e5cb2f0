package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	httpadapter "github.com/dkeye/VoiceClient/internal/adapters/http"
	"github.com/dkeye/VoiceClient/internal/adapters/rtc"
	"github.com/dkeye/VoiceClient/internal/adapters/ws"
	"github.com/dkeye/VoiceClient/internal/app/looper"
	"github.com/dkeye/VoiceClient/internal/app/session"
	"github.com/dkeye/VoiceClient/internal/config"
	"github.com/dkeye/VoiceClient/internal/core"
	"github.com/dkeye/VoiceClient/internal/domain"
)

func main() {
	var (
		configPath = flag.String("config", "", "config file (default config/config.<CONFIG_ENV>.yaml)")
		create     = flag.Bool("create", false, "create the room through the rendezvous service instead of joining it")
		room       = flag.String("room", "", "room id, overrides room_id")
		client     = flag.String("client", "", "client id, overrides client_id")
	)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())
	if *room != "" {
		cfg.RoomID = *room
	}
	if *client != "" {
		cfg.ClientID = *client
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("bad config")
	}

	roomID := domain.RoomID(cfg.RoomID)
	clientID := domain.ClientID(cfg.ClientID)
	if clientID == "" {
		clientID = domain.NewClientID()
	}
	signalURL := cfg.SignalURL
	httpClient := httpadapter.NewClient(cfg.HTTPTimeout)

	if cfg.RendezvousURL != "" {
		rv := httpadapter.NewRendezvous(httpClient, cfg.RendezvousURL)
		call := rv.Join
		if *create {
			call = rv.Create
		}
		ticket, err := call(ctx, roomID, clientID)
		if err != nil {
			log.Fatal().Err(err).Msg("rendezvous")
		}
		roomID, clientID = ticket.RoomID, ticket.ClientID
		if strings.HasPrefix(ticket.Host, "ws://") || strings.HasPrefix(ticket.Host, "wss://") {
			signalURL = ticket.Host
		}
		log.Info().Str("room", string(roomID)).Str("character", ticket.Character).Msg("ticket")
	}
	if roomID == "" {
		log.Fatal().Msg("room id required: pass -room or set room_id")
	}

	var directory core.ServerDirectory
	if cfg.DirectoryURL != "" {
		directory = httpadapter.NewDirectory(httpClient, cfg.DirectoryURL)
	}

	opts := ws.DefaultOptions()
	opts.WriteTimeout = cfg.WriteTimeout
	opts.PingPeriod = cfg.PingPeriod
	opts.ReadLimit = cfg.ReadLimit

	// the peer listens to the session and signals through it
	var peer *rtc.Peer
	sess := session.New(
		session.Config{
			SignalURL:    signalURL,
			RoomID:       roomID,
			ClientID:     clientID,
			Servers:      cfg.ICEServers,
			CloseTimeout: cfg.CloseTimeout,
		},
		looper.New("session"),
		ws.NewDialer(opts),
		directory,
		core.ListenerFunc(func(e core.Event) { peer.OnSignalEvent(e) }),
	)
	peer = rtc.NewPeer(rtc.NewAPI(), sess)
	peer.OnMessage(func(text string) {
		log.Info().Str("text", text).Msg("peer says")
	})
	peer.OnClosed(cancel)

	sess.ConnectToRoom(ctx)
	go func() {
		select {
		case <-peer.Open():
			if err := peer.Send("hello from " + string(clientID)); err != nil {
				log.Error().Err(err).Msg("send greeting")
			}
		case <-ctx.Done():
		}
	}()

	<-ctx.Done()
	log.Info().Msg("leaving room")
	sess.DisconnectFromRoom()
	select {
	case <-sess.Done():
	case <-time.After(cfg.CloseTimeout + time.Second):
		log.Warn().Msg("session did not stop in time")
	}
	peer.Close()
}
