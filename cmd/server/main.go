package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/strafechat/stargate/internal/adapters/bus"
	"github.com/strafechat/stargate/internal/adapters/gateway"
	httpadapter "github.com/strafechat/stargate/internal/adapters/http"
	"github.com/strafechat/stargate/internal/adapters/media"
	"github.com/strafechat/stargate/internal/adapters/p2p"
	"github.com/strafechat/stargate/internal/adapters/store"
	"github.com/strafechat/stargate/internal/app"
	"github.com/strafechat/stargate/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := store.Connect(cfg.ScyllaHosts, cfg.ScyllaKeyspace)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to scylla")
	}
	defer db.Close()

	publisher := bus.NewPublisher(cfg.RedisAddr, cfg.RedisChannel)
	if err := publisher.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer publisher.Close()

	mediaClient := media.NewClient(cfg.MediaHost, cfg.MediaAPIKey, cfg.MediaAPISecret)
	rooms := app.NewRoomManager(mediaClient, mediaClient, cfg.JoinTokenTTL, cfg.RoomEmptyTimeout, cfg.RoomMaxParticipants)
	peerTokens := app.NewTokenManager(cfg.JoinTokenTTL)

	registry := app.NewRegistry()
	verifier := app.SessionVerifier{Users: db}
	broadcaster := &app.Broadcaster{Registry: registry, Users: db, Friends: db}

	gw := &gateway.Controller{
		Registry:          registry,
		Verifier:          verifier,
		Presence:          broadcaster,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatGrace:    cfg.HeartbeatGrace,
	}
	signaling := p2p.NewServer(peerTokens, publisher, cfg.AckTimeout)

	r := httpadapter.SetupRouter(cfg, &httpadapter.Deps{
		Gateway:       gw,
		P2P:           signaling,
		Rooms:         rooms,
		PeerTokens:    peerTokens,
		RoomDir:       db,
		Verifier:      verifier,
		Bus:           publisher,
		Limiter:       httpadapter.NewJoinRateLimiter(cfg.JoinRateLimit, cfg.JoinRateWindow),
		MediaWSHost:   cfg.MediaWSHost,
		RelayQueueMax: cfg.RelayQueueMax,
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("stargate started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("server exited gracefully")
}
