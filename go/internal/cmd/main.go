package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := setupRoomStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up room store")
	}
	defer store.repo.Close()

	services, err := setupServices(ctx, cfg, store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	server := setupServer(cfg, services)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := services.Realtime.Start(ctx); err != nil {
			log.Error().Err(err).Msg("realtime service failed")
		}
	}()

	if services.Listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := services.Listener.Start(ctx); err != nil {
				log.Error().Err(err).Msg("room change listener failed")
			}
		}()
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("room_store", cfg.RoomStore).
			Bool("nats", cfg.NATSEnabled).
			Bool("sse", cfg.SSEEnabled).
			Msg("study room server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	wg.Wait()
	log.Info().Msg("study room server shutdown complete")
}
