package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/studyroom/gateway"
)

type Services struct {
	Realtime *gateway.Service
	// Listener relays room record changes made outside the realtime layer; nil unless postgres.
	Listener *rooms.Listener
}

func setupServices(ctx context.Context, cfg Config, store *roomStore) (*Services, error) {
	// Wire up dependency chain
	// Room store → Hub (timers, presence, authority, announcements) → Gateway transports
	realtime, err := gateway.NewService(ctx, cfg.gatewayConfig(), gateway.Deps{
		Rooms:  store.repo,
		Health: store.health,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create realtime service: %w", err)
	}

	services := &Services{Realtime: realtime}
	if store.dsn == "" {
		return services, nil
	}

	listenerCfg := rooms.DefaultListenerConfig()
	listenerCfg.DatabaseURL = store.dsn
	listenerCfg.NotifyChannel = cfg.PGNotifyChannel
	listener, err := rooms.NewListener(listenerCfg, realtime.Hub().HandleRoomChange)
	if err != nil {
		return nil, fmt.Errorf("failed to create room change listener: %w", err)
	}
	services.Listener = listener
	return services, nil
}
