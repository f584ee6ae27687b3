package main

import (
	"context"
	"fmt"

	"github.com/mcdev12/studyroom/go/internal/dbconfig"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/rooms/memory"
	"github.com/mcdev12/studyroom/go/internal/rooms/postgres"
	"github.com/mcdev12/studyroom/go/internal/rooms/redis"
	"github.com/mcdev12/studyroom/go/internal/studyroom/gateway"
	"github.com/rs/zerolog/log"
)

// roomStore is the durable room backend plus what the server needs to watch it.
type roomStore struct {
	repo   rooms.Repository
	health map[string]gateway.Pinger
	// dsn is set for postgres so external changes can be relayed with LISTEN/NOTIFY
	dsn string
}

func setupRoomStore(ctx context.Context, cfg Config) (*roomStore, error) {
	switch cfg.RoomStore {
	case "postgres":
		dbCfg := dbconfig.NewConfigFromEnv()
		repo, err := postgres.NewRepository(ctx, dbCfg.DSN())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		if err := repo.EnsureSchema(ctx, cfg.PGNotifyChannel); err != nil {
			repo.Close()
			return nil, err
		}
		log.Info().
			Str("host", dbCfg.Host).
			Int("port", dbCfg.Port).
			Str("database", dbCfg.Database).
			Msg("connected to database")
		return &roomStore{
			repo:   repo,
			health: map[string]gateway.Pinger{"postgres": repo},
			dsn:    dbCfg.DSN(),
		}, nil

	case "redis":
		repo, err := redis.NewRepository(redis.Config{
			URI:       cfg.RedisURI,
			Host:      cfg.RedisHost,
			Port:      cfg.RedisPort,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("key_prefix", cfg.RedisKeyPrefix).Msg("connected to redis")
		return &roomStore{repo: repo, health: map[string]gateway.Pinger{"redis": repo}}, nil

	default:
		repo := memory.NewRepository()
		if cfg.RoomFixtures != "" {
			list, err := rooms.LoadFixtures(cfg.RoomFixtures)
			if err != nil {
				return nil, err
			}
			if err := rooms.Seed(ctx, repo, list); err != nil {
				return nil, err
			}
			log.Info().Int("rooms", len(list)).Str("path", cfg.RoomFixtures).Msg("loaded room fixtures")
		} else {
			log.Warn().Msg("memory room store without fixtures; every room lookup will be denied")
		}
		return &roomStore{repo: repo, health: map[string]gateway.Pinger{}}, nil
	}
}
