package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mcdev12/studyroom/go/internal/studyroom/gateway"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Port      string `env:"PORT,default=8080" validate:"required,numeric"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=console" validate:"oneof=console json"`

	RoomStore    string `env:"ROOM_STORE,default=memory" validate:"oneof=memory postgres redis"`
	RoomFixtures string `env:"ROOM_FIXTURES"`

	RedisURI       string `env:"REDIS_URI"`
	RedisHost      string `env:"REDIS_HOST,default=localhost"`
	RedisPort      string `env:"REDIS_PORT,default=6379"`
	RedisPassword  string `env:"REDIS_PASSWORD"`
	RedisDB        int    `env:"REDIS_DB,default=0" validate:"min=0"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX,default=studyroom:"`

	NATSEnabled       bool   `env:"NATS_ENABLED,default=false"`
	NATSURL           string `env:"NATS_URL,default=nats://localhost:4222"`
	NATSStream        string `env:"NATS_STREAM,default=STUDYROOM_EVENTS" validate:"required"`
	NATSSubjectPrefix string `env:"NATS_SUBJECT_PREFIX,default=studyroom.rooms" validate:"required"`

	SSEEnabled bool   `env:"SSE_ENABLED,default=true"`
	JWTSecret  string `env:"JWT_SECRET"`

	HubWorkers       int           `env:"HUB_WORKERS,default=8" validate:"min=1,max=1024"`
	RoomIdleTTL      time.Duration `env:"ROOM_IDLE_TTL,default=30m" validate:"gt=0"`
	EvictionInterval time.Duration `env:"EVICTION_INTERVAL,default=1m" validate:"min=0"`

	PGNotifyChannel string `env:"PG_NOTIFY_CHANNEL,default=study_room_changes" validate:"required"`
}

// loadConfig reads .env (if present) and the environment.
func loadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func setupLogging(cfg Config) {
	if strings.EqualFold(cfg.LogFormat, "console") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func (c Config) gatewayConfig() gateway.Config {
	gc := gateway.DefaultConfig()
	gc.JWTSecret = c.JWTSecret
	gc.SSEEnabled = c.SSEEnabled
	gc.NATSEnabled = c.NATSEnabled

	gc.HubConfig.Workers = c.HubWorkers
	gc.HubConfig.IdleTTL = c.RoomIdleTTL
	gc.HubConfig.EvictionInterval = c.EvictionInterval

	gc.JetStreamConfig.URL = c.NATSURL
	gc.JetStreamConfig.StreamName = c.NATSStream
	gc.JetStreamConfig.SubjectPrefix = c.NATSSubjectPrefix
	return gc
}
