package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mcdev12/studyroom/go/internal/studyroom/broadcast"
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	NATSURL       string `env:"NATS_URL,default=nats://localhost:4222"`
	Stream        string `env:"NATS_STREAM,default=STUDYROOM_EVENTS"`
	SubjectPrefix string `env:"NATS_SUBJECT_PREFIX,default=studyroom.rooms"`
}

// roomtail prints every event published for a room (or all rooms when no id is given).
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	var roomID string
	if len(os.Args) > 1 {
		roomID = os.Args[1]
	}

	jsCfg := broadcast.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	jsCfg.StreamName = cfg.Stream
	jsCfg.SubjectPrefix = cfg.SubjectPrefix

	sub, err := broadcast.NewSubscriber(jsCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("create subscriber")
	}
	defer func() {
		if err := sub.Close(); err != nil {
			log.Error().Err(err).Msg("close subscriber")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = sub.Tail(ctx, roomID, func(ctx context.Context, ev *events.RoomEvent) error {
		log.Info().
			Str("room_id", ev.RoomID).
			Str("event_type", string(ev.Type)).
			Str("event_id", ev.ID).
			Time("at", ev.Timestamp).
			RawJSON("data", ev.Data).
			Msg("room event")
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("tail failed")
	}
}
