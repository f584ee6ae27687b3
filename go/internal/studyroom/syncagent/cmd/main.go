package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/mcdev12/studyroom/go/internal/studyroom/syncagent"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	URL      string `env:"STUDYROOM_WS_URL,default=ws://localhost:8080/ws/room" validate:"required,url"`
	Token    string `env:"STUDYROOM_TOKEN"`
	RoomID   string `env:"STUDYROOM_ROOM_ID" validate:"required"`
	UserID   string `env:"STUDYROOM_USER_ID"`
	UserName string `env:"STUDYROOM_USER_NAME,default=Misafir"`
	LogLevel string `env:"LOG_LEVEL,default=warn"`
}

// terminal prints the countdown on a single line.
type terminal struct{}

func (terminal) Render(d syncagent.Display) {
	state := "paused"
	if d.IsRunning {
		state = "running"
	}
	fmt.Printf("\r[%s] %s  %-7s", d.Mode, d.Clock(), state)
}

func (terminal) Notify(roomID string) {
	fmt.Printf("\a\nround finished in %s\n", roomID)
}

func (terminal) Status(msg string) {
	fmt.Printf("\n%s\n", msg)
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatal().Err(err).Msg("config error")
	}
	if err := validator.New().Struct(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	agentCfg := syncagent.DefaultConfig()
	agentCfg.URL = cfg.URL
	agentCfg.Token = cfg.Token
	agentCfg.RoomID = cfg.RoomID
	agentCfg.User = events.JoinUserPayload{ID: cfg.UserID, Name: cfg.UserName}

	agent := syncagent.New(agentCfg, clockwork.NewRealClock(), terminal{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Host commands typed on stdin: start [mode], pause, reset, finish.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			fields := strings.Fields(scanner.Text())
			if len(fields) == 0 {
				continue
			}
			var mode models.TimerMode
			if len(fields) > 1 {
				mode = models.TimerMode(fields[1])
			}
			eventType := events.EventType("room:timer:" + fields[0])
			switch eventType {
			case events.EventTimerStart, events.EventTimerPause, events.EventTimerReset, events.EventTimerFinish:
				if err := agent.Control(eventType, mode); err != nil {
					log.Error().Err(err).Msg("failed to send command")
				}
			default:
				fmt.Println("\ncommands: start [work|short|long], pause, reset, finish")
			}
		}
	}()

	if err := agent.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("sync agent stopped")
	}
	fmt.Println()
}
