package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// EventHandler receives each decoded room event.
type EventHandler func(ctx context.Context, event *events.RoomEvent) error

// Subscriber reads room events back from the stream with an ordered, ephemeral consumer,
// so every process gets its own cursor and nothing has to be acked.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	config JetStreamConfig
}

func NewSubscriber(cfg JetStreamConfig) (*Subscriber, error) {
	nc, js, err := connect(cfg)
	if err != nil {
		return nil, err
	}
	return &Subscriber{nc: nc, js: js, config: cfg}, nil
}

// Tail delivers new events of roomID, or of every room when roomID is empty, until ctx is done.
func (s *Subscriber) Tail(ctx context.Context, roomID string, handle EventHandler) error {
	filter := s.config.SubjectPrefix + ".>"
	if roomID != "" {
		filter = RoomSubjects(s.config.SubjectPrefix, roomID)
	}

	consumer, err := s.js.OrderedConsumer(ctx, s.config.StreamName, jetstream.OrderedConsumerConfig{
		FilterSubjects: []string{filter},
		DeliverPolicy:  jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	messageCh := make(chan jetstream.Msg, 100)
	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	log.Info().
		Str("stream", s.config.StreamName).
		Str("filter", filter).
		Msg("tailing room events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-messageCh:
			event, err := DecodeMessage(msg.Data())
			if err != nil {
				log.Error().Err(err).Str("subject", msg.Subject()).Msg("failed to decode room event")
				continue
			}
			if err := handle(ctx, event); err != nil {
				log.Error().Err(err).Str("event_id", event.ID).Msg("room event handler failed")
			}
		}
	}
}

func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}

// DecodeMessage parses a published room event.
func DecodeMessage(data []byte) (*events.RoomEvent, error) {
	var event events.RoomEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal room event: %w", err)
	}
	if event.RoomID == "" || event.Type == "" {
		return nil, fmt.Errorf("room event %q missing room or type", event.ID)
	}
	return &event, nil
}
