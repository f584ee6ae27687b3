package hub

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/studyroom/announcement"
	"github.com/mcdev12/studyroom/go/internal/studyroom/authority"
	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/mcdev12/studyroom/go/internal/studyroom/presence"
	"github.com/mcdev12/studyroom/go/internal/studyroom/timer"
	"github.com/rs/zerolog/log"
)

// ErrStopped is returned when work is posted to a hub that has shut down.
var ErrStopped = errors.New("hub stopped")

// Broadcaster delivers outbound events to room members or single connections.
type Broadcaster interface {
	Deliver(out events.Outbound)
}

// Authority decides host privileges.
type Authority interface {
	Check(ctx context.Context, userID, roomID string) authority.Result
}

// RoomStore is the slice of the room repository the hub uses directly.
type RoomStore interface {
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	UpdateSettings(ctx context.Context, roomID string, fn rooms.SettingsMutation) (*models.Room, error)
}

// Config holds hub tuning.
type Config struct {
	Workers          int           // room mailboxes are pinned to workers by hash
	QueueSize        int           // pending jobs per worker
	IdleTTL          time.Duration // empty rooms keep their timer this long
	EvictionInterval time.Duration // how often idle rooms are swept
}

// DefaultConfig returns default hub configuration.
func DefaultConfig() Config {
	return Config{
		Workers:          8,
		QueueSize:        1024,
		IdleTTL:          30 * time.Minute,
		EvictionInterval: time.Minute,
	}
}

// Deps are the collaborators a hub is built from.
type Deps struct {
	Clock       clockwork.Clock
	Timers      timer.Store
	Presence    *presence.Tracker
	Authority   Authority
	Rooms       RoomStore
	Board       *announcement.Board
	Broadcaster Broadcaster
	Metrics     MetricsCollector
}

type job struct {
	roomID string
	name   string
	fn     func(ctx context.Context)
}

// Hub is the realtime core. Every event of a room runs to completion on the room's
// worker in arrival order; rooms on different workers proceed in parallel.
type Hub struct {
	cfg       Config
	clock     clockwork.Clock
	timers    timer.Store
	presence  *presence.Tracker
	scheduler *timer.Scheduler
	auth      Authority
	rooms     RoomStore
	board     *announcement.Board
	out       Broadcaster
	metrics   MetricsCollector

	shards []chan job
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	janitor *janitor
}

// New builds a hub. Call Run to start processing.
func New(cfg Config, deps Deps) *Hub {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if deps.Metrics == nil {
		deps.Metrics = &NoOpMetricsCollector{}
	}

	h := &Hub{
		cfg:      cfg,
		clock:    deps.Clock,
		timers:   deps.Timers,
		presence: deps.Presence,
		auth:     deps.Authority,
		rooms:    deps.Rooms,
		board:    deps.Board,
		out:      deps.Broadcaster,
		metrics:  deps.Metrics,
		shards:   make([]chan job, cfg.Workers),
		done:     make(chan struct{}),
	}
	for i := range h.shards {
		h.shards[i] = make(chan job, cfg.QueueSize)
	}
	h.scheduler = timer.NewScheduler(deps.Clock, h.onTimerExpired)
	h.janitor = newJanitor(h)
	return h
}

// Run starts the workers and the eviction janitor and blocks until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	log.Info().Int("workers", len(h.shards)).Msg("room hub started")

	for i := range h.shards {
		h.wg.Add(1)
		go h.worker(ctx, i)
	}

	h.janitor.run(ctx)

	log.Info().Msg("room hub shutting down")
	h.once.Do(func() { close(h.done) })
	h.scheduler.Stop()
	h.wg.Wait()
	log.Info().Msg("room hub stopped")
	return nil
}

func (h *Hub) shardFor(roomID string) int {
	f := fnv.New32a()
	_, _ = f.Write([]byte(roomID))
	return int(f.Sum32() % uint32(len(h.shards)))
}

// post enqueues fn on the room's mailbox.
func (h *Hub) post(ctx context.Context, roomID, name string, fn func(ctx context.Context)) error {
	select {
	case <-h.done:
		return ErrStopped
	default:
	}

	select {
	case h.shards[h.shardFor(roomID)] <- job{roomID: roomID, name: name, fn: fn}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

// call posts fn and waits for it to finish.
func (h *Hub) call(ctx context.Context, roomID, name string, fn func(ctx context.Context)) error {
	finished := make(chan struct{})
	err := h.post(ctx, roomID, name, func(ctx context.Context) {
		defer close(finished)
		fn(ctx)
	})
	if err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrStopped
	}
}

func (h *Hub) worker(ctx context.Context, workerID int) {
	defer h.wg.Done()

	log.Debug().Int("worker_id", workerID).Msg("hub worker started")
	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("worker_id", workerID).Msg("hub worker shutting down")
			return
		case j := <-h.shards[workerID]:
			h.runJob(ctx, workerID, j)
		}
	}
}

func (h *Hub) runJob(ctx context.Context, workerID int, j job) {
	start := h.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("room_id", j.roomID).
				Str("job", j.name).
				Int("worker_id", workerID).
				Str("panic", fmt.Sprint(r)).
				Msg("room job panicked")
			h.metrics.RecordJob(j.name, false, h.clock.Since(start))
		}
	}()
	j.fn(ctx)
	h.metrics.RecordJob(j.name, true, h.clock.Since(start))
}

// emit hands outbound events to the broadcaster in order.
func (h *Hub) emit(outs ...events.Outbound) {
	for _, o := range outs {
		h.out.Deliver(o)
	}
}
