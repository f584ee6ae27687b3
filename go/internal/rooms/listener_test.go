package rooms

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeLog struct {
	mu      sync.Mutex
	changes []Change
}

func (c *changeLog) handle(_ context.Context, change Change) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.changes = append(c.changes, change)
	if change.RoomID == "fails" {
		return errors.New("broadcast failed")
	}
	return nil
}

func (c *changeLog) snapshot() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.changes...)
}

func startRelay(t *testing.T, l *Listener, notify chan *pq.Notification, ping func() error) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.relay(ctx, notify, ping)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestListenerRelaysChanges(t *testing.T) {
	changes := &changeLog{}
	l := &Listener{handler: changes.handle, cfg: DefaultListenerConfig(), clock: clockwork.NewFakeClock()}
	notify := make(chan *pq.Notification)
	startRelay(t, l, notify, func() error { return nil })

	notify <- &pq.Notification{Channel: "study_room_changes", Extra: `{"roomId":"r1","kind":"settings"}`}
	// a reconnect and bad payloads are skipped without stopping the loop
	notify <- nil
	notify <- &pq.Notification{Extra: `{"roomId":"r1","kind":"timer"}`}
	notify <- &pq.Notification{Extra: `not json`}
	// a failing handler does not stop the loop either
	notify <- &pq.Notification{Extra: `{"roomId":"fails","kind":"settings"}`}
	notify <- &pq.Notification{Extra: `{"roomId":"r2","kind":"announcement"}`}

	require.Eventually(t, func() bool { return len(changes.snapshot()) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Change{
		{RoomID: "r1", Kind: ChangeSettings},
		{RoomID: "fails", Kind: ChangeSettings},
		{RoomID: "r2", Kind: ChangeAnnouncement},
	}, changes.snapshot())
}

func TestListenerPingsOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultListenerConfig()
	l := &Listener{handler: (&changeLog{}).handle, cfg: cfg, clock: clock}

	var pings atomic.Int32
	startRelay(t, l, make(chan *pq.Notification), func() error {
		if pings.Add(1) == 1 {
			return errors.New("connection lost")
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(cfg.PingInterval)
	require.Eventually(t, func() bool { return pings.Load() == 1 }, time.Second, 5*time.Millisecond)
	clock.Advance(cfg.PingInterval)
	require.Eventually(t, func() bool { return pings.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestListenerStopsOnCancel(t *testing.T) {
	l := &Listener{handler: (&changeLog{}).handle, cfg: DefaultListenerConfig(), clock: clockwork.NewFakeClock()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.relay(ctx, make(chan *pq.Notification), func() error { return nil })
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}
