package broadcast

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mcdev12/studyroom/go/internal/studyroom/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSEMirrorStreamsRoomEvents(t *testing.T) {
	mirror := NewSSEMirror()
	defer mirror.Close()

	srv := httptest.NewServer(mirror)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?stream=room-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	out := roomEvent(t, events.EventTimerSync)
	reply := roomEvent(t, events.EventTimerError)
	reply.Target = events.TargetConnection

	sink := RoomOnly(mirror)
	// the subscriber registers asynchronously; publish until it is listening
	for {
		sink.Deliver(reply)
		sink.Deliver(out)
		select {
		case line, ok := <-lines:
			require.True(t, ok, "stream closed")
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			assert.Contains(t, line, `"type":"room:timer:sync"`)
			assert.NotContains(t, line, "room:timer:error")
			return
		case <-time.After(50 * time.Millisecond):
		case <-ctx.Done():
			t.Fatal("no SSE event received")
		}
	}
}
