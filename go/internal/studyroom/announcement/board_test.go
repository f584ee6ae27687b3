package announcement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/rooms/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newBoard(t *testing.T) *Board {
	repo := memory.NewRepository()
	require.NoError(t, repo.CreateRoom(context.Background(), &models.Room{
		ID:           "R1",
		HostUserID:   "H",
		Settings:     models.DefaultRoomSettings("R1"),
		Announcement: Cleared(),
	}))
	return NewBoard(repo, clockwork.NewFakeClockAt(now))
}

func withText(t *testing.T, text string) models.Announcement {
	a, err := WithText(text, now)
	require.NoError(t, err)
	return a
}

func TestWithText(t *testing.T) {
	a := withText(t, "  Sınav var!  ")
	assert.Equal(t, "Sınav var!", *a.Text)
	assert.Equal(t, now, *a.CreatedAt)
	assert.Empty(t, a.Reactions)

	_, err := WithText("   ", now)
	assert.ErrorIs(t, err, ErrTextRequired)

	long := make([]rune, models.MaxAnnouncementLength+1)
	for i := range long {
		long[i] = 'ş'
	}
	_, err = WithText(string(long), now)
	assert.ErrorIs(t, err, ErrTextTooLong)
}

func TestToggleRoundTrip(t *testing.T) {
	a := withText(t, "hello")

	once, err := Toggle(a, "P", "👍")
	require.NoError(t, err)
	assert.Equal(t, []models.Reaction{{Emoji: "👍", UserIDs: []string{"P"}}}, once.Reactions)

	twice, err := Toggle(once, "P", "👍")
	require.NoError(t, err)
	assert.Empty(t, twice.Reactions)
	assert.NotNil(t, twice.Reactions)
}

func TestToggleNeverLeavesEmptyEntries(t *testing.T) {
	a := withText(t, "hello")
	steps := []struct{ user, emoji string }{
		{"A", "👍"}, {"B", "👍"}, {"A", "🔥"}, {"A", "👍"}, {"B", "👍"}, {"A", "🔥"}, {"C", "🎉"},
	}
	var err error
	for _, s := range steps {
		a, err = Toggle(a, s.user, s.emoji)
		require.NoError(t, err)
		for _, r := range a.Reactions {
			assert.NotEmpty(t, r.UserIDs, "emoji %s left with no users", r.Emoji)
		}
	}
	assert.Equal(t, []models.Reaction{{Emoji: "🎉", UserIDs: []string{"C"}}}, a.Reactions)
}

func TestToggleUserAppearsOncePerEmoji(t *testing.T) {
	a := withText(t, "hello")
	a, _ = Toggle(a, "A", "👍")
	a, _ = Toggle(a, "B", "👍")
	a, _ = Toggle(a, "C", "👍")
	assert.Equal(t, []string{"A", "B", "C"}, a.Reactions[0].UserIDs)

	a, _ = Toggle(a, "B", "👍")
	assert.Equal(t, []string{"A", "C"}, a.Reactions[0].UserIDs)
}

func TestToggleDoesNotMutateInput(t *testing.T) {
	a := withText(t, "hello")
	a, _ = Toggle(a, "A", "👍")
	before := a.Clone()

	_, err := Toggle(a, "B", "👍")
	require.NoError(t, err)
	assert.Equal(t, before, a)
}

func TestToggleValidation(t *testing.T) {
	_, err := Toggle(Cleared(), "A", "👍")
	assert.ErrorIs(t, err, ErrNoAnnouncement)

	_, err = Toggle(withText(t, "x"), "A", " ")
	assert.ErrorIs(t, err, ErrEmojiRequired)
}

func TestBoardScenario(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)

	a, err := b.Set(ctx, "R1", "Sınav var!")
	require.NoError(t, err)
	assert.Equal(t, "Sınav var!", *a.Text)

	reactions, err := b.ToggleReaction(ctx, "R1", "P", "👍")
	require.NoError(t, err)
	assert.Equal(t, []models.Reaction{{Emoji: "👍", UserIDs: []string{"P"}}}, reactions)

	reactions, err = b.ToggleReaction(ctx, "R1", "P", "👍")
	require.NoError(t, err)
	assert.Empty(t, reactions)
}

func TestBoardSetResetsReactions(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)

	_, err := b.Set(ctx, "R1", "first")
	require.NoError(t, err)
	_, err = b.ToggleReaction(ctx, "R1", "P", "👍")
	require.NoError(t, err)

	a, err := b.Set(ctx, "R1", "second")
	require.NoError(t, err)
	assert.Equal(t, "second", *a.Text)
	assert.Empty(t, a.Reactions)
}

func TestBoardClear(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)

	_, err := b.Set(ctx, "R1", "first")
	require.NoError(t, err)
	require.NoError(t, b.Clear(ctx, "R1"))

	_, err = b.ToggleReaction(ctx, "R1", "P", "👍")
	assert.ErrorIs(t, err, ErrNoAnnouncement)
}

func TestBoardErrors(t *testing.T) {
	ctx := context.Background()
	b := newBoard(t)

	_, err := b.Set(ctx, "R1", "")
	assert.ErrorIs(t, err, ErrTextRequired)

	_, err = b.ToggleReaction(ctx, "R1", "P", "")
	assert.ErrorIs(t, err, ErrEmojiRequired)

	_, err = b.Set(ctx, "missing", "hi")
	assert.ErrorIs(t, err, rooms.ErrNotFound)
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Announcement text is required", Message(ErrTextRequired))
	assert.Equal(t, "Emoji is required", Message(ErrEmojiRequired))
	assert.Equal(t, "No announcement to react to", Message(ErrNoAnnouncement))
	assert.Equal(t, "Server error", Message(errors.New("disk on fire")))
}
