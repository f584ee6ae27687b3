package announcement

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/samber/lo"
)

var (
	ErrTextRequired   = errors.New("announcement text is required")
	ErrTextTooLong    = errors.New("announcement text is too long")
	ErrEmojiRequired  = errors.New("emoji is required")
	ErrNoAnnouncement = errors.New("no announcement to react to")
)

// Message maps a board error to the text shown to the requesting client.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrTextRequired):
		return "Announcement text is required"
	case errors.Is(err, ErrTextTooLong):
		return "Announcement text must be at most 500 characters"
	case errors.Is(err, ErrEmojiRequired):
		return "Emoji is required"
	case errors.Is(err, ErrNoAnnouncement):
		return "No announcement to react to"
	case errors.Is(err, rooms.ErrNotFound):
		return "Room not found"
	default:
		return "Server error"
	}
}

// Store persists the announcement embedded in a room record.
type Store interface {
	UpdateAnnouncement(ctx context.Context, roomID string, fn rooms.AnnouncementMutation) (*models.Announcement, error)
}

// Board owns announcement mutations. Host gating is applied by the caller before
// Set and Clear run; reactions are open to every participant.
type Board struct {
	store Store
	clock clockwork.Clock
}

// NewBoard creates a Board persisting through store.
func NewBoard(store Store, clock clockwork.Clock) *Board {
	return &Board{store: store, clock: clock}
}

// Set replaces the room's announcement with text and clears its reactions.
func (b *Board) Set(ctx context.Context, roomID, text string) (*models.Announcement, error) {
	next, err := WithText(text, b.clock.Now().UTC())
	if err != nil {
		return nil, err
	}
	return b.store.UpdateAnnouncement(ctx, roomID, func(models.Announcement) (models.Announcement, error) {
		return next.Clone(), nil
	})
}

// Clear removes the room's announcement and all reactions.
func (b *Board) Clear(ctx context.Context, roomID string) error {
	_, err := b.store.UpdateAnnouncement(ctx, roomID, func(models.Announcement) (models.Announcement, error) {
		return Cleared(), nil
	})
	return err
}

// ToggleReaction flips userID's reaction with emoji and returns the resulting reaction list.
func (b *Board) ToggleReaction(ctx context.Context, roomID, userID, emoji string) ([]models.Reaction, error) {
	if strings.TrimSpace(emoji) == "" {
		return nil, ErrEmojiRequired
	}
	a, err := b.store.UpdateAnnouncement(ctx, roomID, func(cur models.Announcement) (models.Announcement, error) {
		return Toggle(cur, userID, emoji)
	})
	if err != nil {
		return nil, err
	}
	return a.Reactions, nil
}

// WithText returns a fresh announcement carrying the trimmed text.
func WithText(text string, now time.Time) (models.Announcement, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Announcement{}, ErrTextRequired
	}
	if utf8.RuneCountInString(text) > models.MaxAnnouncementLength {
		return models.Announcement{}, ErrTextTooLong
	}
	return models.Announcement{
		Text:      &text,
		CreatedAt: &now,
		Reactions: []models.Reaction{},
	}, nil
}

// Cleared is the empty announcement.
func Cleared() models.Announcement {
	return models.Announcement{Reactions: []models.Reaction{}}
}

// Toggle adds userID to the emoji's reactors or removes it if present.
// Entries left without reactors are dropped.
func Toggle(a models.Announcement, userID, emoji string) (models.Announcement, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return a, ErrEmojiRequired
	}
	if !a.Present() {
		return a, ErrNoAnnouncement
	}

	out := a.Clone()
	idx := -1
	for i, r := range out.Reactions {
		if r.Emoji == emoji {
			idx = i
			break
		}
	}
	if idx < 0 {
		out.Reactions = append(out.Reactions, models.Reaction{Emoji: emoji, UserIDs: []string{}})
		idx = len(out.Reactions) - 1
	}

	r := &out.Reactions[idx]
	if lo.Contains(r.UserIDs, userID) {
		r.UserIDs = lo.Without(r.UserIDs, userID)
	} else {
		r.UserIDs = append(r.UserIDs, userID)
	}

	out.Reactions = lo.Filter(out.Reactions, func(r models.Reaction, _ int) bool {
		return len(r.UserIDs) > 0
	})
	return out, nil
}
