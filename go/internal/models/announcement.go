package models

import "time"

// MaxAnnouncementLength is the longest announcement text a host may post.
const MaxAnnouncementLength = 500

// Reaction is one emoji and the users who reacted with it.
type Reaction struct {
	Emoji   string   `json:"emoji" yaml:"emoji"`
	UserIDs []string `json:"userIds" yaml:"userIds"`
}

// Announcement is the host-authored notice embedded in a room record.
// A cleared announcement has a nil Text and CreatedAt.
type Announcement struct {
	Text      *string    `json:"text" yaml:"text"`
	CreatedAt *time.Time `json:"createdAt" yaml:"createdAt"`
	Reactions []Reaction `json:"reactions" yaml:"reactions"`
}

// Present reports whether the announcement currently has text.
func (a Announcement) Present() bool {
	return a.Text != nil && *a.Text != ""
}

// Clone returns a deep copy so callers can mutate reactions freely.
func (a Announcement) Clone() Announcement {
	out := Announcement{Reactions: make([]Reaction, 0, len(a.Reactions))}
	if a.Text != nil {
		text := *a.Text
		out.Text = &text
	}
	if a.CreatedAt != nil {
		at := *a.CreatedAt
		out.CreatedAt = &at
	}
	for _, r := range a.Reactions {
		out.Reactions = append(out.Reactions, Reaction{
			Emoji:   r.Emoji,
			UserIDs: append([]string(nil), r.UserIDs...),
		})
	}
	return out
}
