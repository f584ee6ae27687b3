package rooms

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/studyroom/go/internal/models"
	"gopkg.in/yaml.v3"
)

// Fixtures is the on-disk shape of a rooms seed file.
type Fixtures struct {
	Rooms []FixtureRoom `yaml:"rooms"`
}

// FixtureRoom describes one room in a seed file. Missing settings fall back to defaults.
type FixtureRoom struct {
	ID         string               `yaml:"id"`
	HostUserID string               `yaml:"hostUserId"`
	Title      string               `yaml:"title"`
	AccessCode string               `yaml:"accessCode"`
	Settings   *models.RoomSettings `yaml:"settings"`
}

// LoadFixtures reads and parses a YAML rooms file.
func LoadFixtures(path string) ([]*models.Room, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixtures file: %w", err)
	}
	return ParseFixtures(data, time.Now().UTC())
}

// ParseFixtures turns YAML fixture data into room records created at now.
func ParseFixtures(data []byte, now time.Time) ([]*models.Room, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	out := make([]*models.Room, 0, len(fx.Rooms))
	for i, fr := range fx.Rooms {
		if fr.HostUserID == "" {
			return nil, fmt.Errorf("fixture %d: hostUserId is required", i)
		}
		id := fr.ID
		if id == "" {
			id = uuid.NewString()
		}
		settings := models.DefaultRoomSettings(fr.Title)
		if fr.Settings != nil {
			settings = *fr.Settings
		}
		if settings.Title == "" {
			settings.Title = "Study Room"
		}
		room := &models.Room{
			ID:           id,
			HostUserID:   fr.HostUserID,
			Slug:         Slugify(settings.Title),
			Status:       models.RoomStatusActive,
			Settings:     settings,
			Announcement: models.Announcement{Reactions: []models.Reaction{}},
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if fr.AccessCode != "" {
			code := fr.AccessCode
			room.AccessCode = &code
		}
		out = append(out, room)
	}
	return out, nil
}

// Seed creates every room in repo, stopping at the first failure.
func Seed(ctx context.Context, repo Repository, list []*models.Room) error {
	for _, room := range list {
		if err := repo.CreateRoom(ctx, room); err != nil {
			return fmt.Errorf("failed to seed room %s: %w", room.ID, err)
		}
	}
	return nil
}

var slugReplacer = strings.NewReplacer(
	"ç", "c", "ğ", "g", "ı", "i", "İ", "i", "ö", "o", "ş", "s", "ü", "u",
	"Ç", "c", "Ğ", "g", "Ö", "o", "Ş", "s", "Ü", "u",
)

// Slugify lowercases a title into a URL-safe slug.
func Slugify(title string) string {
	s := strings.ToLower(slugReplacer.Replace(strings.TrimSpace(title)))
	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
