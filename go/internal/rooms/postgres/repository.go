// Package postgres provides a Postgres room repository over pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/mcdev12/studyroom/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
)

//go:embed schema.sql
var schema string

// Repository implements rooms.Repository on a pgx pool.
type Repository struct {
	pool    *pgxpool.Pool
	queries *Queries
}

// NewRepository connects to dsn and verifies the connection.
func NewRepository(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{pool: pool, queries: New(pool)}, nil
}

// EnsureSchema creates the study_rooms table and its change trigger. The trigger
// notifies on channel, which must match the channel the change listener LISTENs on.
func (r *Repository) EnsureSchema(ctx context.Context, channel string) error {
	if channel == "" {
		return errors.New("notify channel is required")
	}
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	if _, err := r.pool.Exec(ctx, triggerSQL(channel)); err != nil {
		return fmt.Errorf("failed to create change trigger: %w", err)
	}
	log.Info().Str("channel", channel).Msg("study_rooms schema ensured")
	return nil
}

// triggerSQL recreates the change trigger with channel as its argument.
func triggerSQL(channel string) string {
	literal := "'" + strings.ReplaceAll(channel, "'", "''") + "'"
	return `DROP TRIGGER IF EXISTS study_rooms_notify ON study_rooms;
CREATE TRIGGER study_rooms_notify
    AFTER UPDATE ON study_rooms
    FOR EACH ROW EXECUTE FUNCTION notify_study_room_change(` + literal + `);`
}

// Ping checks database connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// GetRoom loads a room by id.
func (r *Repository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := r.queries.GetRoom(ctx, roomID, false)
	if err != nil {
		return nil, translate(err, "get room")
	}
	return room, nil
}

// CreateRoom upserts a room record.
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	if err := r.queries.InsertRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	return nil
}

// UpdateSettings locks the row, applies fn and writes the result in one transaction.
func (r *Repository) UpdateSettings(ctx context.Context, roomID string, fn rooms.SettingsMutation) (*models.Room, error) {
	var updated *models.Room
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) *Queries { return New(tx) }, func(q *Queries) error {
		if err := q.MarkRealtimeOrigin(ctx); err != nil {
			return fmt.Errorf("failed to mark origin: %w", err)
		}
		room, err := q.GetRoom(ctx, roomID, true)
		if err != nil {
			return translate(err, "lock room")
		}
		room.Settings = fn(room.Settings)
		room.Slug = rooms.Slugify(room.Settings.Title)
		room.UpdatedAt = time.Now().UTC()
		if err := q.UpdateSettings(ctx, roomID, room.Settings, room.Slug, room.UpdatedAt); err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}
		updated = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateAnnouncement locks the row, applies fn and writes the result in one transaction.
func (r *Repository) UpdateAnnouncement(ctx context.Context, roomID string, fn rooms.AnnouncementMutation) (*models.Announcement, error) {
	var updated models.Announcement
	err := sqlutil.Run(ctx, r.pool, func(tx pgx.Tx) *Queries { return New(tx) }, func(q *Queries) error {
		if err := q.MarkRealtimeOrigin(ctx); err != nil {
			return fmt.Errorf("failed to mark origin: %w", err)
		}
		room, err := q.GetRoom(ctx, roomID, true)
		if err != nil {
			return translate(err, "lock room")
		}
		next, err := fn(room.Announcement)
		if err != nil {
			return err
		}
		if err := q.UpdateAnnouncement(ctx, roomID, next, time.Now().UTC()); err != nil {
			return fmt.Errorf("failed to update announcement: %w", err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Close releases the pool.
func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func translate(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return rooms.ErrNotFound
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
