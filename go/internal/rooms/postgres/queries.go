package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mcdev12/studyroom/go/internal/models"
)

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queries binds the study_rooms statements to a connection or transaction.
type Queries struct {
	db DBTX
}

// New creates Queries over db.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const roomColumns = `id, host_user_id, slug, status, access_code, settings, announcement, created_at, updated_at`

const getRoom = `SELECT ` + roomColumns + ` FROM study_rooms WHERE id = $1`

const getRoomForUpdate = getRoom + ` FOR UPDATE`

const insertRoom = `
INSERT INTO study_rooms (` + roomColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    host_user_id = EXCLUDED.host_user_id,
    slug = EXCLUDED.slug,
    status = EXCLUDED.status,
    access_code = EXCLUDED.access_code,
    settings = EXCLUDED.settings,
    announcement = EXCLUDED.announcement,
    updated_at = EXCLUDED.updated_at`

const updateSettings = `UPDATE study_rooms SET settings = $2, slug = $3, updated_at = $4 WHERE id = $1`

const updateAnnouncement = `UPDATE study_rooms SET announcement = $2, updated_at = $3 WHERE id = $1`

const markRealtimeOrigin = `SELECT set_config('studyroom.origin', 'realtime', true)`

// GetRoom loads one room; lock selects FOR UPDATE.
func (q *Queries) GetRoom(ctx context.Context, id string, lock bool) (*models.Room, error) {
	stmt := getRoom
	if lock {
		stmt = getRoomForUpdate
	}

	var (
		room         models.Room
		status       string
		settings     []byte
		announcement []byte
	)
	err := q.db.QueryRow(ctx, stmt, id).Scan(
		&room.ID,
		&room.HostUserID,
		&room.Slug,
		&status,
		&room.AccessCode,
		&settings,
		&announcement,
		&room.CreatedAt,
		&room.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	room.Status = models.RoomStatus(status)
	if err := json.Unmarshal(settings, &room.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := json.Unmarshal(announcement, &room.Announcement); err != nil {
		return nil, fmt.Errorf("decode announcement: %w", err)
	}
	if room.Announcement.Reactions == nil {
		room.Announcement.Reactions = []models.Reaction{}
	}
	return &room, nil
}

// InsertRoom upserts a full room record.
func (q *Queries) InsertRoom(ctx context.Context, room *models.Room) error {
	settings, err := json.Marshal(room.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	announcement, err := json.Marshal(room.Announcement)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	_, err = q.db.Exec(ctx, insertRoom,
		room.ID,
		room.HostUserID,
		room.Slug,
		string(room.Status),
		room.AccessCode,
		settings,
		announcement,
		room.CreatedAt,
		room.UpdatedAt,
	)
	return err
}

// UpdateSettings writes the settings document and slug.
func (q *Queries) UpdateSettings(ctx context.Context, id string, settings models.RoomSettings, slug string, at time.Time) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	_, err = q.db.Exec(ctx, updateSettings, id, data, slug, at)
	return err
}

// UpdateAnnouncement writes the announcement document.
func (q *Queries) UpdateAnnouncement(ctx context.Context, id string, a models.Announcement, at time.Time) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode announcement: %w", err)
	}
	_, err = q.db.Exec(ctx, updateAnnouncement, id, data, at)
	return err
}

// MarkRealtimeOrigin tags the current transaction so the change trigger stays quiet.
func (q *Queries) MarkRealtimeOrigin(ctx context.Context) error {
	_, err := q.db.Exec(ctx, markRealtimeOrigin)
	return err
}
