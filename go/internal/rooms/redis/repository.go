// Package redis provides a Redis/Valkey room repository.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/studyroom/go/internal/models"
	"github.com/mcdev12/studyroom/go/internal/rooms"
	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	URI       string
	Host      string
	Port      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

const maxTxRetries = 5

// getter is satisfied by *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Repository stores each room as a JSON document under <prefix>rooms:<id>.
type Repository struct {
	client    *redis.Client
	keyPrefix string
}

// NewRepository creates a new Redis repository and pings the server.
func NewRepository(cfg Config) (*Repository, error) {
	var client *redis.Client

	if cfg.URI != "" {
		opt, err := redis.ParseURL(cfg.URI)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URI: %w", err)
		}
		if opt.DB == 0 {
			opt.DB = cfg.DB
		}
		if opt.Password == "" && cfg.Password != "" {
			opt.Password = cfg.Password
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
			Username: cfg.Username,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Repository{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// Ping checks Redis connectivity.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (r *Repository) Close() error {
	return r.client.Close()
}

func (r *Repository) roomKey(id string) string {
	return fmt.Sprintf("%srooms:%s", r.keyPrefix, id)
}

// GetRoom loads a room document.
func (r *Repository) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	return r.load(ctx, r.client, roomID)
}

// CreateRoom writes a room document, replacing any existing one.
func (r *Repository) CreateRoom(ctx context.Context, room *models.Room) error {
	if room.ID == "" {
		return fmt.Errorf("room id is required")
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	if err := r.client.Set(ctx, r.roomKey(room.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save room: %w", err)
	}
	return nil
}

// UpdateSettings applies fn under WATCH so concurrent writers retry.
func (r *Repository) UpdateSettings(ctx context.Context, roomID string, fn rooms.SettingsMutation) (*models.Room, error) {
	var updated *models.Room
	err := r.update(ctx, roomID, func(room *models.Room) error {
		room.Settings = fn(room.Settings)
		room.Slug = rooms.Slugify(room.Settings.Title)
		updated = room
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// UpdateAnnouncement applies fn under WATCH so concurrent writers retry.
func (r *Repository) UpdateAnnouncement(ctx context.Context, roomID string, fn rooms.AnnouncementMutation) (*models.Announcement, error) {
	var updated models.Announcement
	err := r.update(ctx, roomID, func(room *models.Room) error {
		next, err := fn(room.Announcement.Clone())
		if err != nil {
			return err
		}
		room.Announcement = next
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *Repository) update(ctx context.Context, roomID string, mutate func(room *models.Room) error) error {
	key := r.roomKey(roomID)

	txf := func(tx *redis.Tx) error {
		room, err := r.load(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if err := mutate(room); err != nil {
			return err
		}
		room.UpdatedAt = time.Now().UTC()

		data, err := json.Marshal(room)
		if err != nil {
			return fmt.Errorf("failed to marshal room: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to update room %s: too many concurrent writers", roomID)
}

func (r *Repository) load(ctx context.Context, c getter, roomID string) (*models.Room, error) {
	data, err := c.Get(ctx, r.roomKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, rooms.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	if room.Announcement.Reactions == nil {
		room.Announcement.Reactions = []models.Reaction{}
	}
	return &room, nil
}
