package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/XIAA25/queueing-system-home-arcade/internal/config"
	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

const (
	// SnapshotKey holds the latest full-state snapshot as JSON.
	SnapshotKey = "arcade:snapshot"
	// EventsChannel carries "state_changed" pings for pub/sub observers.
	EventsChannel = "arcade:events"
	stateChanged  = "state_changed"
)

// Mirror maintains a read-only copy of the queue state in Redis for external
// consumers (the reward subsystem, dashboards) that must not touch the
// engine. Writes are best effort; the engine never depends on them.
type Mirror struct {
	client *redis.Client
	logger *slog.Logger
}

// NewMirror creates a Redis mirror.
func NewMirror(cfg *config.RedisConfig, logger *slog.Logger) (*Mirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Mirror{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection.
func (m *Mirror) Close() error {
	return m.client.Close()
}

// NewMirrorWithClient wraps an existing client. Used by tests.
func NewMirrorWithClient(client *redis.Client, logger *slog.Logger) *Mirror {
	return &Mirror{client: client, logger: logger}
}

// CooldownKey returns the TTL key mirroring a live courtesy cooldown.
func CooldownKey(participant, machine string) string {
	return fmt.Sprintf("arcade:cooldown:%s:%s", participant, machine)
}

// PublishSnapshot stores the snapshot, refreshes cooldown TTL keys and pings
// the events channel, all in one pipeline.
func (m *Mirror) PublishSnapshot(ctx context.Context, snap domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	pipe := m.client.TxPipeline()
	pipe.Set(ctx, SnapshotKey, data, 0)
	for _, cd := range snap.Cooldowns {
		ttl := cd.ExpiresAt.Sub(snap.TakenAt)
		if ttl <= 0 {
			continue
		}
		pipe.Set(ctx, CooldownKey(cd.Participant, cd.Machine), cd.ExpiresAt.Format(time.RFC3339Nano), ttl)
	}
	pipe.Publish(ctx, EventsChannel, stateChanged)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publishing snapshot: %w", err)
	}
	return nil
}

// Snapshot reads back the last published snapshot.
func (m *Mirror) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	data, err := m.client.Get(ctx, SnapshotKey).Bytes()
	if err != nil {
		return snap, fmt.Errorf("reading snapshot: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decoding snapshot: %w", err)
	}
	return snap, nil
}
