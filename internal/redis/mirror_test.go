package redis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

func testSnapshot(now time.Time) domain.Snapshot {
	st := domain.NewState([]string{"Maimai"})
	st.Machines["Maimai"].Queue = []string{"bob"}
	st.Machines["Maimai"].Holder = "alice"
	st.Machines["Maimai"].Phase = domain.PhaseActive
	st.SetCooldown("carol", "Maimai", now.Add(8*time.Second))
	return domain.SnapshotOf(st, now)
}

func TestPublishSnapshot(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	client, mock := redismock.NewClientMock()
	mirror := NewMirrorWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mock.ExpectTxPipeline()
	mock.ExpectSet(SnapshotKey, data, 0).SetVal("OK")
	mock.ExpectSet(CooldownKey("carol", "Maimai"),
		now.Add(8*time.Second).Format(time.RFC3339Nano), 8*time.Second).SetVal("OK")
	mock.ExpectPublish(EventsChannel, "state_changed").SetVal(1)
	mock.ExpectTxPipelineExec()

	require.NoError(t, mirror.PublishSnapshot(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishSnapshotSkipsExpiredCooldowns(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	st := domain.NewState([]string{"Maimai"})
	st.SetCooldown("carol", "Maimai", now.Add(-time.Second))
	snap := domain.SnapshotOf(st, now)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	client, mock := redismock.NewClientMock()
	mirror := NewMirrorWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// No TTL key for the already-expired cooldown.
	mock.ExpectTxPipeline()
	mock.ExpectSet(SnapshotKey, data, 0).SetVal("OK")
	mock.ExpectPublish(EventsChannel, "state_changed").SetVal(1)
	mock.ExpectTxPipelineExec()

	require.NoError(t, mirror.PublishSnapshot(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotReadBack(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := testSnapshot(now)
	data, err := json.Marshal(snap)
	require.NoError(t, err)

	client, mock := redismock.NewClientMock()
	mirror := NewMirrorWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mock.ExpectGet(SnapshotKey).SetVal(string(data))

	got, err := mirror.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Machine("Maimai").Holder)
	assert.Equal(t, []string{"bob"}, got.Machine("Maimai").Queue)
	require.Len(t, got.Cooldowns, 1)
	assert.Equal(t, "carol", got.Cooldowns[0].Participant)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotMissing(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mirror := NewMirrorWithClient(client, slog.New(slog.NewTextHandler(io.Discard, nil)))

	mock.ExpectGet(SnapshotKey).RedisNil()

	_, err := mirror.Snapshot(context.Background())
	assert.Error(t, err)
}
