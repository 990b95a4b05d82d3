package worker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XIAA25/queueing-system-home-arcade/internal/clock"
	"github.com/XIAA25/queueing-system-home-arcade/internal/config"
	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
	"github.com/XIAA25/queueing-system-home-arcade/internal/engine"
	"github.com/XIAA25/queueing-system-home-arcade/internal/storage/memory"
)

func newTestWorker(t *testing.T) (*SweepWorker, *engine.Engine, *clock.Manual) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewManual(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	eng, err := engine.New(context.Background(), memory.New(), clk, engine.Config{
		TurnTimeout:      60 * time.Second,
		CourtesyCooldown: 10 * time.Second,
		Machines:         []string{"Maimai"},
	}, logger)
	require.NoError(t, err)

	w := NewSweepWorker(eng, &config.SweepConfig{Enabled: true, Interval: 5 * time.Millisecond}, logger)
	return w, eng, clk
}

func TestSweepWorkerExpiresOffers(t *testing.T) {
	ctx := context.Background()
	w, eng, clk := newTestWorker(t)

	require.NoError(t, eng.Join(ctx, "Maimai", "alice"))
	require.NoError(t, eng.Join(ctx, "Maimai", "bob"))
	clk.Advance(60 * time.Second)

	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.Eventually(t, func() bool {
		return eng.Snapshot().Machine("Maimai").Holder == "bob"
	}, time.Second, 5*time.Millisecond, "worker sweeps the overdue offer")
}

func TestSweepWorkerLifecycle(t *testing.T) {
	ctx := context.Background()
	w, _, _ := newTestWorker(t)

	assert.False(t, w.IsRunning())
	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())

	// Starting twice is a no-op.
	require.NoError(t, w.Start(ctx))

	require.NoError(t, w.Stop())
	assert.False(t, w.IsRunning())

	// Stopping twice is a no-op.
	require.NoError(t, w.Stop())
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	w, eng, clk := newTestWorker(t)

	require.NoError(t, eng.Join(ctx, "Maimai", "alice"))
	clk.Advance(60 * time.Second)

	require.NoError(t, w.RunOnce(ctx))
	m := eng.Snapshot().Machine("Maimai")
	assert.Empty(t, m.Holder)
	assert.Equal(t, domain.PhaseIdle, m.Phase)
}
