package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	st := domain.NewState([]string{"Maimai", "Chunithm"})
	m := st.Machines["Maimai"]
	m.Queue = []string{"bob"}
	m.Holder = "alice"
	m.Phase = domain.PhaseActive
	m.PlayStartedAt = now
	st.EnsureParticipant("alice").PlayTime = 42 * time.Second
	st.SetCooldown("bob", "Chunithm", now.Add(10*time.Second))
	st.Active["alice"] = "Maimai"
	st.Paused = true
	st.PausedAt = now

	store := New()
	require.NoError(t, store.Save(ctx, st))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, st.MachineOrder, got.MachineOrder)
	assert.Equal(t, st.Machines["Maimai"], got.Machines["Maimai"])
	assert.Equal(t, st.Participants["alice"], got.Participants["alice"])
	assert.Equal(t, now.Add(10*time.Second), got.CooldownUntil("bob", "Chunithm"))
	assert.Equal(t, "Maimai", got.ActiveOn("alice"))
	assert.True(t, got.Paused)
	assert.Equal(t, now, got.PausedAt)
}

func TestEmptyLoad(t *testing.T) {
	store := New()
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveDetachesFromCaller(t *testing.T) {
	ctx := context.Background()

	st := domain.NewState([]string{"Maimai"})
	st.Machines["Maimai"].Queue = []string{"alice"}

	store := New()
	require.NoError(t, store.Save(ctx, st))

	// Later mutations of the saved state must not affect what loads.
	st.Machines["Maimai"].Queue[0] = "mallory"

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, got.Machines["Maimai"].Queue)
}
