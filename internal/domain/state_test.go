package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateClone(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	st := NewState([]string{"Maimai", "Chunithm"})
	st.Machines["Maimai"].Queue = []string{"bob", "carol"}
	st.Machines["Maimai"].Holder = "alice"
	st.Machines["Maimai"].Phase = PhaseActive
	st.EnsureParticipant("alice").PlayTime = time.Hour
	st.SetCooldown("bob", "Chunithm", now.Add(10*time.Second))
	st.Active["alice"] = "Maimai"

	cp := st.Clone()

	// Mutating the clone must not leak back.
	cp.Machines["Maimai"].Queue[0] = "mallory"
	cp.Machines["Maimai"].Holder = "mallory"
	cp.Participants["alice"].PlayTime = 0
	cp.SetCooldown("bob", "Chunithm", now)
	cp.Active["alice"] = "Chunithm"
	cp.MachineOrder[0] = "Wacca"

	assert.Equal(t, []string{"bob", "carol"}, st.Machines["Maimai"].Queue)
	assert.Equal(t, "alice", st.Machines["Maimai"].Holder)
	assert.Equal(t, time.Hour, st.Participants["alice"].PlayTime)
	assert.Equal(t, now.Add(10*time.Second), st.CooldownUntil("bob", "Chunithm"))
	assert.Equal(t, "Maimai", st.ActiveOn("alice"))
	assert.Equal(t, []string{"Maimai", "Chunithm"}, st.MachineOrder)
}

func TestPruneCooldowns(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	st := NewState(nil)
	st.SetCooldown("alice", "Maimai", now.Add(-time.Second))
	st.SetCooldown("alice", "Chunithm", now.Add(time.Second))
	st.SetCooldown("bob", "Maimai", now)

	require.True(t, st.PruneCooldowns(now))

	assert.True(t, st.CooldownUntil("alice", "Maimai").IsZero())
	assert.Equal(t, now.Add(time.Second), st.CooldownUntil("alice", "Chunithm"))
	assert.True(t, st.CooldownUntil("bob", "Maimai").IsZero())
	_, bobLeft := st.Cooldowns["bob"]
	assert.False(t, bobLeft, "emptied participant entries are dropped")

	assert.False(t, st.PruneCooldowns(now), "nothing left to prune")
}

func TestRebuildActive(t *testing.T) {
	st := NewState([]string{"Maimai", "Chunithm", "Wacca"})
	st.Machines["Maimai"].Holder = "alice"
	st.Machines["Maimai"].Phase = PhaseActive
	st.Machines["Chunithm"].Holder = "bob"
	st.Machines["Chunithm"].Phase = PhaseAwaitingAccept

	st.RebuildActive()

	assert.Equal(t, "Maimai", st.ActiveOn("alice"))
	assert.Empty(t, st.ActiveOn("bob"), "unaccepted offers are not active turns")
}

func TestRecomputePhase(t *testing.T) {
	m := NewMachine("Maimai")
	assert.Equal(t, PhaseIdle, m.Phase)

	m.Queue = []string{"alice"}
	m.RecomputePhase()
	assert.Equal(t, PhaseQueued, m.Phase)

	m.Holder = "bob"
	m.Phase = PhaseActive
	m.RecomputePhase()
	assert.Equal(t, PhaseActive, m.Phase, "holder machines keep their phase")

	m.ClearOffer()
	m.Queue = nil
	m.RecomputePhase()
	assert.Equal(t, PhaseIdle, m.Phase)
}

func TestSnapshotDeterminism(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	build := func() *State {
		st := NewState([]string{"Maimai", "Chunithm"})
		st.EnsureParticipant("carol")
		st.EnsureParticipant("alice")
		st.EnsureParticipant("bob")
		st.SetCooldown("carol", "Maimai", now.Add(time.Second))
		st.SetCooldown("alice", "Chunithm", now.Add(time.Second))
		st.SetCooldown("alice", "Maimai", now.Add(time.Second))
		return st
	}

	a := SnapshotOf(build(), now)
	b := SnapshotOf(build(), now)
	assert.Equal(t, a, b)

	require.Len(t, a.Participants, 3)
	assert.Equal(t, "alice", a.Participants[0].Handle)
	assert.Equal(t, "carol", a.Participants[2].Handle)

	require.Len(t, a.Cooldowns, 3)
	assert.Equal(t, Cooldown{Participant: "alice", Machine: "Chunithm", ExpiresAt: now.Add(time.Second)}, a.Cooldowns[0])
	assert.Equal(t, Cooldown{Participant: "carol", Machine: "Maimai", ExpiresAt: now.Add(time.Second)}, a.Cooldowns[2])

	// Machines follow configured order, not lexical order.
	assert.Equal(t, "Maimai", a.Machines[0].Name)
	assert.Equal(t, "Chunithm", a.Machines[1].Name)
}

func TestSnapshotMachineLookup(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	st := NewState([]string{"Maimai", "Chunithm"})
	st.Machines["Chunithm"].Queue = []string{"alice"}

	// Lookup must work on an unaddressable snapshot value, the way callers
	// chain it off a fresh snapshot.
	m := SnapshotOf(st, now).Machine("Chunithm")
	require.NotNil(t, m)
	assert.Equal(t, []string{"alice"}, m.Queue)
	assert.Nil(t, SnapshotOf(st, now).Machine("DDR"))
}

func TestDisplayPlayTime(t *testing.T) {
	p := Participant{Handle: "alice", PlayTime: 90 * time.Minute, PlayOffset: 30 * time.Minute}
	assert.Equal(t, time.Hour, p.DisplayPlayTime())
}
