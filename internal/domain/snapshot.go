package domain

import (
	"sort"
	"time"
)

// Cooldown is one live courtesy cooldown record.
type Cooldown struct {
	Participant string    `json:"participant"`
	Machine     string    `json:"machine"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Snapshot is a consistent, read-only copy of the full aggregate taken under
// the engine lock. Machines follow the configured order; participants and
// cooldowns are sorted so two snapshots of equal state serialize equally.
type Snapshot struct {
	TakenAt      time.Time     `json:"taken_at"`
	Paused       bool          `json:"paused"`
	PausedAt     time.Time     `json:"paused_at"`
	Machines     []Machine     `json:"machines"`
	Participants []Participant `json:"participants"`
	Cooldowns    []Cooldown    `json:"cooldowns"`
}

// SnapshotOf builds a snapshot of st as of now.
func SnapshotOf(st *State, now time.Time) Snapshot {
	snap := Snapshot{
		TakenAt:      now,
		Paused:       st.Paused,
		PausedAt:     st.PausedAt,
		Machines:     make([]Machine, 0, len(st.Machines)),
		Participants: make([]Participant, 0, len(st.Participants)),
		Cooldowns:    []Cooldown{},
	}
	for _, name := range st.MachineOrder {
		m := st.Machines[name].Clone()
		snap.Machines = append(snap.Machines, *m)
	}
	for _, p := range st.Participants {
		snap.Participants = append(snap.Participants, *p)
	}
	sort.Slice(snap.Participants, func(i, j int) bool {
		return snap.Participants[i].Handle < snap.Participants[j].Handle
	})
	for handle, byMachine := range st.Cooldowns {
		for machine, expiresAt := range byMachine {
			snap.Cooldowns = append(snap.Cooldowns, Cooldown{
				Participant: handle,
				Machine:     machine,
				ExpiresAt:   expiresAt,
			})
		}
	}
	sort.Slice(snap.Cooldowns, func(i, j int) bool {
		a, b := snap.Cooldowns[i], snap.Cooldowns[j]
		if a.Participant != b.Participant {
			return a.Participant < b.Participant
		}
		return a.Machine < b.Machine
	})
	return snap
}

// Machine returns the snapshot entry for name, or nil.
func (s Snapshot) Machine(name string) *Machine {
	for i := range s.Machines {
		if s.Machines[i].Name == name {
			return &s.Machines[i]
		}
	}
	return nil
}

// SessionEvent describes one completed turn. Published to the session topic
// for downstream consumers (reward accrual) after the turn is committed.
type SessionEvent struct {
	Participant      string    `json:"participant"`
	Machine          string    `json:"machine"`
	PlaySeconds      float64   `json:"play_seconds"`
	TotalPlaySeconds float64   `json:"total_play_seconds"`
	FinishedAt       time.Time `json:"finished_at"`
}
