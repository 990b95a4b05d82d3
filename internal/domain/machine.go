package domain

import "time"

// Phase represents the turn lifecycle of a machine.
type Phase string

const (
	// PhaseIdle means no queue and no holder.
	PhaseIdle Phase = "idle"
	// PhaseQueued means participants are waiting but no one has been offered
	// a turn (either a promotion is pending or everyone is blocked elsewhere).
	PhaseQueued Phase = "queued"
	// PhaseAwaitingAccept means the holder has been offered the turn and must
	// accept before the deadline or be skipped.
	PhaseAwaitingAccept Phase = "awaiting_accept"
	// PhaseActive means the holder accepted and is playing.
	PhaseActive Phase = "active"
)

// Machine is one exclusively-held arcade machine with its own FIFO queue.
// The holder is tracked separately from the queue: a participant is either
// waiting in Queue or holding the machine, never both.
type Machine struct {
	Name          string    `json:"name"`
	Queue         []string  `json:"queue"`
	Holder        string    `json:"holder"`
	Phase         Phase     `json:"phase"`
	TurnStartedAt time.Time `json:"turn_started_at"`
	TurnDeadline  time.Time `json:"turn_deadline"`
	PlayStartedAt time.Time `json:"play_started_at"`
}

// NewMachine returns an idle machine with an empty queue.
func NewMachine(name string) *Machine {
	return &Machine{
		Name:  name,
		Queue: []string{},
		Phase: PhaseIdle,
	}
}

// InQueue reports whether handle is waiting in this machine's queue.
func (m *Machine) InQueue(handle string) bool {
	return m.QueueIndex(handle) >= 0
}

// QueueIndex returns the position of handle in the queue, or -1.
func (m *Machine) QueueIndex(handle string) int {
	for i, h := range m.Queue {
		if h == handle {
			return i
		}
	}
	return -1
}

// RemoveFromQueue removes handle from the queue. Reports whether it was
// present.
func (m *Machine) RemoveFromQueue(handle string) bool {
	idx := m.QueueIndex(handle)
	if idx < 0 {
		return false
	}
	m.Queue = append(m.Queue[:idx], m.Queue[idx+1:]...)
	return true
}

// ClearOffer drops the holder and all turn timestamps. The phase is left for
// the caller to recompute.
func (m *Machine) ClearOffer() {
	m.Holder = ""
	m.TurnStartedAt = time.Time{}
	m.TurnDeadline = time.Time{}
	m.PlayStartedAt = time.Time{}
}

// RecomputePhase derives the phase for a machine with no pending offer.
// Machines with a holder keep their awaiting/active phase untouched.
func (m *Machine) RecomputePhase() {
	if m.Holder != "" {
		return
	}
	if len(m.Queue) == 0 {
		m.Phase = PhaseIdle
	} else {
		m.Phase = PhaseQueued
	}
}

// Clone returns a deep copy of the machine.
func (m *Machine) Clone() *Machine {
	cp := *m
	cp.Queue = make([]string, len(m.Queue))
	copy(cp.Queue, m.Queue)
	return &cp
}
