package domain

import "time"

// State is the whole queueing aggregate: every machine, every participant,
// live courtesy cooldowns and the global pause flag. It is owned by the
// engine and mutated only behind its lock; everyone else sees snapshots.
type State struct {
	Machines     map[string]*Machine     `json:"machines"`
	MachineOrder []string                `json:"machine_order"`
	Participants map[string]*Participant `json:"participants"`
	// Cooldowns maps participant handle -> machine name -> expiry.
	Cooldowns map[string]map[string]time.Time `json:"cooldowns"`
	// Active is the cross-machine exclusivity index: participant handle ->
	// machine currently holding them in an active turn. At most one entry
	// per participant.
	Active   map[string]string `json:"active"`
	Paused   bool              `json:"paused"`
	PausedAt time.Time         `json:"paused_at"`
}

// NewState returns an empty aggregate with one idle machine per name.
func NewState(machineNames []string) *State {
	st := &State{
		Machines:     make(map[string]*Machine, len(machineNames)),
		MachineOrder: make([]string, 0, len(machineNames)),
		Participants: make(map[string]*Participant),
		Cooldowns:    make(map[string]map[string]time.Time),
		Active:       make(map[string]string),
	}
	for _, name := range machineNames {
		st.EnsureMachine(name)
	}
	return st
}

// EnsureMachine adds an idle machine if it does not exist yet. Used when the
// configured machine list grows between restarts.
func (s *State) EnsureMachine(name string) *Machine {
	if m, ok := s.Machines[name]; ok {
		return m
	}
	m := NewMachine(name)
	s.Machines[name] = m
	s.MachineOrder = append(s.MachineOrder, name)
	return m
}

// EnsureParticipant returns the participant record for handle, creating it
// on first sight.
func (s *State) EnsureParticipant(handle string) *Participant {
	if p, ok := s.Participants[handle]; ok {
		return p
	}
	p := &Participant{Handle: handle}
	s.Participants[handle] = p
	return p
}

// ActiveOn returns the machine currently holding handle in an active turn,
// or the empty string.
func (s *State) ActiveOn(handle string) string {
	return s.Active[handle]
}

// CooldownUntil returns the cooldown expiry for (handle, machine), or the
// zero time if none is recorded.
func (s *State) CooldownUntil(handle, machine string) time.Time {
	return s.Cooldowns[handle][machine]
}

// SetCooldown records a courtesy cooldown for (handle, machine).
func (s *State) SetCooldown(handle, machine string, expiresAt time.Time) {
	if s.Cooldowns[handle] == nil {
		s.Cooldowns[handle] = make(map[string]time.Time)
	}
	s.Cooldowns[handle][machine] = expiresAt
}

// PruneCooldowns drops every cooldown that expired at or before now.
// Reports whether anything was removed.
func (s *State) PruneCooldowns(now time.Time) bool {
	pruned := false
	for handle, byMachine := range s.Cooldowns {
		for machine, expiresAt := range byMachine {
			if !expiresAt.After(now) {
				delete(byMachine, machine)
				pruned = true
			}
		}
		if len(byMachine) == 0 {
			delete(s.Cooldowns, handle)
		}
	}
	return pruned
}

// RebuildActive reconstructs the exclusivity index from machine holders.
// Used after loading from stores that do not persist the index itself.
func (s *State) RebuildActive() {
	s.Active = make(map[string]string)
	for name, m := range s.Machines {
		if m.Phase == PhaseActive && m.Holder != "" {
			s.Active[m.Holder] = name
		}
	}
}

// Clone returns a deep copy of the aggregate.
func (s *State) Clone() *State {
	cp := &State{
		Machines:     make(map[string]*Machine, len(s.Machines)),
		MachineOrder: make([]string, len(s.MachineOrder)),
		Participants: make(map[string]*Participant, len(s.Participants)),
		Cooldowns:    make(map[string]map[string]time.Time, len(s.Cooldowns)),
		Active:       make(map[string]string, len(s.Active)),
		Paused:       s.Paused,
		PausedAt:     s.PausedAt,
	}
	copy(cp.MachineOrder, s.MachineOrder)
	for name, m := range s.Machines {
		cp.Machines[name] = m.Clone()
	}
	for handle, p := range s.Participants {
		cp.Participants[handle] = p.Clone()
	}
	for handle, byMachine := range s.Cooldowns {
		inner := make(map[string]time.Time, len(byMachine))
		for machine, expiresAt := range byMachine {
			inner[machine] = expiresAt
		}
		cp.Cooldowns[handle] = inner
	}
	for handle, machine := range s.Active {
		cp.Active[handle] = machine
	}
	return cp
}
