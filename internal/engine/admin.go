package engine

import (
	"context"
	"time"

	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

// Administrative operations. These are direct mutations under the same lock
// as everything else, but they bypass the expiry sweep and every timeout or
// cooldown check.

// SetPaused toggles the global pause. While paused no advancement or expiry
// runs and joins are rejected. Unpausing shifts the play clock of active
// holders by the pause duration so paused time never accrues, then promotes
// any machine left holderless during the pause; overdue offer deadlines are
// left untouched and fire on the next operation.
func (e *Engine) SetPaused(ctx context.Context, paused bool) error {
	return e.mutate(ctx, false, func(st *domain.State, now time.Time) error {
		if st.Paused == paused {
			return nil
		}
		if paused {
			st.Paused = true
			st.PausedAt = now
			return nil
		}
		if !st.PausedAt.IsZero() {
			pauseDur := now.Sub(st.PausedAt)
			for _, m := range st.Machines {
				if m.Phase == domain.PhaseActive && !m.PlayStartedAt.IsZero() {
					m.PlayStartedAt = m.PlayStartedAt.Add(pauseDur)
				}
			}
		}
		st.Paused = false
		st.PausedAt = time.Time{}
		advanceAll(st, now, e.cfg)
		return nil
	})
}

// ForceSetHolder installs a participant as the active holder of a machine,
// displacing whoever holds it. Play time already accrued by a displaced
// active holder is credited; if the participant was active elsewhere that
// turn is closed out first so the exclusivity invariant holds.
func (e *Engine) ForceSetHolder(ctx context.Context, machine, participant string) error {
	if participant == "" {
		return domain.ErrInvalidRequest
	}
	var events []domain.SessionEvent
	err := e.mutate(ctx, false, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if prev := m.Holder; prev != "" && prev != participant {
			if elapsed := creditPlay(st, m, now); elapsed > 0 {
				events = append(events, sessionEvent(st, prev, machine, elapsed, now))
			}
			m.ClearOffer()
		}
		if other := st.ActiveOn(participant); other != "" && other != machine {
			om := st.Machines[other]
			if elapsed := creditPlay(st, om, now); elapsed > 0 {
				events = append(events, sessionEvent(st, participant, other, elapsed, now))
			}
			om.ClearOffer()
			advanceMachine(st, om, now, e.cfg)
			om.RecomputePhase()
		}
		m.RemoveFromQueue(participant)
		m.Holder = participant
		m.Phase = domain.PhaseActive
		m.TurnStartedAt = now
		m.TurnDeadline = time.Time{}
		m.PlayStartedAt = now
		st.Active[participant] = machine
		st.EnsureParticipant(participant)
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(events)
	return nil
}

// KickHolder removes the current holder from a machine, crediting any
// accrued play time, and offers the machine to the next in line.
func (e *Engine) KickHolder(ctx context.Context, machine string) error {
	var events []domain.SessionEvent
	err := e.mutate(ctx, false, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if m.Holder == "" {
			return domain.ErrNotPlaying
		}
		holder := m.Holder
		if elapsed := creditPlay(st, m, now); elapsed > 0 {
			events = append(events, sessionEvent(st, holder, machine, elapsed, now))
		}
		m.ClearOffer()
		advanceMachine(st, m, now, e.cfg)
		m.RecomputePhase()
		advanceAll(st, now, e.cfg)
		return nil
	})
	if err != nil {
		return err
	}
	e.publish(events)
	return nil
}

// AddToQueue appends a participant to a machine's queue, bypassing the pause
// and cooldown checks the public join enforces.
func (e *Engine) AddToQueue(ctx context.Context, machine, participant string) error {
	if participant == "" {
		return domain.ErrInvalidRequest
	}
	return e.mutate(ctx, false, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if m.Holder == participant || m.InQueue(participant) {
			return domain.ErrAlreadyQueued
		}
		st.EnsureParticipant(participant)
		m.Queue = append(m.Queue, participant)
		if m.Holder == "" {
			advanceMachine(st, m, now, e.cfg)
		}
		m.RecomputePhase()
		return nil
	})
}

// RemoveFromQueue drops a participant from any position in a machine's
// queue.
func (e *Engine) RemoveFromQueue(ctx context.Context, machine, participant string) error {
	return e.mutate(ctx, false, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if !m.RemoveFromQueue(participant) {
			return domain.ErrNotQueued
		}
		m.RecomputePhase()
		return nil
	})
}

// ReorderQueue replaces a machine's queue with newOrder, which must be a
// permutation of the current queue.
func (e *Engine) ReorderQueue(ctx context.Context, machine string, newOrder []string) error {
	return e.mutate(ctx, false, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if !isPermutation(m.Queue, newOrder) {
			return domain.ErrInvalidOrder
		}
		m.Queue = append([]string(nil), newOrder...)
		return nil
	})
}

// ResetStats soft-resets a participant's displayed stats: counters to zero,
// play-time watermark moved to the current total. Cumulative play time
// itself stays monotonic.
func (e *Engine) ResetStats(ctx context.Context, participant string) error {
	return e.mutate(ctx, false, func(st *domain.State, now time.Time) error {
		p, ok := st.Participants[participant]
		if !ok {
			return domain.ErrUnknownParticipant
		}
		p.SkipCount = 0
		p.SessionCount = 0
		p.PlayOffset = p.PlayTime
		return nil
	})
}

func isPermutation(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, h := range a {
		counts[h]++
	}
	for _, h := range b {
		counts[h]--
		if counts[h] < 0 {
			return false
		}
	}
	return true
}
