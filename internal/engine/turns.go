package engine

import (
	"context"
	"time"

	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

// Join appends a participant to a machine's queue. The participant record is
// created on first sight. If the machine has no holder the queue advances
// immediately.
func (e *Engine) Join(ctx context.Context, machine, participant string) error {
	if participant == "" {
		return domain.ErrInvalidRequest
	}
	return e.mutate(ctx, true, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if st.Paused {
			return domain.ErrPaused
		}
		if st.CooldownUntil(participant, machine).After(now) {
			return domain.ErrCooldownActive
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

// Accept confirms a pending turn offer. Only the offered holder may accept;
// an expired offer is swept into a skip before this check runs.
func (e *Engine) Accept(ctx context.Context, machine, participant string) error {
	return e.mutate(ctx, true, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if m.Phase != domain.PhaseAwaitingAccept {
			return domain.ErrNoActiveOffer
		}
		if m.Holder != participant {
			return domain.ErrNotYourTurn
		}
		m.Phase = domain.PhaseActive
		m.TurnDeadline = time.Time{}
		m.PlayStartedAt = now
		st.Active[participant] = machine
		st.EnsureParticipant(participant).SessionCount++
		return nil
	})
}

// Finish ends an active turn and returns its elapsed duration. Finishing
// with an empty queue installs a courtesy cooldown; otherwise the next
// participant is offered the machine immediately.
func (e *Engine) Finish(ctx context.Context, machine, participant string) (time.Duration, error) {
	var elapsed time.Duration
	var events []domain.SessionEvent
	err := e.mutate(ctx, true, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if m.Phase != domain.PhaseActive || m.Holder != participant {
			return domain.ErrNotPlaying
		}
		elapsed = creditPlay(st, m, now)
		events = append(events, sessionEvent(st, participant, machine, elapsed, now))
		m.ClearOffer()
		if len(m.Queue) == 0 {
			st.SetCooldown(participant, machine, now.Add(e.cfg.CourtesyCooldown))
		} else {
			advanceMachine(st, m, now, e.cfg)
		}
		m.RecomputePhase()
		// The finisher may have been blocking their own spot elsewhere.
		advanceAll(st, now, e.cfg)
		return nil
	})
	if err != nil {
		return 0, err
	}
	e.publish(events)
	return elapsed, nil
}

// Skip forfeits a pending offer. With another eligible participant waiting
// the skipper drops exactly one position; otherwise they leave the queue
// entirely. Skip-induced emptiness installs no cooldown.
func (e *Engine) Skip(ctx context.Context, machine, participant string) error {
	return e.mutate(ctx, true, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if m.Phase != domain.PhaseAwaitingAccept || m.Holder != participant {
			return domain.ErrNotYourTurn
		}
		skipHolder(st, m, now, e.cfg)
		return nil
	})
}

// Leave withdraws a participant from a machine: out of the queue, or
// abandoning an unaccepted offer without skip penalty.
func (e *Engine) Leave(ctx context.Context, machine, participant string) error {
	return e.mutate(ctx, true, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		if m.RemoveFromQueue(participant) {
			m.RecomputePhase()
			return nil
		}
		if m.Phase == domain.PhaseAwaitingAccept && m.Holder == participant {
			m.ClearOffer()
			advanceMachine(st, m, now, e.cfg)
			m.RecomputePhase()
			advanceAll(st, now, e.cfg)
			return nil
		}
		return domain.ErrNotQueued
	})
}

// SwapPlaces exchanges the caller's queue position with a participant
// strictly behind them on the same machine.
func (e *Engine) SwapPlaces(ctx context.Context, machine, participant, target string) error {
	return e.mutate(ctx, true, func(st *domain.State, now time.Time) error {
		m, ok := st.Machines[machine]
		if !ok {
			return domain.ErrUnknownMachine
		}
		mine := m.QueueIndex(participant)
		theirs := m.QueueIndex(target)
		if mine < 0 || theirs < 0 {
			return domain.ErrNotQueued
		}
		if theirs <= mine {
			return domain.ErrInvalidOrder
		}
		m.Queue[mine], m.Queue[theirs] = m.Queue[theirs], m.Queue[mine]
		return nil
	})
}

// advanceMachine promotes the first queued participant who is not playing
// elsewhere. Blocked participants keep their queue order directly behind the
// promoted one, never dropping to the tail and never collecting a skip.
func advanceMachine(st *domain.State, m *domain.Machine, now time.Time, cfg Config) {
	if st.Paused || m.Holder != "" {
		return
	}
	idx := firstEligible(st, m)
	if idx < 0 {
		m.RecomputePhase()
		return
	}
	head := m.Queue[idx]
	m.Queue = append(m.Queue[:idx], m.Queue[idx+1:]...)
	m.Holder = head
	m.Phase = domain.PhaseAwaitingAccept
	m.TurnStartedAt = now
	m.TurnDeadline = now.Add(cfg.TurnTimeout)
	m.PlayStartedAt = time.Time{}
}

// advanceAll runs advanceMachine over every holderless machine.
func advanceAll(st *domain.State, now time.Time, cfg Config) {
	for _, name := range st.MachineOrder {
		m := st.Machines[name]
		if m.Holder == "" {
			advanceMachine(st, m, now, cfg)
			m.RecomputePhase()
		}
	}
}

// skipHolder applies the skip rules to the current unaccepted holder: skip
// counter up by one, then reinsert directly behind the next eligible
// participant, or remove entirely when no eligible participant waits. The
// reinsertion is positional so it holds even when advancement is suppressed
// by a pause.
func skipHolder(st *domain.State, m *domain.Machine, now time.Time, cfg Config) {
	skipped := m.Holder
	st.EnsureParticipant(skipped).SkipCount++
	m.ClearOffer()
	if idx := firstEligible(st, m); idx >= 0 {
		queue := make([]string, 0, len(m.Queue)+1)
		queue = append(queue, m.Queue[:idx+1]...)
		queue = append(queue, skipped)
		queue = append(queue, m.Queue[idx+1:]...)
		m.Queue = queue
	}
	m.RecomputePhase()
	advanceAll(st, now, cfg)
}

// firstEligible returns the queue position of the first participant free to
// play, or -1.
func firstEligible(st *domain.State, m *domain.Machine) int {
	for i, h := range m.Queue {
		if st.ActiveOn(h) == "" {
			return i
		}
	}
	return -1
}

// creditPlay adds the elapsed active duration to the holder's total and
// clears the exclusivity entry. The caller owns phase/holder cleanup.
func creditPlay(st *domain.State, m *domain.Machine, now time.Time) time.Duration {
	if m.Phase != domain.PhaseActive || m.Holder == "" || m.PlayStartedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(m.PlayStartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	st.EnsureParticipant(m.Holder).PlayTime += elapsed
	delete(st.Active, m.Holder)
	return elapsed
}

func sessionEvent(st *domain.State, participant, machine string, elapsed time.Duration, now time.Time) domain.SessionEvent {
	total := time.Duration(0)
	if p, ok := st.Participants[participant]; ok {
		total = p.PlayTime
	}
	return domain.SessionEvent{
		Participant:      participant,
		Machine:          machine,
		PlaySeconds:      elapsed.Seconds(),
		TotalPlaySeconds: total.Seconds(),
		FinishedAt:       now,
	}
}
