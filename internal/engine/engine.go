package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/XIAA25/queueing-system-home-arcade/internal/clock"
	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

// Store persists the full aggregate. Save must be atomic: either the whole
// state lands or the previous state remains readable.
type Store interface {
	// Load returns the last saved state, or nil when the store is empty.
	Load(ctx context.Context) (*domain.State, error)
	Save(ctx context.Context, st *domain.State) error
}

// SessionSink receives completed-turn events. Delivery is best effort and
// happens outside the engine lock, after the turn is committed.
type SessionSink interface {
	PublishSession(ev domain.SessionEvent)
}

// Config holds the queueing rules for a deployment.
type Config struct {
	// TurnTimeout is how long an offered turn stays open before auto-skip.
	TurnTimeout time.Duration
	// CourtesyCooldown blocks re-joining a machine right after finishing a
	// turn that left its queue empty.
	CourtesyCooldown time.Duration
	// Machines lists the arcade machines to coordinate, in display order.
	Machines []string
}

// Engine owns all queue state and serializes every mutation behind one lock.
// Each mutation is applied to a deep clone, persisted, and only then swapped
// in, so a failed persistence write leaves the observable state untouched.
type Engine struct {
	mu    sync.Mutex
	st    *domain.State
	store Store
	clock clock.Clock
	cfg   Config
	log   *slog.Logger

	notify func()
	sink   SessionSink
}

// New builds an engine, rehydrating state from the store. Machines named in
// cfg but absent from the stored state are added idle.
func New(ctx context.Context, store Store, clk clock.Clock, cfg Config, logger *slog.Logger) (*Engine, error) {
	st, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if st == nil {
		st = domain.NewState(cfg.Machines)
	} else {
		for _, name := range cfg.Machines {
			st.EnsureMachine(name)
		}
	}
	return &Engine{
		st:    st,
		store: store,
		clock: clk,
		cfg:   cfg,
		log:   logger,
	}, nil
}

// SetNotify registers the state-changed signal, called after every committed
// mutation, outside the lock. Observers re-fetch Snapshot on receipt.
func (e *Engine) SetNotify(fn func()) {
	e.notify = fn
}

// SetSessionSink registers the completed-turn event sink.
func (e *Engine) SetSessionSink(sink SessionSink) {
	e.sink = sink
}

// Snapshot returns a consistent copy of the full state. Callers that want
// expiry applied first should run Sweep before snapshotting.
func (e *Engine) Snapshot() domain.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.SnapshotOf(e.st, e.clock.Now())
}

// Sweep applies the idempotent expiry pass: overdue turn offers become
// skips, stale cooldowns are pruned. A no-op while paused.
func (e *Engine) Sweep(ctx context.Context) error {
	e.mu.Lock()
	changed, err := e.sweepLocked(ctx, e.clock.Now())
	e.mu.Unlock()
	if changed {
		e.signal()
	}
	return err
}

// mutate is the single serialized entry point for state changes. When sweep
// is set, due expiries are committed first as their own persisted step so a
// rejected operation cannot roll them back. The operation itself must check
// all preconditions before touching st.
func (e *Engine) mutate(ctx context.Context, sweep bool, op func(st *domain.State, now time.Time) error) error {
	e.mu.Lock()
	now := e.clock.Now()

	swept := false
	if sweep {
		var err error
		swept, err = e.sweepLocked(ctx, now)
		if err != nil {
			e.mu.Unlock()
			return err
		}
	}

	next := e.st.Clone()
	if err := op(next, now); err != nil {
		e.mu.Unlock()
		if swept {
			e.signal()
		}
		return err
	}
	if err := e.store.Save(ctx, next); err != nil {
		e.mu.Unlock()
		if swept {
			e.signal()
		}
		return fmt.Errorf("persisting state: %w", err)
	}
	e.st = next
	e.mu.Unlock()
	e.signal()
	return nil
}

// sweepLocked expires overdue offers and prunes cooldowns, committing the
// result as its own persisted mutation. Caller holds the lock.
func (e *Engine) sweepLocked(ctx context.Context, now time.Time) (bool, error) {
	if e.st.Paused || !needsSweep(e.st, now) {
		return false, nil
	}
	next := e.st.Clone()
	expireOffers(next, now, e.cfg)
	next.PruneCooldowns(now)
	if err := e.store.Save(ctx, next); err != nil {
		return false, fmt.Errorf("persisting sweep: %w", err)
	}
	e.st = next
	return true, nil
}

func needsSweep(st *domain.State, now time.Time) bool {
	for _, m := range st.Machines {
		if m.Phase == domain.PhaseAwaitingAccept && !m.TurnDeadline.After(now) {
			return true
		}
	}
	for _, byMachine := range st.Cooldowns {
		for _, expiresAt := range byMachine {
			if !expiresAt.After(now) {
				return true
			}
		}
	}
	return false
}

// expireOffers converts every overdue offer into a skip. Promotions made
// while expiring carry fresh deadlines, so a second pass at the same now
// finds nothing to do.
func expireOffers(st *domain.State, now time.Time, cfg Config) {
	for _, name := range st.MachineOrder {
		m := st.Machines[name]
		if m.Phase == domain.PhaseAwaitingAccept && !m.TurnDeadline.After(now) {
			skipHolder(st, m, now, cfg)
		}
	}
}

func (e *Engine) signal() {
	if e.notify != nil {
		e.notify()
	}
}

func (e *Engine) publish(events []domain.SessionEvent) {
	if e.sink == nil {
		return
	}
	for _, ev := range events {
		e.sink.PublishSession(ev)
	}
}
