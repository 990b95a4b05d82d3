package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/XIAA25/queueing-system-home-arcade/internal/config"
	"github.com/XIAA25/queueing-system-home-arcade/internal/domain"
)

// Store provides PostgreSQL-backed persistence for the queue aggregate. The
// whole aggregate is written inside one transaction per mutation, so a crash
// mid-save leaves the previous state readable.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a PostgreSQL store.
func NewStore(cfg *config.PostgresConfig, logger *slog.Logger) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &Store{
		pool:   pool,
		logger: logger,
	}, nil
}

// Close closes the database connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// RunMigrations executes database migrations.
func (s *Store) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS machines (
			name VARCHAR(128) PRIMARY KEY,
			position INT NOT NULL DEFAULT 0,
			queue JSONB NOT NULL DEFAULT '[]',
			holder VARCHAR(128) NOT NULL DEFAULT '',
			phase VARCHAR(20) NOT NULL DEFAULT 'idle',
			turn_started_at TIMESTAMPTZ,
			turn_deadline TIMESTAMPTZ,
			play_started_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS participants (
			handle VARCHAR(128) PRIMARY KEY,
			play_ns BIGINT NOT NULL DEFAULT 0,
			play_offset_ns BIGINT NOT NULL DEFAULT 0,
			skip_count INT NOT NULL DEFAULT 0,
			session_count INT NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS courtesy_cooldowns (
			participant VARCHAR(128) NOT NULL,
			machine VARCHAR(128) NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (participant, machine)
		)`,
		`CREATE TABLE IF NOT EXISTS app_state (
			key VARCHAR(64) PRIMARY KEY,
			value TEXT
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("executing migration: %w", err)
		}
	}

	s.logger.Info("database migrations completed")
	return nil
}

// Save writes the full aggregate in one transaction.
func (s *Store) Save(ctx context.Context, st *domain.State) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for pos, name := range st.MachineOrder {
		m := st.Machines[name]
		queueJSON, err := json.Marshal(m.Queue)
		if err != nil {
			return fmt.Errorf("encoding queue for %s: %w", name, err)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO machines (name, position, queue, holder, phase, turn_started_at, turn_deadline, play_started_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (name) DO UPDATE SET
				position = EXCLUDED.position,
				queue = EXCLUDED.queue,
				holder = EXCLUDED.holder,
				phase = EXCLUDED.phase,
				turn_started_at = EXCLUDED.turn_started_at,
				turn_deadline = EXCLUDED.turn_deadline,
				play_started_at = EXCLUDED.play_started_at
		`, name, pos, queueJSON, m.Holder, string(m.Phase),
			nullTime(m.TurnStartedAt), nullTime(m.TurnDeadline), nullTime(m.PlayStartedAt))
		if err != nil {
			return fmt.Errorf("saving machine %s: %w", name, err)
		}
	}

	for handle, p := range st.Participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO participants (handle, play_ns, play_offset_ns, skip_count, session_count)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (handle) DO UPDATE SET
				play_ns = EXCLUDED.play_ns,
				play_offset_ns = EXCLUDED.play_offset_ns,
				skip_count = EXCLUDED.skip_count,
				session_count = EXCLUDED.session_count
		`, handle, int64(p.PlayTime), int64(p.PlayOffset), p.SkipCount, p.SessionCount)
		if err != nil {
			return fmt.Errorf("saving participant %s: %w", handle, err)
		}
	}

	if _, err = tx.Exec(ctx, `DELETE FROM courtesy_cooldowns`); err != nil {
		return fmt.Errorf("clearing cooldowns: %w", err)
	}
	for handle, byMachine := range st.Cooldowns {
		for machine, expiresAt := range byMachine {
			_, err = tx.Exec(ctx, `
				INSERT INTO courtesy_cooldowns (participant, machine, expires_at)
				VALUES ($1, $2, $3)
			`, handle, machine, expiresAt)
			if err != nil {
				return fmt.Errorf("saving cooldown: %w", err)
			}
		}
	}

	pausedAt := ""
	if !st.PausedAt.IsZero() {
		pausedAt = st.PausedAt.Format(time.RFC3339Nano)
	}
	upsert := `
		INSERT INTO app_state (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`
	if _, err = tx.Exec(ctx, upsert, "paused", boolValue(st.Paused)); err != nil {
		return fmt.Errorf("saving pause flag: %w", err)
	}
	if _, err = tx.Exec(ctx, upsert, "paused_at", pausedAt); err != nil {
		return fmt.Errorf("saving pause timestamp: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing state: %w", err)
	}
	return nil
}

// Load reconstructs the aggregate from the last save, or returns nil when
// the database is empty.
func (s *Store) Load(ctx context.Context) (*domain.State, error) {
	st := domain.NewState(nil)

	rows, err := s.pool.Query(ctx, `
		SELECT name, queue, holder, phase, turn_started_at, turn_deadline, play_started_at
		FROM machines
		ORDER BY position, name
	`)
	if err != nil {
		return nil, fmt.Errorf("loading machines: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			name, holder, phase               string
			queueJSON                         []byte
			turnStartedAt, turnDeadline, play *time.Time
		)
		if err := rows.Scan(&name, &queueJSON, &holder, &phase, &turnStartedAt, &turnDeadline, &play); err != nil {
			return nil, fmt.Errorf("scanning machine: %w", err)
		}
		m := st.EnsureMachine(name)
		if err := json.Unmarshal(queueJSON, &m.Queue); err != nil {
			return nil, fmt.Errorf("decoding queue for %s: %w", name, err)
		}
		m.Holder = holder
		m.Phase = domain.Phase(phase)
		m.TurnStartedAt = timeValue(turnStartedAt)
		m.TurnDeadline = timeValue(turnDeadline)
		m.PlayStartedAt = timeValue(play)
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading machines: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	prows, err := s.pool.Query(ctx, `
		SELECT handle, play_ns, play_offset_ns, skip_count, session_count
		FROM participants
	`)
	if err != nil {
		return nil, fmt.Errorf("loading participants: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var (
			handle                  string
			playNS, playOffsetNS    int64
			skipCount, sessionCount int
		)
		if err := prows.Scan(&handle, &playNS, &playOffsetNS, &skipCount, &sessionCount); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		p := st.EnsureParticipant(handle)
		p.PlayTime = time.Duration(playNS)
		p.PlayOffset = time.Duration(playOffsetNS)
		p.SkipCount = skipCount
		p.SessionCount = sessionCount
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("loading participants: %w", err)
	}

	crows, err := s.pool.Query(ctx, `
		SELECT participant, machine, expires_at FROM courtesy_cooldowns
	`)
	if err != nil {
		return nil, fmt.Errorf("loading cooldowns: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var participant, machine string
		var expiresAt time.Time
		if err := crows.Scan(&participant, &machine, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning cooldown: %w", err)
		}
		st.SetCooldown(participant, machine, expiresAt)
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("loading cooldowns: %w", err)
	}

	var value string
	err = s.pool.QueryRow(ctx, `SELECT value FROM app_state WHERE key = 'paused'`).Scan(&value)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("loading pause flag: %w", err)
	}
	st.Paused = value == "1"
	value = ""
	err = s.pool.QueryRow(ctx, `SELECT value FROM app_state WHERE key = 'paused_at'`).Scan(&value)
	if err != nil && err != pgx.ErrNoRows {
		return nil, fmt.Errorf("loading pause timestamp: %w", err)
	}
	if value != "" {
		t, err := time.Parse(time.RFC3339Nano, value)
		if err != nil {
			return nil, fmt.Errorf("parsing pause timestamp: %w", err)
		}
		st.PausedAt = t
	}

	st.RebuildActive()
	return st, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeValue(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.UTC()
}

func boolValue(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
