package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  admin_token: hunter2
storage:
  backend: memory
queue:
  turn_timeout: 90s
  courtesy_cooldown: 30s
  machines:
    - Maimai
    - Taiko no Tatsujin
kafka:
  enabled: true
  brokers:
    - kafka-1:9092
    - kafka-2:9092
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "hunter2", cfg.Server.AdminToken)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, 90*time.Second, cfg.Queue.TurnTimeout)
	assert.Equal(t, 30*time.Second, cfg.Queue.CourtesyCooldown)
	assert.Equal(t, []string{"Maimai", "Taiko no Tatsujin"}, cfg.Queue.Machines)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)

	// Unset sections fall back to defaults.
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, "arcade-play-sessions", cfg.Kafka.Topic)
	assert.Equal(t, 5*time.Second, cfg.Sweep.Interval)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("ARCADE_ADMIN_TOKEN", "sesame")
	t.Setenv("ARCADE_PG_PASSWORD", "s3cret")

	path := writeConfig(t, `
server:
  admin_token: ${ARCADE_ADMIN_TOKEN}
postgres:
  password: ${ARCADE_PG_PASSWORD}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sesame", cfg.Server.AdminToken)
	assert.Equal(t, "s3cret", cfg.Postgres.Password)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Backend)
	assert.Equal(t, 60*time.Second, cfg.Queue.TurnTimeout)
	assert.Equal(t, 10*time.Second, cfg.Queue.CourtesyCooldown)
	assert.NotEmpty(t, cfg.Queue.Machines)
	assert.True(t, cfg.Sweep.Enabled)
	assert.Empty(t, cfg.Server.AdminToken, "admin API is disabled by default")
}

func TestConnectionString(t *testing.T) {
	cfg := PostgresConfig{
		Host:     "db.internal",
		Port:     5433,
		User:     "arcade",
		Password: "pw",
		Database: "arcade",
	}
	assert.Equal(t,
		"postgres://arcade:pw@db.internal:5433/arcade?sslmode=disable",
		cfg.ConnectionString(),
	)
}
