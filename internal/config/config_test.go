package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BADGETRACK_AUTH_SECRET", "s3cret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8061", cfg.Addr)
	assert.Equal(t, "s3cret", cfg.AuthSecret)
	assert.Equal(t, "badgetrack.decisions", cfg.KafkaTopic)
	assert.False(t, cfg.AllowDebugActor)
	assert.Empty(t, cfg.KafkaBrokers)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("BADGETRACK_AUTH_SECRET", "")
	t.Setenv("BADGETRACK_ALLOW_DEBUG_ACTOR", "")

	_, err := Load()
	assert.Error(t, err)

	// Local development may run without a secret.
	t.Setenv("BADGETRACK_ALLOW_DEBUG_ACTOR", "true")
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.AllowDebugActor)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BADGETRACK_ADDR", ":9000")
	t.Setenv("BADGETRACK_AUTH_SECRET", "s3cret")
	t.Setenv("DATABASE_URL", "postgres://fallback/db")
	t.Setenv("BADGETRACK_DATABASE_URL", "postgres://primary/db")
	t.Setenv("BADGETRACK_KAFKA_BROKERS", "broker-1:9092, broker-2:9092,")
	t.Setenv("BADGETRACK_KAFKA_TOPIC", "custom.topic")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, "postgres://primary/db", cfg.DatabaseURL)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom.topic", cfg.KafkaTopic)
}
