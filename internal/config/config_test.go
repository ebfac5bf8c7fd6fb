package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendPostgres, cfg.LedgerBackend)
	assert.Equal(t, 2*time.Second, cfg.LockTimeout)
	assert.Equal(t, 2*time.Second, cfg.SnapshotTTL)
	assert.Equal(t, "ticketing-events", cfg.KafkaTopic)
	assert.NotEmpty(t, cfg.KafkaGroup)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("LEDGER_BACKEND", BackendMemory)
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LOCK_TIMEOUT", "750ms")

	cfg, err := Load(nil)

	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.LedgerBackend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTimeout)
	assert.True(t, cfg.KafkaEnabled())
}

func TestLoad_FlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("HTTP_ADDR", ":9000")

	cfg, err := Load([]string{
		"--http-addr", ":7000",
		"--ledger-backend", "dynamodb",
		"--snapshot-ttl", "5s",
		"--kafka-group", "analytics",
	})

	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTPAddr)
	assert.Equal(t, BackendDynamoDB, cfg.LedgerBackend)
	assert.Equal(t, 5*time.Second, cfg.SnapshotTTL)
	assert.Equal(t, "analytics", cfg.KafkaGroup)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
		want string
	}{
		{"missing secret", nil, nil, "jwt-secret is required"},
		{"short secret", map[string]string{"JWT_SECRET": "short"}, nil, "at least 32"},
		{"unknown backend", map[string]string{"JWT_SECRET": testSecret}, []string{"--ledger-backend", "mysql"}, "unknown ledger backend"},
		{"bad duration env", map[string]string{"JWT_SECRET": testSecret, "LOCK_TIMEOUT": "soon"}, nil, "LOCK_TIMEOUT"},
		{"zero lock timeout", map[string]string{"JWT_SECRET": testSecret}, []string{"--lock-timeout", "0s"}, "lock-timeout"},
		{"unknown flag", map[string]string{"JWT_SECRET": testSecret}, []string{"--nope"}, "unknown flag"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(tt.args)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"a", "b"}, splitList(" a,,b "))
}
