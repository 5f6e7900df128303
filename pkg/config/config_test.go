package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ICAL_SYNC_CRON", "")
	t.Setenv("LOCK_BACKEND", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "0 */15 * * * *", cfg.Channel.ICalSyncCron)
	assert.Equal(t, "mock", cfg.Channel.FetchMode)
	assert.Equal(t, 20*time.Second, cfg.Channel.FetchTimeout)
	assert.Equal(t, "https://api.apartel.app", cfg.Channel.ExportBaseURL)
	assert.Equal(t, "local", cfg.Lock.Backend)
	assert.Equal(t, "USD", cfg.Ledger.DefaultCurrency)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ICAL_FETCH_TIMEOUT", "3s")
	t.Setenv("ICAL_SYNC_WORKERS", "9")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("LOG_COMPRESS", "FALSE")
	t.Setenv("REDIS_PORT", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Channel.FetchTimeout)
	assert.Equal(t, 9, cfg.Channel.SyncWorkers)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Log.Compress)
	assert.Equal(t, 6379, cfg.Redis.Port)
}
