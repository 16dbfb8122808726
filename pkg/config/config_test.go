package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimal = `
sync:
  push_channel_url: ws://localhost:8001/ws
  api_base_url: http://localhost:8001
`

func TestParseFillsDefaults(t *testing.T) {
	c, err := Parse([]byte(minimal))
	require.NoError(t, err)
	require.NoError(t, c.Validate())

	assert.Equal(t, "dev", c.Environment)
	assert.Equal(t, 30*time.Second, c.ReconciliationInterval())
	assert.Equal(t, 10*time.Second, c.RequestTimeout())
	assert.Equal(t, 2, c.Sync.MaxActionRetries)
	assert.Equal(t, time.Second, c.Push.BackoffBase)
	assert.Equal(t, 30*time.Second, c.Push.BackoffCap)
	assert.Equal(t, 2*time.Second, c.Actions.RetrySpacing)
	assert.Equal(t, "none", c.Recorder.Backend)
	assert.Equal(t, -1, c.Kafka.RequiredAcks)
}

func TestValidateRejectsMissingURLs(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)
	assert.Error(t, c.Validate())
}

func TestValidateRecorderRequiresBrokers(t *testing.T) {
	c, err := Parse([]byte(minimal + "recorder:\n  backend: kafka\n"))
	require.NoError(t, err)
	assert.ErrorContains(t, c.Validate(), "kafka.brokers")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimal), 0o644))

	t.Setenv("API_BASE_URL", "http://backend:9000")
	t.Setenv("SYMBOLS", "BTC/USDT, SOL/USDT,")
	t.Setenv("RECORDER_BACKEND", "clickhouse")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9000", c.Sync.APIBaseURL)
	assert.Equal(t, []string{"BTC/USDT", "SOL/USDT"}, c.Subscriptions.Symbols)
	assert.Equal(t, "clickhouse", c.Recorder.Backend)
}

func TestLoadRepositoryConfig(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.True(t, c.Server.Enabled)
	assert.Len(t, c.Subscriptions.Symbols, 3)
}
