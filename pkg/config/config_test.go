package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOverlaysDefaults(t *testing.T) {
	c, err := Parse([]byte(`
environment: test
window:
  min_wait: 20m
discovery:
  top_n: 5
`))
	require.NoError(t, err)

	assert.Equal(t, "test", c.Environment)
	assert.Equal(t, 20*time.Minute, c.Window.MinWait)
	assert.Equal(t, 50*time.Minute, c.Window.MaxWait)
	assert.Equal(t, 5, c.Discovery.TopN)
	assert.Equal(t, 0.95, c.Discovery.WinThreshold)
	assert.Equal(t, "BTCUSDT", c.Market.Symbol)
}

func TestValidateRejectsInvertedWaits(t *testing.T) {
	_, err := Parse([]byte(`
window:
  min_wait: 55m
  max_wait: 40m
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_wait")
}

func TestValidateRejectsGapOrder(t *testing.T) {
	c := Default()
	c.Window.ClearGap = 10
	c.Window.CloseGap = 20
	assert.Error(t, c.Validate())
}

func TestValidateWindowLength(t *testing.T) {
	c := Default()
	c.Window.Length = 15 * time.Minute
	c.Window.MinWait = 5 * time.Minute
	c.Window.MaxWait = 12 * time.Minute
	assert.NoError(t, c.Validate())

	c.Window.Length = 15*time.Minute + 30*time.Second
	assert.ErrorContains(t, c.Validate(), "whole number of minutes")
}

func TestValidateConsensusShorterThanDiscovery(t *testing.T) {
	c := Default()
	c.Consensus.TTL = c.Discovery.Interval
	assert.Error(t, c.Validate())
}

func TestValidateKafkaNeedsBrokers(t *testing.T) {
	c := Default()
	c.Kafka.Enabled = true
	c.Kafka.Brokers = nil
	assert.Error(t, c.Validate())
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	env := map[string]string{
		"KAFKA_BROKERS":   "a:9092,b:9092",
		"REDIS_HOST":      "redis",
		"SERVER_PORT":     "9090",
		"PRICE_SYMBOL":    "ETHUSDT",
		"CLICKHOUSE_HOST": "ch",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, []string{"a:9092", "b:9092"}, c.Kafka.Brokers)
	assert.True(t, c.Kafka.Enabled)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "redis", c.Redis.Host)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "ETHUSDT", c.Market.Symbol)
	assert.True(t, c.ClickHouse.Enabled)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", c.Environment)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
