package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, 5000, c.Server.Port)
	assert.Equal(t, FeedbackLegacy, c.Forecast.Feedback)
	assert.Equal(t, BackendJSON, c.Exchange.Backend)
	assert.Equal(t, 100, c.Forecast.Estimators)
	assert.Equal(t, 10, c.Forecast.MaxDepth)
	assert.Equal(t, 50.0, c.Forecast.Seed7DayAvg)
	assert.Equal(t, 48.0, c.Forecast.Seed30DayAvg)
	assert.Equal(t, 0.1, c.Data.Seasonality)
	assert.Equal(t, "data/marketplace_data.json", c.Exchange.StorePath)
	assert.NoError(t, c.Validate())
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 8081
  read_timeout: 3s
data:
  seasonal_amplitude: 0.25
forecast:
  feedback: recompute
  estimators: 25
  cache_ttl: 90s
exchange:
  backend: badger
  store_path: /tmp/ex
kafka:
  enabled: true
  brokers: ["k1:9092", "k2:9092"]
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8081, c.Server.Port)
	assert.Equal(t, 0.25, c.Data.Seasonality)
	assert.Equal(t, 3*time.Second, c.Server.ReadTimeout)
	assert.Equal(t, 60*time.Second, c.Server.WriteTimeout)
	assert.Equal(t, FeedbackRecompute, c.Forecast.Feedback)
	assert.Equal(t, 25, c.Forecast.Estimators)
	assert.Equal(t, 90*time.Second, c.Forecast.CacheTTL)
	assert.Equal(t, BackendBadger, c.Exchange.Backend)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
	assert.Equal(t, "wasteflow.exchange", c.Kafka.Topic)
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"feedback":    "forecast:\n  feedback: sometimes\n",
		"backend":     "exchange:\n  backend: sqlite\n",
		"port":        "server:\n  port: 70000\n",
		"test ratio":  "forecast:\n  test_ratio: 1.5\n",
		"clickhouse":  "clickhouse:\n  enabled: true\n",
		"seasonality": "data:\n  seasonal_amplitude: 1.5\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.ErrorContains(t, err, "validate config")
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "read config")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "environment: development\n")
	t.Setenv("WASTEFLOW_ENV", "production")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("MODEL_DIR", "/var/models")
	t.Setenv("STORE_BACKEND", "badger")
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("REDIS_ADDR", "cache.local:6380")
	t.Setenv("CLASSIFIER_URL", "http://vision:8000/classify")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "production", c.Environment)
	assert.Equal(t, 9000, c.Server.Port)
	assert.Equal(t, "/var/models", c.Forecast.ModelDir)
	assert.Equal(t, BackendBadger, c.Exchange.Backend)
	assert.True(t, c.Kafka.Enabled)
	assert.Equal(t, []string{"a:1", "b:2"}, c.Kafka.Brokers)
	assert.True(t, c.Redis.Enabled)
	assert.Equal(t, "cache.local", c.Redis.Host)
	assert.Equal(t, 6380, c.Redis.Port)
	assert.Equal(t, "http://vision:8000/classify", c.Classifier.URL)
}

func TestShippedConfigLoads(t *testing.T) {
	c, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.True(t, c.Exchange.Seed)
	assert.True(t, c.Forecast.TrainIfMissing)
}
