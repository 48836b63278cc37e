package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"WasteFlow/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
	Metrics struct {
		Enabled       bool          `yaml:"enabled"`
		Path          string        `yaml:"path"`
		SlowThreshold time.Duration `yaml:"slow_threshold"`
	} `yaml:"metrics"`
	Data struct {
		HistoryCSV    string  `yaml:"history_csv"`
		SyntheticDays int     `yaml:"synthetic_days"`
		Seed          int64   `yaml:"seed"`
		NoiseRatio    float64 `yaml:"noise_ratio"`
		Seasonality   float64 `yaml:"seasonal_amplitude"`
	} `yaml:"data"`
	Forecast struct {
		ModelDir       string        `yaml:"model_dir"`
		Estimators     int           `yaml:"estimators"`
		MaxDepth       int           `yaml:"max_depth"`
		TestRatio      float64       `yaml:"test_ratio"`
		Seed           int64         `yaml:"seed"`
		Workers        int           `yaml:"workers"`
		TrainIfMissing bool          `yaml:"train_if_missing"`
		Seed7DayAvg    float64       `yaml:"seed_7day_avg"`
		Seed30DayAvg   float64       `yaml:"seed_30day_avg"`
		Feedback       string        `yaml:"feedback"`
		StrictRegions  bool          `yaml:"strict_regions"`
		CacheTTL       time.Duration `yaml:"cache_ttl"`
	} `yaml:"forecast"`
	Exchange struct {
		Backend   string `yaml:"backend"`
		StorePath string `yaml:"store_path"`
		Seed      bool   `yaml:"seed"`
	} `yaml:"exchange"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		RequiredAcks int           `yaml:"required_acks"`
		Compression  string        `yaml:"compression"`
		MaxAttempts  int           `yaml:"max_attempts"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		Table        string        `yaml:"table"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"clickhouse"`
	Classifier struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"classifier"`
	RateLimit struct {
		Enabled  bool    `yaml:"enabled"`
		Capacity float64 `yaml:"capacity"`
		Refill   float64 `yaml:"refill_per_sec"`
	} `yaml:"ratelimit"`
}

// Feedback modes for the day-ahead rolling-average loop.
const (
	FeedbackLegacy    = "legacy"
	FeedbackRecompute = "recompute"
)

// Store backends for the exchange.
const (
	BackendJSON   = "json"
	BackendBadger = "badger"
)

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.ApplyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML, an optional .env file, and environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WASTEFLOW_ENV"); v != "" {
		c.Environment = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("HTTP_PORT"), c.Server.Port)
	if v := os.Getenv("HISTORY_CSV"); v != "" {
		c.Data.HistoryCSV = v
	}
	if v := os.Getenv("MODEL_DIR"); v != "" {
		c.Forecast.ModelDir = v
	}
	if v := os.Getenv("STORE_PATH"); v != "" {
		c.Exchange.StorePath = v
	}
	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Exchange.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, _ := strings.Cut(v, ":")
		c.Redis.Host = host
		c.Redis.Port = util.ParseIntDefault(port, c.Redis.Port)
		c.Redis.Enabled = true
	}
	if v := os.Getenv("CLASSIFIER_URL"); v != "" {
		c.Classifier.URL = v
	}
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Data.SyntheticDays == 0 {
		c.Data.SyntheticDays = 180
	}
	if c.Data.Seed == 0 {
		c.Data.Seed = 42
	}
	if c.Data.NoiseRatio == 0 {
		c.Data.NoiseRatio = 0.05
	}
	if c.Data.Seasonality == 0 {
		c.Data.Seasonality = 0.1
	}
	if c.Forecast.ModelDir == "" {
		c.Forecast.ModelDir = "data/models"
	}
	if c.Forecast.Estimators == 0 {
		c.Forecast.Estimators = 100
	}
	if c.Forecast.MaxDepth == 0 {
		c.Forecast.MaxDepth = 10
	}
	if c.Forecast.TestRatio == 0 {
		c.Forecast.TestRatio = 0.2
	}
	if c.Forecast.Seed == 0 {
		c.Forecast.Seed = 42
	}
	if c.Forecast.Seed7DayAvg == 0 {
		c.Forecast.Seed7DayAvg = 50
	}
	if c.Forecast.Seed30DayAvg == 0 {
		c.Forecast.Seed30DayAvg = 48
	}
	if c.Forecast.Feedback == "" {
		c.Forecast.Feedback = FeedbackLegacy
	}
	if c.Forecast.CacheTTL == 0 {
		c.Forecast.CacheTTL = 10 * time.Minute
	}
	if c.Exchange.Backend == "" {
		c.Exchange.Backend = BackendJSON
	}
	if c.Exchange.StorePath == "" {
		c.Exchange.StorePath = "data/marketplace_data.json"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "wasteflow"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "wasteflow.exchange"
	}
	if c.ClickHouse.Table == "" {
		c.ClickHouse.Table = "waste_series"
	}
	if c.Classifier.Timeout == 0 {
		c.Classifier.Timeout = 10 * time.Second
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 20
	}
	if c.RateLimit.Refill == 0 {
		c.RateLimit.Refill = 5
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Forecast.Estimators < 1 {
		return fmt.Errorf("forecast.estimators must be positive")
	}
	if c.Forecast.MaxDepth < 1 {
		return fmt.Errorf("forecast.max_depth must be positive")
	}
	if c.Forecast.TestRatio < 0 || c.Forecast.TestRatio >= 1 {
		return fmt.Errorf("forecast.test_ratio must be in [0, 1), got %v", c.Forecast.TestRatio)
	}
	if c.Forecast.Feedback != FeedbackLegacy && c.Forecast.Feedback != FeedbackRecompute {
		return fmt.Errorf("forecast.feedback must be '%s' or '%s', got '%s'", FeedbackLegacy, FeedbackRecompute, c.Forecast.Feedback)
	}
	if c.Exchange.Backend != BackendJSON && c.Exchange.Backend != BackendBadger {
		return fmt.Errorf("exchange.backend must be '%s' or '%s', got '%s'", BackendJSON, BackendBadger, c.Exchange.Backend)
	}
	if c.Data.Seasonality < 0 || c.Data.Seasonality >= 1 {
		return fmt.Errorf("data.seasonal_amplitude must be in [0, 1), got %v", c.Data.Seasonality)
	}
	if c.Data.SyntheticDays < 1 {
		return fmt.Errorf("data.synthetic_days must be positive")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.ClickHouse.Enabled && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when clickhouse is enabled")
	}
	return nil
}
