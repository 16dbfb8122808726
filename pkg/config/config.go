package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"dev" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout" validate:"required"`
	} `yaml:"log"`
	Sync struct {
		PushChannelURL           string `yaml:"push_channel_url" validate:"required,url"`
		APIBaseURL               string `yaml:"api_base_url" validate:"required,url"`
		ReconciliationIntervalMs int    `yaml:"reconciliation_interval_ms" default:"30000" validate:"gte=1000"`
		RequestTimeoutMs         int    `yaml:"request_timeout_ms" default:"10000" validate:"gte=100"`
		MaxActionRetries         int    `yaml:"max_action_retries" default:"2" validate:"gte=0,lte=10"`
	} `yaml:"sync"`
	Push struct {
		AuthToken    string        `yaml:"auth_token"`
		PingInterval time.Duration `yaml:"ping_interval" default:"20s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"60s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		BackoffBase  time.Duration `yaml:"backoff_base" default:"1s"`
		BackoffCap   time.Duration `yaml:"backoff_cap" default:"30s"`
	} `yaml:"push"`
	API struct {
		RateLimit float64 `yaml:"rate_limit" default:"10" validate:"gt=0"`
		Burst     int     `yaml:"burst" default:"20" validate:"gte=1"`
	} `yaml:"api"`
	Actions struct {
		RetrySpacing time.Duration `yaml:"retry_spacing" default:"2s"`
	} `yaml:"actions"`
	Subscriptions struct {
		Symbols []string `yaml:"symbols"`
	} `yaml:"subscriptions"`
	Pipeline struct {
		MaxRPS     int `yaml:"max_rps" validate:"gte=0"`
		BufferSize int `yaml:"buffer_size" default:"1000" validate:"gte=1"`
	} `yaml:"pipeline"`
	Server struct {
		Enabled         bool          `yaml:"enabled"`
		Host            string        `yaml:"host" default:"127.0.0.1"`
		Port            int           `yaml:"port" default:"8090" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins" validate:"dive,url"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Cache struct {
		Backend       string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
		CandlesTTL    time.Duration `yaml:"candles_ttl" default:"30s"`
		MarketsTTL    time.Duration `yaml:"markets_ttl" default:"5m"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
		L1TTL         time.Duration `yaml:"l1_ttl" default:"10s"`
		Redis         struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"tradesync"`
			PoolSize int    `yaml:"pool_size" default:"10" validate:"gte=1"`
			MinIdle  int    `yaml:"min_idle_conns" default:"2" validate:"gte=0"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Recorder struct {
		Backend        string        `yaml:"backend" default:"none" validate:"oneof=none kafka clickhouse"`
		ShipErrorLogs  bool          `yaml:"ship_error_logs"`
		DigestInterval time.Duration `yaml:"digest_interval" default:"1m"`
	} `yaml:"recorder"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"tradesync.facts"`
		LogTopic     string   `yaml:"log_topic" default:"tradesync.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"1s"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradesync"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
}

var validate = validator.New()

// ReconciliationInterval returns the poll cadence.
func (c *Config) ReconciliationInterval() time.Duration {
	return time.Duration(c.Sync.ReconciliationIntervalMs) * time.Millisecond
}

// RequestTimeout returns the default per-request timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Sync.RequestTimeoutMs) * time.Millisecond
}

// Parse decodes YAML bytes and fills defaults. It does not validate.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	c, err := Parse(b)
	if err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads a .env file if present, reads YAML and overrides it with
// environment variables before validating.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := Parse(b)
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
	if v := os.Getenv("PUSH_CHANNEL_URL"); v != "" {
		c.Sync.PushChannelURL = v
	}
	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.Sync.APIBaseURL = v
	}
	if v := os.Getenv("PUSH_AUTH_TOKEN"); v != "" {
		c.Push.AuthToken = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Subscriptions.Symbols = splitList(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("RECORDER_BACKEND"); v != "" {
		c.Recorder.Backend = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Push.BackoffBase <= 0 || c.Push.BackoffCap < c.Push.BackoffBase {
		return fmt.Errorf("push.backoff_cap (%s) must be >= push.backoff_base (%s) > 0", c.Push.BackoffCap, c.Push.BackoffBase)
	}
	if c.Recorder.Backend == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when recorder.backend is 'kafka'")
	}
	if c.Recorder.Backend == "clickhouse" && c.ClickHouse.Host == "" {
		return fmt.Errorf("clickhouse.host is required when recorder.backend is 'clickhouse'")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
