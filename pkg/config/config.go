package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
		Digest struct {
			Enabled        bool          `yaml:"enabled"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"digest"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		SlowThreshold   time.Duration `yaml:"slow_threshold"`
		RateLimit       struct {
			Capacity  float64 `yaml:"capacity"`
			PerSecond float64 `yaml:"per_second"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Window struct {
		Length       time.Duration `yaml:"length"`
		PollInterval time.Duration `yaml:"poll_interval"`
		MinPoints    int           `yaml:"min_points"`
		MinWait      time.Duration `yaml:"min_wait"`
		MaxWait      time.Duration `yaml:"max_wait"`
		ClearGap     float64       `yaml:"clear_gap"`
		CloseGap     float64       `yaml:"close_gap"`
		MarginPull   time.Duration `yaml:"margin_pull"`
	} `yaml:"window"`
	Market struct {
		Symbol        string `yaml:"symbol"`
		KlineInterval string `yaml:"kline_interval"`
		SlugPrefix    string `yaml:"slug_prefix"`
		Timezone      string `yaml:"timezone"`
	} `yaml:"market"`
	Sources struct {
		BinanceURL     string        `yaml:"binance_url"`
		GammaURL       string        `yaml:"gamma_url"`
		DataURL        string        `yaml:"data_url"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		Retries        int           `yaml:"retries"`
		RateCapacity   float64       `yaml:"rate_capacity"`
		RatePerSecond  float64       `yaml:"rate_per_second"`
		TradeLimit     int           `yaml:"trade_limit"`
	} `yaml:"sources"`
	Discovery struct {
		LookbackWindows int           `yaml:"lookback_windows"`
		WinThreshold    float64       `yaml:"win_threshold"`
		MinPositionSize float64       `yaml:"min_position_size"`
		MinWindows      int           `yaml:"min_windows"`
		TopN            int           `yaml:"top_n"`
		Interval        time.Duration `yaml:"interval"`
		Concurrency     int           `yaml:"concurrency"`
		ResolutionTTL   time.Duration `yaml:"resolution_ttl"`
	} `yaml:"discovery"`
	Consensus struct {
		TTL         time.Duration `yaml:"ttl"`
		PositionTTL time.Duration `yaml:"position_ttl"`
		Concurrency int           `yaml:"concurrency"`
	} `yaml:"consensus"`
	Cache struct {
		PriceTTL time.Duration `yaml:"price_ttl"`
		OpenTTL  time.Duration `yaml:"open_ttl"`
		L2       struct {
			Enabled bool          `yaml:"enabled"`
			TTL     time.Duration `yaml:"ttl"`
		} `yaml:"l2"`
	} `yaml:"cache"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
}

// Default returns a configuration with every tunable populated.
// Load starts from it so a YAML file only needs to name what it changes.
func Default() *Config {
	var c Config
	c.Environment = "development"

	c.Log.Level = "info"
	c.Log.Format = "console"
	c.Log.Output = "stdout"
	c.Log.Digest.Interval = time.Minute
	c.Log.Digest.CountThreshold = 100

	c.Server.Port = 8080
	c.Server.ReadTimeout = 10 * time.Second
	c.Server.WriteTimeout = 10 * time.Second
	c.Server.ShutdownTimeout = 10 * time.Second
	c.Server.SlowThreshold = 500 * time.Millisecond
	c.Server.RateLimit.Capacity = 60
	c.Server.RateLimit.PerSecond = 5

	c.Metrics.Enabled = true
	c.Metrics.Path = "/metrics"

	c.Window.Length = time.Hour
	c.Window.PollInterval = time.Minute
	c.Window.MinPoints = 26
	c.Window.MinWait = 30 * time.Minute
	c.Window.MaxWait = 50 * time.Minute
	c.Window.ClearGap = 250
	c.Window.CloseGap = 50
	c.Window.MarginPull = 10 * time.Minute

	c.Market.Symbol = "BTCUSDT"
	c.Market.KlineInterval = "1m"
	c.Market.SlugPrefix = "bitcoin"
	c.Market.Timezone = "America/New_York"

	c.Sources.BinanceURL = "https://api.binance.com"
	c.Sources.GammaURL = "https://gamma-api.polymarket.com"
	c.Sources.DataURL = "https://data-api.polymarket.com"
	c.Sources.RequestTimeout = 8 * time.Second
	c.Sources.Retries = 2
	c.Sources.RateCapacity = 10
	c.Sources.RatePerSecond = 5
	c.Sources.TradeLimit = 500

	c.Discovery.LookbackWindows = 24
	c.Discovery.WinThreshold = 0.95
	c.Discovery.MinPositionSize = 10
	c.Discovery.MinWindows = 3
	c.Discovery.TopN = 10
	c.Discovery.Interval = 30 * time.Minute
	c.Discovery.Concurrency = 4
	c.Discovery.ResolutionTTL = 6 * time.Hour

	c.Consensus.TTL = 2 * time.Minute
	c.Consensus.PositionTTL = time.Minute
	c.Consensus.Concurrency = 4

	c.Cache.PriceTTL = 30 * time.Second
	c.Cache.OpenTTL = time.Hour
	c.Cache.L2.TTL = 2 * time.Hour

	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Redis.Prefix = "marketpulse"

	c.Kafka.Topic = "marketpulse.events"
	c.Kafka.RequiredAcks = -1
	c.Kafka.Compression = "gzip"
	c.Kafka.Producer.MaxAttempts = 3
	c.Kafka.Producer.Linger = 100 * time.Millisecond
	c.Kafka.Producer.BatchBytes = 1048576
	c.Kafka.Producer.BatchSize = 100
	c.Kafka.Producer.WriteTimeout = 10 * time.Second
	c.Kafka.Producer.ReadTimeout = 10 * time.Second

	c.ClickHouse.Host = "localhost"
	c.ClickHouse.Port = 9000
	c.ClickHouse.Database = "marketpulse"
	c.ClickHouse.User = "default"
	c.ClickHouse.DialTimeout = 5 * time.Second
	c.ClickHouse.ReadTimeout = 10 * time.Second
	c.ClickHouse.WriteTimeout = 10 * time.Second

	return &c
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
	return c, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.ApplyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// ApplyEnv overrides fields from environment variables looked up through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv("PRICE_SYMBOL"); v != "" {
		c.Market.Symbol = v
	}
	if v := getenv("SLUG_PREFIX"); v != "" {
		c.Market.SlugPrefix = v
	}
	if v := getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
		c.ClickHouse.Enabled = true
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Window.Length <= 0 {
		return fmt.Errorf("window.length must be positive")
	}
	if c.Window.Length%time.Minute != 0 {
		return fmt.Errorf("window.length must be a whole number of minutes, got %s", c.Window.Length)
	}
	if c.Window.PollInterval <= 0 || c.Window.PollInterval >= c.Window.Length {
		return fmt.Errorf("window.poll_interval must be positive and shorter than window.length")
	}
	if c.Window.MinWait > c.Window.MaxWait {
		return fmt.Errorf("window.min_wait (%s) exceeds window.max_wait (%s)", c.Window.MinWait, c.Window.MaxWait)
	}
	if c.Window.MaxWait > c.Window.Length {
		return fmt.Errorf("window.max_wait must fit inside window.length")
	}
	if c.Window.ClearGap <= c.Window.CloseGap {
		return fmt.Errorf("window.clear_gap must be greater than window.close_gap")
	}
	if c.Window.MinPoints < 26 {
		return fmt.Errorf("window.min_points must be at least 26, got %d", c.Window.MinPoints)
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.SlugPrefix == "" {
		return fmt.Errorf("market.slug_prefix is required")
	}
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone: %w", err)
	}
	if c.Discovery.LookbackWindows <= 0 || c.Discovery.TopN <= 0 || c.Discovery.MinWindows <= 0 {
		return fmt.Errorf("discovery.lookback_windows, top_n and min_windows must be positive")
	}
	if c.Discovery.WinThreshold <= 0.5 || c.Discovery.WinThreshold > 1 {
		return fmt.Errorf("discovery.win_threshold must be in (0.5, 1], got %v", c.Discovery.WinThreshold)
	}
	if c.Consensus.TTL <= 0 || c.Consensus.TTL >= c.Discovery.Interval {
		return fmt.Errorf("consensus.ttl must be positive and shorter than discovery.interval")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
