package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	Monitor struct {
		Signal struct {
			Interval     time.Duration `yaml:"interval"`
			WorkerPool   int           `yaml:"worker_pool"`
			LookbackBars int           `yaml:"lookback_bars"`
			MinBars      int           `yaml:"min_bars"`
			CallTimeout  time.Duration `yaml:"call_timeout"`
		} `yaml:"signal"`
		Position struct {
			Interval          time.Duration `yaml:"interval"`
			WorkerPool        int           `yaml:"worker_pool"`
			CallTimeout       time.Duration `yaml:"call_timeout"`
			ReversalThreshold float64       `yaml:"reversal_threshold"`
			ExitConfidence    float64       `yaml:"exit_confidence"`
			PriceMaxAge       time.Duration `yaml:"price_max_age"`
		} `yaml:"position"`
		SummaryHourUTC int `yaml:"summary_hour_utc"`
	} `yaml:"monitor"`
	Prediction struct {
		BaseURL     string        `yaml:"base_url"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxAttempts int           `yaml:"max_attempts"`
		BackoffMin  time.Duration `yaml:"backoff_min"`
		BackoffMax  time.Duration `yaml:"backoff_max"`
	} `yaml:"prediction"`
	PriceHistory struct {
		BaseURL     string        `yaml:"base_url"`
		Timeout     time.Duration `yaml:"timeout"`
		MaxAttempts int           `yaml:"max_attempts"`
		BackoffMin  time.Duration `yaml:"backoff_min"`
		BackoffMax  time.Duration `yaml:"backoff_max"`
	} `yaml:"price_history"`
	PriceFeed struct {
		WebSocketURL   string        `yaml:"websocket_url"`
		APIKey         string        `yaml:"api_key"`
		Instruments    []string      `yaml:"instruments"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"price_feed"`
	Subscriptions struct {
		BaseURL    string        `yaml:"base_url"`
		Timeout    time.Duration `yaml:"timeout"`
		RefreshTTL time.Duration `yaml:"refresh_ttl"`
	} `yaml:"subscriptions"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
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
	Redis struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Queue struct {
		Workers    int           `yaml:"workers"`
		QueueSize  int           `yaml:"queue_size"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
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

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("PREDICTION_URL"); v != "" {
		c.Prediction.BaseURL = v
	}
	if v := os.Getenv("PRICE_HISTORY_URL"); v != "" {
		c.PriceHistory.BaseURL = v
	}
	if v := os.Getenv("SUBSCRIPTIONS_URL"); v != "" {
		c.Subscriptions.BaseURL = v
	}
	if v := os.Getenv("PRICE_FEED_API_KEY"); v != "" {
		c.PriceFeed.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port <= 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout <= 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout <= 0 {
		c.Server.WriteTimeout = 10 * time.Second
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.PriceFeed.ReconnectDelay <= 0 {
		c.PriceFeed.ReconnectDelay = 5 * time.Second
	}
	if c.PriceFeed.PingInterval <= 0 {
		c.PriceFeed.PingInterval = 30 * time.Second
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.RetryLimit <= 0 {
		c.Queue.RetryLimit = 3
	}
	if c.Queue.RetryDelay <= 0 {
		c.Queue.RetryDelay = 30 * time.Second
	}
	if c.Monitor.Signal.Interval <= 0 {
		c.Monitor.Signal.Interval = 15 * time.Minute
	}
	if c.Monitor.Signal.WorkerPool <= 0 {
		c.Monitor.Signal.WorkerPool = 8
	}
	if c.Monitor.Signal.LookbackBars <= 0 {
		c.Monitor.Signal.LookbackBars = 100
	}
	if c.Monitor.Signal.MinBars <= 0 {
		c.Monitor.Signal.MinBars = 20
	}
	if c.Monitor.Signal.CallTimeout <= 0 {
		c.Monitor.Signal.CallTimeout = 8 * time.Second
	}
	if c.Monitor.Position.Interval <= 0 {
		c.Monitor.Position.Interval = time.Minute
	}
	if c.Monitor.Position.WorkerPool <= 0 {
		c.Monitor.Position.WorkerPool = 8
	}
	if c.Monitor.Position.CallTimeout <= 0 {
		c.Monitor.Position.CallTimeout = 5 * time.Second
	}
	if c.Monitor.Position.ReversalThreshold <= 0 {
		c.Monitor.Position.ReversalThreshold = 0.8
	}
	if c.Monitor.Position.ExitConfidence <= 0 {
		c.Monitor.Position.ExitConfidence = 0.75
	}
	if c.Monitor.Position.PriceMaxAge <= 0 {
		c.Monitor.Position.PriceMaxAge = 30 * time.Second
	}
	if c.Prediction.Timeout <= 0 {
		c.Prediction.Timeout = 8 * time.Second
	}
	if c.PriceHistory.Timeout <= 0 {
		c.PriceHistory.Timeout = 8 * time.Second
	}
	if c.Subscriptions.Timeout <= 0 {
		c.Subscriptions.Timeout = 5 * time.Second
	}
	if c.Subscriptions.RefreshTTL <= 0 {
		c.Subscriptions.RefreshTTL = c.Monitor.Signal.Interval
	}
}

// Validate checks if the configuration is valid. A broken configuration
// prevents the monitors from starting at all.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Prediction.BaseURL == "" {
		return fmt.Errorf("prediction.base_url is required")
	}
	if c.PriceHistory.BaseURL == "" {
		return fmt.Errorf("price_history.base_url is required")
	}
	if c.Subscriptions.BaseURL == "" {
		return fmt.Errorf("subscriptions.base_url is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	if c.Monitor.Position.Interval >= c.Monitor.Signal.Interval {
		return fmt.Errorf("monitor.position.interval must be shorter than monitor.signal.interval")
	}
	if c.Monitor.Signal.CallTimeout >= c.Monitor.Signal.Interval {
		return fmt.Errorf("monitor.signal.call_timeout must be under the cycle interval")
	}
	if c.Monitor.Position.CallTimeout >= c.Monitor.Position.Interval {
		return fmt.Errorf("monitor.position.call_timeout must be under the cycle interval")
	}
	return nil
}
