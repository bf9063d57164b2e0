package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"BandWatch/internal/collector"
	"BandWatch/internal/model"
)

const DefaultPath = "configs/config.yaml"

// Config holds all application configuration.
type Config struct {
	Server struct {
		Addr         string        `yaml:"addr"`
		APIKey       string        `yaml:"api_key"`
		AllowOrigin  string        `yaml:"allow_origin"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`
	Exchange struct {
		BaseURL       string        `yaml:"base_url"`
		Timeout       time.Duration `yaml:"timeout"`
		RatePerSecond float64       `yaml:"rate_per_second"`
		Burst         int           `yaml:"burst"`
		MaxRetries    int           `yaml:"max_retries"`
		Mock          bool          `yaml:"mock"`
	} `yaml:"exchange"`
	Bands struct {
		Window     int     `yaml:"window"`
		Multiplier float64 `yaml:"multiplier"`
	} `yaml:"bands"`
	Session struct {
		Backend       string        `yaml:"backend"` // "memory" or "redis"
		TTL           time.Duration `yaml:"ttl"`
		RedisAddr     string        `yaml:"redis_addr"`
		RedisPassword string        `yaml:"redis_password"`
		RedisDB       int           `yaml:"redis_db"`
		SweepCron     string        `yaml:"sweep_cron"`
	} `yaml:"session"`
	Watch struct {
		Enabled  bool     `yaml:"enabled"`
		Pairs    []string `yaml:"pairs"`
		Interval int      `yaml:"interval"`
		Cron     string   `yaml:"cron"`
	} `yaml:"watch"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = envStr("CONFIG_PATH", DefaultPath)
	}

	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = envStr("BANDWATCH_ADDR", c.Server.Addr)
	c.Server.APIKey = envStr("BANDWATCH_API_KEY", c.Server.APIKey)
	c.Server.AllowOrigin = envStr("BANDWATCH_ALLOW_ORIGIN", c.Server.AllowOrigin)

	c.Exchange.BaseURL = envStr("KRAKEN_BASE_URL", c.Exchange.BaseURL)
	c.Exchange.RatePerSecond = envFloat("KRAKEN_RATE_PER_SECOND", c.Exchange.RatePerSecond)
	c.Exchange.Mock = envBool("BANDWATCH_MOCK", c.Exchange.Mock)

	c.Bands.Window = envInt("BAND_WINDOW", c.Bands.Window)
	c.Bands.Multiplier = envFloat("BAND_MULTIPLIER", c.Bands.Multiplier)

	c.Session.Backend = envStr("SESSION_BACKEND", c.Session.Backend)
	c.Session.RedisAddr = envStr("REDIS_ADDR", c.Session.RedisAddr)
	c.Session.RedisPassword = envStr("REDIS_PASSWORD", c.Session.RedisPassword)

	if v := os.Getenv("WATCH_PAIRS"); v != "" {
		c.Watch.Pairs = splitList(v)
	}
	c.Watch.Interval = envInt("WATCH_INTERVAL", c.Watch.Interval)
	c.Watch.Cron = envStr("CRON_WATCH", c.Watch.Cron)

	c.Telegram.BotToken = envStr("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.ChatID = envStr("TELEGRAM_CHAT_ID", c.Telegram.ChatID)

	c.Database.SQLitePath = envStr("SQLITE_PATH", c.Database.SQLitePath)

	c.Log.Level = envStr("LOG_LEVEL", c.Log.Level)
	c.Log.Format = envStr("LOG_FORMAT", c.Log.Format)

	c.Proxy = envStr("HTTPS_PROXY", c.Proxy)
}

// defaultConfig seeds values where zero is a legitimate setting, so the file
// and environment can still override them with zero.
func defaultConfig() *Config {
	c := &Config{}
	def := model.DefaultBandParams()
	c.Bands.Window = def.Window
	c.Bands.Multiplier = def.Multiplier
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8050"
	}
	if c.Server.AllowOrigin == "" {
		c.Server.AllowOrigin = "*"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 60 * time.Second
	}

	if c.Exchange.BaseURL == "" {
		c.Exchange.BaseURL = collector.DefaultKrakenURL
	}
	if c.Exchange.Timeout == 0 {
		c.Exchange.Timeout = 30 * time.Second
	}
	if c.Exchange.RatePerSecond == 0 {
		c.Exchange.RatePerSecond = 1
	}
	if c.Exchange.Burst == 0 {
		c.Exchange.Burst = 2
	}
	if c.Exchange.MaxRetries == 0 {
		c.Exchange.MaxRetries = 3
	}

	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = 2 * time.Hour
	}
	if c.Session.SweepCron == "" {
		c.Session.SweepCron = "0 */5 * * * *"
	}

	if c.Watch.Interval == 0 {
		c.Watch.Interval = 60
	}
	if c.Watch.Cron == "" {
		c.Watch.Cron = "0 1 * * * *"
	}

	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/bandwatch.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Bands.Window <= 0 {
		return fmt.Errorf("bands.window must be positive")
	}
	if c.Bands.Multiplier < 0 {
		return fmt.Errorf("bands.multiplier must not be negative")
	}
	if !collector.IsValidInterval(c.Watch.Interval) {
		return fmt.Errorf("watch.interval %d is not a Kraken interval %v", c.Watch.Interval, collector.ValidIntervals)
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("session.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("session.backend must be memory or redis, got %q", c.Session.Backend)
	}
	if c.Exchange.RatePerSecond <= 0 {
		return fmt.Errorf("exchange.rate_per_second must be positive")
	}
	return nil
}

// TelegramEnabled reports whether alerts and bot commands are configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
