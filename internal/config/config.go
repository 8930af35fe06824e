package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"exchange-rate-watcher/internal/domain/model"
)

const EnvPrefix = "RATES"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Source SourceConfig `mapstructure:"source"`
	Poller PollerConfig `mapstructure:"poller"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type SourceConfig struct {
	JSONURL string        `mapstructure:"json_url"`
	XMLURL  string        `mapstructure:"xml_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type PollerConfig struct {
	InitialStrategy    string        `mapstructure:"initial_strategy"`
	Interval           time.Duration `mapstructure:"interval"`
	ForcedFailureEvery int           `mapstructure:"forced_failure_every"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	BootstrapAttempts  int           `mapstructure:"bootstrap_attempts"`
	BootstrapBackoff   time.Duration `mapstructure:"bootstrap_backoff"`
}

type CacheConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from the environment, after loading a .env
// file from the working directory when one exists.
func LoadConfig() (*Config, error) {
	return FromViper(NewViper())
}

// NewViper returns a viper instance with defaults and RATES_* environment
// binding. Callers may bind command line flags before passing it to FromViper.
func NewViper() *viper.Viper {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)

	v.SetDefault("source.json_url", "https://www.cbr-xml-daily.ru/daily_json.js")
	v.SetDefault("source.xml_url", "https://www.cbr-xml-daily.ru/daily_utf8.xml")
	v.SetDefault("source.timeout", 10*time.Second)

	v.SetDefault("poller.initial_strategy", "JSON")
	v.SetDefault("poller.interval", 3*time.Second)
	v.SetDefault("poller.forced_failure_every", 3)
	v.SetDefault("poller.fetch_timeout", time.Duration(0))
	v.SetDefault("poller.bootstrap_attempts", 2)
	v.SetDefault("poller.bootstrap_backoff", 500*time.Millisecond)

	v.SetDefault("cache.ttl", time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func (c *Config) Validate() error {
	if _, err := c.Poller.Strategy(); err != nil {
		return fmt.Errorf("%w: poller.initial_strategy: %v", ErrInvalidConfig, err)
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("%w: poller.interval must be positive, got %s", ErrInvalidConfig, c.Poller.Interval)
	}
	if c.Poller.ForcedFailureEvery < 0 {
		return fmt.Errorf("%w: poller.forced_failure_every must not be negative, got %d", ErrInvalidConfig, c.Poller.ForcedFailureEvery)
	}
	if c.Poller.FetchTimeout < 0 {
		return fmt.Errorf("%w: poller.fetch_timeout must not be negative", ErrInvalidConfig)
	}
	if c.Poller.BootstrapAttempts < 1 {
		return fmt.Errorf("%w: poller.bootstrap_attempts must be at least 1, got %d", ErrInvalidConfig, c.Poller.BootstrapAttempts)
	}
	if c.Source.JSONURL == "" || c.Source.XMLURL == "" {
		return fmt.Errorf("%w: source.json_url and source.xml_url are required", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port out of range: %d", ErrInvalidConfig, c.Server.Port)
	}
	return nil
}

// Strategy returns the parsed initial strategy.
func (p PollerConfig) Strategy() (model.StrategyIdentity, error) {
	return model.ParseStrategyIdentity(p.InitialStrategy)
}
