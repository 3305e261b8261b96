package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigins []string      `mapstructure:"allow_origins"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

// MarketplaceConfig tunes the source marketplace client. Credentials come
// from the environment, never from the config file.
type MarketplaceConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxWindowHours int           `mapstructure:"max_window_hours"`
	RatePerSecond  float64       `mapstructure:"rate_per_second"`
	RateBurst      int           `mapstructure:"rate_burst"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// FulfillmentConfig tunes the fulfillment platform (Wing) client.
type FulfillmentConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxSearchPages int           `mapstructure:"max_search_pages"`
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

type SchedulerConfig struct {
	PollResolution time.Duration `mapstructure:"poll_resolution"`
}

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Log         LogConfig         `mapstructure:"log"`
	Auth        AuthConfig        `mapstructure:"auth"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Fulfillment FulfillmentConfig `mapstructure:"fulfillment"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`

	Credentials Credentials `mapstructure:"-"`
}

// Credentials holds external account secrets, loaded from the environment.
type Credentials struct {
	MarketplaceClientID     string `envconfig:"MARKETPLACE_CLIENT_ID" required:"true"`
	MarketplaceClientSecret string `envconfig:"MARKETPLACE_CLIENT_SECRET" required:"true"`
	WingUsername            string `envconfig:"WING_USERNAME" required:"true"`
	WingPassword            string `envconfig:"WING_PASSWORD" required:"true"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/app")
	viper.AddConfigPath("/app/config")

	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &config.Credentials); err != nil {
		return nil, fmt.Errorf("failed to load credentials from environment: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("rate_limit.rps", 20.0)
	viper.SetDefault("rate_limit.burst", 40)
	viper.SetDefault("marketplace.request_timeout", 15*time.Second)
	viper.SetDefault("marketplace.max_window_hours", 24)
	viper.SetDefault("marketplace.rate_per_second", 2.0)
	viper.SetDefault("marketplace.rate_burst", 4)
	viper.SetDefault("marketplace.retry_attempts", 3)
	viper.SetDefault("marketplace.retry_delay", 2*time.Second)
	viper.SetDefault("fulfillment.request_timeout", 20*time.Second)
	viper.SetDefault("fulfillment.max_search_pages", 10)
	viper.SetDefault("fulfillment.session_ttl", 30*time.Minute)
	viper.SetDefault("fulfillment.retry_attempts", 2)
	viper.SetDefault("fulfillment.retry_delay", 2*time.Second)
	viper.SetDefault("scheduler.poll_resolution", 30*time.Second)
}
