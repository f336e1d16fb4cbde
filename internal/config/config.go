package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"arriendo/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIClientConfig  `yaml:"api"`
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Backup     BackupConfig     `yaml:"backup"`
	Redis      RedisConfig      `yaml:"redis"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Listings   []models.Listing `yaml:"listings"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// IsDevelopment reports whether the app runs in a development environment.
func (a AppConfig) IsDevelopment() bool {
	switch a.Environment {
	case "development", "dev", "local":
		return true
	}
	return false
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

// APIClientConfig configures the availability/visits HTTP client.
type APIClientConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	APIExtra       string `yaml:"api_extra"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	CacheTTL       int    `yaml:"cache_ttl_seconds"`
}

func (c APIClientConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type ServerConfig struct {
	Port      int             `yaml:"port"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

type AuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type SchedulerConfig struct {
	Timezone        string `yaml:"timezone"`
	BookableDays    int    `yaml:"bookable_days"`
	PersistTTLHours int    `yaml:"persist_ttl_hours"`
	DebounceMillis  int    `yaml:"debounce_millis"`
	Channel         string `yaml:"channel"`
	WhatsAppNumber  string `yaml:"whatsapp_number"`
}

func (s SchedulerConfig) PersistTTL() time.Duration {
	return time.Duration(s.PersistTTLHours) * time.Hour
}

func (s SchedulerConfig) Debounce() time.Duration {
	return time.Duration(s.DebounceMillis) * time.Millisecond
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type TelegramConfig struct {
	BotToken       string  `yaml:"bot_token"`
	Debug          bool    `yaml:"debug"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

func Load(configPath string) (*Config, error) {
	// .env необязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" && c.API.BaseURL == "" {
		return errors.New("either database.path or api.base_url is required")
	}
	if _, err := models.LoadLocation(c.Scheduler.Timezone); err != nil {
		return err
	}
	if c.Scheduler.BookableDays < 1 || c.Scheduler.BookableDays > 31 {
		return fmt.Errorf("scheduler.bookable_days out of range: %d", c.Scheduler.BookableDays)
	}
	return ValidateListings(c.Listings)
}

func ValidateListings(listings []models.Listing) error {
	ids := make(map[string]bool)
	for _, l := range listings {
		if l.ID == "" {
			return fmt.Errorf("listing '%s' has empty ID", l.Name)
		}
		if ids[l.ID] {
			return fmt.Errorf("duplicate listing ID found: %s", l.ID)
		}
		ids[l.ID] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "arriendo"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Server.Auth.HeaderAPIKey == "" {
		c.Server.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Server.Auth.HeaderExtra == "" {
		c.Server.Auth.HeaderExtra = "x-api-extra"
	}
	// auth is only meaningful with configured keys
	if len(c.Server.Auth.APIKeys) == 0 {
		c.Server.Auth.Enabled = false
	}
	if c.API.TimeoutSeconds == 0 {
		c.API.TimeoutSeconds = 10
	}

	if c.Scheduler.Timezone == "" {
		c.Scheduler.Timezone = models.DefaultTimezone
	}
	if c.Scheduler.BookableDays == 0 {
		c.Scheduler.BookableDays = models.BookableDays
	}
	if c.Scheduler.PersistTTLHours == 0 {
		c.Scheduler.PersistTTLHours = int(models.PersistenceTTL / time.Hour)
	}
	if c.Scheduler.DebounceMillis == 0 {
		c.Scheduler.DebounceMillis = int(models.PersistenceDebounce / time.Millisecond)
	}
	if c.Telegram.RateLimitRPS == 0 {
		c.Telegram.RateLimitRPS = 1
	}
	if c.Telegram.RateLimitBurst == 0 {
		c.Telegram.RateLimitBurst = 5
	}
	if c.Scheduler.Channel == "" {
		c.Scheduler.Channel = models.ChannelWeb
	}
}
