package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config holds runtime settings read from the environment and an optional
// .env file in the working directory.
type Config struct {
	Port          int    `mapstructure:"PORT"`
	Env           string `mapstructure:"APP_ENV"`
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`

	RedisAddr           string `mapstructure:"REDIS_ADDR"`
	RedisPassword       string `mapstructure:"REDIS_PASSWORD"`
	RedisDB             int    `mapstructure:"REDIS_DB"`
	BillCacheTTLSeconds int    `mapstructure:"BILL_CACHE_TTL_SECONDS"`

	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`

	Timezone      string `mapstructure:"TIMEZONE"`
	ImportMaxRows int    `mapstructure:"IMPORT_MAX_ROWS"`
}

var defaults = map[string]any{
	"PORT":                     8080,
	"APP_ENV":                  "development",
	"ALLOWED_ORIGIN":           "http://127.0.0.1:3000",
	"DATABASE_URL":             "",
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"BILL_CACHE_TTL_SECONDS":   300,
	"AUTH_SECRET":              "",
	"ACCESS_TOKEN_TTL_MINUTES": 480,
	"TIMEZONE":                 "Asia/Kolkata",
	"IMPORT_MAX_ROWS":          5000,
}

// Load reads configuration from the environment. A .env file is used when
// present and does not fail the load when missing.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	// Unmarshal only sees keys viper knows about, so every key gets a default.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read .env: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if cfg.BillCacheTTLSeconds < 1 {
		cfg.BillCacheTTLSeconds = 300
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.ImportMaxRows < 1 {
		cfg.ImportMaxRows = 5000
	}
	return cfg, nil
}

// Validate rejects settings that are unsafe outside local development.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT %d is out of range", c.Port)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.IsDevelopment() {
		return nil
	}
	if len(c.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if c.AllowedOrigin == "*" {
		return errors.New("ALLOWED_ORIGIN must name an origin outside development")
	}
	return nil
}

func (c Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}

// Location is the zone used for business days and document numbers.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) BillCacheTTL() time.Duration {
	return time.Duration(c.BillCacheTTLSeconds) * time.Second
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}
