// Package config reads service settings from the environment, loading a
// .env file first when one is present.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

type Config struct {
	Env  string
	Port string
	URL  string

	DBPath string

	StravaClientID     string
	StravaClientSecret string
	StravaVerifyToken  string

	TokenSecret      string
	JWTKey           string
	TokenRefreshSkew time.Duration

	TelegramAPIKey string
	RedisURL       string

	ImportPageSize  int
	ImportPageDelay time.Duration
	WebhookTimeout  time.Duration
	SyncSchedule    string

	LogLevel slog.Level
}

// Load reads .env (required outside PROD) and the process environment.
func Load() (*Config, error) {
	err := godotenv.Load()
	env := os.Getenv("ENV")
	if err != nil && env != "PROD" {
		return nil, errors.Wrap(err, "load .env")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	c := &Config{
		Env:                getenv("ENV"),
		Port:               withDefault(getenv("PORT"), "8080"),
		URL:                strings.TrimSuffix(getenv("URL"), "/"),
		DBPath:             getenv("DB_PATH"),
		StravaClientID:     getenv("STRAVA_CLIENT_ID"),
		StravaClientSecret: getenv("STRAVA_CLIENT_SECRET"),
		StravaVerifyToken:  getenv("STRAVA_CHALLENGE_TOKEN"),
		TokenSecret:        getenv("TOKEN_SECRET"),
		JWTKey:             getenv("JWT_KEY"),
		TelegramAPIKey:     getenv("TELEGRAM_API_KEY"),
		RedisURL:           getenv("REDIS_URL"),
		SyncSchedule:       getenv("SYNC_SCHEDULE"),
	}

	var err error
	if c.ImportPageSize, err = intVar(getenv, "IMPORT_PAGE_SIZE", 50); err != nil {
		return nil, err
	}
	if c.ImportPageDelay, err = durationVar(getenv, "IMPORT_PAGE_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if c.WebhookTimeout, err = durationVar(getenv, "WEBHOOK_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if c.TokenRefreshSkew, err = durationVar(getenv, "TOKEN_REFRESH_SKEW", time.Minute); err != nil {
		return nil, err
	}
	if err = c.LogLevel.UnmarshalText([]byte(withDefault(getenv("LOG_LEVEL"), "INFO"))); err != nil {
		return nil, errors.Wrap(err, "LOG_LEVEL")
	}

	if c.JWTKey == "" {
		return nil, errors.New("JWT_KEY is required")
	}
	if c.StravaClientID == "" || c.StravaClientSecret == "" {
		return nil, errors.New("STRAVA_CLIENT_ID and STRAVA_CLIENT_SECRET are required")
	}
	return c, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "DEV"
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intVar(getenv func(string) string, name string, def int) (int, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, errors.Errorf("%s must be a positive integer, got %q", name, v)
	}
	return n, nil
}

func durationVar(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, errors.Errorf("%s must be a non-negative duration, got %q", name, v)
	}
	return d, nil
}
