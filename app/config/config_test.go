package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func base() map[string]string {
	return map[string]string{
		"JWT_KEY":              "secret",
		"STRAVA_CLIENT_ID":     "37166",
		"STRAVA_CLIENT_SECRET": "shh",
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	c, err := FromEnv(env(base()))
	require.NoError(t, err)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, 50, c.ImportPageSize)
	assert.Equal(t, 2*time.Second, c.ImportPageDelay)
	assert.Equal(t, 30*time.Second, c.WebhookTimeout)
	assert.Equal(t, time.Minute, c.TokenRefreshSkew)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.False(t, c.IsDev())
}

func TestFromEnv_Overrides(t *testing.T) {
	vars := base()
	vars["ENV"] = "DEV"
	vars["URL"] = "https://challenge.example.org/"
	vars["IMPORT_PAGE_SIZE"] = "30"
	vars["IMPORT_PAGE_DELAY"] = "500ms"
	vars["TOKEN_REFRESH_SKEW"] = "5m"
	vars["LOG_LEVEL"] = "debug"
	vars["REDIS_URL"] = "redis://localhost:6379/0"

	c, err := FromEnv(env(vars))
	require.NoError(t, err)
	assert.True(t, c.IsDev())
	assert.Equal(t, "https://challenge.example.org", c.URL)
	assert.Equal(t, 30, c.ImportPageSize)
	assert.Equal(t, 500*time.Millisecond, c.ImportPageDelay)
	assert.Equal(t, 5*time.Minute, c.TokenRefreshSkew)
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
	assert.Equal(t, "redis://localhost:6379/0", c.RedisURL)
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"page size":    {"IMPORT_PAGE_SIZE": "zero"},
		"page delay":   {"IMPORT_PAGE_DELAY": "-1s"},
		"log level":    {"LOG_LEVEL": "loud"},
		"missing jwt":  {"JWT_KEY": ""},
		"missing id":   {"STRAVA_CLIENT_ID": ""},
		"webhook time": {"WEBHOOK_TIMEOUT": "soon"},
	}
	for name, override := range cases {
		t.Run(name, func(t *testing.T) {
			vars := base()
			for k, v := range override {
				vars[k] = v
			}
			_, err := FromEnv(env(vars))
			assert.Error(t, err)
		})
	}
}
