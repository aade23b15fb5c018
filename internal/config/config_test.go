package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		prev, existed := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if existed {
				os.Setenv(k, prev)
			}
		})
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	clearEnv(t, "DB_USER", "DB_PASSWORD", "WEATHER_PROVIDER_BASE_URL", "WEATHER_PROVIDER_USER_AGENT")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DB_USER", "weatherzone")
	os.Setenv("DB_PASSWORD", "secret")
	os.Setenv("WEATHER_PROVIDER_BASE_URL", "https://api.weather.gov")
	os.Setenv("WEATHER_PROVIDER_USER_AGENT", "weatherzone/1.0 (ops@example.com)")
	t.Cleanup(func() {
		os.Unsetenv("DB_USER")
		os.Unsetenv("DB_PASSWORD")
		os.Unsetenv("WEATHER_PROVIDER_BASE_URL")
		os.Unsetenv("WEATHER_PROVIDER_USER_AGENT")
	})

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.Equal(t, "weatherzone", cfg.AppName)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.Equal(t, "disable", cfg.DBSSLMode)
	assert.Equal(t, "@every 15m", cfg.UpdateWeatherCron)
}
