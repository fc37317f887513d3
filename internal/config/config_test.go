package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWatchDefaults(t *testing.T) {
	t.Setenv("WATCH_TIMEZONE", "UTC")

	cfg, err := LoadWatch()
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.TickPeriod)
	assert.False(t, cfg.Use24Hour)
	assert.Equal(t, time.UTC, cfg.TimeZone)
	assert.Equal(t, "tcp://localhost:1883", cfg.Sync.BrokerURL)
	assert.Equal(t, "sunshine", cfg.Sync.TopicPrefix)
	assert.Contains(t, cfg.Sync.ClientID, "watch-")
	assert.Equal(t, 5, cfg.Reconnect.MaxRetries)
	assert.Equal(t, "8081", cfg.Port)
}

func TestLoadWatchOverrides(t *testing.T) {
	t.Setenv("WATCH_TICK_PERIOD", "1s")
	t.Setenv("WATCH_24H", "true")
	t.Setenv("WATCH_TIMEZONE", "UTC")
	t.Setenv("WATCH_CLIENT_ID", "wrist")
	t.Setenv("SYNC_BROKER_URL", "tcp://broker:1883")

	cfg, err := LoadWatch()
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.TickPeriod)
	assert.True(t, cfg.Use24Hour)
	assert.Equal(t, "wrist", cfg.Sync.ClientID)
	assert.Equal(t, "tcp://broker:1883", cfg.Sync.BrokerURL)
}

func TestLoadWatchRejectsBadValues(t *testing.T) {
	tests := map[string][2]string{
		"bad duration": {"WATCH_TICK_PERIOD", "soon"},
		"zero period":  {"WATCH_TICK_PERIOD", "0s"},
		"bad bool":     {"WATCH_24H", "maybe"},
		"bad timezone": {"WATCH_TIMEZONE", "Mars/Olympus"},
		"bad port":     {"WATCH_PORT", "http"},
		"bad broker":   {"SYNC_BROKER_URL", "not a url"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv("WATCH_TIMEZONE", "UTC")
			t.Setenv(kv[0], kv[1])
			_, err := LoadWatch()
			assert.Error(t, err)
		})
	}
}

func TestLoadCompanionLocation(t *testing.T) {
	cfg, err := LoadCompanion()
	require.NoError(t, err)
	assert.Equal(t, "Paris", cfg.Location.City)
	assert.Equal(t, "FR", cfg.Location.Country)
	assert.Nil(t, cfg.Location.Lat)
	assert.Equal(t, 15*time.Minute, cfg.FetchInterval)
	assert.Equal(t, 96, cfg.StoreMaxHistory)

	t.Setenv("WEATHER_LOCATION_CITY", "Oslo")
	t.Setenv("WEATHER_LOCATION_COUNTRY", "NO")
	t.Setenv("WEATHER_LOCATION_LAT", "59.91")
	t.Setenv("WEATHER_LOCATION_LON", "10.75")
	cfg, err = LoadCompanion()
	require.NoError(t, err)
	require.NotNil(t, cfg.Location.Lat)
	assert.Equal(t, 59.91, *cfg.Location.Lat)
	assert.Equal(t, 10.75, *cfg.Location.Lon)
}

func TestLoadCompanionRejectsHalfCoordinates(t *testing.T) {
	t.Setenv("WEATHER_LOCATION_LAT", "59.91")
	_, err := LoadCompanion()
	assert.Error(t, err)
}

func TestLoadCompanionRejectsBadBackoff(t *testing.T) {
	t.Setenv("RECONNECT_INITIAL_INTERVAL", "0s")
	_, err := LoadCompanion()
	assert.Error(t, err)
}
