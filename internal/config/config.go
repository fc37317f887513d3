package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/i474232898/sunshine-watchface/internal/resilience"
	"github.com/i474232898/sunshine-watchface/internal/weather"
)

var validate = validator.New()

// SyncConfig locates the MQTT broker that carries the sync channel.
type SyncConfig struct {
	BrokerURL   string `validate:"required,url"`
	TopicPrefix string `validate:"required"`
	ClientID    string `validate:"required"`
}

// WatchConfig configures the watch-face process.
type WatchConfig struct {
	Sync SyncConfig

	// TickPeriod is the interactive redraw period.
	TickPeriod time.Duration `validate:"gt=0"`
	Use24Hour  bool
	TimeZone   *time.Location `validate:"required"`

	Reconnect resilience.BackoffConfig

	Port string `validate:"required,numeric"`
}

// CompanionConfig configures the companion process.
type CompanionConfig struct {
	Sync SyncConfig

	OpenWeatherAPIKey string

	// Location is the preferred location whose weather is sent to the watch.
	Location weather.Location

	// FetchInterval controls how often weather is refreshed and pushed.
	FetchInterval time.Duration `validate:"gt=0"`

	// In-memory store retention.
	StoreMaxHistory int           // max number of snapshots per location (0 = unlimited)
	StoreMaxAge     time.Duration // max age of snapshots (0 = unlimited)

	Reconnect resilience.BackoffConfig

	Port string `validate:"required,numeric"`
}

// LoadWatch reads the watch configuration from the environment with sensible defaults.
func LoadWatch() (*WatchConfig, error) {
	loadDotEnv()
	cfg := &WatchConfig{}

	cfg.Sync = loadSync("WATCH_CLIENT_ID", "watch")

	var err error
	// Twice a second, so the separator blinks once per second.
	if cfg.TickPeriod, err = getenvDuration("WATCH_TICK_PERIOD", "500ms"); err != nil {
		return nil, err
	}
	if cfg.Use24Hour, err = getenvBool("WATCH_24H", false); err != nil {
		return nil, err
	}

	tz := getenvDefault("WATCH_TIMEZONE", "Local")
	cfg.TimeZone, err = time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid WATCH_TIMEZONE: %w", err)
	}

	if cfg.Reconnect, err = loadBackoff(); err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("WATCH_PORT", "8081")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid watch config: %w", err)
	}
	return cfg, nil
}

// LoadCompanion reads the companion configuration from the environment with sensible defaults.
func LoadCompanion() (*CompanionConfig, error) {
	loadDotEnv()
	cfg := &CompanionConfig{}

	cfg.Sync = loadSync("COMPANION_CLIENT_ID", "companion")
	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")

	var err error
	// Refresh interval: default 15 minutes.
	if cfg.FetchInterval, err = getenvDuration("FETCH_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	// Store retention.
	cfg.StoreMaxHistory = getenvInt("STORE_MAX_HISTORY", 96) // roughly 24h at 15-minute intervals
	if cfg.StoreMaxAge, err = getenvDuration("STORE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	loc, err := loadPrimaryLocation()
	if err != nil {
		return nil, err
	}
	cfg.Location = loc

	if cfg.Reconnect, err = loadBackoff(); err != nil {
		return nil, err
	}
	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid companion config: %w", err)
	}
	return cfg, nil
}

func loadDotEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
}

func loadSync(clientIDKey, role string) SyncConfig {
	return SyncConfig{
		BrokerURL:   getenvDefault("SYNC_BROKER_URL", "tcp://localhost:1883"),
		TopicPrefix: getenvDefault("SYNC_TOPIC_PREFIX", "sunshine"),
		ClientID:    getenvDefault(clientIDKey, role+"-"+uuid.NewString()[:8]),
	}
}

func loadBackoff() (resilience.BackoffConfig, error) {
	initial, err := getenvDuration("RECONNECT_INITIAL_INTERVAL", "1s")
	if err != nil {
		return resilience.BackoffConfig{}, err
	}
	maxInterval, err := getenvDuration("RECONNECT_MAX_INTERVAL", "1m")
	if err != nil {
		return resilience.BackoffConfig{}, err
	}
	b := resilience.BackoffConfig{
		MaxRetries:      getenvInt("RECONNECT_MAX_RETRIES", 5),
		InitialInterval: initial,
		MaxInterval:     maxInterval,
	}
	if err := b.Validate(); err != nil {
		return resilience.BackoffConfig{}, fmt.Errorf("invalid reconnect settings: %w", err)
	}
	return b, nil
}

func loadPrimaryLocation() (weather.Location, error) {
	city := strings.TrimSpace(getenvDefault("WEATHER_LOCATION_CITY", "Paris"))
	country := strings.TrimSpace(getenvDefault("WEATHER_LOCATION_COUNTRY", "FR"))
	loc := weather.Location{City: city, Country: country}

	lat, lon := os.Getenv("WEATHER_LOCATION_LAT"), os.Getenv("WEATHER_LOCATION_LON")
	if (lat == "") != (lon == "") {
		return weather.Location{}, fmt.Errorf("WEATHER_LOCATION_LAT and WEATHER_LOCATION_LON must be set together")
	}
	if lat != "" {
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil {
			return weather.Location{}, fmt.Errorf("invalid WEATHER_LOCATION_LAT: %w", err)
		}
		lo, err := strconv.ParseFloat(lon, 64)
		if err != nil {
			return weather.Location{}, fmt.Errorf("invalid WEATHER_LOCATION_LON: %w", err)
		}
		loc.Lat, loc.Lon = &la, &lo
	}
	return loc, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
