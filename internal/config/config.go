package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/JustinTDCT/SkipVault/internal/models"
	"github.com/JustinTDCT/SkipVault/internal/segments"
)

type Config struct {
	Port      int
	LogLevel  string
	LogFormat string

	SettingsFile string
	DatabaseURL  string
	RedisAddr    string

	SegmentAPIs    map[models.Platform]string
	BrandingAPI    string
	SegmentTTL     time.Duration
	BrandingTTL    time.Duration
	RequestTimeout time.Duration
	// RequestRate is outbound requests per second to the community services.
	RequestRate float64

	TickInterval time.Duration
	PlayerWait   time.Duration
	VersionFile  string
}

// SettingsBackend names the store the options live in.
type SettingsBackend string

const (
	BackendPostgres SettingsBackend = "postgres"
	BackendFile     SettingsBackend = "file"
	BackendMemory   SettingsBackend = "memory"
)

func Load() *Config {
	return &Config{
		Port:      envInt("PORT", 8787),
		LogLevel:  env("LOG_LEVEL", "info"),
		LogFormat: env("LOG_FORMAT", "text"),

		SettingsFile: env("SETTINGS_FILE", ""),
		DatabaseURL:  env("DATABASE_URL", ""),
		RedisAddr:    env("REDIS_ADDR", ""),

		SegmentAPIs: map[models.Platform]string{
			models.PlatformYouTube:  env("SEGMENT_API_YOUTUBE", segments.DefaultBaseURLs[models.PlatformYouTube]),
			models.PlatformBilibili: env("SEGMENT_API_BILIBILI", segments.DefaultBaseURLs[models.PlatformBilibili]),
		},
		BrandingAPI:    env("BRANDING_API", segments.DefaultBrandingURL),
		SegmentTTL:     envDuration("SEGMENT_TTL", segments.DefaultSegmentTTL),
		BrandingTTL:    envDuration("BRANDING_TTL", segments.DefaultBrandingTTL),
		RequestTimeout: envDuration("REQUEST_TIMEOUT", segments.DefaultTimeout),
		RequestRate:    envFloat("REQUEST_RATE", 5),

		TickInterval: envDuration("TICK_INTERVAL", 200*time.Millisecond),
		PlayerWait:   envDuration("PLAYER_WAIT", 10*time.Second),
		VersionFile:  env("VERSION_FILE", "version.json"),
	}
}

// SettingsBackend picks Postgres when a database is configured, then a
// settings file, then process memory.
func (c *Config) SettingsBackend() SettingsBackend {
	switch {
	case c.DatabaseURL != "":
		return BackendPostgres
	case c.SettingsFile != "":
		return BackendFile
	}
	return BackendMemory
}

func (c *Config) Address() string {
	return ":" + strconv.Itoa(c.Port)
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

// envDuration accepts Go durations ("750ms") or plain seconds ("8").
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if s, err := strconv.ParseFloat(v, 64); err == nil && s > 0 {
		return time.Duration(s * float64(time.Second))
	}
	return fallback
}
