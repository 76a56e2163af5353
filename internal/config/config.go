package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mathieu-neron/chanwatch/internal/model"
)

type Config struct {
	Username  string
	Password  string
	AuthToken string

	PrimaryChannel string
	Port           string
	MaxWorkers     int

	PollInterval    time.Duration
	MaxRetries      int
	RetryDelay      time.Duration
	CallTimeout     time.Duration
	StopGrace       time.Duration
	ShutdownTimeout time.Duration

	StatsInterval time.Duration
	StatsTimeout  time.Duration
	StatsFile     string

	PointsPerPeriod float64
	AccrualPeriod   time.Duration
	ClaimReward     float64

	ChannelBaseURL  string
	BonusSelector   string
	BrowserBin      string
	BrowserHeadless bool
	BrowserURL      string
	SessionMode     string

	DatabaseURL string
	RedisURL    string
	LogLevel    string
	LogFile     string
	LockFile    string
	CORSOrigins string
}

func Load() *Config {
	return &Config{
		Username:  getEnv("TWITCH_USERNAME", ""),
		Password:  getEnv("TWITCH_PASSWORD", ""),
		AuthToken: getEnv("TWITCH_AUTH_TOKEN", ""),

		PrimaryChannel: strings.ToLower(getEnv("PRIMARY_CHANNEL", "mixwell")),
		Port:           getEnv("PORT", "8080"),
		MaxWorkers:     getInt("MAX_WORKERS", 4),

		PollInterval:    getDuration("POLL_INTERVAL", 30*time.Second),
		MaxRetries:      getInt("MAX_RETRIES", 3),
		RetryDelay:      getDuration("RETRY_DELAY", 60*time.Second),
		CallTimeout:     getDuration("CALL_TIMEOUT", 15*time.Second),
		StopGrace:       getDuration("STOP_GRACE", 2*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),

		StatsInterval: getDuration("STATS_INTERVAL", 300*time.Second),
		StatsTimeout:  getDuration("STATS_TIMEOUT", 10*time.Second),
		StatsFile:     getEnv("STATS_FILE", "stats.txt"),

		PointsPerPeriod: getFloat("POINTS_PER_PERIOD", 10),
		AccrualPeriod:   getDuration("ACCRUAL_PERIOD", 300*time.Second),
		ClaimReward:     getFloat("CLAIM_REWARD", 50),

		ChannelBaseURL:  getEnv("CHANNEL_BASE_URL", "https://www.twitch.tv/"),
		BonusSelector:   getEnv("BONUS_SELECTOR", `[aria-label="Claim Bonus"]`),
		BrowserBin:      getEnv("BROWSER_BIN", ""),
		BrowserHeadless: getBool("BROWSER_HEADLESS", true),
		BrowserURL:      getEnv("BROWSER_URL", ""),
		SessionMode:     getEnv("SESSION_MODE", "per-worker"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFile:     getEnv("LOG_FILE", "twitch_watcher.log"),
		LockFile:    getEnv("LOCK_FILE", "chanwatch.lock"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

// Validate reports configuration the process cannot start without.
func (c *Config) Validate() error {
	if c.Username == "" {
		return errors.New("TWITCH_USERNAME must be set")
	}
	if _, err := model.NormalizeChannel(c.PrimaryChannel); err != nil {
		return fmt.Errorf("PRIMARY_CHANNEL: %w", err)
	}
	if c.MaxWorkers < 1 {
		return errors.New("MAX_WORKERS must be at least 1")
	}
	if c.SessionMode != "per-worker" && c.SessionMode != "shared" {
		return errors.New(`SESSION_MODE must be "per-worker" or "shared"`)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func getFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f < 0 {
		return fallback
	}
	return f
}

func getBool(key string, fallback bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return b
}

// getDuration accepts Go duration strings ("30s", "2m") or a bare number of seconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
