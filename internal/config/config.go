package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries process-level settings. Everything has a default so a
// bare `go run ./cmd/server` works against a local SQLite file.
type Config struct {
	Port            string
	DBPath          string
	ResendAPIKey    string // empty selects the noop sender
	AlertFrom       string
	AlertRecipients []string // warden addresses for the red-flag digest
	CSRFKey         string
	LockStateTTL    time.Duration
	OutboxInterval  time.Duration
}

// Load reads configuration from the environment, with .env support.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic("error loading .env file")
	}
	return Config{
		Port:            getEnv("PORT", "8080"),
		DBPath:          getEnv("ROLLCALL_DB", "rollcall.db"),
		ResendAPIKey:    getEnv("RESEND_API_KEY", ""),
		AlertFrom:       getEnv("ALERT_FROM", "Hostel Attendance <noreply@localhost>"),
		AlertRecipients: splitList(getEnv("ALERT_RECIPIENTS", "")),
		CSRFKey:         getEnv("CSRF_KEY", "rollcall-dev-csrf-key-0123456789ab"),
		LockStateTTL:    getDuration("LOCK_STATE_TTL", 10*time.Second),
		OutboxInterval:  getDuration("OUTBOX_INTERVAL", time.Minute),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
