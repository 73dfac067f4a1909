package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const minSecretBytes = 16

// Config carries every recognized environment option. Parsed once at startup.
type Config struct {
	ServiceName string
	Env         string
	Addr        string

	JWTSecret []byte

	BuildID string
	GitSHA  string
	BuiltAt string

	MongoURL string
	MongoDB  string
	NATSURL  string

	OutboxBatchSize  int
	OutboxTick       time.Duration
	OutboxMaxRetries int

	IdempotencyTTL time.Duration
	UndoWindow     time.Duration

	RateLimitDefaultRPM int
	RateLimitOverrides  map[string]int

	LowStockThreshold float64
	DefaultStation    string
}

// Load reads the environment. It fails fast on a missing or weak JWT secret so the
// process never starts with an unverifiable auth layer.
func Load() (Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if len(secret) < minSecretBytes {
		return Config{}, fmt.Errorf("config: JWT_SECRET must be at least %d bytes", minSecretBytes)
	}

	cfg := Config{
		ServiceName: getenvDefault("SERVICE_NAME", "backhouse"),
		Env:         getenvDefault("ENV", "dev"),
		Addr:        getenvDefault("ADDR", ":8080"),

		JWTSecret: []byte(secret),

		BuildID: os.Getenv("BUILD_ID"),
		GitSHA:  os.Getenv("GIT_SHA"),
		BuiltAt: os.Getenv("BUILT_AT"),

		MongoURL: os.Getenv("MONGO_URL"),
		MongoDB:  getenvDefault("MONGO_DB", "backhouse"),
		NATSURL:  os.Getenv("NATS_URL"),

		OutboxBatchSize:  getenvInt("OUTBOX_BATCH_SIZE", 10),
		OutboxTick:       time.Duration(getenvInt("OUTBOX_TICK_MS", 1000)) * time.Millisecond,
		OutboxMaxRetries: getenvInt("OUTBOX_MAX_RETRIES", 3),

		IdempotencyTTL: time.Duration(getenvInt("IDEMPOTENCY_TTL_HOURS", 24)) * time.Hour,
		UndoWindow:     time.Duration(getenvInt("UNDO_WINDOW_SECONDS", 30)) * time.Second,

		RateLimitDefaultRPM: getenvInt("RATE_LIMIT_DEFAULT_RPM", 1000),
		RateLimitOverrides:  parseOverrides(os.Getenv("RATE_LIMIT_PATH_OVERRIDES")),

		LowStockThreshold: getenvFloat("LOW_STOCK_THRESHOLD", 0),
		DefaultStation:    getenvDefault("DEFAULT_STATION", "KITCHEN"),
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

// parseOverrides accepts "path=rpm,path=rpm", e.g. "/auth/login=60,/payments=120".
func parseOverrides(raw string) map[string]int {
	out := map[string]int{}
	if raw == "" {
		return out
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		if rpm, err := strconv.Atoi(parts[1]); err == nil && rpm > 0 {
			out[parts[0]] = rpm
		}
	}
	return out
}
