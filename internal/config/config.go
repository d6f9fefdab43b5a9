package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr  string
	LogLevel  string
	Env       string // dev|prod
	SentryDSN string

	MetricsNamespace string
	DefaultTags      map[string]string
	LogEvents        bool // install the logging after-event hook

	DatabaseURL string // enables the postgres LISTEN source

	RedisAddr          string // enables the redis pub/sub source
	RedisPassword      string
	RedisDB            int
	RedisChannelPrefix string

	SourceRestartDelay time.Duration
}

func Load() (*Config, error) {
	tags, err := ParseTags(os.Getenv("DEFAULT_TAGS"))
	if err != nil {
		return nil, fmt.Errorf("DEFAULT_TAGS: %w", err)
	}
	logEvents, err := parseBool(getenv("LOG_EVENTS", "false"))
	if err != nil {
		return nil, fmt.Errorf("LOG_EVENTS: %w", err)
	}
	redisDB, err := strconv.Atoi(getenv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	delay, err := time.ParseDuration(getenv("SOURCE_RESTART_DELAY", "5s"))
	if err != nil {
		return nil, fmt.Errorf("SOURCE_RESTART_DELAY: %w", err)
	}

	cfg := &Config{
		HTTPAddr:           getenv("HTTP_ADDR", ":9394"),
		LogLevel:           getenv("LOG_LEVEL", "info"),
		Env:                getenv("ENV", "dev"),
		SentryDSN:          os.Getenv("SENTRY_DSN"),
		MetricsNamespace:   getenv("METRICS_NAMESPACE", "activejob"),
		DefaultTags:        tags,
		LogEvents:          logEvents,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		RedisChannelPrefix: getenv("REDIS_CHANNEL_PREFIX", "jobmetrics:"),
		SourceRestartDelay: delay,
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "", "0", "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("bad bool %q", s)
}

// ParseTags reads "k=v,k2=v2" into a map. Empty input gives nil.
func ParseTags(s string) (map[string]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make(map[string]string, len(parts))
	for _, p := range parts {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("bad tag %q", p)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
