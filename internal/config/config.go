package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config captures runtime settings for the badgetrack service.
type Config struct {
	Addr            string
	DatabaseURL     string
	AuthSecret      string
	AllowDebugActor bool
	KafkaBrokers    []string
	KafkaTopic      string
}

const (
	defaultAddr       = ":8061"
	defaultKafkaTopic = "badgetrack.decisions"
)

// Load reads environment variables and returns a Config. DatabaseURL may be
// empty, in which case the service falls back to the in-memory store (local
// development only).
func Load() (Config, error) {
	cfg := Config{
		Addr:            getEnv("BADGETRACK_ADDR", defaultAddr),
		DatabaseURL:     firstNonEmpty(os.Getenv("BADGETRACK_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		AuthSecret:      os.Getenv("BADGETRACK_AUTH_SECRET"),
		AllowDebugActor: getBool("BADGETRACK_ALLOW_DEBUG_ACTOR", false),
		KafkaTopic:      getEnv("BADGETRACK_KAFKA_TOPIC", defaultKafkaTopic),
	}
	if brokers := os.Getenv("BADGETRACK_KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}

	if cfg.AuthSecret == "" && !cfg.AllowDebugActor {
		return Config{}, fmt.Errorf("BADGETRACK_AUTH_SECRET is required (or set BADGETRACK_ALLOW_DEBUG_ACTOR for local development)")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		ok, err := strconv.ParseBool(v)
		if err == nil {
			return ok
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
