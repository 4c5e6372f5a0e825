package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	TokenSecret string
	GraceWindow time.Duration
	RoomIdleTTL time.Duration
	AckTimeout  time.Duration
	ArchiveDSN  string // empty disables result archiving
}

func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Port:        getEnv("APP_PORT", "8080"),
		TokenSecret: getEnv("TOKEN_SECRET", "dev-secret-change-me"),
		GraceWindow: getDuration("GRACE_WINDOW", 30*time.Second),
		RoomIdleTTL: getDuration("ROOM_IDLE_TTL", 10*time.Minute),
		AckTimeout:  getDuration("ACK_TIMEOUT", 3*time.Second),
		ArchiveDSN:  getEnv("ARCHIVE_DSN", ""),
	}

	if cfg.TokenSecret == "" {
		log.Fatal("TOKEN_SECRET is required")
	}

	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration for %s: %v", key, err)
	}
	return d
}
