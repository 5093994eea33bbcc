package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/ZerkerEOD/hashfleet/pkg/debug"
)

// Config is the process-level configuration loaded from the environment.
// Scheduler behavior knobs live in Tuning, loaded separately from a TOML
// file so operators can adjust them without touching deployment env.
type Config struct {
	ListenAddr    string
	DatabaseURL   string
	TuningFile    string
	OperatorToken string
	Storage       StorageConfig
	Events        EventsConfig
	Tuning        Tuning
}

// StorageConfig points at the object store holding attack resources
type StorageConfig struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Enabled reports whether a resource store is configured
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

// EventsConfig controls the durable transition event publisher. An empty
// URL disables broker publishing; the websocket feed works regardless.
type EventsConfig struct {
	AMQPURL   string
	QueueName string
}

// Enabled reports whether broker publishing is configured
func (e EventsConfig) Enabled() bool {
	return e.AMQPURL != ""
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		debug.Info("No .env file found, using environment variables")
	}

	cfg := &Config{
		ListenAddr:    getEnv("HF_LISTEN_ADDR", ":31600"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		TuningFile:    getEnv("HF_TUNING_FILE", ""),
		OperatorToken: getEnv("HF_OPERATOR_TOKEN", ""),
		Storage: StorageConfig{
			Endpoint:     getEnv("HF_S3_ENDPOINT", ""),
			Region:       getEnv("HF_S3_REGION", "us-east-1"),
			Bucket:       getEnv("HF_S3_BUCKET", ""),
			AccessKey:    getEnv("HF_S3_ACCESS_KEY", ""),
			SecretKey:    getEnv("HF_S3_SECRET_KEY", ""),
			UsePathStyle: getEnvBool("HF_S3_USE_PATH_STYLE", true),
		},
		Events: EventsConfig{
			AMQPURL:   getEnv("HF_AMQP_URL", ""),
			QueueName: getEnv("HF_AMQP_QUEUE", "hashfleet.transitions"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	tuning, err := LoadTuning(cfg.TuningFile)
	if err != nil {
		return nil, err
	}
	cfg.Tuning = *tuning

	debug.Info("Configuration loaded: listen=%s storage=%v events=%v tuning=%s",
		cfg.ListenAddr, cfg.Storage.Enabled(), cfg.Events.Enabled(), cfg.TuningFile)

	return cfg, nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		debug.Warning("Invalid %s value %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
