// Package config loads agent configuration from the environment.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Config holds the agent's startup configuration. Runtime-changeable
// settings (intervals, camera target) live in the settings store, not
// here.
type Config struct {
	// ListenAddr is the address the agent API binds. Loopback only by
	// default; the agent is a local companion, not a public service.
	ListenAddr string

	// BackendBaseURL is the GreenEye cloud API base URL.
	BackendBaseURL string

	// StateDir is where the file-backed store keeps its state.
	StateDir string

	// Storage selects the state backend: file, memory or postgres.
	Storage string

	// Token is an optional initial backend auth token.
	Token string

	Environment  string
	OTLPEndpoint string
	OTELEnabled  bool
}

// Load reads configuration from the environment, after loading a .env
// file when one is present. A missing .env file is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		ListenAddr:     getEnvOrDefault("GREENEYE_LISTEN", "127.0.0.1:7707"),
		BackendBaseURL: getEnvOrDefault("GREENEYE_BACKEND_URL", "http://localhost:8000"),
		StateDir:       getEnvOrDefault("GREENEYE_STATE_DIR", defaultStateDir()),
		Storage:        getEnvOrDefault("GREENEYE_STORAGE", "file"),
		Token:          os.Getenv("GREENEYE_TOKEN"),
		Environment:    getEnvOrDefault("APP_ENV", "development"),
		OTLPEndpoint:   getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELEnabled:    os.Getenv("OTEL_ENABLED") == "true",
	}
}

func defaultStateDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".greeneye"
	}
	return filepath.Join(home, ".greeneye")
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
