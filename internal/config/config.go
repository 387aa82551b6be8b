package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config aggregates runtime configuration for the EcoPoints API.
type Config struct {
	Environment    string
	HTTPPort       int
	DatabaseURL    string
	RedisURL       string
	DataStore      string
	LogLevel       string
	AllowedOrigins []string
	PublicBaseURL  string

	Google GoogleConfig
	GitHub GitHubConfig
	Apple  AppleConfig
}

// GoogleConfig holds the Google OAuth client credentials.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
}

// GitHubConfig holds the GitHub OAuth client credentials.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
}

// AppleConfig holds the Sign in with Apple credentials. ClientIDs
// lists the accepted audiences (web service ID first, then native app
// bundle IDs). PrivateKey is the PEM-encoded .p8 signing key.
type AppleConfig struct {
	ClientIDs  []string
	TeamID     string
	KeyID      string
	PrivateKey string
}

// Load reads configuration from environment variables with sensible defaults for local development.
func Load() (Config, error) {
	databaseURL, err := getEnvOrFile("DATABASE_URL", "/run/secrets/ecopoints_database_url")
	if err != nil {
		return Config{}, err
	}

	applePrivateKey, err := getEnvOrFile("APPLE_PRIVATE_KEY", "")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Environment:    getEnv("APP_ENV", "development"),
		DatabaseURL:    databaseURL,
		RedisURL:       getEnv("REDIS_URL", ""),
		DataStore:      strings.ToLower(getEnv("DATA_STORE", "memory")),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", "info")),
		AllowedOrigins: parseCSV(getEnv("ALLOWED_ORIGINS", "http://localhost:4200,http://localhost:8080")),
		PublicBaseURL:  getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		},
		GitHub: GitHubConfig{
			ClientID:     getEnv("GITHUB_CLIENT_ID", ""),
			ClientSecret: getEnv("GITHUB_CLIENT_SECRET", ""),
		},
		Apple: AppleConfig{
			ClientIDs:  parseCSV(getEnv("APPLE_CLIENT_IDS", "")),
			TeamID:     getEnv("APPLE_TEAM_ID", ""),
			KeyID:      getEnv("APPLE_KEY_ID", ""),
			PrivateKey: applePrivateKey,
		},
	}

	portValue := getEnv("PORT", getEnv("HTTP_PORT", "8080"))
	port, err := strconv.Atoi(portValue)
	if err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", portValue, err)
	}
	cfg.HTTPPort = port

	if cfg.DataStore == "postgres" && cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATA_STORE is postgres but DATABASE_URL is not set")
	}

	return cfg, nil
}

// HTTPAddress returns the address the HTTP server should bind to.
func (c Config) HTTPAddress() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore returns true if the in-memory repositories should be used.
func (c Config) UseInMemoryStore() bool {
	return c.DataStore == "memory"
}

// GoogleEnabled reports whether Google OAuth is configured.
func (c Config) GoogleEnabled() bool {
	return c.Google.ClientID != "" && c.Google.ClientSecret != ""
}

// GitHubEnabled reports whether GitHub OAuth is configured.
func (c Config) GitHubEnabled() bool {
	return c.GitHub.ClientID != "" && c.GitHub.ClientSecret != ""
}

// AppleEnabled reports whether Sign in with Apple is configured.
func (c Config) AppleEnabled() bool {
	return len(c.Apple.ClientIDs) > 0 && c.Apple.TeamID != "" && c.Apple.KeyID != "" && c.Apple.PrivateKey != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrFile(key, defaultPath string) (string, error) {
	if value := os.Getenv(key); value != "" {
		return value, nil
	}

	fileKey := key + "_FILE"
	if path := os.Getenv(fileKey); path != "" {
		return readSecret(path, fileKey)
	}

	if defaultPath != "" {
		return readSecret(defaultPath, key)
	}

	return "", nil
}

func readSecret(path, name string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("config: reading %s (%s): %w", name, path, err)
	}

	value := strings.TrimSpace(string(contents))
	if value == "" {
		return "", fmt.Errorf("config: %s (%s) is empty", name, path)
	}
	return value, nil
}
