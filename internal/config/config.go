package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"sessionpulse/telemetry-service/internal/models"
)

// Config is loaded once at startup and treated as immutable for the process
// lifetime. Tests construct it directly instead of reading the environment.
type Config struct {
	HTTPPort    string
	MetricsPort string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBDatabase string

	// IngestServiceToken authorizes device agents on /internal routes.
	IngestServiceToken string
	// AdminToken authorizes /admin routes.
	AdminToken string
	// DashboardTokens maps bearer token -> user external id it may read,
	// with "*" granting access to every user.
	DashboardTokens map[string]string

	AllowedOrigins []string

	// RollupWindowDays is locked to seven: the seven-element arrays are a
	// wire contract, so any other value refuses to start.
	RollupWindowDays int

	Environment string
}

func Load() (*Config, error) {
	cfg := &Config{
		HTTPPort:    getEnv("HTTP_PORT", "8080"),
		MetricsPort: getEnv("METRICS_PORT", "9090"),
		DBHost:      getEnv("DB_HOST", "mysql"),
		DBUser:      getEnv("DB_USER", "sessionpulse_user"),
		DBPassword:  getEnv("DB_PASSWORD", "sessionpulse_password"),
		DBDatabase:  getEnv("DB_DATABASE", "sessionpulse_db"),
		Environment: strings.ToLower(getEnv("APP_ENV", "development")),
	}

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "3306"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}
	cfg.DBPort = dbPort

	cfg.IngestServiceToken = os.Getenv("INGEST_SERVICE_TOKEN")
	if cfg.IngestServiceToken == "" {
		return nil, fmt.Errorf("missing required environment variable: INGEST_SERVICE_TOKEN")
	}

	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	if cfg.AdminToken == "" {
		return nil, fmt.Errorf("missing required environment variable: ADMIN_TOKEN")
	}

	cfg.DashboardTokens, err = ParseTokenMap(os.Getenv("DASHBOARD_TOKEN_MAP"))
	if err != nil {
		return nil, err
	}

	cfg.AllowedOrigins = splitAndTrim(os.Getenv("DASHBOARD_ALLOWED_ORIGINS"))
	if len(cfg.AllowedOrigins) == 0 {
		return nil, fmt.Errorf("DASHBOARD_ALLOWED_ORIGINS must include at least one origin")
	}

	cfg.RollupWindowDays = models.WindowDays
	if raw := os.Getenv("ROLLUP_WINDOW_DAYS"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid ROLLUP_WINDOW_DAYS: %w", err)
		}
		cfg.RollupWindowDays = days
	}
	if cfg.RollupWindowDays != models.WindowDays {
		return nil, fmt.Errorf("ROLLUP_WINDOW_DAYS is locked to %d for this release", models.WindowDays)
	}

	return cfg, nil
}

// ParseTokenMap parses DASHBOARD_TOKEN_MAP entries in "token:user,token:user"
// format. An empty value yields an empty map (no dashboard access).
func ParseTokenMap(raw string) (map[string]string, error) {
	parsed := make(map[string]string)
	for _, pair := range splitAndTrim(raw) {
		token, user, found := strings.Cut(pair, ":")
		if !found {
			return nil, fmt.Errorf("expected DASHBOARD_TOKEN_MAP entries in 'token:user' format")
		}
		token = strings.TrimSpace(token)
		user = strings.TrimSpace(user)
		if token == "" || user == "" {
			return nil, fmt.Errorf("token and user mapping must be non-empty")
		}
		parsed[token] = user
	}
	return parsed, nil
}

func splitAndTrim(raw string) []string {
	var items []string
	for _, item := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
