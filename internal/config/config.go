package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the taskgraph server
type Config struct {
	// Storage settings
	DataDir string

	// Rendering
	TemplatesLocale string

	// Dashboard settings
	EnableGUI          bool
	WebPort            int
	DashboardJWTSecret string

	// Task engine settings
	VerifyPassScore int
	RemovePolicy    string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:            getEnv("DATA_DIR", "data"),
		TemplatesLocale:    strings.ToLower(getEnv("TEMPLATES_LOCALE", "en")),
		EnableGUI:          getEnvBool("ENABLE_GUI", false),
		WebPort:            getEnvInt("WEB_PORT", 9998),
		DashboardJWTSecret: normalizeSecret(os.Getenv("DASHBOARD_JWT_SECRET")),
		VerifyPassScore:    getEnvInt("VERIFY_PASS_SCORE", 80),
		RemovePolicy:       strings.ToLower(getEnv("REMOVE_POLICY", "strict")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// normalizeSecret strips surrounding quotes that .env files often carry.
func normalizeSecret(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 {
		if (strings.HasPrefix(trimmed, "\"") && strings.HasSuffix(trimmed, "\"")) ||
			(strings.HasPrefix(trimmed, "'") && strings.HasSuffix(trimmed, "'")) {
			trimmed = trimmed[1 : len(trimmed)-1]
		}
	}
	return trimmed
}

// validate checks that all configuration values are usable
func (c *Config) validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("DATA_DIR must not be empty")
	}

	switch c.TemplatesLocale {
	case "en", "zh":
	default:
		return fmt.Errorf("invalid TEMPLATES_LOCALE: %s (must be 'en' or 'zh')", c.TemplatesLocale)
	}

	if c.VerifyPassScore < 1 || c.VerifyPassScore > 100 {
		return fmt.Errorf("VERIFY_PASS_SCORE must be between 1 and 100")
	}

	switch c.RemovePolicy {
	case "strict", "detach", "cascade":
	default:
		return fmt.Errorf("invalid REMOVE_POLICY: %s (must be 'strict', 'detach' or 'cascade')", c.RemovePolicy)
	}

	return c.validateDashboardConfig()
}

func (c *Config) validateDashboardConfig() error {
	if !c.EnableGUI {
		return nil
	}
	if c.WebPort <= 0 || c.WebPort > 65535 {
		return fmt.Errorf("WEB_PORT must be between 1 and 65535")
	}
	if c.DashboardJWTSecret == "" {
		log.Printf("Warning: DASHBOARD_JWT_SECRET not set, dashboard API is unauthenticated")
	} else if len(c.DashboardJWTSecret) < 16 {
		return fmt.Errorf("DASHBOARD_JWT_SECRET must be at least 16 characters")
	}
	return nil
}

// getEnv gets environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
