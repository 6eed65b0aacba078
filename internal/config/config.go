// Package config loads the server configuration from the environment,
// with an optional .env file for development.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultCurrencies is the catalogue used when no currency file is
// configured.
var DefaultCurrencies = []string{"SGD", "MYR", "USD", "EUR", "CNY", "THB", "VND", "HKD"}

type Config struct {
	// Database connection. A postgres:// or postgresql:// URL selects
	// the Postgres backend; anything else is treated as a SQLite path.
	DatabaseURL string

	// Web server
	Bind string

	// Token signing
	JWTSecret string

	// Accepted currency codes
	Currencies []string
}

// currencyFile is the shape of the optional YAML currency catalogue.
type currencyFile struct {
	Currencies []string `yaml:"currencies"`
}

// Load reads the configuration from the environment. A .env file is
// loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		Bind:        getEnvDefault("BIND", ":8080"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		Currencies:  DefaultCurrencies,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if path := os.Getenv("CURRENCY_FILE"); path != "" {
		currencies, err := loadCurrencies(path)
		if err != nil {
			return nil, err
		}
		cfg.Currencies = currencies
	}

	return cfg, nil
}

// loadCurrencies parses the YAML currency catalogue.
func loadCurrencies(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read currency file: %w", err)
	}

	var file currencyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse currency file: %w", err)
	}
	if len(file.Currencies) == 0 {
		return nil, fmt.Errorf("currency file %s lists no currencies", path)
	}
	return file.Currencies, nil
}

func getEnvDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
