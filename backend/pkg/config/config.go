package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"fractal-graph/backend/internal/graphstore"
	apperrors "fractal-graph/backend/pkg/errors"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Graph store
	GraphBackend string // neo4j, sqlite or memory
	SeedExample  bool   // Create the example programming-language graph on startup

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string
	Neo4jDatabase string

	// SQLite
	SQLitePath string

	// Observability
	MetricsEnabled bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("ENV", "development"),
		GraphBackend:   getEnv("GRAPH_BACKEND", graphstore.BackendNeo4j),
		SeedExample:    getEnvBool("SEED_EXAMPLE", false),
		Neo4jURI:       getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:      getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:  getEnv("NEO4J_PASSWORD", "password"),
		Neo4jDatabase:  getEnv("NEO4J_DATABASE", "neo4j"),
		SQLitePath:     getEnv("SQLITE_PATH", "fractal.db"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Port == "" {
		return apperrors.NewConfigMissingRequired("PORT")
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return apperrors.NewConfigValidationFailed("PORT", "must be numeric")
	}

	switch c.GraphBackend {
	case graphstore.BackendNeo4j:
		if c.Neo4jURI == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_URI")
		}
		if c.Neo4jUser == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_USER")
		}
		if c.Neo4jPassword == "" {
			return apperrors.NewConfigMissingRequired("NEO4J_PASSWORD")
		}
	case graphstore.BackendSQLite:
		if c.SQLitePath == "" {
			return apperrors.NewConfigMissingRequired("SQLITE_PATH")
		}
	case graphstore.BackendMemory:
		// Nothing to check
	default:
		return apperrors.NewConfigValidationFailed("GRAPH_BACKEND",
			fmt.Sprintf("unknown backend %q (want neo4j, sqlite or memory)", c.GraphBackend))
	}
	return nil
}

// StoreOptions converts the configuration into graph store options
func (c *Config) StoreOptions() graphstore.Options {
	return graphstore.Options{
		Backend: c.GraphBackend,
		Neo4j: graphstore.Neo4jConfig{
			URI:      c.Neo4jURI,
			Username: c.Neo4jUser,
			Password: c.Neo4jPassword,
			Database: c.Neo4jDatabase,
		},
		SQLitePath: c.SQLitePath,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
