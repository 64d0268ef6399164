package config

import (
	"fmt"
	"os"
	"strconv"

	"gopower/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig
	Simulation SimulationConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
}

// SimulationConfig holds default simulation parameters. Request-level
// values override these; the defaults keep the CLI and API usable with no
// flags at all.
type SimulationConfig struct {
	Reps      int
	Alpha     float64
	ConfLevel float64
	BaseSeed  int64
	Workers   int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Simulation: SimulationConfig{
			Reps:      getEnvInt("SIM_REPS", 2000),
			Alpha:     getEnvFloat("SIM_ALPHA", 0.05),
			ConfLevel: getEnvFloat("SIM_CONF_LEVEL", 0.95),
			BaseSeed:  getEnvInt64("SIM_BASE_SEED", 42),
			Workers:   getEnvInt("SIM_WORKERS", 0), // 0 = GOMAXPROCS
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Simulation.Reps <= 0 {
		return errors.New(errors.CodeInvalidConfiguration, fmt.Sprintf("SIM_REPS must be positive, got %d", c.Simulation.Reps))
	}
	if c.Simulation.Alpha <= 0 || c.Simulation.Alpha >= 1 {
		return errors.New(errors.CodeInvalidConfiguration, fmt.Sprintf("SIM_ALPHA must be in (0,1), got %v", c.Simulation.Alpha))
	}
	if c.Simulation.ConfLevel <= 0 || c.Simulation.ConfLevel >= 1 {
		return errors.New(errors.CodeInvalidConfiguration, fmt.Sprintf("SIM_CONF_LEVEL must be in (0,1), got %v", c.Simulation.ConfLevel))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
