package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	DataPath string
	LogDir   string
	CacheDir string

	// ModelPath is the trained classifier artifact.
	ModelPath string
	// PopulationPath is the JSONL historical feature table.
	PopulationPath string
	// DatabasePath, when set, makes the SQLite store the feature provider.
	DatabasePath string
	// ThresholdsPath caches the calibrated threshold table.
	ThresholdsPath string
	PolicyPath     string

	// AllowDegradedThresholds permits starting on the literal fallback table
	// when calibration is impossible.
	AllowDegradedThresholds bool

	Workers             int
	MetricsAddr         string
	EnableMermaidCharts bool
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// The binary's directory wins; MCP hosts rarely start us from it.
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}
	return fromEnv(dataPath), nil
}

func fromEnv(dataPath string) *AppConfig {
	logDir := getEnv("LOGS_FOLDER", filepath.Join(dataPath, "logs"))
	cacheDir := filepath.Join(dataPath, "cache")

	for _, dir := range []string{logDir, cacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to create directory")
		}
	}

	return &AppConfig{
		DataPath:                dataPath,
		LogDir:                  logDir,
		CacheDir:                cacheDir,
		ModelPath:               getEnv("MODEL_PATH", filepath.Join(dataPath, "model.json")),
		PopulationPath:          getEnv("POPULATION_PATH", filepath.Join(dataPath, "population.jsonl")),
		DatabasePath:            getEnv("DATABASE_PATH", ""),
		ThresholdsPath:          getEnv("THRESHOLDS_PATH", filepath.Join(cacheDir, "thresholds.json")),
		PolicyPath:              getEnv("POLICY_PATH", ""),
		AllowDegradedThresholds: getEnvBool("ALLOW_DEGRADED_THRESHOLDS", false),
		Workers:                 getEnvInt("WORKERS", runtime.NumCPU()),
		MetricsAddr:             getEnv("METRICS_ADDR", ""),
		EnableMermaidCharts:     getEnvBool("ENABLE_MERMAID_CHARTS", false),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid integer setting")
	}
	return fallback
}
