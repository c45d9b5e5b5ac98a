// Package config loads process configuration from the environment for both
// services, with optional .env support and typed accessors for durations,
// ints, and floats.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DDLPolicy controls how dbconn treats the embedded schema at startup.
type DDLPolicy string

const (
	DDLCreate     DDLPolicy = "create"
	DDLCreateDrop DDLPolicy = "create-drop"
	DDLUpdate     DDLPolicy = "update"
	DDLValidate   DDLPolicy = "validate"
	DDLNone       DDLPolicy = "none"
)

// LedgerConfig configures the Ledger Engine + Facade binary.
type LedgerConfig struct {
	DBSource    string
	Port        string
	DDLPolicy   DDLPolicy
	Env         string
	LogLevel    string
	MaxAttempts int           // bounded internal retry of transient storage errors
	RetryBase   time.Duration
}

// CoordinatorConfig configures the Transfer Coordinator + Batch Dispatcher +
// Facade binary.
type CoordinatorConfig struct {
	DBSource    string
	Port        string
	DDLPolicy   DDLPolicy
	Env         string
	LogLevel    string
	LedgerURL   string

	WorkerPoolSize int
	BatchCap       int

	RetryMaxAttempts  int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	BreakerWindowSize     int
	BreakerFailureRate    float64
	BreakerOpenDuration   time.Duration
	BreakerHalfOpenProbes int

	PendingSweepInterval time.Duration
	PendingSweepAge      time.Duration
}

// loadDotenv loads a .env file if present; a missing file is not an error.
// Only a missing required env var fails startup; malformed optional values
// fall back to their defaults.
func loadDotenv() {
	_ = godotenv.Load()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// LoadLedger reads the Ledger Engine configuration from the environment.
func LoadLedger() (*LedgerConfig, error) {
	loadDotenv()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	return &LedgerConfig{
		DBSource:    dbSource,
		Port:        getenv("SERVER_PORT", "8081"),
		DDLPolicy:   DDLPolicy(getenv("DDL_POLICY", string(DDLUpdate))),
		Env:         getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		MaxAttempts: getenvInt("LEDGER_MAX_ATTEMPTS", 3),
		RetryBase:   getenvDuration("LEDGER_RETRY_BASE", 20*time.Millisecond),
	}, nil
}

// LoadCoordinator reads the Transfer Coordinator configuration from the
// environment.
func LoadCoordinator() (*CoordinatorConfig, error) {
	loadDotenv()

	dbSource := os.Getenv("DB_SOURCE")
	if dbSource == "" {
		return nil, fmt.Errorf("DB_SOURCE environment variable is required")
	}

	ledgerURL := getenv("LEDGER_BASE_URL", "http://localhost:8081")

	return &CoordinatorConfig{
		DBSource:  dbSource,
		Port:      getenv("SERVER_PORT", "8080"),
		DDLPolicy: DDLPolicy(getenv("DDL_POLICY", string(DDLUpdate))),
		Env:       getenv("ENVIRONMENT", "development"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
		LedgerURL: ledgerURL,

		WorkerPoolSize: getenvInt("WORKER_POOL_SIZE", 10),
		BatchCap:       getenvInt("BATCH_CAP", 20),

		RetryMaxAttempts:  getenvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay: getenvDuration("RETRY_INITIAL_BACKOFF", 50*time.Millisecond),
		RetryMaxDelay:     getenvDuration("RETRY_MAX_BACKOFF", 2*time.Second),

		BreakerWindowSize:     getenvInt("BREAKER_WINDOW_SIZE", 20),
		BreakerFailureRate:    getenvFloat("BREAKER_FAILURE_RATE_THRESHOLD", 0.5),
		BreakerOpenDuration:   getenvDuration("BREAKER_OPEN_DURATION", 10*time.Second),
		BreakerHalfOpenProbes: getenvInt("BREAKER_HALF_OPEN_PROBES", 1),

		PendingSweepInterval: getenvDuration("PENDING_SWEEP_INTERVAL", 30*time.Second),
		PendingSweepAge:      getenvDuration("PENDING_SWEEP_AGE", 1*time.Minute),
	}, nil
}
