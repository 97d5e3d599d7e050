// Package config provides centralized default values for PulseTrack
package config

import (
	"bufio"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		file, err := os.Open(".env")
		if err != nil {
			return
		}
		defer file.Close()

		log.Println("Loading configuration overrides from .env file...")
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}

			parts := strings.SplitN(line, "=", 2)
			if len(parts) != 2 {
				continue
			}

			key := strings.TrimSpace(parts[0])
			value := strings.TrimSpace(parts[1])

			if os.Getenv(key) == "" {
				os.Setenv(key, value)
			}
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Intake ceilings, enforced before any processing begins
	MaxBatchSize    int
	MaxPayloadBytes int64

	// Background funnel processing
	FunnelWorkers       int
	FunnelQueueCapacity int
	BatchConcurrency    int

	// Tenant Configuration
	ConfigPath string
	DataPath   string
	MaxTenants int

	// Database Pool
	DBMaxOpenConns           int
	DBMaxIdleConns           int
	DBConnMaxLifetimeMinutes int
	DBConnMaxIdleMinutes     int
	SlowQueryThreshold       time.Duration

	// Cache Configuration
	CacheBackend       string
	BadgerPath         string
	SessionCacheTTL    time.Duration
	IdentityCacheTTL   time.Duration
	SnapshotCacheTTL   time.Duration
	DedupCacheTTL      time.Duration
	CacheSweepInterval time.Duration

	// Runtime tunables file (yaml, hot reloaded); empty disables the watcher
	TunablesPath string

	// Logging
	LogDirectory    string
	LogToFile       bool
	VerboseLogging  bool
	DefaultLogLevel string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8080")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Intake ceilings
	MaxBatchSize = getEnvInt("MAX_BATCH_SIZE", 50)
	MaxPayloadBytes = int64(getEnvInt("MAX_PAYLOAD_BYTES", 256*1024))

	// Background funnel processing
	FunnelWorkers = getEnvInt("FUNNEL_WORKERS", 8)
	FunnelQueueCapacity = getEnvInt("FUNNEL_QUEUE_CAPACITY", 4096)
	BatchConcurrency = getEnvInt("BATCH_CONCURRENCY", 10)

	// Tenant Configuration
	ConfigPath = getEnvString("CONFIG_PATH", "config")
	DataPath = getEnvString("DATA_PATH", "data")
	MaxTenants = getEnvInt("MAX_TENANTS", 25)

	// Database Pool
	DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 3)
	DBConnMaxLifetimeMinutes = getEnvInt("DB_CONN_MAX_LIFETIME_MINUTES", 30)
	DBConnMaxIdleMinutes = getEnvInt("DB_CONN_MAX_IDLE_MINUTES", 3)
	SlowQueryThreshold = getEnvDuration("SLOW_QUERY_THRESHOLD", 50*time.Millisecond)

	// Cache Configuration
	CacheBackend = getEnvString("CACHE_BACKEND", "memory")
	BadgerPath = getEnvString("BADGER_PATH", "data/cache")
	SessionCacheTTL = getEnvDuration("SESSION_CACHE_TTL", 45*time.Minute)
	IdentityCacheTTL = getEnvDuration("IDENTITY_CACHE_TTL", 1*time.Hour)
	SnapshotCacheTTL = getEnvDuration("SNAPSHOT_CACHE_TTL", 5*time.Minute)
	DedupCacheTTL = getEnvDuration("DEDUP_CACHE_TTL", 24*time.Hour)
	CacheSweepInterval = getEnvDuration("CACHE_SWEEP_INTERVAL", 5*time.Minute)

	// Runtime tunables
	TunablesPath = getEnvString("TUNABLES_PATH", "")

	// Logging
	LogDirectory = getEnvString("LOG_DIRECTORY", "logs")
	LogToFile = getEnvBool("LOG_TO_FILE", true)
	VerboseLogging = getEnvBool("VERBOSE_LOGGING", false)
	DefaultLogLevel = getEnvString("LOG_LEVEL", "INFO")
}
