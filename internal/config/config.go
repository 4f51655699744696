// Package config loads runtime configuration for the example programs from
// the environment, with optional .env file support.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the example programs need at startup.
type Config struct {
	Couchbase   CouchbaseConfig
	Log         LogConfig
	Diagnostics DiagnosticsConfig
	Workload    WorkloadConfig
}

// CouchbaseConfig describes the cluster to connect to and the keyspace the
// examples write into.
type CouchbaseConfig struct {
	URL            string
	Username       string
	Password       string
	Bucket         string
	Scope          string
	Collection     string
	ConnectTimeout time.Duration
	KVTimeout      time.Duration
	QueryTimeout   time.Duration
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level            string
	ElasticsearchURL string
}

// DiagnosticsConfig controls the health and metrics HTTP listener.
type DiagnosticsConfig struct {
	Port string
}

// WorkloadConfig sizes the example workload.
type WorkloadConfig struct {
	Workers       int
	DocumentCount int
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present; already-set environment variables win
// over file values.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Couchbase: CouchbaseConfig{
			URL:            getEnv("COUCHBASE_URL", "couchbase://localhost"),
			Username:       getEnv("COUCHBASE_USERNAME", "Administrator"),
			Password:       getEnv("COUCHBASE_PASSWORD", "password"),
			Bucket:         getEnv("COUCHBASE_BUCKET", "testing"),
			Scope:          getEnv("COUCHBASE_SCOPE", ""),
			Collection:     getEnv("COUCHBASE_COLLECTION", ""),
			ConnectTimeout: getEnvAsDuration("COUCHBASE_CONNECT_TIMEOUT", 30*time.Second),
			KVTimeout:      getEnvAsDuration("COUCHBASE_KV_TIMEOUT", 5*time.Second),
			QueryTimeout:   getEnvAsDuration("COUCHBASE_QUERY_TIMEOUT", 30*time.Second),
		},
		Log: LogConfig{
			Level:            getEnv("LOG_LEVEL", "info"),
			ElasticsearchURL: getEnv("ELASTICSEARCH_URL", ""),
		},
		Diagnostics: DiagnosticsConfig{
			Port: getEnv("DIAG_PORT", "2112"),
		},
		Workload: WorkloadConfig{
			Workers:       getEnvAsInt("WORKER_COUNT", 5),
			DocumentCount: getEnvAsInt("DOCUMENT_COUNT", 3),
		},
	}
}

// getEnv returns the value of key or defaultValue when unset or empty.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt returns key parsed as an int, or defaultValue when unset or
// unparseable.
func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// getEnvAsDuration returns key parsed as a time.Duration ("30s", "1m"), or
// defaultValue when unset or unparseable.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
