package common

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
	StoreDriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Store       StoreConfig
	Database    DatabaseConfig
	NATS        NATSConfig
	Server      ServerConfig
	Sync        SyncConfig
	Dispatch    DispatchConfig
	Attachments AttachmentsConfig
}

// StoreConfig selects the job store implementation
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// NATSConfig holds the change-feed and command bus settings
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr string
}

// SyncConfig tunes the progress sync engine
type SyncConfig struct {
	Debounce    time.Duration
	GraceWindow time.Duration
	PhaseCap    int
}

// DispatchConfig sizes the flush dispatcher
type DispatchConfig struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

// AttachmentsConfig holds object storage settings for jobsheet attachments
type AttachmentsConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Enabled reports whether an object store is configured.
func (a AttachmentsConfig) Enabled() bool {
	return a.Endpoint != ""
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:     getEnv("STORE_DRIVER", StoreDriverPostgres),
			SQLitePath: getEnv("SQLITE_PATH", "./packing.db"),
		},
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "packing"),
		},
		Server: ServerConfig{
			GRPCAddr: getEnv("GRPC_ADDR", ":8080"),
		},
		Sync: SyncConfig{
			Debounce:    getEnvAsDuration("SYNC_DEBOUNCE", 600*time.Millisecond),
			GraceWindow: getEnvAsDuration("SYNC_GRACE_WINDOW", 2*time.Second),
			PhaseCap:    getEnvAsInt("SYNC_PHASE_CAP", 90),
		},
		Dispatch: DispatchConfig{
			Workers:   getEnvAsInt("DISPATCH_WORKERS", 4),
			QueueSize: getEnvAsInt("DISPATCH_QUEUE_SIZE", 256),
			Timeout:   getEnvAsDuration("DISPATCH_TIMEOUT", 30*time.Second),
		},
		Attachments: AttachmentsConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "jobsheets"),
			UseSSL:    getEnvAsBool("MINIO_USE_SSL", false),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Database.DSN == "" {
			return NewAppError(CodeConfig, "DB_URL is required for the postgres store", ErrInvalidInput)
		}
	case StoreDriverSQLite:
		if c.Store.SQLitePath == "" {
			return NewAppError(CodeConfig, "SQLITE_PATH is required for the sqlite store", ErrInvalidInput)
		}
	default:
		return NewAppError(CodeConfig, fmt.Sprintf("unknown STORE_DRIVER %q", c.Store.Driver), ErrInvalidInput)
	}
	if c.Sync.Debounce <= 0 {
		return NewAppError(CodeConfig, "SYNC_DEBOUNCE must be positive", ErrInvalidInput)
	}
	if c.Sync.GraceWindow < 0 {
		return NewAppError(CodeConfig, "SYNC_GRACE_WINDOW must not be negative", ErrInvalidInput)
	}
	if c.Sync.PhaseCap < 0 || c.Sync.PhaseCap >= 100 {
		return NewAppError(CodeConfig, "SYNC_PHASE_CAP must be in [0,100)", ErrInvalidInput)
	}
	if c.Attachments.Enabled() && c.Attachments.Bucket == "" {
		return NewAppError(CodeConfig, "MINIO_BUCKET is required when MINIO_ENDPOINT is set", ErrInvalidInput)
	}
	return nil
}
