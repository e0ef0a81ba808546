// Package config loads the environment-variable configuration shared by
// the gateway and worker binaries, matching the teacher's flag/env
// precedence pattern (see cmd/*/flags.go and internal/logger.detectLevel),
// optionally pre-populated from a .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// StorageBackend selects which object storage implementation to use.
type StorageBackend string

const (
	BackendS3     StorageBackend = "s3"
	BackendAzBlob StorageBackend = "azblob"
)

// Config holds every recognized environment variable, parsed and
// defaulted.
type Config struct {
	// Transport
	ListenAddr string
	LogLevel   string

	// Broker
	BrokerAddr     string
	BrokerPassword string
	BrokerDB       int

	// Storage
	StorageBackend StorageBackend

	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string

	AzureAccountURL  string
	AzureContainer   string
	AzureAccountName string
	AzureAccountKey  string

	// Muxer
	MuxerBinary   string
	MuxerTempRoot string

	// Worker timing
	PollInterval      time.Duration
	Quiescence        time.Duration
	ReadTimeout       time.Duration
	DrainGrace        time.Duration
	HeartbeatInterval time.Duration
	HeartbeatTTL      time.Duration
	ReclaimInterval   string // cron expression

	// Recording record collaborator
	RecordingDBDSN string

	// WorkerID identifies this worker process; generated if unset.
	WorkerID string

	// Hooks, shared by the gateway and worker lifecycle event taxonomy.
	HookScripts     []string // event_type=script_path pairs
	HookWebhooks    []string // event_type=webhook_url pairs
	HookStdioFormat string   // "json", "env", or "" (disabled)
	HookTimeout     string
	HookConcurrency int
}

// Load reads configuration from the environment, optionally pre-loading a
// .env file at envFile (ignored if absent), and applies defaults per the
// pipeline's external-interfaces contract.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: loading %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		ListenAddr:     getString("LISTEN_ADDR", ":8080"),
		LogLevel:       getString("LIVEPIPE_LOG_LEVEL", "info"),
		BrokerAddr:     getString("BROKER_ADDR", "localhost:6379"),
		BrokerPassword: getString("BROKER_PASSWORD", ""),
		BrokerDB:       getInt("BROKER_DB", 0),

		StorageBackend: StorageBackend(getString("STORAGE_BACKEND", "s3")),

		S3Bucket:          getString("S3_BUCKET", ""),
		S3Region:          getString("S3_REGION", "us-east-1"),
		S3Endpoint:        getString("S3_ENDPOINT", ""),
		S3AccessKeyID:     getString("S3_ACCESS_KEY_ID", ""),
		S3SecretAccessKey: getString("S3_SECRET_ACCESS_KEY", ""),

		AzureAccountURL:  getString("AZURE_ACCOUNT_URL", ""),
		AzureContainer:   getString("AZURE_CONTAINER", ""),
		AzureAccountName: getString("AZURE_ACCOUNT_NAME", ""),
		AzureAccountKey:  getString("AZURE_ACCOUNT_KEY", ""),

		MuxerBinary:   getString("MUXER_BINARY", "ffmpeg"),
		MuxerTempRoot: getString("MUXER_TEMP_ROOT", os.TempDir()),

		PollInterval:      getDurationMS("POLL_INTERVAL_MS", 1000),
		Quiescence:        getDurationMS("QUIESCENCE_MS", 500),
		ReadTimeout:       getDurationMS("READ_TIMEOUT_MS", 500),
		DrainGrace:        getDurationMS("DRAIN_GRACE_MS", 500),
		HeartbeatInterval: getDurationMS("HEARTBEAT_INTERVAL_MS", 5000),
		HeartbeatTTL:      getDurationMS("HEARTBEAT_TTL_MS", 10000),
		ReclaimInterval:   getString("RECLAIM_INTERVAL", "*/30 * * * * *"),

		RecordingDBDSN: getString("RECORDING_DB_DSN", ""),

		WorkerID: getString("WORKER_ID", ""),

		HookScripts:     getList("HOOK_SCRIPTS"),
		HookWebhooks:    getList("HOOK_WEBHOOKS"),
		HookStdioFormat: getString("HOOK_STDIO_FORMAT", ""),
		HookTimeout:     getString("HOOK_TIMEOUT", "30s"),
		HookConcurrency: getInt("HOOK_CONCURRENCY", 10),
	}

	if cfg.StorageBackend != BackendS3 && cfg.StorageBackend != BackendAzBlob {
		return nil, fmt.Errorf("config: invalid STORAGE_BACKEND %q", cfg.StorageBackend)
	}

	if cfg.WorkerID == "" {
		cfg.WorkerID = uuid.NewString()
	}

	if cfg.HeartbeatTTL < 2*cfg.HeartbeatInterval {
		return nil, fmt.Errorf("config: HEARTBEAT_TTL_MS must be at least 2x HEARTBEAT_INTERVAL_MS")
	}

	return cfg, nil
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// getList splits a comma-separated env var into a trimmed, non-empty slice.
func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getDurationMS(key string, defMS int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Millisecond
		}
	}
	return time.Duration(defMS) * time.Millisecond
}
