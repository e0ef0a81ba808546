package config

import (
	"os"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "STORAGE_BACKEND", "WORKER_ID", "HEARTBEAT_INTERVAL_MS", "HEARTBEAT_TTL_MS")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageBackend != BackendS3 {
		t.Fatalf("expected default backend s3, got %s", cfg.StorageBackend)
	}
	if cfg.WorkerID == "" {
		t.Fatal("expected generated worker id")
	}
	if cfg.PollInterval != time.Second {
		t.Fatalf("expected default poll interval of 1s, got %s", cfg.PollInterval)
	}
}

func TestLoadInvalidBackend(t *testing.T) {
	clearEnv(t, "STORAGE_BACKEND")
	os.Setenv("STORAGE_BACKEND", "gcs")
	defer os.Unsetenv("STORAGE_BACKEND")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unsupported backend")
	}
}

func TestLoadRejectsShortHeartbeatTTL(t *testing.T) {
	clearEnv(t, "HEARTBEAT_INTERVAL_MS", "HEARTBEAT_TTL_MS")
	os.Setenv("HEARTBEAT_INTERVAL_MS", "5000")
	os.Setenv("HEARTBEAT_TTL_MS", "6000")
	defer os.Unsetenv("HEARTBEAT_INTERVAL_MS")
	defer os.Unsetenv("HEARTBEAT_TTL_MS")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error when TTL is below 2x interval")
	}
}

func TestLoadHonorsWorkerID(t *testing.T) {
	clearEnv(t, "WORKER_ID")
	os.Setenv("WORKER_ID", "worker-explicit")
	defer os.Unsetenv("WORKER_ID")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.WorkerID != "worker-explicit" {
		t.Fatalf("expected explicit worker id to be honored, got %s", cfg.WorkerID)
	}
}
