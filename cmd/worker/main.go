package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/config"
	"github.com/riverlane-stream/live-pipeline/internal/hooks"
	"github.com/riverlane-stream/live-pipeline/internal/logger"
	"github.com/riverlane-stream/live-pipeline/internal/recording"
	"github.com/riverlane-stream/live-pipeline/internal/storage"
	"github.com/riverlane-stream/live-pipeline/internal/worker"
)

func main() {
	cli, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cli.showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(cli.envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	logger.Init()
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.LogLevel)
	}
	log := logger.Logger().With("component", "worker")
	log = log.With("worker_id", cfg.WorkerID)

	store, err := newStore(cfg)
	if err != nil {
		log.Error("storage init failed", "error", err)
		os.Exit(1)
	}

	b := broker.NewRedisBroker(cfg.BrokerAddr, cfg.BrokerPassword, cfg.BrokerDB)
	defer b.Close()

	var rec *recording.Client
	if cfg.RecordingDBDSN != "" {
		rec, err = recording.Connect(context.Background(), cfg.RecordingDBDSN)
		if err != nil {
			log.Error("recording record connect failed", "error", err)
			os.Exit(1)
		}
		defer rec.Close()
	}

	hookMgr := hooks.Build(hooks.BuildConfig{
		Scripts:     cfg.HookScripts,
		Webhooks:    cfg.HookWebhooks,
		StdioFormat: cfg.HookStdioFormat,
		Timeout:     cfg.HookTimeout,
		Concurrency: cfg.HookConcurrency,
	}, log)
	defer hookMgr.Close()

	w := worker.New(worker.Config{
		WorkerID:          cfg.WorkerID,
		MuxerBinary:       cfg.MuxerBinary,
		TempRoot:          cfg.MuxerTempRoot,
		PollInterval:      cfg.PollInterval,
		Quiescence:        cfg.Quiescence,
		ReadTimeout:       cfg.ReadTimeout,
		DrainGrace:        cfg.DrainGrace,
		HeartbeatInterval: cfg.HeartbeatInterval,
		HeartbeatTTL:      cfg.HeartbeatTTL,
		ReclaimInterval:   cfg.ReclaimInterval,
	}, b, store, rec, hookMgr, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker started", "version", version)
	if err := w.Run(ctx); err != nil {
		log.Error("worker exited", "error", err)
		os.Exit(1)
	}
	log.Info("worker stopped cleanly")
}

// newStore builds the configured Store backend.
func newStore(cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageBackend {
	case config.BackendAzBlob:
		return storage.NewAzureBlobStore(storage.AzureBlobConfig{
			AccountURL:  cfg.AzureAccountURL,
			Container:   cfg.AzureContainer,
			AccountName: cfg.AzureAccountName,
			AccountKey:  cfg.AzureAccountKey,
		})
	default:
		return storage.NewS3Store(context.Background(), storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
	}
}
