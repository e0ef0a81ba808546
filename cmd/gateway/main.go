package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/riverlane-stream/live-pipeline/internal/broker"
	"github.com/riverlane-stream/live-pipeline/internal/config"
	"github.com/riverlane-stream/live-pipeline/internal/gateway"
	"github.com/riverlane-stream/live-pipeline/internal/logger"
	"github.com/riverlane-stream/live-pipeline/internal/recording"
	"github.com/riverlane-stream/live-pipeline/internal/storage"
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
	log := logger.Logger().With("component", "gateway")

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

	srv := gateway.NewServer(gateway.Config{
		ListenAddr:      cfg.ListenAddr,
		Bucket:          cfg.S3Bucket,
		HookScripts:     cfg.HookScripts,
		HookWebhooks:    cfg.HookWebhooks,
		HookStdioFormat: cfg.HookStdioFormat,
		HookTimeout:     cfg.HookTimeout,
		HookConcurrency: cfg.HookConcurrency,
	}, b, store, rec, log)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	log.Info("gateway started", "addr", cfg.ListenAddr, "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("gateway exited", "error", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("gateway stop error", "error", err)
	} else {
		log.Info("gateway stopped cleanly")
	}
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
