package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/merklevault/merklevault/pkg/config"
	"github.com/merklevault/merklevault/pkg/logger"
	"github.com/merklevault/merklevault/pkg/server"
	"github.com/merklevault/merklevault/pkg/store"
)

func main() {
	app := &cli.App{
		Name:  "vault-server",
		Usage: "Merkle vault file server",
		Description: `An HTTP server that stores one ordered batch of files and serves
merkle proofs of their integrity.

Clients upload a batch, keep only the returned merkle root hash, and can
later download any file together with a proof that it has not been
corrupted or tampered with.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   8080,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPort},
			},
			&cli.Float64Flag{
				Name:    "upload-rps",
				Value:   0,
				Usage:   "Max upload requests per second (0 disables the limiter)",
				EnvVars: []string{config.EnvUploadRPS},
			},
			&cli.Int64Flag{
				Name:    "max-batch-bytes",
				Value:   0,
				Usage:   "Max upload request body size in bytes (0 uses the default)",
				EnvVars: []string{config.EnvMaxBatchBytes},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Usage:   "Enable verbose logging",
				EnvVars: []string{config.EnvVerbose},
			},
		},
		Action: runVaultServer,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runVaultServer(c *cli.Context) error {
	cfg := &config.ServerConfig{
		Port:          c.Int("port"),
		UploadRPS:     c.Float64("upload-rps"),
		MaxBatchBytes: c.Int64("max-batch-bytes"),
		Debug:         c.Bool("verbose"),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	st := store.NewStore(l)
	srv := server.NewServer(cfg, st, l)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	l.Sugar().Infow("Vault server running",
		"port", cfg.Port,
		"upload_rps", cfg.UploadRPS,
		"max_batch_bytes", cfg.MaxBatchBytes,
	)

	// Block until interrupted, then drain in-flight requests.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	l.Sugar().Infow("Shutting down", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
