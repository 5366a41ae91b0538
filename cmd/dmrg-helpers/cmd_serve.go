package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/iglpdc/dmrg-helpers/pkg/api"
	"github.com/iglpdc/dmrg-helpers/pkg/storage"
)

func (a *app) serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the estimators found under the input root over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runServe(cmd)
		},
	}
	cmd.Flags().String("listen", "", "listen address")
	cmd.Flags().String("chain-length-key", "", "default metadata key holding the chain length")
	return cmd
}

func (a *app) runServe(cmd *cobra.Command) error {
	base, err := a.openStore(cmd.Context())
	if err != nil {
		return err
	}

	store := base
	var cached *storage.CachedStore
	if a.cfg.Storage.CacheCapacity > 0 {
		cached = storage.NewCachedStore(base, nil, a.cfg.Storage.CacheCapacity, a.cfg.Storage.CacheTTL)
		store = cached
	}
	defer store.Close()

	server := api.NewServer(a.cfg.Server.ListenAddr, store, api.Options{
		Timeout:        a.cfg.Server.Timeout,
		ChainLengthKey: a.cfg.Analysis.ChainLengthKey,
		Spin:           a.cfg.Analysis.Spin,
		Density:        a.cfg.Analysis.Density,
		Logger:         a.logger,
	})

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-sigChan:
		a.logger.Info("shutdown signal received, stopping server")
	case err := <-errCh:
		return errors.Wrap(err, "api server")
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		return errors.Wrap(err, "server shutdown")
	}

	if cached != nil {
		a.logger.Info("server stopped", "cache_hit_rate", cached.CacheHitRate())
	} else {
		a.logger.Info("server stopped")
	}
	return nil
}
