package storage

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// ReadFunc reads one estimators file.
type ReadFunc func(path string) (*types.EstimatorFile, error)

// Ingest reads the files with up to workers goroutines and then inserts them
// into store one by one, in the order given. Reading finishes before the
// first insert, so a malformed file aborts the ingest with nothing written.
func Ingest(ctx context.Context, store Store, paths []string, workers int, read ReadFunc, logger *slog.Logger) error {
	if read == nil {
		read = estimator.ReadFile
	}
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}

	files := make([]*types.EstimatorFile, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			f, err := read(path)
			if err != nil {
				return errors.Wrapf(err, "read %s", path)
			}
			files[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, f := range files {
		if err := store.InsertFile(ctx, f); err != nil {
			return err
		}
		logger.Debug("inserted estimators file", "path", f.Path, "records", len(f.Data))
	}
	logger.Info("ingested estimator files", "files", len(files), "fingerprint_keys", store.FingerprintKeys())

	return nil
}

// CreateFromFiles opens a new store and ingests paths into it.
func CreateFromFiles(ctx context.Context, cfg *Config, paths []string, workers int, logger *slog.Logger) (Store, error) {
	store, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := Ingest(ctx, store, paths, workers, nil, logger); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// CreateFromDir locates the estimator files under root and ingests them into
// a new store.
func CreateFromDir(ctx context.Context, cfg *Config, root, pattern string, workers int, logger *slog.Logger) (Store, error) {
	paths, err := estimator.Locate(root, pattern, logger)
	if err != nil {
		return nil, err
	}
	return CreateFromFiles(ctx, cfg, paths, workers, logger)
}
