package estimator

import (
	"io/fs"
	"log/slog"
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultPattern matches the estimator files written by the DMRG code.
const DefaultPattern = "estimators*.dat"

// Locate walks the tree under root and returns the absolute paths of the
// regular files whose base name matches pattern.
func Locate(root, pattern string, logger *slog.Logger) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, errors.Wrapf(err, "bad pattern %q", pattern)
	}
	if logger == nil {
		logger = slog.Default()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", root)
	}

	logger.Info("searching for estimator files", "pattern", pattern, "root", abs)

	var found []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		// pattern was validated above
		if ok, _ := filepath.Match(pattern, d.Name()); ok {
			found = append(found, path)
			logger.Info("found file", "path", path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walk %s", abs)
	}

	return found, nil
}
