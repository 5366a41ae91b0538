// Package output writes derived series to disk: one two-column data file
// per run, a JSONL archive for replotting, and rendered plots.
package output

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// MetadataResolver maps a run's fingerprint values back to its metadata.
// (*estimator.Aggregate).MetadataFor satisfies it.
type MetadataResolver func(fp string) (map[string]string, error)

// Filename appends "_key_value" for every metadata key, in sorted key order,
// to base and adds the ".dat" extension. A ".dat" extension already on base
// is dropped first.
func Filename(base string, meta map[string]string) string {
	base = strings.TrimSuffix(base, ".dat")

	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(base)
	for _, k := range keys {
		b.WriteString("_")
		b.WriteString(k)
		b.WriteString("_")
		b.WriteString(meta[k])
	}
	b.WriteString(".dat")
	return b.String()
}

// Format renders series as "x y" lines joined by newlines, without a
// trailing newline.
func Format(series types.XYSeries) string {
	lines := make([]string, len(series))
	for i, p := range series {
		lines[i] = formatFloat(p.X) + " " + formatFloat(p.Y)
	}
	return strings.Join(lines, "\n")
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Save writes one file per run into dir, named with Filename(base, meta) for
// the run's metadata. It returns the written paths, sorted.
func Save(dir string, series map[string]types.XYSeries, base string, resolve MetadataResolver) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}

	fps := make([]string, 0, len(series))
	for fp := range series {
		fps = append(fps, fp)
	}
	sort.Strings(fps)

	paths := make([]string, 0, len(fps))
	for _, fp := range fps {
		meta, err := resolve(fp)
		if err != nil {
			return paths, errors.Wrapf(err, "metadata for run %q", fp)
		}
		path := filepath.Join(dir, Filename(base, meta))
		if err := os.WriteFile(path, []byte(Format(series[fp])), 0644); err != nil {
			return paths, errors.Wrapf(err, "failed to write %s", path)
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}
