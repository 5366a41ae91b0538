package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

func TestFilename(t *testing.T) {
	meta := map[string]string{"parameter_2": "a_string", "parameter_1": "1.0"}

	tests := []struct {
		base string
		want string
	}{
		{"", "_parameter_1_1.0_parameter_2_a_string.dat"},
		{"n_up", "n_up_parameter_1_1.0_parameter_2_a_string.dat"},
		{"n_up.dat", "n_up_parameter_1_1.0_parameter_2_a_string.dat"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Filename(tt.base, meta), "base %q", tt.base)
	}

	assert.Equal(t, "sf.dat", Filename("sf", nil))
}

func TestFormat(t *testing.T) {
	s := types.NewXYSeries([]float64{0, 1}, []float64{1.0, 2.5})
	assert.Equal(t, "0 1\n1 2.5", Format(s))
	assert.Equal(t, "", Format(nil))
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	keys := "L:U"
	series := map[string]types.XYSeries{
		"8:1.0": types.NewXYSeries([]float64{0, 1}, []float64{0.5, 0.25}),
		"8:2.0": types.NewXYSeries([]float64{0}, []float64{-1}),
	}
	resolve := func(fp string) (map[string]string, error) {
		return estimator.Metadata(keys, fp)
	}

	paths, err := Save(dir, series, "sf.dat", resolve)
	require.NoError(t, err)
	require.Equal(t, []string{
		filepath.Join(dir, "sf_L_8_U_1.0.dat"),
		filepath.Join(dir, "sf_L_8_U_2.0.dat"),
	}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "0 0.5\n1 0.25", string(data))

	data, err = os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "0 -1", string(data))
}

func TestSaveResolverError(t *testing.T) {
	series := map[string]types.XYSeries{"1:2:3": {{X: 0, Y: 1}}}
	resolve := func(fp string) (map[string]string, error) {
		return estimator.Metadata("L", fp)
	}
	_, err := Save(t.TempDir(), series, "x", resolve)
	assert.ErrorIs(t, err, estimator.ErrMetadataArityMismatch)
}

func TestArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "archive", "series.jsonl")

	a, err := OpenArchive(path)
	require.NoError(t, err)

	first := types.NamedSeries{
		Name:            "spin_structure_factor",
		FingerprintKeys: "L",
		Runs:            map[string]types.XYSeries{"8": {{X: 0, Y: 0.1}, {X: 0.785, Y: 0.2}}},
	}
	second := first
	second.Runs = map[string]types.XYSeries{"8": {{X: 0, Y: 0.3}}}
	other := types.NamedSeries{Name: "charge_structure_factor", FingerprintKeys: "L"}

	require.NoError(t, a.Append(first))
	require.NoError(t, a.Append(other))
	require.NoError(t, a.Flush())
	require.NoError(t, a.Append(second))
	require.NoError(t, a.Close())

	entries, err := ReadArchive(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, first.Runs, entries[0].Runs)
	assert.False(t, entries[0].Timestamp.IsZero())

	latest, ok := Latest(entries, "spin_structure_factor")
	require.True(t, ok)
	assert.Equal(t, second.Runs, latest.Runs)

	_, ok = Latest(entries, "missing")
	assert.False(t, ok)

	// Reopening appends.
	a, err = OpenArchive(path)
	require.NoError(t, err)
	require.NoError(t, a.Append(other))
	require.NoError(t, a.Close())
	entries, err = ReadArchive(path)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestReadArchiveCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"name\":\"x\"}\nnot json\n"), 0644))

	_, err := ReadArchive(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.jsonl:2")
}

func TestRunLabel(t *testing.T) {
	assert.Equal(t, "L=8, U=1.0", RunLabel("L:U", "8:1.0"))
	assert.Equal(t, "8", RunLabel("L:U", "8"))
}

func TestPlot(t *testing.T) {
	s := types.NamedSeries{
		Name:            "spin_structure_factor",
		FingerprintKeys: "U",
		Runs: map[string]types.XYSeries{
			"1.0":  {{X: 0, Y: 0}, {X: 1, Y: 0.50}},
			"1.1":  {{X: 0, Y: 0}, {X: 1, Y: 0.51}},
			"4.0":  {{X: 0, Y: 0}, {X: 1, Y: 1.00}},
			"none": {},
		},
	}
	dir := t.TempDir()

	opts := DefaultPlotOptions()
	opts.Markers = []float64{0.5}
	drawn, err := Plot(filepath.Join(dir, "all.png"), s, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "1.1", "4.0"}, drawn)

	info, err := os.Stat(filepath.Join(dir, "all.png"))
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	opts.MinSeparation = 0.1
	opts.Protected = []string{"1.0"}
	drawn, err = Plot(filepath.Join(dir, "decluttered.png"), s, opts)
	require.NoError(t, err)
	assert.Equal(t, []string{"1.0", "4.0"}, drawn)

	_, err = Plot(filepath.Join(dir, "empty.png"), types.NamedSeries{Name: "x"}, opts)
	assert.Error(t, err)
}
