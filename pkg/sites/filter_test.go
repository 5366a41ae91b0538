package sites

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		expr string
		i    int
		want int
	}{
		{"2*i+1", 5, 11},
		{"i", 5, 5},
		{"1", 5, 1},
		{"1", 1000, 1},
		{"i-1", 0, -1},
		{"3*i", 2, 6},
		{"j+4", 1, 5},
		{"0*i+2", 9, 2},
	}
	for _, tt := range tests {
		f, err := ParseFilter(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, f.Evaluate(tt.i), "%s at %d", tt.expr, tt.i)
		assert.Equal(t, tt.expr, f.String())
	}
}

func TestParseFilterErrors(t *testing.T) {
	for _, expr := range []string{"", "+1", "-3", "i*2", "2i", "2*", "ij", "i+", "I", "1.5", "2*i+1+1", " i"} {
		_, err := ParseFilter(expr)
		assert.ErrorIs(t, err, ErrInvalidFilterSyntax, "%q", expr)
	}
}

func TestIsConstant(t *testing.T) {
	for expr, want := range map[string]bool{"7": true, "0*i+3": true, "i": false} {
		f, err := ParseFilter(expr)
		require.NoError(t, err)
		assert.Equal(t, want, f.IsConstant(), expr)
	}
}

func TestGenerateIndexes(t *testing.T) {
	got, err := Indexes([]string{"2*i+1"}, 10)
	require.NoError(t, err)
	assert.Equal(t, []types.SiteTuple{{1}, {3}, {5}, {7}, {9}}, got)

	got, err = Indexes([]string{"i", "i+1"}, 4)
	require.NoError(t, err)
	assert.Equal(t, []types.SiteTuple{{0, 1}, {1, 2}, {2, 3}}, got)

	got, err = Indexes([]string{"0", "i"}, 3)
	require.NoError(t, err)
	// i = 0 gives (0, 0), which is not increasing.
	assert.Empty(t, got)

	got, err = Indexes([]string{"0", "i+1"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []types.SiteTuple{{0, 1}, {0, 2}}, got)

	// Constant tuples skip the checks.
	got, err = Indexes([]string{"5", "2"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []types.SiteTuple{{5, 2}}, got)

	_, err = Indexes(nil, 3)
	assert.ErrorIs(t, err, ErrInvalidFilterSyntax)
	_, err = Indexes([]string{"i", "x+"}, 3)
	assert.ErrorIs(t, err, ErrInvalidFilterSyntax)
}

func TestGenerateIndexesRestarts(t *testing.T) {
	seq, err := GenerateIndexes([]string{"i"}, 3)
	require.NoError(t, err)

	var first []types.SiteTuple
	for s := range seq {
		first = append(first, s)
		if len(first) == 2 {
			break
		}
	}
	assert.Equal(t, []types.SiteTuple{{0}, {1}}, first)

	var all []types.SiteTuple
	for s := range seq {
		all = append(all, s)
	}
	assert.Equal(t, []types.SiteTuple{{0}, {1}, {2}}, all)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(types.NewSiteTuple(0, 2, 5), 6))
	assert.False(t, Valid(types.NewSiteTuple(0, 2, 6), 6))
	assert.False(t, Valid(types.NewSiteTuple(2, 2), 6))
	assert.False(t, Valid(types.NewSiteTuple(3, 1), 6))
	assert.False(t, Valid(nil, 6))
}

type fixedQuerier []types.Record

func (q fixedQuerier) Query(_ context.Context, name types.ObservableName) ([]types.Record, error) {
	var out []types.Record
	for _, r := range q {
		if r.Name.Equal(name) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (fixedQuerier) FingerprintKeys() string { return "L" }

func TestSelect(t *testing.T) {
	var q fixedQuerier
	for _, run := range []struct {
		fp string
		l  int
	}{{"4", 4}, {"6", 6}} {
		for a := 0; a < run.l; a++ {
			for b := a + 1; b < run.l; b++ {
				q = append(q, types.Record{
					Name:        types.NewObservableName("S_z", "S_z"),
					Sites:       types.NewSiteTuple(a, b),
					Value:       float64(10*a + b),
					Fingerprint: run.fp,
				})
			}
		}
	}

	a, err := estimator.Query(context.Background(), q, "S_z*S_z")
	require.NoError(t, err)

	chainLength := func(fp string) (int, error) {
		meta, err := a.MetadataFor(fp)
		if err != nil {
			return 0, err
		}
		switch meta["L"] {
		case "4":
			return 4, nil
		default:
			return 6, nil
		}
	}

	nearest, err := Select(a, []string{"i", "i+1"}, chainLength)
	require.NoError(t, err)

	run, ok := nearest.Run("4")
	require.True(t, ok)
	assert.Equal(t, []types.SiteTuple{{0, 1}, {1, 2}, {2, 3}}, run.Sites)
	assert.Equal(t, []float64{1, 12, 23}, run.Values)

	run, ok = nearest.Run("6")
	require.True(t, ok)
	assert.Equal(t, 5, run.Len())

	fromZero, err := Select(a, []string{"0", "2*i+1"}, chainLength)
	require.NoError(t, err)
	run, _ = fromZero.Run("6")
	assert.Equal(t, []types.SiteTuple{{0, 1}, {0, 3}, {0, 5}}, run.Sites)

	_, err = Select(a, []string{"i"}, chainLength)
	assert.ErrorIs(t, err, ErrInvalidFilterSyntax)
}
