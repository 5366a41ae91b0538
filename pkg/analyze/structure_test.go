package analyze

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spinRecords(withPM, withMP bool) *recordQuerier {
	q := &recordQuerier{keys: "L"}
	for _, fp := range []string{"3", "4"} {
		q.add(fp, []string{"S_z", "S_z"}, []int{0, 1}, -0.1)
		q.add(fp, []string{"S_z", "S_z"}, []int{0, 2}, 0.05)
		if withPM {
			q.add(fp, []string{"S_p", "S_m"}, []int{0, 1}, -0.4)
			q.add(fp, []string{"S_p", "S_m"}, []int{0, 2}, 0.2)
		}
		if withMP {
			q.add(fp, []string{"S_m", "S_p"}, []int{0, 1}, -0.2)
			q.add(fp, []string{"S_m", "S_p"}, []int{0, 2}, 0.1)
		}
	}
	return q
}

func TestSpinCorrelator(t *testing.T) {
	ctx := context.Background()
	ops := DefaultSpinOperators()

	tests := []struct {
		name   string
		pm, mp bool
		want   []float64
	}{
		{"full", true, true, []float64{-0.1 + 0.5*(-0.4-0.2), 0.05 + 0.5*(0.2+0.1)}},
		{"only S+S-", true, false, []float64{-0.1 - 0.4, 0.05 + 0.2}},
		{"only S-S+", false, true, []float64{-0.1 - 0.2, 0.05 + 0.1}},
		{"longitudinal", false, false, []float64{-0.1, 0.05}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corr, err := SpinCorrelator(ctx, spinRecords(tt.pm, tt.mp), ops, nil)
			require.NoError(t, err)
			assert.Equal(t, []string{"3", "4"}, corr.Runs())

			run, ok := corr.Run("3")
			require.True(t, ok)
			require.Equal(t, 2, run.Len())
			assert.InDeltaSlice(t, tt.want, run.Values, 1e-12)
		})
	}
}

func densityRecords() *recordQuerier {
	q := &recordQuerier{keys: "L"}
	q.add("2", []string{"n_up"}, []int{0}, 0.5)
	q.add("2", []string{"n_up"}, []int{1}, 0.4)
	q.add("2", []string{"n_down"}, []int{0}, 0.5)
	q.add("2", []string{"n_down"}, []int{1}, 0.6)
	q.add("2", []string{"n_up", "n_up"}, []int{0, 1}, 0.3)
	q.add("2", []string{"n_up", "n_down"}, []int{0, 1}, 0.25)
	q.add("2", []string{"n_down", "n_up"}, []int{0, 1}, 0.25)
	q.add("2", []string{"n_down", "n_down"}, []int{0, 1}, 0.3)
	return q
}

func TestDensityCorrelator(t *testing.T) {
	ctx := context.Background()
	ops := DefaultDensityOperators()

	n, err := Density(ctx, densityRecords(), ops)
	require.NoError(t, err)
	density, _ := n.Run("2")
	assert.InDeltaSlice(t, []float64{1.0, 1.0}, density.Values, 1e-12)
	assert.InDelta(t, 1.0, MeanDensity(n)["2"], 1e-12)

	corr, err := DensityCorrelator(ctx, densityRecords(), ops)
	require.NoError(t, err)
	run, ok := corr.Run("2")
	require.True(t, ok)
	require.Equal(t, 1, run.Len())
	// 0.3 + 0.25 + 0.25 + 0.3 - 1.0 * 1.0
	assert.InDelta(t, 0.1, run.Values[0], 1e-12)
}

func TestDensitySpecies(t *testing.T) {
	ctx := context.Background()
	ops := DefaultDensityOperators()

	q := &recordQuerier{keys: "L"}
	q.add("2", []string{"n_up"}, []int{0}, 0.5)
	q.add("2", []string{"n_down"}, []int{0}, 0.25)
	q.add("3", []string{"n_up"}, []int{0}, 0.5)

	n, err := Density(ctx, q, ops)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, n.Runs())
	assert.InDelta(t, 0.75, MeanDensity(n)["2"], 1e-12)

	upOnly := &recordQuerier{keys: "L"}
	upOnly.add("3", []string{"n_up"}, []int{0}, 0.5)
	n, err = Density(ctx, upOnly, ops)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, n.Runs())
	assert.InDelta(t, 0.5, MeanDensity(n)["3"], 1e-12)
}

func TestDensityCorrelatorMissingSite(t *testing.T) {
	q := densityRecords()
	q.add("2", []string{"n_up", "n_up"}, []int{0, 5}, 0.1)
	q.add("2", []string{"n_down", "n_down"}, []int{0, 5}, 0.1)
	q.add("2", []string{"n_up", "n_down"}, []int{0, 5}, 0.1)
	q.add("2", []string{"n_down", "n_up"}, []int{0, 5}, 0.1)

	_, err := DensityCorrelator(context.Background(), q, DefaultDensityOperators())
	assert.ErrorIs(t, err, ErrMissingSite)
}

func TestDensityCorrelatorNoData(t *testing.T) {
	_, err := DensityCorrelator(context.Background(), &recordQuerier{}, DefaultDensityOperators())
	assert.ErrorIs(t, err, ErrNoEstimators)
}

func TestStructureFactors(t *testing.T) {
	ctx := context.Background()

	sf, err := SpinStructureFactor(ctx, spinRecords(true, true), DefaultSpinOperators(), MetadataChainLength{Key: "L"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "spin_structure_factor", sf.Name)
	require.Len(t, sf.Series, 2)
	assert.Equal(t, 3, sf.Series["3"].Len())
	assert.Equal(t, 4, sf.Series["4"].Len())

	// q = 0 is 2 * sum / L.
	want := 2 * ((-0.1 + 0.5*(-0.6)) + (0.05 + 0.5*0.3)) / 4
	assert.InDelta(t, want, sf.Series["4"][0].Y, 1e-12)

	named := sf.Named()
	assert.Equal(t, "L", named.FingerprintKeys)
	assert.Equal(t, sf.Series, named.Runs)

	cf, err := DensityStructureFactor(ctx, densityRecords(), DefaultDensityOperators(), InferredChainLength{})
	require.NoError(t, err)
	assert.Equal(t, "charge_structure_factor", cf.Name)
	require.Equal(t, 2, cf.Series["2"].Len())
	assert.InDelta(t, 2*0.1/2, cf.Series["2"][0].Y, 1e-12)
	assert.InDelta(t, math.Pi, cf.Series["2"][1].X, 1e-12)
	assert.InDelta(t, 2*0.1*math.Cos(-math.Pi)/2, cf.Series["2"][1].Y, 1e-12)
}

func TestFermiMomenta(t *testing.T) {
	e := TwoBandDispersion(0)
	assert.InDelta(t, -2.0, e(0), 1e-12)
	assert.InDelta(t, 2.0, e(math.Pi), 1e-12)

	assert.Equal(t, 0.0, ElectronCount(-3, e, 8))
	assert.Equal(t, 16.0, ElectronCount(3, e, 8))

	mu, err := HalfFillingChemicalPotential(e, 0, math.Pi, 8)
	require.NoError(t, err)
	assert.Greater(t, mu, 0.0)
	assert.Less(t, mu, 0.05)

	kf, err := HalfFillingFermiMomenta(e, 0, math.Pi, 8)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{math.Pi / 2, 5 * math.Pi / 4}, kf, 1e-12)

	// Two Fermi seas for a strong next-nearest hopping.
	assert.Len(t, FermiMomenta(0.5, TwoBandDispersion(1), 16), 4)

	_, err = HalfFillingChemicalPotential(e, 0, 0, 8)
	assert.Error(t, err)
}

func TestFermiMomentaBandTopInside(t *testing.T) {
	assert.Equal(t, math.Pi, TwoBandTop(0))
	assert.Equal(t, math.Pi, TwoBandTop(0.25))

	e := TwoBandDispersion(0.75)
	top := TwoBandTop(0.75)
	assert.InDelta(t, math.Acos(-1.0/3), top, 1e-12)
	assert.Greater(t, e(top), e(math.Pi))

	// e(pi) lies below half filling, so pi is not a usable bound.
	_, err := HalfFillingFermiMomenta(e, 0, math.Pi, 96)
	assert.Error(t, err)

	kf, err := HalfFillingFermiMomenta(e, 0, top, 96)
	require.NoError(t, err)
	want := []float64{19, 43, 52, 76}
	for i := range want {
		want[i] *= 2 * math.Pi / 96
	}
	assert.InDeltaSlice(t, want, kf, 1e-12)
}
