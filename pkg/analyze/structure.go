package analyze

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

var (
	// ErrMissingSite is returned when a one-point estimator lacks a site that
	// a two-point estimator needs.
	ErrMissingSite = errors.New("one-point estimator missing site")

	// ErrNoEstimators is returned when none of the estimators a correlator is
	// built from were stored.
	ErrNoEstimators = errors.New("no estimators stored")
)

// SpinOperators names the single-site spin operators in the estimator files.
type SpinOperators struct {
	Sz     string `yaml:"sz"`
	Splus  string `yaml:"splus"`
	Sminus string `yaml:"sminus"`
}

// DensityOperators names the spin-resolved number operators.
type DensityOperators struct {
	Up   string `yaml:"up"`
	Down string `yaml:"down"`
}

// DefaultSpinOperators returns the operator names the DMRG code writes.
func DefaultSpinOperators() SpinOperators {
	return SpinOperators{Sz: "S_z", Splus: "S_p", Sminus: "S_m"}
}

// DefaultDensityOperators returns the operator names the DMRG code writes.
func DefaultDensityOperators() DensityOperators {
	return DensityOperators{Up: "n_up", Down: "n_down"}
}

// StructureFactor is a correlator together with its transform per run.
type StructureFactor struct {
	Name       string
	Correlator *estimator.Aggregate
	Series     map[string]types.XYSeries
}

// Named returns the series ready to be archived or saved.
func (s *StructureFactor) Named() types.NamedSeries {
	return types.NamedSeries{
		Name:            s.Name,
		FingerprintKeys: s.Correlator.FingerprintKeys(),
		Runs:            s.Series,
	}
}

// SpinCorrelator builds <S_i . S_j> = Sz*Sz + (S+*S- + S-*S+)/2. When no
// S+S- or S-S+ estimators were measured only the Sz*Sz part is used.
func SpinCorrelator(ctx context.Context, q estimator.Querier, ops SpinOperators, logger *slog.Logger) (*estimator.Aggregate, error) {
	if logger == nil {
		logger = slog.Default()
	}
	zz, err := estimator.Build(ctx, q, types.NewObservableName(ops.Sz, ops.Sz))
	if err != nil {
		return nil, err
	}
	pm, err := estimator.Build(ctx, q, types.NewObservableName(ops.Splus, ops.Sminus))
	if err != nil {
		return nil, err
	}
	mp, err := estimator.Build(ctx, q, types.NewObservableName(ops.Sminus, ops.Splus))
	if err != nil {
		return nil, err
	}

	name := types.NewObservableName("S", "S")
	switch {
	case pm.Len() > 0 && mp.Len() > 0:
		transverse := pm.Add(mp, name).Scale(0.5)
		return zz.Add(transverse, name), nil
	case pm.Len() > 0:
		logger.Warn("no S-S+ estimators, using S+S- twice", "operator", mp.Name().String())
		return zz.Add(pm, name), nil
	case mp.Len() > 0:
		logger.Warn("no S+S- estimators, using S-S+ twice", "operator", pm.Name().String())
		return zz.Add(mp, name), nil
	default:
		logger.Warn("no transverse spin estimators, using the longitudinal part only")
		return zz.Derive(name, func(_ string, _ []types.SiteTuple, v []float64) ([]float64, error) {
			return v, nil
		})
	}
}

// DensityCorrelator builds <n_i n_j> - <n_i><n_j> with n = n_up + n_down.
func DensityCorrelator(ctx context.Context, q estimator.Querier, ops DensityOperators) (*estimator.Aggregate, error) {
	name := types.NewObservableName("n", "n")

	var nn *estimator.Aggregate
	for _, pair := range [][2]string{
		{ops.Up, ops.Up}, {ops.Up, ops.Down}, {ops.Down, ops.Up}, {ops.Down, ops.Down},
	} {
		a, err := estimator.Build(ctx, q, types.NewObservableName(pair[0], pair[1]))
		if err != nil {
			return nil, err
		}
		if a.Len() == 0 {
			continue
		}
		if nn == nil {
			nn = a
			continue
		}
		nn = nn.Add(a, name)
	}
	if nn == nil {
		return nil, errors.Wrapf(ErrNoEstimators, "two-point density estimators for %s, %s", ops.Up, ops.Down)
	}

	n, err := Density(ctx, q, ops)
	if err != nil {
		return nil, err
	}

	return nn.Derive(name, func(fp string, sites []types.SiteTuple, values []float64) ([]float64, error) {
		run, ok := n.Run(fp)
		if !ok {
			return nil, errors.Wrapf(ErrMissingSite, "no densities for run %q", fp)
		}
		density := make(map[int]float64, run.Len())
		for i, s := range run.Sites {
			density[s[0]] = run.Values[i]
		}
		for i, s := range sites {
			na, okA := density[s[0]]
			nb, okB := density[s[1]]
			if !okA || !okB {
				return nil, errors.Wrapf(ErrMissingSite, "run %q pair %v", fp, s)
			}
			values[i] -= na * nb
		}
		return values, nil
	})
}

// Density returns n_i = n_up,i + n_down,i. When the store holds only one
// spin species, that species alone is the density. Otherwise a run missing
// either species is left out.
func Density(ctx context.Context, q estimator.Querier, ops DensityOperators) (*estimator.Aggregate, error) {
	up, err := estimator.Build(ctx, q, types.NewObservableName(ops.Up))
	if err != nil {
		return nil, err
	}
	down, err := estimator.Build(ctx, q, types.NewObservableName(ops.Down))
	if err != nil {
		return nil, err
	}
	name := types.NewObservableName("n")
	switch {
	case up.Len() > 0 && down.Len() > 0:
		return up.Add(down, name), nil
	case up.Len() > 0:
		return up, nil
	default:
		return down, nil
	}
}

// MeanDensity returns the average density of every run.
func MeanDensity(n *estimator.Aggregate) map[string]float64 {
	out := make(map[string]float64, n.Len())
	for _, fp := range n.Runs() {
		run, _ := n.Run(fp)
		out[fp] = stat.Mean(run.Values, nil)
	}
	return out
}

// SpinStructureFactor transforms the spin correlator of every run.
func SpinStructureFactor(ctx context.Context, q estimator.Querier, ops SpinOperators, resolver ChainLengthResolver, logger *slog.Logger) (*StructureFactor, error) {
	corr, err := SpinCorrelator(ctx, q, ops, logger)
	if err != nil {
		return nil, errors.Wrap(err, "spin correlator")
	}
	return structureFactor("spin_structure_factor", corr, resolver)
}

// DensityStructureFactor transforms the density fluctuation correlator of
// every run.
func DensityStructureFactor(ctx context.Context, q estimator.Querier, ops DensityOperators, resolver ChainLengthResolver) (*StructureFactor, error) {
	corr, err := DensityCorrelator(ctx, q, ops)
	if err != nil {
		return nil, errors.Wrap(err, "density correlator")
	}
	return structureFactor("charge_structure_factor", corr, resolver)
}

func structureFactor(name string, corr *estimator.Aggregate, resolver ChainLengthResolver) (*StructureFactor, error) {
	series, err := TransformAll(corr, resolver)
	if err != nil {
		return nil, errors.Wrap(err, name)
	}
	return &StructureFactor{Name: name, Correlator: corr, Series: series}, nil
}
