// Package analyze computes momentum-space quantities from two-point
// estimators.
package analyze

import (
	"iter"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"

	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

var (
	// ErrNotTwoPoint is returned when a Fourier transform is asked of an
	// estimator whose site tuples do not hold exactly two sites.
	ErrNotTwoPoint = errors.New("estimator is not a two-point correlator")

	// ErrInvalidChainLength is returned when a run's chain length is missing
	// or is not a positive integer.
	ErrInvalidChainLength = errors.New("invalid chain length")
)

// MomentumComponent returns 2 * sum_k v_k cos(q (a_k - b_k)) over the
// samples of run. The factor 2 counts each pair (a, b) and its mirror
// (b, a) once, so the values are expected to be symmetrized already.
func MomentumComponent(run *estimator.Run, q float64) (float64, error) {
	diffs, err := siteDifferences(run)
	if err != nil {
		return 0, err
	}
	return momentumComponent(diffs, run.Values, q), nil
}

func momentumComponent(diffs, values []float64, q float64) float64 {
	if len(values) == 0 {
		return 0
	}
	cos := make([]float64, len(diffs))
	for i, d := range diffs {
		cos[i] = math.Cos(q * d)
	}
	return 2 * floats.Dot(values, cos)
}

func siteDifferences(run *estimator.Run) ([]float64, error) {
	diffs := make([]float64, len(run.Sites))
	for i, s := range run.Sites {
		if len(s) != 2 {
			return nil, errors.Wrapf(ErrNotTwoPoint, "run %q has a %d-site sample", run.Fingerprint, len(s))
		}
		diffs[i] = float64(s[0] - s[1])
	}
	return diffs, nil
}

// AllowedMomenta yields 2*pi*m/chainLength for m = 0 .. chainLength-1.
func AllowedMomenta(chainLength int) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for m := 0; m < chainLength; m++ {
			if !yield(2 * math.Pi * float64(m) / float64(chainLength)) {
				return
			}
		}
	}
}

// Transform pairs every allowed momentum q with
// MomentumComponent(run, q) / chainLength.
func Transform(run *estimator.Run, chainLength int) (types.XYSeries, error) {
	if chainLength <= 0 {
		return nil, errors.Wrapf(ErrInvalidChainLength, "%d", chainLength)
	}
	diffs, err := siteDifferences(run)
	if err != nil {
		return nil, err
	}

	series := make(types.XYSeries, 0, chainLength)
	for q := range AllowedMomenta(chainLength) {
		y := momentumComponent(diffs, run.Values, q) / float64(chainLength)
		series = append(series, types.Point{X: q, Y: y})
	}
	return series, nil
}

// ChainLengthResolver decides the chain length of each run.
type ChainLengthResolver interface {
	ChainLength(a *estimator.Aggregate, fp string) (int, error)
}

// MetadataChainLength reads the chain length from the run metadata.
type MetadataChainLength struct {
	Key string
}

// ChainLength implements ChainLengthResolver.
func (r MetadataChainLength) ChainLength(a *estimator.Aggregate, fp string) (int, error) {
	meta, err := a.MetadataFor(fp)
	if err != nil {
		return 0, err
	}
	raw, ok := meta[r.Key]
	if !ok {
		return 0, errors.Wrapf(ErrInvalidChainLength, "run %q has no metadata key %q", fp, r.Key)
	}
	return parseLength(raw)
}

// parseLength accepts "96" as well as "96.0", which is how some drivers
// write integer parameters.
func parseLength(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, errors.Wrapf(ErrInvalidChainLength, "%q", raw)
	}
	return int(f), nil
}

// InferredChainLength uses the span of the measured sites of each run.
type InferredChainLength struct{}

// ChainLength implements ChainLengthResolver.
func (InferredChainLength) ChainLength(a *estimator.Aggregate, fp string) (int, error) {
	return a.InferChainLength(fp)
}

// ResolverFor reads the chain length from key when the store schema has it
// and infers it from the sites otherwise.
func ResolverFor(key, fingerprintKeys string) ChainLengthResolver {
	if key != "" {
		for _, k := range strings.Split(fingerprintKeys, types.FieldSeparator) {
			if k == key {
				return MetadataChainLength{Key: key}
			}
		}
	}
	return InferredChainLength{}
}

// TransformAll transforms every run of a.
func TransformAll(a *estimator.Aggregate, resolver ChainLengthResolver) (map[string]types.XYSeries, error) {
	out := make(map[string]types.XYSeries, a.Len())
	for _, fp := range a.Runs() {
		run, _ := a.Run(fp)
		l, err := resolver.ChainLength(a, fp)
		if err != nil {
			return nil, errors.Wrapf(err, "chain length of run %q", fp)
		}
		series, err := Transform(run, l)
		if err != nil {
			return nil, errors.Wrapf(err, "transform run %q", fp)
		}
		out[fp] = series
	}
	return out, nil
}

// TransformPeriodic computes S(q) = sum_d C(d) cos(q d) for a
// translation-invariant correlator on a ring of chainLength sites, where
// C(d) is the value of the pair at distance d = |a - b| (mod chainLength).
// Distances that were not measured count as zero; when a distance appears
// more than once the last sample wins. The sum is evaluated with an FFT.
func TransformPeriodic(run *estimator.Run, chainLength int) (types.XYSeries, error) {
	if chainLength <= 0 {
		return nil, errors.Wrapf(ErrInvalidChainLength, "%d", chainLength)
	}
	diffs, err := siteDifferences(run)
	if err != nil {
		return nil, err
	}

	c := make([]float64, chainLength)
	for i, d := range diffs {
		k := int(math.Abs(d)) % chainLength
		c[k] = run.Values[i]
	}
	return PeriodicSpectrum(c), nil
}

// PeriodicSpectrum returns the real part of the discrete Fourier transform
// of c at every allowed momentum of a ring of len(c) sites.
func PeriodicSpectrum(c []float64) types.XYSeries {
	n := len(c)
	if n == 0 {
		return nil
	}
	coeff := fourier.NewFFT(n).Coefficients(nil, c)

	series := make(types.XYSeries, 0, n)
	m := 0
	for q := range AllowedMomenta(n) {
		// Real input: coefficient m and n-m are conjugate.
		k := m
		if k > n/2 {
			k = n - m
		}
		series = append(series, types.Point{X: q, Y: real(coeff[k])})
		m++
	}
	return series
}
