package analyze

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Dispersion is a single-particle band energy as a function of momentum.
type Dispersion func(k float64) float64

// TwoBandDispersion returns e(k) = -2 cos k - 2 t' cos 2k, the band of a
// chain with nearest and next-nearest neighbour hopping.
func TwoBandDispersion(tp float64) Dispersion {
	return func(k float64) float64 {
		return -2*math.Cos(k) - 2*tp*math.Cos(2*k)
	}
}

// TwoBandTop returns the momentum in [0, pi] where TwoBandDispersion(tp)
// is largest. For 4t' > 1 the band top moves inside the interval, to
// cos k = -1/(4t').
func TwoBandTop(tp float64) float64 {
	if 4*tp > 1 {
		return math.Acos(-1 / (4 * tp))
	}
	return math.Pi
}

func occupied(e Dispersion, k, mu float64) float64 {
	if e(k) > mu {
		return 0
	}
	return 1
}

func momenta(chainLength int) []float64 {
	ks := make([]float64, chainLength)
	for m := range ks {
		ks[m] = 2 * math.Pi * float64(m) / float64(chainLength)
	}
	return ks
}

// ElectronCount counts the spinful free fermions below mu on a ring of
// chainLength sites.
func ElectronCount(mu float64, e Dispersion, chainLength int) float64 {
	var n float64
	for _, k := range momenta(chainLength) {
		n += occupied(e, k, mu)
	}
	return 2 * n
}

// HalfFillingChemicalPotential scans 100 chemical potentials between
// e(kMin) and e(kMax) and returns the first one that holds more than
// chainLength-1 electrons.
func HalfFillingChemicalPotential(e Dispersion, kMin, kMax float64, chainLength int) (float64, error) {
	mus := floats.Span(make([]float64, 100), e(kMin), e(kMax))
	for _, mu := range mus {
		if ElectronCount(mu, e, chainLength) > float64(chainLength-1) {
			return mu, nil
		}
	}
	return 0, errors.Errorf("no chemical potential in [%g, %g] reaches half filling", e(kMin), e(kMax))
}

// FermiMomenta returns the allowed momenta after which the occupation
// changes.
func FermiMomenta(mu float64, e Dispersion, chainLength int) []float64 {
	ks := momenta(chainLength)
	var out []float64
	for i := 0; i+1 < len(ks); i++ {
		if occupied(e, ks[i], mu) != occupied(e, ks[i+1], mu) {
			out = append(out, ks[i])
		}
	}
	return out
}

// HalfFillingFermiMomenta combines HalfFillingChemicalPotential and
// FermiMomenta.
func HalfFillingFermiMomenta(e Dispersion, kMin, kMax float64, chainLength int) ([]float64, error) {
	mu, err := HalfFillingChemicalPotential(e, kMin, kMax, chainLength)
	if err != nil {
		return nil, err
	}
	return FermiMomenta(mu, e, chainLength), nil
}
