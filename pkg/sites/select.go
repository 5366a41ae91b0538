package sites

import (
	"github.com/pkg/errors"

	"github.com/iglpdc/dmrg-helpers/pkg/estimator"
	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// ChainLengthFunc returns the chain length of a run.
type ChainLengthFunc func(fp string) (int, error)

// Select keeps, in every run of a, the samples whose site tuple is produced
// by GenerateIndexes(exprs, L) for that run's chain length L. It is how
// sublattice correlators such as "S_z_i*S_z_i+1" are picked out of the full
// set of measured pairs.
func Select(a *estimator.Aggregate, exprs []string, chainLength ChainLengthFunc) (*estimator.Aggregate, error) {
	if len(exprs) != len(a.Name()) {
		return nil, errors.Wrapf(ErrInvalidFilterSyntax,
			"%d site expressions for %d operators", len(exprs), len(a.Name()))
	}

	wanted := make(map[string]map[string]bool)
	return a.Filter(func(fp string, s types.SiteTuple) (bool, error) {
		set, ok := wanted[fp]
		if !ok {
			l, err := chainLength(fp)
			if err != nil {
				return false, err
			}
			seq, err := GenerateIndexes(exprs, l)
			if err != nil {
				return false, err
			}
			set = make(map[string]bool)
			for t := range seq {
				set[t.Key()] = true
			}
			wanted[fp] = set
		}
		return set[s.Key()], nil
	})
}
