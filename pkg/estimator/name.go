// Package estimator reads DMRG estimator files and groups stored estimator
// values into per-run series.
package estimator

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

const (
	operatorSeparator = "*"
	siteSeparator     = "_"
)

// ParseName splits a raw estimator token such as "S_z_0*S_z_1" into its
// operator labels and sites.
func ParseName(raw string) (types.ObservableName, types.SiteTuple, error) {
	operators := strings.Split(raw, operatorSeparator)
	name := make(types.ObservableName, 0, len(operators))
	sites := make(types.SiteTuple, 0, len(operators))

	for _, op := range operators {
		label, site, err := splitOperator(op)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "parse %q", raw)
		}
		name = append(name, label)
		sites = append(sites, site)
	}

	return name, sites, nil
}

// splitOperator splits a single-site operator on its last underscore.
func splitOperator(op string) (string, int, error) {
	i := strings.LastIndex(op, siteSeparator)
	if i < 0 {
		return "", 0, errors.Wrapf(ErrMalformedOperatorName, "%q has no site suffix", op)
	}
	label, suffix := op[:i], op[i+1:]
	if label == "" {
		return "", 0, errors.Wrapf(ErrMalformedOperatorName, "%q has an empty label", op)
	}
	// Store keys join labels with the same separator.
	if strings.Contains(label, types.FieldSeparator) {
		return "", 0, errors.Wrapf(ErrMalformedOperatorName, "%q contains %q", op, types.FieldSeparator)
	}

	// ParseUint rejects signs, so "-1" and "+1" fail here.
	site, err := strconv.ParseUint(suffix, 10, 31)
	if err != nil {
		return "", 0, errors.Wrapf(ErrInvalidSiteIndex, "%q", suffix)
	}

	return label, int(site), nil
}

// EncodeName is the inverse of ParseName. name and sites must have the same
// length.
func EncodeName(name types.ObservableName, sites types.SiteTuple) (string, error) {
	if len(name) != len(sites) {
		return "", errors.Wrapf(ErrMalformedOperatorName,
			"%d operators for %d sites", len(name), len(sites))
	}

	parts := make([]string, len(name))
	for i := range name {
		parts[i] = name[i] + siteSeparator + strconv.Itoa(sites[i])
	}
	return strings.Join(parts, operatorSeparator), nil
}

// ParseOperators parses a query string like "S_z*S_z" into an observable
// name. No site suffixes are expected.
func ParseOperators(query string) types.ObservableName {
	return types.NewObservableName(strings.Split(query, operatorSeparator)...)
}
