package estimator

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/iglpdc/dmrg-helpers/pkg/types"
)

// Querier is the part of the record store an Aggregate needs.
type Querier interface {
	// Query returns every record stored under name.
	Query(ctx context.Context, name types.ObservableName) ([]types.Record, error)

	// FingerprintKeys returns the fingerprint keys shared by all inserted files.
	FingerprintKeys() string
}

// Run holds the samples of one observable for one parameter set. Sites and
// Values are parallel.
type Run struct {
	Fingerprint string
	Sites       []types.SiteTuple
	Values      []float64
}

// Len returns the number of samples.
func (r *Run) Len() int { return len(r.Values) }

func (r *Run) clone() *Run {
	c := &Run{
		Fingerprint: r.Fingerprint,
		Sites:       make([]types.SiteTuple, len(r.Sites)),
		Values:      append([]float64(nil), r.Values...),
	}
	for i, s := range r.Sites {
		c.Sites[i] = types.NewSiteTuple(s...)
	}
	return c
}

// Aggregate groups the records of one observable by run. It is read-only once
// built; Derive and Combine return new aggregates.
type Aggregate struct {
	name            types.ObservableName
	fingerprintKeys string
	runs            map[string]*Run
}

// Build queries q for name and groups the result by fingerprint values,
// keeping the query order inside each run.
func Build(ctx context.Context, q Querier, name types.ObservableName) (*Aggregate, error) {
	records, err := q.Query(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s", name)
	}

	a := &Aggregate{
		name:            types.NewObservableName(name...),
		fingerprintKeys: q.FingerprintKeys(),
		runs:            make(map[string]*Run),
	}
	for _, rec := range records {
		run, ok := a.runs[rec.Fingerprint]
		if !ok {
			run = &Run{Fingerprint: rec.Fingerprint}
			a.runs[rec.Fingerprint] = run
		}
		run.Sites = append(run.Sites, rec.Sites)
		run.Values = append(run.Values, rec.Value)
	}

	return a, nil
}

// Query builds the aggregate for a '*'-separated operator list such as
// "S_z*S_z".
func Query(ctx context.Context, q Querier, operators string) (*Aggregate, error) {
	return Build(ctx, q, ParseOperators(operators))
}

// Name returns the observable name.
func (a *Aggregate) Name() types.ObservableName { return a.name }

// FingerprintKeys returns the fingerprint keys of the store the aggregate
// was built from.
func (a *Aggregate) FingerprintKeys() string { return a.fingerprintKeys }

// Len returns the number of runs.
func (a *Aggregate) Len() int { return len(a.runs) }

// Runs returns the fingerprint values of every run, sorted.
func (a *Aggregate) Runs() []string {
	fps := make([]string, 0, len(a.runs))
	for fp := range a.runs {
		fps = append(fps, fp)
	}
	sort.Strings(fps)
	return fps
}

// Run returns the samples of one run.
func (a *Aggregate) Run(fp string) (*Run, bool) {
	r, ok := a.runs[fp]
	return r, ok
}

// MetadataFor zips the fingerprint keys with fp. A store without metadata
// has empty keys and empty values and yields an empty map.
func (a *Aggregate) MetadataFor(fp string) (map[string]string, error) {
	return Metadata(a.fingerprintKeys, fp)
}

// Metadata zips colon-joined keys and values into a map.
func Metadata(keys, values string) (map[string]string, error) {
	if keys == "" && values == "" {
		return map[string]string{}, nil
	}

	k := strings.Split(keys, types.FieldSeparator)
	v := strings.Split(values, types.FieldSeparator)
	if len(k) != len(v) {
		return nil, errors.Wrapf(ErrMetadataArityMismatch, "%d keys for %d values", len(k), len(v))
	}

	meta := make(map[string]string, len(k))
	for i := range k {
		meta[k[i]] = v[i]
	}
	return meta, nil
}

// Transform computes the new values of one run. It must return as many
// values as it receives.
type Transform func(fp string, sites []types.SiteTuple, values []float64) ([]float64, error)

// Derive applies t to every run and returns the result as a new aggregate
// called name. Sites are kept as they are.
func (a *Aggregate) Derive(name types.ObservableName, t Transform) (*Aggregate, error) {
	out := a.empty(name)
	for fp, run := range a.runs {
		c := run.clone()
		values, err := t(fp, c.Sites, c.Values)
		if err != nil {
			return nil, errors.Wrapf(err, "derive run %q", fp)
		}
		if len(values) != len(c.Values) {
			return nil, errors.Wrapf(ErrLengthMismatch, "run %q: %d values for %d sites", fp, len(values), len(c.Sites))
		}
		c.Values = values
		out.runs[fp] = c
	}
	return out, nil
}

// Scale multiplies every value by c.
func (a *Aggregate) Scale(c float64) *Aggregate {
	out, _ := a.Derive(a.name, func(_ string, _ []types.SiteTuple, values []float64) ([]float64, error) {
		for i := range values {
			values[i] *= c
		}
		return values, nil
	})
	return out
}

// Combine pairs a and b run by run and site tuple by site tuple and applies
// f to each pair. Runs and tuples present in only one side are dropped.
func (a *Aggregate) Combine(b *Aggregate, name types.ObservableName, f func(x, y float64) float64) *Aggregate {
	out := a.empty(name)
	for fp, ra := range a.runs {
		rb, ok := b.runs[fp]
		if !ok {
			continue
		}
		index := make(map[string]float64, len(rb.Sites))
		for i, s := range rb.Sites {
			index[s.Key()] = rb.Values[i]
		}

		run := &Run{Fingerprint: fp}
		for i, s := range ra.Sites {
			y, ok := index[s.Key()]
			if !ok {
				continue
			}
			run.Sites = append(run.Sites, types.NewSiteTuple(s...))
			run.Values = append(run.Values, f(ra.Values[i], y))
		}
		if run.Len() > 0 {
			out.runs[fp] = run
		}
	}
	return out
}

// Add sums a and b sample by sample.
func (a *Aggregate) Add(b *Aggregate, name types.ObservableName) *Aggregate {
	return a.Combine(b, name, func(x, y float64) float64 { return x + y })
}

// Filter keeps the samples for which keep returns true. Runs left empty are
// dropped.
func (a *Aggregate) Filter(keep func(fp string, sites types.SiteTuple) (bool, error)) (*Aggregate, error) {
	out := a.empty(a.name)
	for fp, ra := range a.runs {
		run := &Run{Fingerprint: fp}
		for i, s := range ra.Sites {
			ok, err := keep(fp, s)
			if err != nil {
				return nil, errors.Wrapf(err, "filter run %q", fp)
			}
			if ok {
				run.Sites = append(run.Sites, types.NewSiteTuple(s...))
				run.Values = append(run.Values, ra.Values[i])
			}
		}
		if run.Len() > 0 {
			out.runs[fp] = run
		}
	}
	return out, nil
}

// InferChainLength estimates the chain length of a run as the span of the
// sites it was measured on. The estimate is short when boundary sites were
// not measured; pass the length in the metadata when it must be exact.
func (a *Aggregate) InferChainLength(fp string) (int, error) {
	run, ok := a.runs[fp]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownRun, "%q", fp)
	}
	return InferChainLength(run)
}

// InferChainLength returns max(site) - min(site) + 1 over every site of run.
func InferChainLength(run *Run) (int, error) {
	first := true
	var lo, hi int
	for _, s := range run.Sites {
		for _, site := range s {
			if first {
				lo, hi = site, site
				first = false
				continue
			}
			lo = min(lo, site)
			hi = max(hi, site)
		}
	}
	if first {
		return 0, errors.Wrapf(ErrEmptyRun, "run %q", run.Fingerprint)
	}
	return hi - lo + 1, nil
}

// XY returns a single-site run as (site, value) samples sorted by site.
func (a *Aggregate) XY(fp string) (types.XYSeries, error) {
	if len(a.name) != 1 {
		return nil, errors.Wrapf(ErrNotSingleSite, "%s", a.name)
	}
	run, ok := a.runs[fp]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownRun, "%q", fp)
	}

	series := make(types.XYSeries, run.Len())
	for i := range run.Values {
		series[i] = types.Point{X: float64(run.Sites[i][0]), Y: run.Values[i]}
	}
	sort.SliceStable(series, func(i, j int) bool { return series[i].X < series[j].X })
	return series, nil
}

func (a *Aggregate) empty(name types.ObservableName) *Aggregate {
	return &Aggregate{
		name:            types.NewObservableName(name...),
		fingerprintKeys: a.fingerprintKeys,
		runs:            make(map[string]*Run, len(a.runs)),
	}
}
