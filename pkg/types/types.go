package types

import (
	"sort"
	"strconv"
	"strings"
)

// FieldSeparator joins fingerprint keys and values.
const FieldSeparator = ":"

// ObservableName is the ordered list of single-site operator labels of an
// estimator, e.g. {"S_z", "S_z"} for the token S_z_0*S_z_1.
type ObservableName []string

// NewObservableName copies ops into a new name.
func NewObservableName(ops ...string) ObservableName {
	return append(ObservableName(nil), ops...)
}

// String renders the name with '*' between operators, the way estimators are
// requested on the command line.
func (n ObservableName) String() string {
	return strings.Join(n, "*")
}

// Equal reports whether both names have the same operators in the same order.
func (n ObservableName) Equal(o ObservableName) bool {
	if len(n) != len(o) {
		return false
	}
	for i := range n {
		if n[i] != o[i] {
			return false
		}
	}
	return true
}

// SiteTuple holds the lattice sites each operator of an observable acts on.
type SiteTuple []int

// NewSiteTuple copies sites into a new tuple.
func NewSiteTuple(sites ...int) SiteTuple {
	return append(SiteTuple(nil), sites...)
}

// Equal reports whether both tuples hold the same sites in the same order.
func (s SiteTuple) Equal(o SiteTuple) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if s[i] != o[i] {
			return false
		}
	}
	return true
}

// Key returns a string usable as a map key.
func (s SiteTuple) Key() string {
	parts := make([]string, len(s))
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, FieldSeparator)
}

// Less orders tuples lexicographically.
func (s SiteTuple) Less(o SiteTuple) bool {
	for i := 0; i < len(s) && i < len(o); i++ {
		if s[i] != o[i] {
			return s[i] < o[i]
		}
	}
	return len(s) < len(o)
}

// Record is one stored estimator value.
type Record struct {
	Name        ObservableName
	Sites       SiteTuple
	Value       float64
	Fingerprint string
}

// DataLine is one parsed data line of an estimators file.
type DataLine struct {
	Line  int
	Token string
	Name  ObservableName
	Sites SiteTuple
	Value float64
}

// EstimatorFile is the parsed content of one estimators file.
type EstimatorFile struct {
	Path string
	Meta map[string]string
	Data []DataLine
}

// Fingerprint identifies the parameters of a run. Keys is common to every
// file of a store, Values is unique per parameter combination.
type Fingerprint struct {
	Keys   string
	Values string
}

// FingerprintOf builds the fingerprint of a metadata dictionary by sorting its
// keys and joining keys and values with FieldSeparator.
func FingerprintOf(meta map[string]string) Fingerprint {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = meta[k]
	}

	return Fingerprint{
		Keys:   strings.Join(keys, FieldSeparator),
		Values: strings.Join(values, FieldSeparator),
	}
}

// Records converts the data lines of the file into records under the file's
// fingerprint.
func (f *EstimatorFile) Records() ([]Record, Fingerprint) {
	fp := FingerprintOf(f.Meta)
	records := make([]Record, len(f.Data))
	for i, d := range f.Data {
		records[i] = Record{
			Name:        d.Name,
			Sites:       d.Sites,
			Value:       d.Value,
			Fingerprint: fp.Values,
		}
	}
	return records, fp
}

// Point is a single (x, y) sample.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// XYSeries is an ordered sequence of samples. It satisfies the XYer
// interface of gonum's plotter package.
type XYSeries []Point

// NewXYSeries pairs xs and ys. Both must have the same length.
func NewXYSeries(xs, ys []float64) XYSeries {
	s := make(XYSeries, len(xs))
	for i := range xs {
		s[i] = Point{X: xs[i], Y: ys[i]}
	}
	return s
}

// Len returns the number of samples.
func (s XYSeries) Len() int { return len(s) }

// XY returns the i-th sample.
func (s XYSeries) XY(i int) (float64, float64) { return s[i].X, s[i].Y }

// Ys returns a copy of the y values.
func (s XYSeries) Ys() []float64 {
	ys := make([]float64, len(s))
	for i, p := range s {
		ys[i] = p.Y
	}
	return ys
}

// NamedSeries is a set of per-run series for one quantity, keyed by
// fingerprint values.
type NamedSeries struct {
	Name            string              `json:"name"`
	FingerprintKeys string              `json:"fingerprint_keys"`
	Runs            map[string]XYSeries `json:"runs"`
}
