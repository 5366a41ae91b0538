// Package declutter picks which curves of a crowded plot to keep so that
// the labelled curves stay apart.
//
// Each Group is one view of the same curves: the value of every curve at a
// sample point, and the plot height used to turn differences into fractions
// of the plot. Curves are removed one at a time from every group at once, so
// all groups always show the same curves.
package declutter

import (
	"log/slog"
	"math"
	"sort"

	"github.com/pkg/errors"
)

var (
	// ErrNoFeasibleSelection is returned when the two closest curves are both
	// protected.
	ErrNoFeasibleSelection = errors.New("no feasible selection: closest curves are both protected")

	// ErrLabelMismatch is returned when groups do not share the same labels.
	ErrLabelMismatch = errors.New("groups have different labels")

	// ErrInvalidHeight is returned for a group with a non-positive height.
	ErrInvalidHeight = errors.New("group height must be positive")
)

// Group is the value of every curve at one sample point, and the height of
// the plot the curves are drawn in.
type Group struct {
	Values map[string]float64
	Height float64
}

// TieBreak decides which of the two closest curves is removed when neither
// is protected. Both candidates share the smallest gap, so their second
// smallest gap over all groups is compared.
type TieBreak int

const (
	// RemoveTighter removes the candidate whose second smallest gap is
	// smaller, i.e. the one that is also crowded elsewhere.
	RemoveTighter TieBreak = iota
	// RemoveLooser removes the candidate whose second smallest gap is larger.
	RemoveLooser
)

// String returns the name ParseTieBreak accepts.
func (t TieBreak) String() string {
	if t == RemoveLooser {
		return "looser"
	}
	return "tighter"
}

// ParseTieBreak reads "tighter" or "looser". An empty string is the default.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "", "tighter":
		return RemoveTighter, nil
	case "looser":
		return RemoveLooser, nil
	}
	return RemoveTighter, errors.Errorf("unknown tie-break %q", s)
}

// Option configures Select.
type Option func(*selector)

// WithTieBreak sets the tie-break rule. The default is RemoveTighter.
func WithTieBreak(t TieBreak) Option {
	return func(s *selector) { s.tieBreak = t }
}

// WithLogger logs every removed label at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(s *selector) { s.logger = l }
}

// group keeps the surviving labels of one Group in increasing value order,
// with gaps[i] the scaled distance between order[i] and order[i+1].
type group struct {
	order []string
	gaps  []float64
}

type selector struct {
	groups    []*group
	protected map[string]bool
	tieBreak  TieBreak
	logger    *slog.Logger
}

// Select removes curves until every scaled gap in every group is at least
// minSeparation, or until only the protected labels are left. It returns the
// surviving labels, sorted.
func Select(groups []Group, minSeparation float64, protected []string, opts ...Option) ([]string, error) {
	s := &selector{
		protected: make(map[string]bool, len(protected)),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	for _, p := range protected {
		s.protected[p] = true
	}
	if len(groups) == 0 {
		return nil, nil
	}

	for i, g := range groups {
		if !(g.Height > 0) {
			return nil, errors.Wrapf(ErrInvalidHeight, "group %d has height %g", i, g.Height)
		}
		s.groups = append(s.groups, newGroup(g))
	}
	if err := s.checkLabels(); err != nil {
		return nil, err
	}

	for {
		if len(s.labels()) < 2 || s.onlyProtectedLeft() {
			break
		}
		gi, pos, smallest := s.smallestGap()
		if smallest >= minSeparation {
			break
		}

		lower := s.groups[gi].order[pos]
		upper := s.groups[gi].order[pos+1]
		victim, err := s.pick(lower, upper)
		if err != nil {
			return nil, err
		}

		s.remove(victim)
		s.logger.Debug("removing curve", "label", victim, "gap", smallest)

		if err := s.checkLabels(); err != nil {
			return nil, errors.Wrap(err, "after removal")
		}
	}

	return s.labels(), nil
}

func newGroup(g Group) *group {
	order := make([]string, 0, len(g.Values))
	for label := range g.Values {
		order = append(order, label)
	}
	sort.Slice(order, func(i, j int) bool {
		vi, vj := g.Values[order[i]], g.Values[order[j]]
		if vi != vj {
			return vi < vj
		}
		return order[i] < order[j]
	})

	var gaps []float64
	for i := 1; i < len(order); i++ {
		gaps = append(gaps, (g.Values[order[i]]-g.Values[order[i-1]])/g.Height)
	}
	return &group{order: order, gaps: gaps}
}

// labels returns the surviving labels of the first group, sorted.
func (s *selector) labels() []string {
	out := append([]string(nil), s.groups[0].order...)
	sort.Strings(out)
	return out
}

func (s *selector) checkLabels() error {
	want := s.labels()
	for i, g := range s.groups[1:] {
		got := append([]string(nil), g.order...)
		sort.Strings(got)
		if len(got) != len(want) {
			return errors.Wrapf(ErrLabelMismatch, "group %d has %d labels, group 0 has %d", i+1, len(got), len(want))
		}
		for k := range got {
			if got[k] != want[k] {
				return errors.Wrapf(ErrLabelMismatch, "group %d has %q where group 0 has %q", i+1, got[k], want[k])
			}
		}
	}
	return nil
}

func (s *selector) onlyProtectedLeft() bool {
	order := s.groups[0].order
	if len(order) != len(s.protected) {
		return false
	}
	for _, l := range order {
		if !s.protected[l] {
			return false
		}
	}
	return true
}

// smallestGap returns the group and position of the smallest gap. Ties go to
// the earliest group and the lowest position.
func (s *selector) smallestGap() (int, int, float64) {
	bestGroup, bestPos, best := -1, -1, math.Inf(1)
	for gi, g := range s.groups {
		for i, gap := range g.gaps {
			if gap < best {
				bestGroup, bestPos, best = gi, i, gap
			}
		}
	}
	return bestGroup, bestPos, best
}

func (s *selector) pick(lower, upper string) (string, error) {
	switch {
	case s.protected[lower] && s.protected[upper]:
		return "", errors.Wrapf(ErrNoFeasibleSelection, "%q and %q", lower, upper)
	case s.protected[lower]:
		return upper, nil
	case s.protected[upper]:
		return lower, nil
	}

	l, u := s.secondSmallestGap(lower), s.secondSmallestGap(upper)
	if sameGap(l, u) {
		return upper, nil
	}
	switch s.tieBreak {
	case RemoveLooser:
		if l > u {
			return lower, nil
		}
	default:
		if l < u {
			return lower, nil
		}
	}
	return upper, nil
}

// gapTolerance is the relative difference below which two gaps count as
// equal.
const gapTolerance = 1e-9

func sameGap(a, b float64) bool {
	if a == b {
		return true
	}
	if math.IsInf(a, 0) || math.IsInf(b, 0) {
		return false
	}
	return math.Abs(a-b) <= gapTolerance*math.Max(math.Abs(a), math.Abs(b))
}

// secondSmallestGap returns the second smallest of all the gaps adjacent to
// label across every group, or +Inf when label has a single gap.
func (s *selector) secondSmallestGap(label string) float64 {
	var gaps []float64
	for _, g := range s.groups {
		for i, l := range g.order {
			if l != label {
				continue
			}
			if i > 0 {
				gaps = append(gaps, g.gaps[i-1])
			}
			if i < len(g.gaps) {
				gaps = append(gaps, g.gaps[i])
			}
			break
		}
	}
	if len(gaps) < 2 {
		return math.Inf(1)
	}
	sort.Float64s(gaps)
	return gaps[1]
}

// remove drops label from every group. An interior label's two gaps merge
// into one.
func (s *selector) remove(label string) {
	for _, g := range s.groups {
		for i, l := range g.order {
			if l != label {
				continue
			}
			switch {
			case len(g.gaps) == 0:
			case i == 0:
				g.gaps = g.gaps[1:]
			case i == len(g.order)-1:
				g.gaps = g.gaps[:i-1]
			default:
				g.gaps[i-1] += g.gaps[i]
				g.gaps = append(g.gaps[:i], g.gaps[i+1:]...)
			}
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}
