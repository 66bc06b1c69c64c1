package analysis

import (
	"cmp"
	"slices"
	"sort"
)

// Binding states recorded by the flex ddG protocol.
const (
	StateBoundWT    = "bound_wt"
	StateBoundMut   = "bound_mut"
	StateUnboundWT  = "unbound_wt"
	StateUnboundMut = "unbound_mut"
)

// TotalScore is the score term holding the sum of all weighted terms.
const TotalScore = "total_score"

// Row holds the score terms of one structure in one binding state at one
// backrub checkpoint, as scored by one score function.
type Row struct {
	Case          string
	State         string
	BackrubSteps  int
	StructNum     int
	ScoreFunction string
	Terms         map[string]float64
}

// StructScore is the energy difference of a single structure.
type StructScore struct {
	Case          string
	BackrubSteps  int
	StructNum     int
	ScoreFunction string
	Terms         map[string]float64
}

// Result is an energy difference averaged over the first NStruct structures.
type Result struct {
	Case          string
	BackrubSteps  int
	ScoreFunction string
	ScoredState   string
	NStruct       int
	Terms         map[string]float64
}

type groupKey struct {
	Case          string
	BackrubSteps  int
	StructNum     int
	ScoreFunction string
}

func (k groupKey) compare(o groupKey) int {
	return cmp.Or(
		cmp.Compare(k.Case, o.Case),
		cmp.Compare(k.BackrubSteps, o.BackrubSteps),
		cmp.Compare(k.StructNum, o.StructNum),
		cmp.Compare(k.ScoreFunction, o.ScoreFunction),
	)
}

// TermNames returns the sorted union of score term names used by terms.
func TermNames[T any](items []T, terms func(T) map[string]float64) []string {
	seen := make(map[string]struct{})
	for _, item := range items {
		for name := range terms(item) {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortResults(results []Result) {
	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Or(
			cmp.Compare(a.Case, b.Case),
			cmp.Compare(a.BackrubSteps, b.BackrubSteps),
			cmp.Compare(a.ScoreFunction, b.ScoreFunction),
		)
	})
}
