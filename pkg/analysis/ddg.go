package analysis

import (
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
)

// Scored states written to the results.
const (
	ScoredDDG   = "ddG"
	ScoredMutDG = "mut_dG"
	ScoredWTDG  = "wt_dG"
)

// ConvergencePrefixes returns the structure counts results are averaged over:
// every multiple of ten from 10 below total, plus total itself.
func ConvergencePrefixes(total int) []int {
	set := map[int]struct{}{total: {}}
	for x := 10; x < total; x += 10 {
		set[x] = struct{}{}
	}
	prefixes := slices.Collect(maps.Keys(set))
	sort.Ints(prefixes)
	return prefixes
}

// signs assigns each state its sign in an energy difference. States not in
// the map are ignored.
type signs map[string]float64

var (
	ddgSigns = signs{
		StateBoundMut:   1,
		StateUnboundWT:  1,
		StateBoundWT:    -1,
		StateUnboundMut: -1,
	}
	mutDGSigns = signs{StateBoundMut: 1, StateUnboundMut: -1}
	wtDGSigns  = signs{StateBoundWT: 1, StateUnboundWT: -1}
)

// CalcDDG computes the binding ddG,
//
//	(bound_mut - unbound_mut) - (bound_wt - unbound_wt)
//
// per structure, then averages it over every convergence prefix. It also
// returns the per-structure values over all structures.
func CalcDDG(rows []Row) ([]Result, []StructScore) {
	if len(rows) == 0 {
		return nil, nil
	}
	total := maxStructNum(rows)
	terms := TermNames(rows, func(r Row) map[string]float64 { return r.Terms })

	var results []Result
	var structScores []StructScore
	for _, n := range ConvergencePrefixes(total) {
		sums := sumByStructure(rows, ddgSigns, n, terms)
		if n == total {
			structScores = toStructScores(sums)
		}
		results = append(results, averageOverStructures(sums, ScoredDDG, n)...)
	}
	return results, structScores
}

// CalcDGs computes the binding dG of the mutant and of the wild type,
// bound - unbound, averaged over every convergence prefix.
func CalcDGs(rows []Row) []Result {
	if len(rows) == 0 {
		return nil
	}
	total := maxStructNum(rows)
	terms := TermNames(rows, func(r Row) map[string]float64 { return r.Terms })

	var results []Result
	for _, s := range []struct {
		scored string
		signs  signs
	}{
		{ScoredMutDG, mutDGSigns},
		{ScoredWTDG, wtDGSigns},
	} {
		for _, n := range ConvergencePrefixes(total) {
			sums := sumByStructure(rows, s.signs, n, terms)
			results = append(results, averageOverStructures(sums, s.scored, n)...)
		}
	}
	return results
}

func maxStructNum(rows []Row) int {
	total := rows[0].StructNum
	for _, r := range rows[1:] {
		total = max(total, r.StructNum)
	}
	return total
}

type structSums struct {
	keys []groupKey
	sums map[groupKey]map[string]float64
}

func sumByStructure(rows []Row, sg signs, nstruct int, terms []string) structSums {
	out := structSums{sums: make(map[groupKey]map[string]float64)}
	for _, r := range rows {
		sign, ok := sg[r.State]
		if !ok || r.StructNum > nstruct {
			continue
		}
		key := groupKey{r.Case, r.BackrubSteps, r.StructNum, r.ScoreFunction}
		acc, ok := out.sums[key]
		if !ok {
			acc = make(map[string]float64, len(terms))
			for _, t := range terms {
				acc[t] = 0
			}
			out.sums[key] = acc
			out.keys = append(out.keys, key)
		}
		for t, v := range r.Terms {
			acc[t] += sign * v
		}
	}
	slices.SortFunc(out.keys, groupKey.compare)
	return out
}

func toStructScores(s structSums) []StructScore {
	scores := make([]StructScore, 0, len(s.keys))
	for _, k := range s.keys {
		scores = append(scores, StructScore{
			Case:          k.Case,
			BackrubSteps:  k.BackrubSteps,
			StructNum:     k.StructNum,
			ScoreFunction: k.ScoreFunction,
			Terms:         maps.Clone(s.sums[k]),
		})
	}
	return scores
}

func averageOverStructures(s structSums, scored string, nstruct int) []Result {
	type avgKey struct {
		Case          string
		BackrubSteps  int
		ScoreFunction string
	}
	index := make(map[avgKey]int)
	counts := make([]int, 0)
	var results []Result

	for _, k := range s.keys {
		ak := avgKey{k.Case, k.BackrubSteps, k.ScoreFunction}
		i, ok := index[ak]
		if !ok {
			i = len(results)
			index[ak] = i
			results = append(results, Result{
				Case:          k.Case,
				BackrubSteps:  k.BackrubSteps,
				ScoreFunction: k.ScoreFunction,
				ScoredState:   scored,
				NStruct:       nstruct,
				Terms:         make(map[string]float64),
			})
			counts = append(counts, 0)
		}
		counts[i]++
		for t, v := range s.sums[k] {
			results[i].Terms[t] += v
		}
	}

	for i := range results {
		for t, v := range results[i].Terms {
			results[i].Terms[t] = round5(v / float64(counts[i]))
		}
	}
	sortResults(results)
	return results
}

func round5(v float64) float64 {
	return math.RoundToEven(v*1e5) / 1e5
}

// zemuGAMParams holds the (a, b) parameters of the ZEMu generalized additive
// model reweighting for each score term it covers.
var zemuGAMParams = []struct {
	term string
	a, b float64
}{
	{"fa_sol", 6.940, -6.722},
	{"hbond_sc", 1.902, -1.999},
	{"hbond_bb_sc", 0.063, 0.452},
	{"fa_rep", 1.659, -0.836},
	{"fa_elec", 0.697, -0.122},
	{"hbond_lr_bb", 2.738, -1.179},
	{"fa_atr", 2.313, -1.649},
}

// GAM applies the ZEMu sigmoid for term to x.
func GAM(term string, x float64) (float64, error) {
	for _, p := range zemuGAMParams {
		if p.term == term {
			return gam(p.a, p.b, x), nil
		}
	}
	return 0, fmt.Errorf("no GAM parameters for score term %q", term)
}

func gam(a, b, x float64) float64 {
	ea := math.Exp(a)
	return -ea + 2*ea/(1+math.Exp(-x*math.Exp(b)))
}

// ApplyZemuGAM reweights results with the ZEMu GAM. Covered terms are
// transformed, total_score becomes their sum, other terms are kept as is and
// the score function name gains a "-gam" suffix.
func ApplyZemuGAM(results []Result) ([]Result, error) {
	out := make([]Result, 0, len(results))
	for _, r := range results {
		terms := maps.Clone(r.Terms)
		delete(terms, TotalScore)

		var total float64
		for _, p := range zemuGAMParams {
			v, ok := terms[p.term]
			if !ok {
				return nil, fmt.Errorf("%s/%s: score term %q missing for GAM reweighting", r.Case, r.ScoreFunction, p.term)
			}
			g := gam(p.a, p.b, v)
			terms[p.term] = g
			total += g
		}
		terms[TotalScore] = total

		r.Terms = terms
		r.ScoreFunction += "-gam"
		out = append(out, r)
	}
	return out, nil
}
