// Package report derives summaries, grouped views and representative
// examples from stored classification results.
package report

import (
	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/taxonomy"
)

// percentUnits is 100% expressed in tenths of a percent.
const percentUnits = 1000

// Summarize counts valid categories and reports the reserved buckets
// separately. Percentages use only valid results as the denominator and are
// rounded to one decimal.
func Summarize(cs []result.Classification) (result.Summary, result.Flagged) {
	counts := map[string]int{}
	var flagged result.Flagged
	for _, c := range cs {
		switch cat := c.Category(); cat {
		case taxonomy.Unclassified:
			flagged.Unclassified++
		case taxonomy.ClassificationFailed:
			flagged.ClassificationFailed++
		default:
			counts[cat]++
		}
	}
	summary := result.Summary{}
	for cat, units := range apportion(counts) {
		summary[cat] = result.CategoryStat{Count: counts[cat], Percentage: float64(units) / 10}
	}
	return summary, flagged
}

// apportion rounds each share to tenths of a percent, half up. When the
// rounded total misses 100.0 by more than a tenth, whole groups of equal
// counts are nudged one tenth toward the exact value, largest rounding error
// first, so equal counts always keep equal percentages.
func apportion(counts map[string]int) map[string]int {
	total := 0
	for _, n := range counts {
		total += n
	}
	units := make(map[string]int, len(counts))
	if total == 0 {
		return units
	}

	groups := map[int][]string{}
	assigned := 0
	for name, n := range counts {
		units[name] = (2*n*percentUnits + total) / (2 * total)
		assigned += units[name]
		groups[n] = append(groups[n], name)
	}

	for {
		diff := assigned - percentUnits
		if abs(diff) <= 1 {
			break
		}
		step := 1
		if diff > 0 {
			step = -1
		}
		best, bestErr := 0, 0
		for n, names := range groups {
			if abs(diff+step*len(names)) >= abs(diff) {
				continue
			}
			// roundErr is how far the group was rounded against step, in
			// units of 1/total tenths.
			roundErr := (units[names[0]]*total - n*percentUnits) * -step
			if best == 0 || roundErr > bestErr || (roundErr == bestErr && n > best) {
				best, bestErr = n, roundErr
			}
		}
		if best == 0 {
			break
		}
		for _, name := range groups[best] {
			units[name] += step
		}
		assigned += step * len(groups[best])
	}
	return units
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// View is a summary over one group of results.
type View struct {
	Total     int                 `json:"total"`
	Summary   result.Summary      `json:"summary"`
	Flagged   result.Flagged      `json:"flagged"`
	Intervals map[string]Interval `json:"ci95,omitempty"`
}

// Combined is the cross-configuration summary document.
type Combined struct {
	Configurations map[string]View `json:"configurations"`
	ByDomain       map[string]View `json:"by_domain"`
	ByStrategy     map[string]View `json:"by_strategy"`
	ByModelSize    map[string]View `json:"by_model_size"`
}

// Combine pools results per configuration and per domain, strategy and
// model size. seed fixes the bootstrap resampling of the grouped views.
func Combine(docs []*result.Document, seed int64) *Combined {
	groups := map[string]map[string][]result.Classification{
		"config": {}, "domain": {}, "strategy": {}, "size": {},
	}
	for _, d := range docs {
		groups["config"][d.Config] = append(groups["config"][d.Config], d.Classifications...)
		groups["domain"][string(d.Key.Domain)] = append(groups["domain"][string(d.Key.Domain)], d.Classifications...)
		groups["strategy"][string(d.Key.Strategy)] = append(groups["strategy"][string(d.Key.Strategy)], d.Classifications...)
		groups["size"][d.Key.ModelSize] = append(groups["size"][d.Key.ModelSize], d.Classifications...)
	}
	build := func(g map[string][]result.Classification, withCI bool) map[string]View {
		out := make(map[string]View, len(g))
		for name, cs := range g {
			summary, flagged := Summarize(cs)
			v := View{Total: len(cs), Summary: summary, Flagged: flagged}
			if withCI {
				v.Intervals = proportionIntervals(cs, seed)
			}
			out[name] = v
		}
		return out
	}
	return &Combined{
		Configurations: build(groups["config"], false),
		ByDomain:       build(groups["domain"], true),
		ByStrategy:     build(groups["strategy"], true),
		ByModelSize:    build(groups["size"], true),
	}
}
