package report

import (
	"math"
	"math/rand"
	"sort"

	"github.com/signalnine/triage/internal/result"
	"github.com/signalnine/triage/internal/taxonomy"
)

// Interval is a percentile-bootstrap confidence interval, in percent.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

const bootstrapIterations = 2000

// proportionIntervals estimates a 95% interval for each valid category's
// share of the valid results.
func proportionIntervals(cs []result.Classification, seed int64) map[string]Interval {
	var cats []string
	for _, c := range cs {
		if !taxonomy.IsReserved(c.Category()) {
			cats = append(cats, c.Category())
		}
	}
	if len(cats) < 2 {
		return nil
	}
	names := map[string]bool{}
	for _, c := range cats {
		names[c] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	out := make(map[string]Interval, len(sorted))
	for i, name := range sorted {
		scores := make([]float64, len(cats))
		for j, c := range cats {
			if c == name {
				scores[j] = 1
			}
		}
		out[name] = bootstrapMean(scores, 0.95, seed+int64(i))
	}
	return out
}

func bootstrapMean(scores []float64, level float64, seed int64) Interval {
	n := len(scores)
	rng := rand.New(rand.NewSource(seed))
	means := make([]float64, bootstrapIterations)
	for i := range means {
		sum := 0.0
		for j := 0; j < n; j++ {
			sum += scores[rng.Intn(n)]
		}
		means[i] = sum / float64(n)
	}
	sort.Float64s(means)

	alpha := 1 - level
	lo := int(math.Floor(alpha / 2 * bootstrapIterations))
	hi := int(math.Floor((1 - alpha/2) * bootstrapIterations))
	if hi >= bootstrapIterations {
		hi = bootstrapIterations - 1
	}
	return Interval{Lower: round1(means[lo] * 100), Upper: round1(means[hi] * 100)}
}

func round1(x float64) float64 { return math.Round(x*10) / 10 }
