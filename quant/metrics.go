package quant

import (
	"sort"

	"github.com/framecube/gifcube/cube"
	"gonum.org/v1/gonum/stat"
)

// deltaEStats reduces the flattened per-pixel ΔE samples (spec.md section
// 4.2 step 4: one sample per pixel of every frame, 81*81*81 total) to the
// mean and 95th-percentile error via gonum/stat. The samples are sorted
// into a copy first, since stat.Quantile requires sorted input.
func deltaEStats(samples []float64) (mean, p95 float64) {
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	mean = stat.Mean(sorted, nil)
	p95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	return mean, p95
}

// paletteStability computes the mean histogram-intersection similarity
// between every consecutive pair of index planes (spec.md section 4.2
// step 5).
func paletteStability(frames []cube.IndexPlane, paletteEntries int) float64 {
	if len(frames) < 2 {
		return 1.0
	}
	total := 0.0
	for i := 0; i+1 < len(frames); i++ {
		total += histogramIntersection(frames[i], frames[i+1], paletteEntries)
	}
	return total / float64(len(frames)-1)
}

func histogramIntersection(a, b cube.IndexPlane, entries int) float64 {
	ha := make([]int, entries)
	hb := make([]int, entries)
	for _, idx := range a {
		ha[idx]++
	}
	for _, idx := range b {
		hb[idx]++
	}
	var inter, sumA, sumB int
	for i := 0; i < entries; i++ {
		if ha[i] < hb[i] {
			inter += ha[i]
		} else {
			inter += hb[i]
		}
		sumA += ha[i]
		sumB += hb[i]
	}
	denom := sumA
	if sumB > denom {
		denom = sumB
	}
	if denom == 0 {
		return 1.0
	}
	return float64(inter) / float64(denom)
}
