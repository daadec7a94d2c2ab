package quant

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/framecube/gifcube/color"
	"github.com/framecube/gifcube/cube"
)

// kmeansResult is the outcome of clustering: the final centroids and, for
// each, how many samples it claimed on the final assignment pass. A
// centroid with count==0 is an empty cluster and is dropped during palette
// materialization.
type kmeansResult struct {
	centroids []color.Oklab
	counts    []int
	iters     int
}

// runKMeans clusters samples into up to k centroids in Oklab space,
// following spec.md section 4.2 step 2: uniform-random initialization from
// distinct samples, nearest-centroid assignment with lowest-index
// tie-breaking, weighted-mean update, empty clusters retain their previous
// centroid, and termination on either max-movement-under-threshold or a
// fixed iteration cap.
func runKMeans(rng *rand.Rand, samples []sampledColor, k, maxIter int, convergence float64) (kmeansResult, error) {
	if len(samples) == 0 {
		return kmeansResult{}, cube.ErrClusteringDegenerate()
	}
	if k > len(samples) {
		k = len(samples)
	}

	centroids := make([]color.Oklab, k)
	for i, idx := range rng.Perm(len(samples))[:k] {
		centroids[i] = samples[idx].lab
	}

	assign := make([]int, len(samples))
	// sums holds, per cluster, the weighted [L, a, b] sum; weight holds the
	// total weight per cluster. Both are flat gonum/floats-friendly slices
	// accumulated with floats.Add/floats.Scale rather than hand-rolled
	// per-channel loops.
	sums := make([][]float64, k)
	weight := make([]float64, k)
	for i := range sums {
		sums[i] = make([]float64, 3)
	}

	var iter int
	for iter = 0; iter < maxIter; iter++ {
		counts := make([]int, k)
		for i := range sums {
			sums[i][0], sums[i][1], sums[i][2] = 0, 0, 0
			weight[i] = 0
		}

		for si, s := range samples {
			best, _ := nearestCentroid(s.lab, centroids)
			assign[si] = best
			counts[best]++

			point := []float64{s.lab.L, s.lab.A, s.lab.B}
			floats.Scale(s.weight, point)
			floats.Add(sums[best], point)
			weight[best] += s.weight
		}

		maxMove := 0.0
		newCentroids := make([]color.Oklab, k)
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				newCentroids[c] = centroids[c] // empty clusters retain previous centroid
				continue
			}
			mean := color.Oklab{
				L: sums[c][0] / weight[c],
				A: sums[c][1] / weight[c],
				B: sums[c][2] / weight[c],
			}
			if move := color.DeltaE(mean, centroids[c]); move > maxMove {
				maxMove = move
			}
			newCentroids[c] = mean
		}
		centroids = newCentroids

		if maxMove < convergence {
			iter++
			break
		}
	}

	// Final assignment pass records the definitive per-centroid counts used
	// to decide which clusters are non-empty.
	counts := make([]int, k)
	for _, s := range samples {
		best, _ := nearestCentroid(s.lab, centroids)
		counts[best]++
	}

	nonEmpty := 0
	for _, c := range counts {
		if c > 0 {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return kmeansResult{}, cube.ErrClusteringDegenerate()
	}

	return kmeansResult{centroids: centroids, counts: counts, iters: iter}, nil
}

// nearestCentroid returns the index of the centroid closest to lab by ΔE,
// breaking ties by lowest index to guarantee deterministic assignment.
func nearestCentroid(lab color.Oklab, centroids []color.Oklab) (int, float64) {
	best := 0
	bestD := color.DeltaE(lab, centroids[0])
	for i := 1; i < len(centroids); i++ {
		d := color.DeltaE(lab, centroids[i])
		if d < bestD {
			best, bestD = i, d
		}
	}
	return best, bestD
}
