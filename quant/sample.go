package quant

import (
	"math"
	"math/rand"
	"sort"

	"github.com/framecube/gifcube/color"
	"github.com/framecube/gifcube/cube"
)

// sampledColor is one sample drawn from a frame for clustering: its
// perceptual position and its sampling weight (used only to bias which
// pixels are chosen, and as the weight used in the weighted centroid mean).
type sampledColor struct {
	lab    color.Oklab
	weight float64
}

// sampleFrame draws up to n pixel samples from frame without replacement.
// When attentionWeighted is true, the alpha channel (A/255) biases sampling
// probability via weighted reservoir sampling (Efraimidis-Spirakis); the
// resulting weight is carried forward into the k-means centroid update.
// Samples are drawn from rng sequentially (never in parallel) so that
// output is reproducible for a fixed seed regardless of how later stages
// are scheduled.
func sampleFrame(rng *rand.Rand, f cube.Frame, n int, attentionWeighted bool) []sampledColor {
	if n > cube.PixelCount {
		n = cube.PixelCount
	}

	type keyed struct {
		key    float64
		weight float64
		idx    int
	}

	keys := make([]keyed, cube.PixelCount)
	for i := 0; i < cube.PixelCount; i++ {
		w := 1.0
		if attentionWeighted {
			_, _, _, a := f.At(i%cube.FrameWidth, i/cube.FrameWidth)
			w = float64(a) / 255.0
			if w <= 0 {
				w = 1e-9 // keep a nonzero key without admitting zero-weight pixels preferentially
			}
		}
		u := rng.Float64()
		keys[i] = keyed{key: math.Pow(u, 1.0/w), weight: w, idx: i}
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].key > keys[j].key })

	out := make([]sampledColor, n)
	for i := 0; i < n; i++ {
		idx := keys[i].idx
		x, y := idx%cube.FrameWidth, idx/cube.FrameWidth
		r, g, b, _ := f.At(x, y)
		out[i] = sampledColor{lab: color.ToOklab(r, g, b), weight: keys[i].weight}
	}
	return out
}
