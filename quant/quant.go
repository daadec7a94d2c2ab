// Package quant implements the quantization engine: global palette
// construction over the 81-frame cube in Oklab space, per-pixel nearest
// color assignment with optional error-diffusion dithering, and the
// aggregate quality metrics that travel with the quantized cube.
package quant

import (
	"math/rand"
	"runtime"
	"sync"

	"github.com/pkg/errors"

	"github.com/framecube/gifcube/color"
	"github.com/framecube/gifcube/cube"
	"github.com/framecube/gifcube/session"
)

// Quantize implements spec.md section 4.2: it turns an 81-frame RGBA cube
// into a quantized cube carrying one global palette, one index plane per
// frame, and aggregate error/stability metrics. All tunables come from
// sess.Opts; sess.Log receives stage-level progress at Debug/Info level.
func Quantize(sess *session.Session, c *cube.Cube) (*cube.Quantized, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	opts := sess.Opts
	rng := rand.New(rand.NewSource(opts.Seed))

	sess.Log.Info("quantize: sampling", "frames", len(c.Frames), "samplesPerFrame", opts.SamplesPerFrame)
	var samples []sampledColor
	for _, f := range c.Frames {
		samples = append(samples, sampleFrame(rng, f, opts.SamplesPerFrame, opts.AttentionWeighted)...)
	}

	sess.Log.Debug("quantize: clustering", "samples", len(samples), "k", cube.MaxPaletteEntries)
	result, err := runKMeans(rng, samples, cube.MaxPaletteEntries, opts.MaxKMeansIterations, opts.ConvergenceDeltaE)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sess.Log.Debug("quantize: clustering converged", "iterations", result.iters)

	paletteLab := compactPalette(result.centroids, result.counts)
	paletteRGB := make([]byte, len(paletteLab)*3)
	for i, lab := range paletteLab {
		r, g, b := color.FromOklab(lab)
		paletteRGB[i*3], paletteRGB[i*3+1], paletteRGB[i*3+2] = r, g, b
	}

	// Frames are mapped against the materialized 8-bit entries, so each
	// recorded ΔE is the error of the color actually emitted.
	entryLab := make([]color.Oklab, len(paletteLab))
	for i := range entryLab {
		entryLab[i] = color.ToOklab(paletteRGB[i*3], paletteRGB[i*3+1], paletteRGB[i*3+2])
	}

	sess.Log.Debug("quantize: mapping frames", "paletteEntries", len(paletteLab))
	frames, errSamples := mapFrames(c, entryLab, opts.Dither, opts.AttentionWeighted)

	mean, p95 := deltaEStats(errSamples)
	stability := paletteStability(frames, len(paletteLab))

	delays := make([]uint16, cube.FrameCount)
	for i := range delays {
		delays[i] = opts.DefaultDelayCS
	}

	q := &cube.Quantized{
		Width:            cube.FrameWidth,
		Height:           cube.FrameHeight,
		PaletteRGB:       paletteRGB,
		Frames:           frames,
		DelaysCS:         delays,
		PaletteStability: stability,
		MeanDeltaE:       mean,
		P95DeltaE:        p95,
	}

	sess.Log.Info("quantize: done", "paletteEntries", len(paletteLab), "meanDeltaE", mean, "p95DeltaE", p95, "paletteStability", stability)

	return q, nil
}

// compactPalette drops centroids with zero samples (spec.md: "The entry
// count equals the number of non-empty clusters") and returns the
// materialized palette in centroid-index order.
func compactPalette(centroids []color.Oklab, counts []int) []color.Oklab {
	out := make([]color.Oklab, 0, len(centroids))
	for i, c := range centroids {
		if counts[i] > 0 {
			out = append(out, c)
		}
	}
	return out
}

// mapFrames assigns every pixel of every frame to its nearest palette
// entry (spec.md section 4.2 step 4), optionally applying Floyd-Steinberg
// dithering, and returns the resulting index planes plus the flattened
// per-pixel ΔE samples used for the aggregate error statistics. The
// per-frame work is embarrassingly parallel (spec.md section 5); frames are
// fanned out across workers and reassembled by frame index so that the
// output never depends on goroutine scheduling order.
func mapFrames(c *cube.Cube, palette []color.Oklab, dither, attentionWeighted bool) ([]cube.IndexPlane, []float64) {
	planes := make([]cube.IndexPlane, len(c.Frames))
	errs := make([][]float64, len(c.Frames))

	workers := runtime.NumCPU()
	if workers > len(c.Frames) {
		workers = len(c.Frames)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	frameCh := make(chan int, len(c.Frames))
	for i := range c.Frames {
		frameCh <- i
	}
	close(frameCh)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for fi := range frameCh {
				plane, deltas := mapFrame(c.Frames[fi], palette, dither, attentionWeighted)
				planes[fi] = plane
				errs[fi] = deltas
			}
		}()
	}
	wg.Wait()

	flat := make([]float64, 0, len(c.Frames)*cube.PixelCount)
	for _, d := range errs {
		flat = append(flat, d...)
	}
	return planes, flat
}

// mapFrame quantizes a single frame against palette, returning its index
// plane and the per-pixel ΔE of the chosen entry.
func mapFrame(f cube.Frame, palette []color.Oklab, dither, attentionWeighted bool) (cube.IndexPlane, []float64) {
	plane := cube.NewIndexPlane()
	deltas := make([]float64, cube.PixelCount)

	if !dither {
		for i := 0; i < cube.PixelCount; i++ {
			x, y := i%cube.FrameWidth, i/cube.FrameWidth
			r, g, b, _ := f.At(x, y)
			lab := color.ToOklab(r, g, b)
			idx, d := nearestCentroid(lab, palette)
			plane[i] = byte(idx)
			deltas[i] = d
		}
		return plane, deltas
	}

	// Floyd-Steinberg error diffusion, grounded in the source's
	// apply_dithering: the quantization error of each pixel is distributed
	// to its unprocessed neighbors (7/16 right, 3/16 below-left, 5/16
	// below, 1/16 below-right), optionally scaled by the pixel's attention
	// weight (A/255).
	errR := make([]float64, cube.PixelCount)
	errG := make([]float64, cube.PixelCount)
	errB := make([]float64, cube.PixelCount)

	for y := 0; y < cube.FrameHeight; y++ {
		for x := 0; x < cube.FrameWidth; x++ {
			i := y*cube.FrameWidth + x
			r8, g8, b8, a8 := f.At(x, y)

			strength := 1.0
			if attentionWeighted {
				strength = float64(a8) / 255.0
			}

			r := clamp255(float64(r8) + errR[i])
			g := clamp255(float64(g8) + errG[i])
			b := clamp255(float64(b8) + errB[i])

			lab := color.ToOklab(uint8(r), uint8(g), uint8(b))
			idx, d := nearestCentroid(lab, palette)
			plane[i] = byte(idx)
			deltas[i] = d

			pr, pg, pb := color.FromOklab(palette[idx])
			er := (r - float64(pr)) * strength
			eg := (g - float64(pg)) * strength
			eb := (b - float64(pb)) * strength

			if x+1 < cube.FrameWidth {
				j := i + 1
				errR[j] += er * 7.0 / 16.0
				errG[j] += eg * 7.0 / 16.0
				errB[j] += eb * 7.0 / 16.0
			}
			if y+1 < cube.FrameHeight {
				if x > 0 {
					j := i + cube.FrameWidth - 1
					errR[j] += er * 3.0 / 16.0
					errG[j] += eg * 3.0 / 16.0
					errB[j] += eb * 3.0 / 16.0
				}
				j := i + cube.FrameWidth
				errR[j] += er * 5.0 / 16.0
				errG[j] += eg * 5.0 / 16.0
				errB[j] += eb * 5.0 / 16.0
				if x+1 < cube.FrameWidth {
					j := i + cube.FrameWidth + 1
					errR[j] += er * 1.0 / 16.0
					errG[j] += eg * 1.0 / 16.0
					errB[j] += eb * 1.0 / 16.0
				}
			}
		}
	}

	return plane, deltas
}

func clamp255(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
