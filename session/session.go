// Package session provides the explicit, caller-constructed context that
// is threaded through the quantizer and encoder in place of the source's
// re-initialized global logging and process-wide one-time init guards: a
// single value holding a logger, an RNG seed and tunable options.
package session

import (
	"fmt"
	"os"

	"github.com/ausocean/utils/logging"
)

// Options configures the quantizer and encoder. It is a plain struct with
// no flag parsing and no file format of its own: configuration is a
// caller concern, not a CLI (see spec.md's Non-goals).
type Options struct {
	// Seed seeds the quantizer's deterministic RNG. Two runs with the same
	// Seed and the same input cube produce byte-identical output.
	Seed int64

	// MaxKMeansIterations bounds the k-means loop (spec default: 50).
	MaxKMeansIterations int

	// ConvergenceDeltaE is the centroid-movement termination threshold in
	// ΔE units (spec default: 1.0).
	ConvergenceDeltaE float64

	// SamplesPerFrame caps the number of pixels sampled per frame for
	// clustering (spec default: 1000).
	SamplesPerFrame int

	// AttentionWeighted enables alpha-proportional sampling probability
	// (spec.md section 3). The same A/255 weight is used in the k-means
	// centroid mean and, when Dither is on, scales the diffused error.
	AttentionWeighted bool

	// Dither enables Floyd-Steinberg error-diffusion dithering during
	// per-pixel palette mapping (spec.md: "optional error-diffusion
	// dithering"). Off by default to match the nearest-color baseline
	// the testable scenarios in spec.md section 8 assume.
	Dither bool

	// DefaultDelayCS is the per-frame delay, in centiseconds, used when the
	// caller does not override it (spec default: 4 cs, ~25 fps).
	DefaultDelayCS uint16

	// LoopForever controls whether the encoder emits the NETSCAPE2.0
	// looping application extension.
	LoopForever bool

	// OptimizePaletteOrder enables the encoder-side palette reordering
	// pass described in SPEC_FULL.md section 11. On by default.
	OptimizePaletteOrder bool
}

// DefaultOptions returns the spec's stated defaults.
func DefaultOptions() Options {
	return Options{
		Seed:                 1,
		MaxKMeansIterations:  50,
		ConvergenceDeltaE:    1.0,
		SamplesPerFrame:      1000,
		AttentionWeighted:    false,
		Dither:               false,
		DefaultDelayCS:       4,
		LoopForever:          true,
		OptimizePaletteOrder: true,
	}
}

// Validate rejects out-of-range configuration before a Session is used.
func (o Options) Validate() error {
	if o.MaxKMeansIterations <= 0 {
		return fmt.Errorf("session: MaxKMeansIterations must be positive, got %d", o.MaxKMeansIterations)
	}
	if o.ConvergenceDeltaE < 0 {
		return fmt.Errorf("session: ConvergenceDeltaE must be non-negative, got %v", o.ConvergenceDeltaE)
	}
	if o.SamplesPerFrame <= 0 {
		return fmt.Errorf("session: SamplesPerFrame must be positive, got %d", o.SamplesPerFrame)
	}
	return nil
}

// Session is the explicit context threaded through quant.Quantize and
// gif89a.Encode: a logger and a set of options, constructed once by the
// caller. No component holds mutable state visible to another (spec.md
// section 5); Session itself is read-only once constructed.
type Session struct {
	Log  logging.Logger
	Opts Options
}

// New constructs a Session. A nil logger defaults to
// logging.New(logging.Info, os.Stderr, false), matching the log
// construction seen at the call sites in cmd/rv and cmd/speaker in the
// teacher repository this core is adapted from.
func New(log logging.Logger, opts Options) (*Session, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.New(logging.Info, os.Stderr, false)
	}
	return &Session{Log: log, Opts: opts}, nil
}
