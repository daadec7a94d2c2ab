package cube

import "github.com/pkg/errors"

const (
	// FrameWidth and FrameHeight are the fixed spatial dimensions of every
	// frame handed to the quantizer. The 729x729->81x81 spatial reducer that
	// produces them is an external collaborator (see spec.md); this core
	// only ever sees its 81x81 output.
	FrameWidth  = 81
	FrameHeight = 81
	// PixelCount is the number of pixels in one frame.
	PixelCount = FrameWidth * FrameHeight
	// FrameBytes is the exact byte length of one tightly packed RGBA frame.
	FrameBytes = PixelCount * 4
	// FrameCount is the fixed number of frames in a cube.
	FrameCount = 81
	// MaxPaletteEntries is the maximum number of colors in a global palette.
	MaxPaletteEntries = 256
)

// RGB is an 8-bit sRGB triple.
type RGB struct {
	R, G, B uint8
}

// Frame is one tightly packed, row-major RGBA buffer of FrameBytes bytes.
type Frame []byte

// At returns the RGBA channels of the pixel at (x, y).
func (f Frame) At(x, y int) (r, g, b, a uint8) {
	i := (y*FrameWidth + x) * 4
	return f[i], f[i+1], f[i+2], f[i+3]
}

// NewFrame allocates a zeroed frame of the correct size.
func NewFrame() Frame {
	return make(Frame, FrameBytes)
}

// Cube is the ordered sequence of exactly FrameCount frames that is the
// input contract from the spatial-reduction stage. Order is semantic
// (animation order) and is preserved end to end.
type Cube struct {
	Frames []Frame
}

// Validate checks the invariants of spec.md section 3: exactly FrameCount
// frames, each exactly FrameBytes long.
func (c *Cube) Validate() error {
	if len(c.Frames) != FrameCount {
		return errors.WithStack(ErrInvalidFrameCount(FrameCount, len(c.Frames)))
	}
	for i, f := range c.Frames {
		if len(f) != FrameBytes {
			return errors.WithStack(ErrInvalidFrameSize(i, FrameBytes, len(f)))
		}
	}
	return nil
}

// Palette is a shared, ordered sequence of up to MaxPaletteEntries RGB
// colors. Index 0 is the background color index.
type Palette []RGB

// IndexPlane is one 81x81 array of palette indices, one per frame.
type IndexPlane []byte

// NewIndexPlane allocates a zeroed index plane of the correct size.
func NewIndexPlane() IndexPlane {
	return make(IndexPlane, PixelCount)
}

// Quantized is the artifact handed from the quantizer to the encoder: see
// spec.md section 3. It is constructed once, consumed once, and is never
// mutated between the two.
type Quantized struct {
	Width, Height int

	// PaletteRGB is the palette as 3*entryCount unpadded bytes, entry i at
	// offset 3*i.
	PaletteRGB []byte

	// Frames holds exactly FrameCount index planes, in input order.
	Frames []IndexPlane

	// DelaysCS holds exactly FrameCount per-frame delays, in centiseconds.
	DelaysCS []uint16

	// PaletteStability is the mean frame-to-frame index-histogram
	// similarity, in [0, 1].
	PaletteStability float64

	// MeanDeltaE and P95DeltaE are aggregate perceptual error statistics
	// over all FrameCount*PixelCount pixels.
	MeanDeltaE float64
	P95DeltaE  float64
}

// PaletteEntries returns the number of populated palette entries.
func (q *Quantized) PaletteEntries() int {
	return len(q.PaletteRGB) / 3
}

// Validate checks the invariants required before handing a Quantized cube
// to the encoder: correct frame count, a well-formed palette byte length,
// and every index within range.
func (q *Quantized) Validate() error {
	if len(q.Frames) != FrameCount {
		return errors.WithStack(ErrInvalidFrameCount(FrameCount, len(q.Frames)))
	}
	n := len(q.PaletteRGB)
	if n <= 0 || n > MaxPaletteEntries*3 || n%3 != 0 {
		return errors.WithStack(ErrInvalidPaletteSize(n))
	}
	entries := q.PaletteEntries()
	for fi, plane := range q.Frames {
		for pi, idx := range plane {
			if int(idx) >= entries {
				return errors.WithStack(ErrInvalidIndex(fi, pi, int(idx), entries))
			}
		}
	}
	return nil
}
