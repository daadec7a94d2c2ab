package quant

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/framecube/gifcube/cube"
	"github.com/framecube/gifcube/session"
)

func newSession(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.New(nil, session.DefaultOptions())
	if err != nil {
		t.Fatalf("session.New: %v", err)
	}
	return s
}

func fillFrame(r, g, b, a uint8) cube.Frame {
	f := cube.NewFrame()
	for i := 0; i < cube.PixelCount; i++ {
		f[i*4], f[i*4+1], f[i*4+2], f[i*4+3] = r, g, b, a
	}
	return f
}

func solidRedCube() *cube.Cube {
	c := &cube.Cube{Frames: make([]cube.Frame, cube.FrameCount)}
	for i := range c.Frames {
		c.Frames[i] = fillFrame(255, 0, 0, 255)
	}
	return c
}

func checkerboardCube() *cube.Cube {
	c := &cube.Cube{Frames: make([]cube.Frame, cube.FrameCount)}
	f := cube.NewFrame()
	for y := 0; y < cube.FrameHeight; y++ {
		for x := 0; x < cube.FrameWidth; x++ {
			i := (y*cube.FrameWidth + x) * 4
			if (x+y)%2 == 0 {
				f[i], f[i+1], f[i+2], f[i+3] = 0, 0, 0, 255
			} else {
				f[i], f[i+1], f[i+2], f[i+3] = 255, 255, 255, 255
			}
		}
	}
	for i := range c.Frames {
		c.Frames[i] = f
	}
	return c
}

func TestQuantizeSolidColorCube(t *testing.T) {
	sess := newSession(t)
	q, err := Quantize(sess, solidRedCube())
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if got := q.PaletteEntries(); got != 1 {
		t.Fatalf("PaletteEntries = %d, want 1", got)
	}
	if q.PaletteRGB[0] != 255 || q.PaletteRGB[1] != 0 || q.PaletteRGB[2] != 0 {
		t.Fatalf("palette entry 0 = %v, want (255,0,0)", q.PaletteRGB[:3])
	}
	if len(q.Frames) != cube.FrameCount {
		t.Fatalf("len(Frames) = %d, want %d", len(q.Frames), cube.FrameCount)
	}
	for fi, plane := range q.Frames {
		if len(plane) != cube.PixelCount {
			t.Fatalf("frame %d: len(plane) = %d, want %d", fi, len(plane), cube.PixelCount)
		}
		for pi, idx := range plane {
			if idx != 0 {
				t.Fatalf("frame %d pixel %d: index = %d, want 0", fi, pi, idx)
			}
		}
	}
	if q.MeanDeltaE != 0 {
		t.Fatalf("MeanDeltaE = %v, want 0", q.MeanDeltaE)
	}
	if q.PaletteStability != 1.0 {
		t.Fatalf("PaletteStability = %v, want 1.0", q.PaletteStability)
	}
}

func TestQuantizeCheckerboardStatic(t *testing.T) {
	sess := newSession(t)
	q, err := Quantize(sess, checkerboardCube())
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if got := q.PaletteEntries(); got != 2 {
		t.Fatalf("PaletteEntries = %d, want 2", got)
	}
	for fi := 1; fi < len(q.Frames); fi++ {
		if diff := cmp.Diff(q.Frames[0], q.Frames[fi]); diff != "" {
			t.Fatalf("frame %d differs from frame 0 (-want +got):\n%s", fi, diff)
		}
	}
	if q.PaletteStability != 1.0 {
		t.Fatalf("PaletteStability = %v, want 1.0", q.PaletteStability)
	}
}

func TestQuantizeInvariants(t *testing.T) {
	sess := newSession(t)
	q, err := Quantize(sess, checkerboardCube())
	if err != nil {
		t.Fatalf("Quantize: %v", err)
	}
	if q.MeanDeltaE > q.P95DeltaE {
		t.Fatalf("MeanDeltaE (%v) > P95DeltaE (%v)", q.MeanDeltaE, q.P95DeltaE)
	}
	if q.PaletteStability < 0 || q.PaletteStability > 1 {
		t.Fatalf("PaletteStability out of [0,1]: %v", q.PaletteStability)
	}
	entries := q.PaletteEntries()
	for _, plane := range q.Frames {
		for _, idx := range plane {
			if int(idx) >= entries {
				t.Fatalf("index %d >= entries %d", idx, entries)
			}
		}
	}
}

func TestQuantizeRejectsWrongFrameCount(t *testing.T) {
	sess := newSession(t)
	c := &cube.Cube{Frames: make([]cube.Frame, 80)}
	_, err := Quantize(sess, c)
	var ce *cube.Error
	if !errors.As(err, &ce) || ce.Kind != cube.InvalidFrameCount {
		t.Fatalf("expected InvalidFrameCount, got %v", err)
	}
}

func TestQuantizeRejectsWrongFrameSize(t *testing.T) {
	sess := newSession(t)
	c := solidRedCube()
	c.Frames[0] = c.Frames[0][:100]
	_, err := Quantize(sess, c)
	var ce *cube.Error
	if !errors.As(err, &ce) || ce.Kind != cube.InvalidFrameSize {
		t.Fatalf("expected InvalidFrameSize, got %v", err)
	}
}

func TestQuantizeDeterministic(t *testing.T) {
	sess1 := newSession(t)
	sess2 := newSession(t)
	c := checkerboardCube()

	q1, err := Quantize(sess1, c)
	if err != nil {
		t.Fatalf("Quantize 1: %v", err)
	}
	q2, err := Quantize(sess2, c)
	if err != nil {
		t.Fatalf("Quantize 2: %v", err)
	}

	if diff := cmp.Diff(q1.PaletteRGB, q2.PaletteRGB); diff != "" {
		t.Fatalf("palette differs between runs (-run1 +run2):\n%s", diff)
	}
	for i := range q1.Frames {
		if diff := cmp.Diff(q1.Frames[i], q2.Frames[i]); diff != "" {
			t.Fatalf("frame %d differs between runs (-run1 +run2):\n%s", i, diff)
		}
	}
}
