package cube

import (
	"errors"
	"testing"
)

func solidCube() *Cube {
	c := &Cube{Frames: make([]Frame, FrameCount)}
	for i := range c.Frames {
		f := NewFrame()
		for p := 0; p < PixelCount; p++ {
			f[p*4] = 255
			f[p*4+2] = 0
			f[p*4+3] = 255
		}
		c.Frames[i] = f
	}
	return c
}

func TestCubeValidate(t *testing.T) {
	c := solidCube()
	if err := c.Validate(); err != nil {
		t.Fatalf("valid cube rejected: %v", err)
	}
}

func TestCubeValidateWrongFrameCount(t *testing.T) {
	for _, n := range []int{80, 82, 0} {
		c := &Cube{Frames: make([]Frame, n)}
		err := c.Validate()
		var ce *Error
		if !errors.As(err, &ce) || ce.Kind != InvalidFrameCount {
			t.Fatalf("frames=%d: expected InvalidFrameCount, got %v", n, err)
		}
	}
}

func TestCubeValidateWrongFrameSize(t *testing.T) {
	c := solidCube()
	c.Frames[5] = make(Frame, FrameBytes-1)
	err := c.Validate()
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != InvalidFrameSize || ce.FrameIndex != 5 {
		t.Fatalf("expected InvalidFrameSize at frame 5, got %v", err)
	}
}

func TestQuantizedValidatePaletteSize(t *testing.T) {
	for _, n := range []int{0, 769, 770, 1} {
		q := &Quantized{
			Frames:     make([]IndexPlane, FrameCount),
			PaletteRGB: make([]byte, n),
		}
		for i := range q.Frames {
			q.Frames[i] = NewIndexPlane()
		}
		err := q.Validate()
		var ce *Error
		wantInvalid := n == 0 || n > 768 || n%3 != 0
		if wantInvalid {
			if !errors.As(err, &ce) || ce.Kind != InvalidPaletteSize {
				t.Fatalf("n=%d: expected InvalidPaletteSize, got %v", n, err)
			}
		} else if err != nil {
			t.Fatalf("n=%d: unexpected error %v", n, err)
		}
	}
}

func TestQuantizedValidateIndexOutOfRange(t *testing.T) {
	q := &Quantized{
		Frames:     make([]IndexPlane, FrameCount),
		PaletteRGB: make([]byte, 3), // 1 entry
	}
	for i := range q.Frames {
		q.Frames[i] = NewIndexPlane()
	}
	q.Frames[2][10] = 1 // only index 0 is valid
	err := q.Validate()
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != InvalidIndex || ce.FrameIndex != 2 || ce.PixelIndex != 10 {
		t.Fatalf("expected InvalidIndex at frame 2 pixel 10, got %v", err)
	}
}

func TestErrorIsMatchesOnKind(t *testing.T) {
	var err error = ErrInvalidFrameCount(81, 80)
	if !errors.Is(err, &Error{Kind: InvalidFrameCount}) {
		t.Fatalf("expected errors.Is match on Kind")
	}
	if errors.Is(err, &Error{Kind: InvalidIndex}) {
		t.Fatalf("unexpected errors.Is match on different Kind")
	}
}
