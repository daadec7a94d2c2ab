// Package gif89a implements the bitmap animation encoder and its
// structural validator: byte-exact emission of a GIF89a stream from a
// quantized cube (spec.md sections 4.3, 4.4, 6), and a pure-text report
// that checks the emitted stream's shape without decoding it.
package gif89a

import (
	"bytes"
	"encoding/binary"
	"math/bits"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/framecube/gifcube/color"
	"github.com/framecube/gifcube/cube"
	"github.com/framecube/gifcube/session"
)

const (
	header          = "GIF89a"
	trailerByte     = 0x3B
	extensionIntro  = 0x21
	gceLabel        = 0xF9
	appExtLabel     = 0xFF
	imageSeparator  = 0x2C
	netscapeLoopSub = "NETSCAPE2.0"
)

// Result is the encoder's output plus the size/ratio reporting the
// original format also carried (SPEC_FULL.md section 11).
type Result struct {
	Data             []byte
	CompressionRatio float64
}

// Encode implements spec.md section 4.3: it emits a complete GIF89a byte
// stream for q, using sess.Opts for the loop flag and palette-ordering
// option. All validation happens before any byte is allocated; the
// encoder either returns a complete stream or an error, never a partial
// one.
func Encode(sess *session.Session, q *cube.Quantized) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	entries := q.PaletteEntries()
	paletteRGB := q.PaletteRGB
	frames := q.Frames

	if sess.Opts.OptimizePaletteOrder {
		paletteRGB, frames = optimizePaletteOrder(paletteRGB, frames)
	}

	paddedSize := paddedPaletteSize(entries)
	minCodeSize := lzwMinCodeSize(paddedSize)

	width, err := toU16("width", cube.FrameWidth)
	if err != nil {
		return Result{}, err
	}
	height, err := toU16("height", cube.FrameHeight)
	if err != nil {
		return Result{}, err
	}

	sess.Log.Info("gif89a: encoding", "frames", len(frames), "paletteEntries", entries, "paddedSize", paddedSize, "loop", sess.Opts.LoopForever)

	var buf bytes.Buffer
	buf.Grow(13 + paddedSize*3 + len(frames)*64)

	buf.WriteString(header)
	writeU16(&buf, width)
	writeU16(&buf, height)

	gctSizeField := bits.Len(uint(paddedSize)) - 2 // log2(paddedSize) - 1
	packedLSD := byte(0x80 | (0x7 << 4) | (gctSizeField & 0x07))
	buf.WriteByte(packedLSD)
	buf.WriteByte(0x00) // background color index
	buf.WriteByte(0x00) // pixel aspect ratio

	writeColorTable(&buf, paletteRGB, paddedSize)

	if sess.Opts.LoopForever {
		writeLoopExtension(&buf)
	}

	frameData, err := encodeFrames(frames, minCodeSize)
	if err != nil {
		return Result{}, err
	}

	for i, fd := range frameData {
		delay := q.DelaysCS[i]
		writeGraphicControlExtension(&buf, delay)
		writeImageDescriptor(&buf, width, height)
		buf.WriteByte(byte(minCodeSize))
		buf.Write(fd)
	}

	buf.WriteByte(trailerByte)

	data := buf.Bytes()
	ratio := 0.0
	rawBytes := cube.FrameCount * cube.PixelCount
	if len(data) > 0 {
		ratio = float64(rawBytes) / float64(len(data))
	}

	sess.Log.Info("gif89a: done", "bytes", len(data), "compressionRatio", ratio)

	return Result{Data: data, CompressionRatio: ratio}, nil
}

func encodeFrames(frames []cube.IndexPlane, minCodeSize int) ([][]byte, error) {
	out := make([][]byte, len(frames))
	errs := make([]error, len(frames))

	workers := runtime.NumCPU()
	if workers > len(frames) {
		workers = len(frames)
	}
	if workers < 1 {
		workers = 1
	}

	ch := make(chan int, len(frames))
	for i := range frames {
		ch <- i
	}
	close(ch)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range ch {
				fd, err := encodeLZW(frames[i], minCodeSize)
				out[i] = fd
				errs[i] = err
			}
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, errors.Wrapf(err, "gif89a: encoding frame %d", i)
		}
	}
	return out, nil
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func toU16(field string, v int) (uint16, error) {
	if v < 0 || v > 0xFFFF {
		return 0, errors.WithStack(cube.ErrEncodingOverflow(field))
	}
	return uint16(v), nil
}

func writeColorTable(buf *bytes.Buffer, paletteRGB []byte, paddedSize int) {
	entries := len(paletteRGB) / 3
	for i := 0; i < paddedSize; i++ {
		if i < entries {
			buf.Write(paletteRGB[i*3 : i*3+3])
		} else {
			buf.Write([]byte{0, 0, 0})
		}
	}
}

func writeLoopExtension(buf *bytes.Buffer) {
	buf.WriteByte(extensionIntro)
	buf.WriteByte(appExtLabel)
	buf.WriteByte(0x0B)
	buf.WriteString(netscapeLoopSub)
	buf.WriteByte(0x03)
	buf.WriteByte(0x01)
	writeU16(buf, 0x0000) // infinite loop
	buf.WriteByte(0x00)
}

func writeGraphicControlExtension(buf *bytes.Buffer, delayCS uint16) {
	buf.WriteByte(extensionIntro)
	buf.WriteByte(gceLabel)
	buf.WriteByte(0x04)
	buf.WriteByte(0x08) // disposal method 2 (restore to background), no transparency
	writeU16(buf, delayCS)
	buf.WriteByte(0x00) // transparent color index (unused, flag clear)
	buf.WriteByte(0x00)
}

func writeImageDescriptor(buf *bytes.Buffer, width, height uint16) {
	buf.WriteByte(imageSeparator)
	writeU16(buf, 0) // left
	writeU16(buf, 0) // top
	writeU16(buf, width)
	writeU16(buf, height)
	buf.WriteByte(0x00) // no local color table, not interlaced
}

// paddedPaletteSize returns the next power of two >= entries, clamped to
// the GIF-legal range [2, 256].
func paddedPaletteSize(entries int) int {
	if entries < 1 {
		entries = 1
	}
	size := 1
	for size < entries {
		size <<= 1
	}
	if size < 2 {
		size = 2
	}
	if size > 256 {
		size = 256
	}
	return size
}

// lzwMinCodeSize returns the LZW minimum code size for a palette of
// paddedSize entries: the bit width needed to index it, floored at 2 (the
// smallest code size the format allows, reserving room for the clear and
// end-of-information codes).
func lzwMinCodeSize(paddedSize int) int {
	n := bits.Len(uint(paddedSize - 1))
	if n < 2 {
		n = 2
	}
	return n
}

// optimizePaletteOrder reorders palette entries by Oklab lightness
// (SPEC_FULL.md section 11, supplementing the source's unspecified
// optimize_palette_order) so near-duplicate colors land at adjacent
// indices, which in turn improves LZW compressibility of the index
// stream. Index planes are remapped consistently; this changes no
// quantizer semantics, only encoder-side byte layout.
func optimizePaletteOrder(paletteRGB []byte, frames []cube.IndexPlane) ([]byte, []cube.IndexPlane) {
	entries := len(paletteRGB) / 3
	order := make([]int, entries)
	lightness := make([]float64, entries)
	for i := 0; i < entries; i++ {
		order[i] = i
		lab := color.ToOklab(paletteRGB[i*3], paletteRGB[i*3+1], paletteRGB[i*3+2])
		lightness[i] = lab.L
	}
	sort.SliceStable(order, func(a, b int) bool { return lightness[order[a]] < lightness[order[b]] })

	newRGB := make([]byte, len(paletteRGB))
	oldToNew := make([]byte, entries)
	for newIdx, oldIdx := range order {
		newRGB[newIdx*3], newRGB[newIdx*3+1], newRGB[newIdx*3+2] = paletteRGB[oldIdx*3], paletteRGB[oldIdx*3+1], paletteRGB[oldIdx*3+2]
		oldToNew[oldIdx] = byte(newIdx)
	}

	newFrames := make([]cube.IndexPlane, len(frames))
	for fi, plane := range frames {
		newPlane := cube.NewIndexPlane()
		for pi, idx := range plane {
			newPlane[pi] = oldToNew[idx]
		}
		newFrames[fi] = newPlane
	}

	return newRGB, newFrames
}
