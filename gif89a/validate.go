package gif89a

import (
	"bytes"

	"github.com/framecube/gifcube/cube"
)

// Report is the validator's structural report (spec.md section 4.4). It
// never decodes LZW or checks semantic correctness of any block; it only
// checks the shape of the byte stream.
type Report struct {
	HasValidHeader   bool
	HasLoopExtension bool
	FrameCount       int
	HasTrailer       bool
	IsValid          bool
	Errors           []string
}

// Validate inspects a candidate byte stream and reports whether it has the
// structural shape of a complete 81-frame GIF89a animation. IsValid does not
// depend on the loop extension; its presence is reported separately in
// HasLoopExtension.
func Validate(data []byte) Report {
	var r Report
	var errs []string

	r.HasValidHeader = len(data) >= 6 && string(data[:6]) == header
	if !r.HasValidHeader {
		errs = append(errs, "missing or invalid GIF89a header")
	}

	r.HasLoopExtension = bytes.Contains(data, []byte(netscapeLoopSub))

	r.FrameCount = bytes.Count(data, []byte{imageSeparator})

	r.HasTrailer = len(data) > 0 && data[len(data)-1] == trailerByte
	if !r.HasTrailer {
		errs = append(errs, "missing trailer byte 0x3B")
	}

	if r.FrameCount != cube.FrameCount {
		errs = append(errs, "frame count is not 81")
	}

	r.IsValid = r.HasValidHeader && r.HasTrailer && r.FrameCount == cube.FrameCount
	r.Errors = errs
	return r
}
