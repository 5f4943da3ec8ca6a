package camera

import (
	"image"
	"time"
)

// Frame is a single captured image. Ownership transfers down the pipeline
// with the frame itself; Pix must not be modified after the frame has been
// handed off.
type Frame struct {
	// Pix holds 8-bit grayscale pixels in row-major order, Width bytes per row.
	Pix    []byte
	Width  int
	Height int

	// Seq is the capture sequence number, assigned by the frame source.
	Seq uint64

	// Timestamp is the capture time (source clock).
	Timestamp time.Time
}

// Gray returns an image.Gray view sharing the frame's pixel buffer.
func (f *Frame) Gray() *image.Gray {
	return &image.Gray{
		Pix:    f.Pix,
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Transposed returns a copy of the frame with rows and columns swapped,
// the layout the preview consumers expect.
func (f *Frame) Transposed() *Frame {
	out := &Frame{
		Pix:       make([]byte, len(f.Pix)),
		Width:     f.Height,
		Height:    f.Width,
		Seq:       f.Seq,
		Timestamp: f.Timestamp,
	}
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Width : (y+1)*f.Width]
		for x, v := range row {
			out.Pix[x*out.Width+y] = v
		}
	}
	return out
}
