// Package animation implements APNG frame sequencing and canvas composition.
//
// The Assembler enforces the acTL/fcTL/fdAT protocol (state transitions,
// sequence numbers, frame counts and frame geometry) for both decoding and
// encoding. The Canvas applies blend and dispose operations to reconstruct
// what a viewer displays. Pixel decoding lives in the apng package; this
// package deals with container-level animation semantics only.
package animation

import (
	"image"
	"time"

	"github.com/deepteams/apng/mux"
)

// DisposeMethod controls how the frame region is treated after the frame is
// displayed.
type DisposeMethod uint8

const (
	// DisposeNone leaves the canvas as-is.
	DisposeNone DisposeMethod = DisposeMethod(mux.DisposeOpNone)
	// DisposeBackground clears the frame region to transparent black.
	DisposeBackground DisposeMethod = DisposeMethod(mux.DisposeOpBackground)
	// DisposePrevious restores the frame region to its state before the
	// frame was rendered.
	DisposePrevious DisposeMethod = DisposeMethod(mux.DisposeOpPrevious)
)

func (d DisposeMethod) String() string {
	switch d {
	case DisposeNone:
		return "none"
	case DisposeBackground:
		return "background"
	case DisposePrevious:
		return "previous"
	}
	return "unknown"
}

// BlendMethod controls how a frame is composited onto the canvas.
type BlendMethod uint8

const (
	// BlendSource replaces the frame region outright, alpha included.
	BlendSource BlendMethod = BlendMethod(mux.BlendOpSource)
	// BlendOver alpha-composites the frame over the existing canvas.
	BlendOver BlendMethod = BlendMethod(mux.BlendOpOver)
)

func (b BlendMethod) String() string {
	switch b {
	case BlendSource:
		return "source"
	case BlendOver:
		return "over"
	}
	return "unknown"
}

// Frame is one image of a PNG or APNG stream together with its animation
// parameters.
type Frame struct {
	// Image is the frame's own raster, anchored at (0,0) and sized like
	// Bounds. It belongs to the caller.
	Image image.Image

	// Canvas is a snapshot of the composed canvas after rendering this frame.
	// It is only set when the decoder composes frames.
	Canvas image.Image

	// Bounds is the frame region on the canvas.
	Bounds image.Rectangle

	// DelayNum and DelayDen give the display duration in seconds as a
	// fraction. A zero denominator means 1/100 s.
	DelayNum uint16
	DelayDen uint16

	Dispose DisposeMethod
	Blend   BlendMethod

	// SequenceNumber is the fcTL sequence number (0 for still images).
	SequenceNumber uint32

	// IsDefault reports that the frame is the IDAT default image. A default
	// image that is not part of the animation only appears when the decoder
	// is asked to include it.
	IsDefault bool

	// IsLast reports that no frame follows.
	IsLast bool
}

// Delay returns the display duration of the frame.
func (f *Frame) Delay() time.Duration {
	return f.Control(0).Delay()
}

// SetDelay sets DelayNum/DelayDen to represent d, in milliseconds when that
// fits the 16-bit numerator and in hundredths of a second otherwise.
func (f *Frame) SetDelay(d time.Duration) {
	if d < 0 {
		d = 0
	}
	if ms := d / time.Millisecond; ms <= 0xffff {
		f.DelayNum, f.DelayDen = uint16(ms), 1000
		return
	}
	cs := d / (10 * time.Millisecond)
	if cs > 0xffff {
		cs = 0xffff
	}
	f.DelayNum, f.DelayDen = uint16(cs), 100
}

// Control returns the fcTL chunk describing the frame.
func (f *Frame) Control(seq uint32) mux.FrameControl {
	return mux.FrameControl{
		SequenceNumber: seq,
		Width:          uint32(f.Bounds.Dx()),
		Height:         uint32(f.Bounds.Dy()),
		XOffset:        uint32(f.Bounds.Min.X),
		YOffset:        uint32(f.Bounds.Min.Y),
		DelayNum:       f.DelayNum,
		DelayDen:       f.DelayDen,
		Dispose:        mux.DisposeOp(f.Dispose),
		Blend:          mux.BlendOp(f.Blend),
	}
}

// FromControl returns the animation parameters of an fcTL chunk as a Frame
// without an image.
func FromControl(fc mux.FrameControl) Frame {
	return Frame{
		Bounds:         fc.Bounds(),
		DelayNum:       fc.DelayNum,
		DelayDen:       fc.DelayDen,
		Dispose:        DisposeMethod(fc.Dispose),
		Blend:          BlendMethod(fc.Blend),
		SequenceNumber: fc.SequenceNumber,
	}
}
