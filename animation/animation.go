package animation

import (
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/deepteams/apng/internal/container"
	"github.com/deepteams/apng/mux"
)

var (
	ErrNoFrames   = errors.New("apng: animation has no frames")
	ErrCanvasSize = errors.New("apng: invalid canvas dimensions")
	ErrNilImage   = errors.New("apng: frame image is nil")
)

// Animation holds every frame of a decoded stream.
type Animation struct {
	// Width and Height are the canvas dimensions from IHDR.
	Width  int
	Height int

	// LoopCount is the number of times to play the animation. 0 means
	// infinite looping.
	LoopCount uint32

	// Frames holds the animation frames in display order. A still PNG has a
	// single frame covering the canvas.
	Frames []Frame

	// Default is the hidden default image of an APNG whose IDAT image is not
	// part of the animation, or nil.
	Default image.Image

	// Text holds the tEXt chunks of the stream.
	Text []mux.Text
}

// TotalDuration returns the sum of all frame delays.
func (a *Animation) TotalDuration() time.Duration {
	var total time.Duration
	for i := range a.Frames {
		total += a.Frames[i].Delay()
	}
	return total
}

// Validate checks the canvas and every frame the way an Assembler checks an
// encoded stream: frames must lie inside the canvas and the first frame must
// cover it. A frame with empty Bounds is placed at the origin with its
// image's size.
func (a *Animation) Validate() error {
	if a.Width <= 0 || a.Height <= 0 {
		return ErrCanvasSize
	}
	if len(a.Frames) == 0 {
		return ErrNoFrames
	}
	asm := NewAssembler(uint32(a.Width), uint32(a.Height))
	if err := asm.Control(mux.AnimationControl{FrameCount: uint32(len(a.Frames)), LoopCount: a.LoopCount}); err != nil {
		return err
	}
	if a.Default != nil {
		if _, err := asm.ImageData(); err != nil {
			return err
		}
	}
	for i := range a.Frames {
		f := &a.Frames[i]
		if f.Image == nil {
			return ErrNilImage
		}
		if f.Bounds.Empty() {
			f.Bounds = image.Rectangle{Max: f.Image.Bounds().Size()}
		}
		if f.Bounds.Size() != f.Image.Bounds().Size() {
			return fmt.Errorf("%w: frame %d image is %v, bounds are %v",
				container.ErrInvalidAnimation, i, f.Image.Bounds().Size(), f.Bounds.Size())
		}
		if f.Bounds.Min.X < 0 || f.Bounds.Min.Y < 0 {
			return fmt.Errorf("%w: frame %d at %v", container.ErrFrameOutOfCanvas, i, f.Bounds.Min)
		}
		if err := asm.FrameControl(f.Control(asm.NextSequence())); err != nil {
			return err
		}
		if i == 0 && a.Default == nil {
			if _, err := asm.ImageData(); err != nil {
				return err
			}
		} else if err := asm.FrameData(asm.NextSequence()); err != nil {
			return err
		}
		if err := asm.EndFrame(); err != nil {
			return err
		}
	}
	return asm.End()
}

// Compose renders every frame onto a canvas and stores a snapshot of the
// result in each frame's Canvas field. Frames are assumed to have been
// validated. Channels are 16 bits wide when any frame carries 16-bit pixels.
func (a *Animation) Compose() {
	wide := false
	for i := range a.Frames {
		if IsWide(a.Frames[i].Image) {
			wide = true
			break
		}
	}
	c := NewCanvas(a.Width, a.Height, wide)
	for i := range a.Frames {
		f := &a.Frames[i]
		fr := *f
		if i == 0 && fr.Dispose == DisposePrevious {
			fr.Dispose = DisposeBackground
		}
		c.Render(&fr)
		f.Canvas = c.Snapshot()
	}
}

// IsWide reports whether img stores 16-bit channels.
func IsWide(img image.Image) bool {
	switch img.(type) {
	case *image.NRGBA64, *image.RGBA64, *image.Gray16:
		return true
	}
	return false
}
