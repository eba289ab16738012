package animation

import (
	"fmt"

	"github.com/deepteams/apng/internal/container"
	"github.com/deepteams/apng/mux"
)

// State is the position of the Assembler in the APNG chunk protocol.
type State int

const (
	// AwaitingACTL: no acTL seen yet. If image data arrives in this state
	// the stream is a plain PNG.
	AwaitingACTL State = iota
	// AwaitingFrame: between frames, expecting fcTL (or the IDAT of a
	// hidden default image).
	AwaitingFrame
	// InFrame: an fcTL has been accepted and its frame's data is arriving.
	InFrame
	// Done: IEND accepted.
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingACTL:
		return "awaiting acTL"
	case AwaitingFrame:
		return "awaiting frame"
	case InFrame:
		return "in frame"
	case Done:
		return "done"
	}
	return "unknown"
}

// DataKind classifies the IDAT image of a stream.
type DataKind int

const (
	// StillImage: no acTL, the IDAT image is the only frame.
	StillImage DataKind = iota
	// FirstFrame: the IDAT image is frame 0 of the animation.
	FirstFrame
	// HiddenDefault: the IDAT image is not part of the animation.
	HiddenDefault
)

// Assembler validates the APNG frame protocol chunk by chunk. It never sees
// pixel data: callers report chunk arrivals and frame boundaries, and the
// Assembler answers with the frame each chunk belongs to or an error. The
// same Assembler checks an encoder's output.
type Assembler struct {
	width, height uint32

	state    State
	ctl      mux.AnimationControl
	animated bool
	nextSeq  uint32
	started  uint32 // frames whose fcTL has been accepted
	finished uint32 // frames whose data run has ended
	idat     bool   // the IDAT run has started
	pending  mux.FrameControl
	hasData  bool // the pending frame has received image data
	first    bool // the pending frame is frame 0
}

// NewAssembler returns an Assembler for a width x height canvas.
func NewAssembler(width, height uint32) *Assembler {
	return &Assembler{width: width, height: height}
}

// State returns the current protocol state.
func (a *Assembler) State() State { return a.state }

// Animated reports whether an acTL chunk was accepted.
func (a *Assembler) Animated() bool { return a.animated }

// AnimationControl returns the accepted acTL chunk.
func (a *Assembler) AnimationControl() mux.AnimationControl { return a.ctl }

// NextSequence returns the sequence number the next fcTL or fdAT must carry.
func (a *Assembler) NextSequence() uint32 { return a.nextSeq }

// Pending returns the fcTL of the frame being assembled. For frame 0 a
// dispose_op of Previous is reported as Background, since there is no
// earlier canvas to restore.
func (a *Assembler) Pending() mux.FrameControl {
	fc := a.pending
	if a.first && fc.Dispose == mux.DisposeOpPrevious {
		fc.Dispose = mux.DisposeOpBackground
	}
	return fc
}

// Remaining returns the number of declared frames not yet finished.
func (a *Assembler) Remaining() uint32 {
	if !a.animated {
		if a.finished > 0 {
			return 0
		}
		return 1
	}
	return a.ctl.FrameCount - a.finished
}

// Control accepts an acTL chunk.
func (a *Assembler) Control(ac mux.AnimationControl) error {
	if a.state != AwaitingACTL || a.idat {
		return fmt.Errorf("%w: acTL in state %s", container.ErrChunkOrder, a.state)
	}
	if ac.FrameCount == 0 {
		return fmt.Errorf("%w: acTL frame count is 0", container.ErrInvalidAnimation)
	}
	a.ctl = ac
	a.animated = true
	a.state = AwaitingFrame
	return nil
}

// FrameControl accepts an fcTL chunk. Without a preceding acTL the chunk is
// not part of any animation and is ignored.
func (a *Assembler) FrameControl(fc mux.FrameControl) error {
	if !a.animated {
		return nil
	}
	if a.state != AwaitingFrame {
		return fmt.Errorf("%w: fcTL %d in state %s", container.ErrInvalidAnimation, fc.SequenceNumber, a.state)
	}
	if fc.SequenceNumber != a.nextSeq {
		return fmt.Errorf("%w: fcTL has %d, want %d", container.ErrSequenceOrder, fc.SequenceNumber, a.nextSeq)
	}
	if a.started >= a.ctl.FrameCount {
		return fmt.Errorf("%w: more than %d frames", container.ErrInvalidAnimation, a.ctl.FrameCount)
	}
	if err := fc.CheckBounds(a.width, a.height); err != nil {
		return err
	}
	if !a.idat && (fc.XOffset != 0 || fc.YOffset != 0 || fc.Width != a.width || fc.Height != a.height) {
		return fmt.Errorf("%w: first frame %dx%d at (%d,%d) does not cover the %dx%d canvas",
			container.ErrInvalidAnimation, fc.Width, fc.Height, fc.XOffset, fc.YOffset, a.width, a.height)
	}
	a.nextSeq++
	a.pending = fc
	a.first = a.started == 0
	a.started++
	a.hasData = false
	a.state = InFrame
	return nil
}

// ImageData accepts the first IDAT chunk of the stream and reports which
// frame the IDAT image is.
func (a *Assembler) ImageData() (DataKind, error) {
	if a.idat {
		return 0, fmt.Errorf("%w: second IDAT run", container.ErrChunkOrder)
	}
	a.idat = true
	switch a.state {
	case AwaitingACTL:
		a.state = InFrame
		a.hasData = true
		return StillImage, nil
	case InFrame:
		a.hasData = true
		return FirstFrame, nil
	case AwaitingFrame:
		return HiddenDefault, nil
	}
	return 0, fmt.Errorf("%w: IDAT in state %s", container.ErrChunkOrder, a.state)
}

// FrameData accepts an fdAT chunk carrying sequence number seq. Without a
// preceding acTL the chunk is ignored.
func (a *Assembler) FrameData(seq uint32) error {
	if !a.animated {
		return nil
	}
	if a.state != InFrame || !a.idat {
		return fmt.Errorf("%w: fdAT %d outside a frame", container.ErrInvalidAnimation, seq)
	}
	if seq != a.nextSeq {
		return fmt.Errorf("%w: fdAT has %d, want %d", container.ErrSequenceOrder, seq, a.nextSeq)
	}
	a.nextSeq++
	a.hasData = true
	return nil
}

// EndFrame marks the end of the current frame's data run.
func (a *Assembler) EndFrame() error {
	if a.state != InFrame || !a.hasData {
		return fmt.Errorf("%w: frame has no image data", container.ErrInvalidAnimation)
	}
	a.finished++
	if a.animated {
		a.state = AwaitingFrame
	} else {
		a.state = Done
	}
	return nil
}

// End accepts IEND. Fewer finished frames than acTL declared is
// ErrIncompleteAnimation.
func (a *Assembler) End() error {
	if a.state == InFrame {
		return fmt.Errorf("%w: stream ended inside frame %d", container.ErrIncompleteAnimation, a.started-1)
	}
	if a.animated && a.finished < a.ctl.FrameCount {
		return fmt.Errorf("%w: %d of %d frames", container.ErrIncompleteAnimation, a.finished, a.ctl.FrameCount)
	}
	a.state = Done
	return nil
}
