package apng

import (
	"fmt"
	"image"
	"io"

	"github.com/deepteams/apng/animation"
	"github.com/deepteams/apng/internal/container"
	"github.com/deepteams/apng/internal/filter"
	"github.com/deepteams/apng/internal/interlace"
	"github.com/deepteams/apng/internal/payload"
	"github.com/deepteams/apng/internal/pool"
	"github.com/deepteams/apng/internal/raster"
	"github.com/deepteams/apng/mux"
)

// Encoder writes a PNG or APNG stream one frame at a time. Chunks are written
// as soon as a frame is pushed; nothing is buffered across frames. Every error
// is final.
type Encoder struct {
	mx   *mux.Muxer
	opts EncoderOptions

	hdr   Header
	model raster.Model
	asm   *animation.Assembler
	zw    *payload.Writer
	flt   *filter.Filterer

	started  bool
	animated bool
	pushed   int
	finished bool
	err      error
}

// NewEncoder returns an Encoder writing to w. opts may be nil. The header is
// written on the first Push, so the canvas size and color model can be taken
// from the first image.
func NewEncoder(w io.Writer, opts *EncoderOptions) *Encoder {
	e := &Encoder{mx: mux.NewMuxer(w)}
	if opts != nil {
		e.opts = *opts
	}
	e.animated = e.opts.FrameCount > 0
	return e
}

// Header returns the IHDR content once the first frame has been pushed.
func (e *Encoder) Header() Header { return e.hdr }

// BytesWritten returns the number of bytes written so far.
func (e *Encoder) BytesWritten() int64 { return e.mx.BytesWritten() }

// Push encodes one frame. For a still image (FrameCount 0) exactly one frame
// covering the canvas is accepted. For an animation, frames must stay inside
// the canvas, the first frame must cover it unless a DefaultImage is set, and
// no more than FrameCount frames may be pushed.
//
// An empty f.Bounds places the frame at the origin with the size of f.Image.
// The frame's SequenceNumber, IsDefault, IsLast and Canvas fields are ignored.
func (e *Encoder) Push(f *Frame) error {
	if e.err != nil {
		return e.err
	}
	if e.finished {
		return ErrEncoderClosed
	}
	if err := e.push(f); err != nil {
		e.err = err
		return err
	}
	return nil
}

func (e *Encoder) push(f *Frame) error {
	if f == nil || f.Image == nil {
		return ErrNilImage
	}
	bounds := f.Bounds
	size := f.Image.Bounds().Size()
	if bounds.Empty() {
		bounds = image.Rectangle{Max: size}
	}
	if bounds.Size() != size {
		return fmt.Errorf("%w: frame image is %v, bounds are %v", ErrInvalidAnimation, size, bounds.Size())
	}
	if bounds.Min.X < 0 || bounds.Min.Y < 0 {
		return fmt.Errorf("%w: frame at %v", ErrFrameOutOfCanvas, bounds.Min)
	}
	if !e.started {
		first := f.Image
		if e.opts.DefaultImage != nil {
			first = e.opts.DefaultImage
		}
		if err := e.start(first, bounds.Max); err != nil {
			return err
		}
	}

	if !e.animated {
		if e.pushed > 0 {
			return fmt.Errorf("%w: a still image takes one frame", ErrInvalidAnimation)
		}
		if bounds != image.Rect(0, 0, int(e.hdr.Width), int(e.hdr.Height)) {
			return fmt.Errorf("%w: %v on a %dx%d canvas", ErrFrameOutOfCanvas, bounds, e.hdr.Width, e.hdr.Height)
		}
		if _, err := e.asm.ImageData(); err != nil {
			return err
		}
		if err := e.writeImage(f.Image, e.emitIDAT); err != nil {
			return err
		}
		e.pushed++
		return e.asm.EndFrame()
	}

	fr := *f
	fr.Bounds = bounds
	fc := fr.Control(e.asm.NextSequence())
	if err := e.asm.FrameControl(fc); err != nil {
		return err
	}
	if err := e.mx.Write(fc); err != nil {
		return err
	}
	emit := e.emitFDAT
	if e.opts.DefaultImage == nil && e.pushed == 0 {
		if _, err := e.asm.ImageData(); err != nil {
			return err
		}
		emit = e.emitIDAT
	}
	if err := e.writeImage(f.Image, emit); err != nil {
		return err
	}
	e.pushed++
	return e.asm.EndFrame()
}

// start derives the header from the options and the first image and writes
// every chunk that precedes the image data.
func (e *Encoder) start(first image.Image, extent image.Point) error {
	e.started = true
	o := &e.opts
	if err := validateOptions(o); err != nil {
		return err
	}

	w, h := o.Width, o.Height
	if w == 0 || h == 0 {
		size := first.Bounds().Size()
		if o.DefaultImage == nil {
			size = extent
		}
		w, h = size.X, size.Y
	}

	m, err := e.chooseModel(first)
	if err != nil {
		return err
	}
	e.model = m
	e.hdr = Header{
		Width:     uint32(w),
		Height:    uint32(h),
		BitDepth:  m.BitDepth,
		ColorType: m.ColorType,
	}
	if o.Interlace {
		e.hdr.Interlace = container.InterlaceAdam7
	}
	if err := e.hdr.Validate(); err != nil {
		return err
	}
	e.asm = animation.NewAssembler(e.hdr.Width, e.hdr.Height)

	if err := e.mx.Write(mux.ImageHeader{Header: e.hdr}); err != nil {
		return err
	}
	if e.animated {
		ac := mux.AnimationControl{FrameCount: uint32(o.FrameCount), LoopCount: uint32(o.LoopCount)}
		if err := e.asm.Control(ac); err != nil {
			return err
		}
		if err := e.mx.Write(ac); err != nil {
			return err
		}
	}
	if m.ColorType == container.ColorPalette {
		entries, alpha := raster.SplitPalette(m.Palette)
		if err := e.mx.Write(mux.Palette{Entries: entries}); err != nil {
			return err
		}
		if alpha != nil {
			if err := e.mx.Write(mux.PaletteTransparency(alpha)); err != nil {
				return err
			}
		}
	}
	for _, t := range o.Text {
		if err := e.mx.Write(t); err != nil {
			return err
		}
	}
	for _, c := range o.Chunks {
		if c.Tag.IsCritical() {
			return fmt.Errorf("%w: cannot forward %s", ErrUnsupportedCriticalChunk, c.Tag)
		}
		if err := e.mx.Write(c); err != nil {
			return err
		}
	}

	rowBytes := m.RowBytes(w)
	e.flt = filter.NewFilterer(o.Filter.mode(), rowBytes, m.BytesPerPixel())
	e.zw, err = payload.NewWriter(o.Compression.level(), o.MaxChunkSize, e.emitIDAT)
	if err != nil {
		return err
	}

	if o.DefaultImage != nil {
		if o.DefaultImage.Bounds().Size() != image.Pt(w, h) {
			return fmt.Errorf("%w: default image is %v, canvas is %dx%d",
				ErrInvalidAnimation, o.DefaultImage.Bounds().Size(), w, h)
		}
		if _, err := e.asm.ImageData(); err != nil {
			return err
		}
		if err := e.writeImage(o.DefaultImage, e.emitIDAT); err != nil {
			return err
		}
	}
	return nil
}

// chooseModel resolves the color model and bit depth.
func (e *Encoder) chooseModel(first image.Image) (raster.Model, error) {
	o := &e.opts
	var m raster.Model
	if o.ColorModel == ColorAuto {
		m = raster.ModelFor(first)
	} else {
		m = raster.Model{ColorType: o.ColorModel.colorType(), BitDepth: 8}
		if raster.ModelFor(first).BitDepth == 16 && m.ColorType != container.ColorPalette {
			m.BitDepth = 16
		}
	}

	if m.ColorType == container.ColorPalette {
		pal := o.Palette
		if pal == nil {
			if p, ok := first.(*image.Paletted); ok {
				pal = p.Palette
			}
		}
		if len(pal) == 0 {
			return m, fmt.Errorf("apng: indexed color needs a Palette or an *image.Paletted image")
		}
		m.Palette = pal
		m.BitDepth = raster.PaletteDepth(len(pal))
	}
	if o.BitDepth != 0 {
		m.BitDepth = uint8(o.BitDepth)
	}
	if !m.ColorType.AllowsDepth(m.BitDepth) {
		return m, fmt.Errorf("%w: %w: %s at bit depth %d",
			ErrInvalidHeader, ErrUnsupportedColorCombination, m.ColorType, m.BitDepth)
	}
	if m.ColorType == container.ColorPalette && len(m.Palette) > 1<<m.BitDepth {
		return m, fmt.Errorf("apng: palette of %d entries does not fit bit depth %d", len(m.Palette), m.BitDepth)
	}
	return m, nil
}

func (e *Encoder) emitIDAT(data []byte) error {
	return e.mx.Write(mux.ImageData{Data: data})
}

func (e *Encoder) emitFDAT(data []byte) error {
	seq := e.asm.NextSequence()
	if err := e.asm.FrameData(seq); err != nil {
		return err
	}
	return e.mx.Write(mux.FrameData{SequenceNumber: seq, Data: data})
}

// writeImage filters and compresses img and emits it as one run of data
// chunks.
func (e *Encoder) writeImage(img image.Image, emit payload.EmitFunc) error {
	e.zw.Reset(emit)
	m := &e.model
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()

	if e.hdr.Interlace == container.InterlaceNone {
		p := interlace.NonInterlaced(width, height)
		if err := e.writePass(p, func(py int, row []byte) {
			m.EncodeRow(row, img, py)
		}); err != nil {
			return err
		}
	} else {
		rb := m.RowBytes(width)
		packed := pool.Get(rb * height)
		defer pool.Put(packed)
		for y := 0; y < height; y++ {
			m.EncodeRow(packed[y*rb:(y+1)*rb], img, y)
		}
		bits := m.BitsPerPixel()
		for _, p := range interlace.Passes(width, height) {
			if p.Empty() {
				continue
			}
			if err := e.writePass(p, func(py int, row []byte) {
				y := p.Row(py)
				p.Gather(row, packed[y*rb:(y+1)*rb], bits)
			}); err != nil {
				return err
			}
		}
	}
	_, err := e.zw.Close()
	return err
}

// writePass filters and compresses the scanlines of one pass. fill packs
// pass row py into the row it is given.
func (e *Encoder) writePass(p interlace.Pass, fill func(py int, row []byte)) error {
	n := e.model.RowBytes(p.Width)
	cur, prev := pool.Get(n), pool.Get(n)
	defer pool.Put(cur)
	defer pool.Put(prev)

	var up []byte
	var ft [1]byte
	for py := 0; py < p.Height; py++ {
		fill(py, cur)
		t, out := e.flt.Filter(cur, up)
		ft[0] = byte(t)
		if _, err := e.zw.Write(ft[:]); err != nil {
			return err
		}
		if _, err := e.zw.Write(out); err != nil {
			return err
		}
		cur, prev = prev, cur
		up = prev
	}
	return nil
}

// Finish writes IEND. It fails with ErrIncompleteAnimation, without writing
// IEND, when fewer frames than FrameCount were pushed. Finish does not close
// the underlying writer. Calling Finish again returns the same result.
func (e *Encoder) Finish() error {
	if e.err != nil {
		return e.err
	}
	if e.finished {
		return nil
	}
	if !e.started {
		e.err = ErrNoFrames
		return e.err
	}
	if err := e.asm.End(); err != nil {
		e.err = err
		return err
	}
	if err := e.mx.Close(); err != nil {
		e.err = err
		return err
	}
	e.finished = true
	return nil
}
