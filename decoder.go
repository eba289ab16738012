package apng

import (
	"bufio"
	"fmt"
	"image"
	"image/color"
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

// Metadata holds the non-pixel content of a stream.
type Metadata struct {
	// Palette is the PLTE content with tRNS alpha applied, or nil.
	Palette color.Palette

	// Transparency is the raw tRNS payload, or nil.
	Transparency []byte

	// Text holds the tEXt chunks read so far.
	Text []Text

	// Unknown holds the ancillary chunks this package does not interpret
	// that appeared before the image data.
	Unknown []RawChunk
}

// Decoder reads a PNG or APNG stream one frame at a time. Every error is
// final: once Next fails it keeps returning the same error, and io.EOF after
// the last frame.
type Decoder struct {
	dmx  *mux.Demuxer
	opts DecoderOptions

	hdr     Header
	meta    Metadata
	entries [][3]uint8
	model   raster.Model

	asm    *animation.Assembler
	canvas *animation.Canvas
	zr     *payload.Reader
	hidden bool // the IDAT image is not part of the animation

	pending mux.Chunk // chunk read past the end of a data run
	err     error
}

// NewDecoder reads the signature and every chunk up to the first image data
// from r, so that Header, Metadata and Animation are available on return.
// opts may be nil.
func NewDecoder(r io.Reader, opts *DecoderOptions) (*Decoder, error) {
	d := &Decoder{}
	if opts != nil {
		d.opts = *opts
	}
	if _, ok := r.(io.ByteReader); !ok {
		r = bufio.NewReader(r)
	}
	d.dmx = mux.NewDemuxer(r, d.opts.MaxChunkSize)
	if err := d.readHeader(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Decoder) readHeader() error {
	for {
		c, err := d.dmx.Next()
		if err != nil {
			return err
		}
		switch c := c.(type) {
		case mux.ImageHeader:
			d.hdr = c.Header
			if limit := d.opts.MaxPixels; limit > 0 && uint64(c.Width)*uint64(c.Height) > limit {
				return fmt.Errorf("%w: %dx%d image exceeds %d pixels", ErrInvalidHeader, c.Width, c.Height, limit)
			}
			d.asm = animation.NewAssembler(c.Width, c.Height)
		case mux.AnimationControl:
			if err := d.asm.Control(c); err != nil {
				return err
			}
		case mux.FrameControl, mux.ImageData, mux.FrameData, mux.End:
			d.pending = c
			d.buildModel()
			return nil
		default:
			d.absorb(c, true)
		}
	}
}

// absorb records a metadata chunk. Unknown chunks are kept only before the
// image data.
func (d *Decoder) absorb(c mux.Chunk, keepUnknown bool) {
	switch c := c.(type) {
	case mux.Palette:
		d.entries = c.Entries
	case mux.Transparency:
		d.meta.Transparency = c.Data
	case mux.Text:
		d.meta.Text = append(d.meta.Text, c)
	case mux.Raw:
		if keepUnknown {
			d.meta.Unknown = append(d.meta.Unknown, c)
		}
	}
}

func (d *Decoder) buildModel() {
	m := raster.Model{ColorType: d.hdr.ColorType, BitDepth: d.hdr.BitDepth}
	switch d.hdr.ColorType {
	case container.ColorPalette:
		m.Palette = raster.BuildPalette(d.entries, d.meta.Transparency)
		d.meta.Palette = m.Palette
	case container.ColorGray, container.ColorRGB:
		if d.meta.Transparency != nil {
			m.Key = mux.Transparency{Data: d.meta.Transparency}.Key()
			m.HasKey = true
		}
	}
	d.model = m
}

// Header returns the IHDR content.
func (d *Decoder) Header() Header { return d.hdr }

// Metadata returns the metadata read so far. Text chunks after the image
// data appear once Next has passed them.
func (d *Decoder) Metadata() Metadata { return d.meta }

// Animation returns the acTL content and whether the stream is animated.
func (d *Decoder) Animation() (AnimationControl, bool) {
	return d.asm.AnimationControl(), d.asm.Animated()
}

// DefaultHidden reports whether the IDAT image was found not to be part of
// the animation. It is meaningful once Next has returned the default image
// or a later frame.
func (d *Decoder) DefaultHidden() bool { return d.hidden }

// Next decodes and returns the next frame. It returns io.EOF after the last
// frame once IEND has been read. A hidden default image is skipped unless
// IncludeDefaultImage is set.
func (d *Decoder) Next() (*Frame, error) {
	if d.err != nil {
		return nil, d.err
	}
	f, err := d.next()
	if err != nil {
		d.err = err
		return nil, err
	}
	return f, nil
}

func (d *Decoder) chunk() (mux.Chunk, error) {
	if c := d.pending; c != nil {
		d.pending = nil
		return c, nil
	}
	return d.dmx.Next()
}

func (d *Decoder) next() (*Frame, error) {
	for {
		c, err := d.chunk()
		if err != nil {
			return nil, err
		}
		switch c := c.(type) {
		case mux.FrameControl:
			if err := d.asm.FrameControl(c); err != nil {
				return nil, err
			}

		case mux.ImageData:
			kind, err := d.asm.ImageData()
			if err != nil {
				return nil, err
			}
			d.buildModel()
			f, err := d.readIDAT(kind, c.Data)
			if err != nil {
				return nil, err
			}
			if f != nil {
				return f, nil
			}

		case mux.FrameData:
			if !d.asm.Animated() {
				continue
			}
			if err := d.asm.FrameData(c.SequenceNumber); err != nil {
				return nil, err
			}
			fc := d.asm.Pending()
			f := animation.FromControl(fc)
			img, err := d.decodeImage(int(fc.Width), int(fc.Height), d.run(c.Data, true))
			if err != nil {
				return nil, err
			}
			f.Image = img
			if err := d.endFrame(&f); err != nil {
				return nil, err
			}
			return &f, nil

		case mux.End:
			if err := d.asm.End(); err != nil {
				return nil, err
			}
			return nil, io.EOF

		default:
			d.absorb(c, false)
		}
	}
}

// readIDAT decodes the IDAT image. It returns a nil frame for a hidden
// default image the caller did not ask for.
func (d *Decoder) readIDAT(kind animation.DataKind, first []byte) (*Frame, error) {
	full := image.Rect(0, 0, int(d.hdr.Width), int(d.hdr.Height))
	f := Frame{Bounds: full, IsDefault: true}
	if kind == animation.FirstFrame {
		fc := d.asm.Pending()
		f = animation.FromControl(fc)
		f.IsDefault = true
	}
	img, err := d.decodeImage(full.Dx(), full.Dy(), d.run(first, false))
	if err != nil {
		return nil, err
	}
	f.Image = img

	switch kind {
	case animation.HiddenDefault:
		d.hidden = true
		if !d.opts.IncludeDefaultImage {
			return nil, nil
		}
		return &f, nil
	case animation.StillImage:
		if err := d.asm.EndFrame(); err != nil {
			return nil, err
		}
		f.IsLast = true
		if d.opts.Compose {
			f.Canvas = img
		}
		return &f, nil
	}
	if err := d.endFrame(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// endFrame closes an animation frame and composes it.
func (d *Decoder) endFrame(f *Frame) error {
	if err := d.asm.EndFrame(); err != nil {
		return err
	}
	f.IsLast = d.asm.Remaining() == 0
	if d.opts.Compose {
		if d.canvas == nil {
			d.canvas = animation.NewCanvas(int(d.hdr.Width), int(d.hdr.Height), d.hdr.BitDepth == 16)
		}
		d.canvas.Render(f)
		f.Canvas = d.canvas.Snapshot()
	}
	return nil
}

// run returns the chunk source for one compressed stream, starting with the
// payload of the chunk that opened it. The run ends at the first chunk of
// another kind, which is kept for the next call to Next. Ancillary chunks
// inside a run are skipped.
func (d *Decoder) run(first []byte, fdAT bool) payload.NextFunc {
	started := false
	return func() ([]byte, error) {
		if !started {
			started = true
			return first, nil
		}
		for {
			c, err := d.dmx.Next()
			if err != nil {
				return nil, err
			}
			switch c := c.(type) {
			case mux.ImageData:
				if !fdAT {
					return c.Data, nil
				}
			case mux.FrameData:
				if fdAT {
					if err := d.asm.FrameData(c.SequenceNumber); err != nil {
						return nil, err
					}
					return c.Data, nil
				}
			case mux.Text:
				d.absorb(c, false)
				continue
			case mux.Raw:
				continue
			}
			d.pending = c
			return nil, io.EOF
		}
	}
}

// decodeImage inflates, unfilters and de-interlaces one width x height
// image. Nothing is returned unless the whole image decoded. Pixel buffers
// are allocated once the first scanline has inflated.
func (d *Decoder) decodeImage(width, height int, next payload.NextFunc) (image.Image, error) {
	if d.zr == nil {
		d.zr = payload.NewReader(next)
	} else {
		d.zr.Reset(next)
	}
	m := &d.model
	var img image.Image
	bits, bpp := m.BitsPerPixel(), m.BytesPerPixel()

	if d.hdr.Interlace == container.InterlaceNone {
		p := interlace.NonInterlaced(width, height)
		err := d.decodePass(p, bpp, func(py int, row []byte) {
			if img == nil {
				img = m.NewImage(width, height)
			}
			m.DecodeRow(img, py, row)
		})
		if err != nil {
			return nil, err
		}
	} else {
		rb := m.RowBytes(width)
		var packed []byte
		defer func() {
			if packed != nil {
				pool.Put(packed)
			}
		}()
		for _, p := range interlace.Passes(width, height) {
			if p.Empty() {
				continue
			}
			err := d.decodePass(p, bpp, func(py int, row []byte) {
				if packed == nil {
					packed = pool.GetZeroed(rb * height)
				}
				y := p.Row(py)
				p.Scatter(packed[y*rb:(y+1)*rb], row, bits)
			})
			if err != nil {
				return nil, err
			}
		}
		img = m.NewImage(width, height)
		for y := 0; y < height; y++ {
			m.DecodeRow(img, y, packed[y*rb:(y+1)*rb])
		}
	}

	if err := d.zr.Finish(); err != nil {
		return nil, err
	}
	return img, nil
}

// decodePass reads the scanlines of one pass and hands each unfiltered row
// to emit. The row is only valid during the call.
func (d *Decoder) decodePass(p interlace.Pass, bpp int, emit func(py int, row []byte)) error {
	n := d.model.RowBytes(p.Width) + 1
	cur, prev := pool.Get(n), pool.Get(n)
	defer pool.Put(cur)
	defer pool.Put(prev)

	var up []byte
	for py := 0; py < p.Height; py++ {
		if err := d.zr.ReadFull(cur); err != nil {
			return err
		}
		if err := filter.Unfilter(filter.Type(cur[0]), cur[1:], up, bpp); err != nil {
			return err
		}
		emit(py, cur[1:])
		cur, prev = prev, cur
		up = prev[1:]
	}
	return nil
}
