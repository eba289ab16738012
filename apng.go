package apng

import (
	"bufio"
	"errors"
	"fmt"
	"image"
	"io"

	"github.com/deepteams/apng/animation"
	"github.com/deepteams/apng/internal/container"
	"github.com/deepteams/apng/mux"
)

func init() {
	image.RegisterFormat("apng", container.Signature, Decode, DecodeConfig)
}

// Errors returned by the codec. Use errors.Is to test for them; most are
// wrapped with detail about the offending chunk.
var (
	ErrInvalidSignature            = container.ErrInvalidSignature
	ErrCorruptChunk                = container.ErrCorruptChunk
	ErrHeaderMissing               = container.ErrHeaderMissing
	ErrInvalidHeader               = container.ErrInvalidHeader
	ErrUnsupportedColorCombination = container.ErrUnsupportedColorCombination
	ErrUnsupportedCriticalChunk    = container.ErrUnsupportedCriticalChunk
	ErrChunkOrder                  = container.ErrChunkOrder
	ErrChunkTooLarge               = container.ErrChunkTooLarge
	ErrInvalidChunk                = container.ErrInvalidChunk
	ErrTruncatedStream             = container.ErrTruncatedStream
	ErrDecompression               = container.ErrDecompression
	ErrInvalidAnimation            = container.ErrInvalidAnimation
	ErrIncompleteAnimation         = container.ErrIncompleteAnimation
	ErrSequenceOrder               = container.ErrSequenceOrder
	ErrFrameOutOfCanvas            = container.ErrFrameOutOfCanvas

	ErrNoFrames      = animation.ErrNoFrames
	ErrNilImage      = animation.ErrNilImage
	ErrEncoderClosed = errors.New("apng: encoder finished")
)

// Header is the content of the IHDR chunk.
type Header = container.Header

// ColorType is the IHDR color type.
type ColorType = container.ColorType

const (
	Grayscale      = container.ColorGray
	Truecolor      = container.ColorRGB
	Indexed        = container.ColorPalette
	GrayscaleAlpha = container.ColorGrayAlpha
	TruecolorAlpha = container.ColorRGBA
)

type (
	// Frame is one decoded or to-be-encoded image with its animation
	// parameters.
	Frame = animation.Frame
	// Animation is a whole decoded stream.
	Animation = animation.Animation
	// AnimationControl is the content of the acTL chunk.
	AnimationControl = mux.AnimationControl
	// Text is a tEXt keyword/value pair.
	Text = mux.Text
	// RawChunk is an ancillary chunk carried verbatim.
	RawChunk = mux.Raw
	// DisposeMethod is the fcTL dispose_op.
	DisposeMethod = animation.DisposeMethod
	// BlendMethod is the fcTL blend_op.
	BlendMethod = animation.BlendMethod
)

const (
	DisposeNone       = animation.DisposeNone
	DisposeBackground = animation.DisposeBackground
	DisposePrevious   = animation.DisposePrevious

	BlendSource = animation.BlendSource
	BlendOver   = animation.BlendOver
)

// Decode reads a PNG or APNG stream from r and returns its default image
// (the IDAT image). Animation frames after it are not decoded.
func Decode(r io.Reader) (image.Image, error) {
	d, err := NewDecoder(r, &DecoderOptions{IncludeDefaultImage: true})
	if err != nil {
		return nil, err
	}
	f, err := d.Next()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: no image data", ErrTruncatedStream)
	}
	if err != nil {
		return nil, err
	}
	return f.Image, nil
}

// DecodeConfig returns the color model and dimensions of a PNG or APNG
// image without decoding any image data.
func DecodeConfig(r io.Reader) (image.Config, error) {
	d, err := NewDecoder(r, nil)
	if err != nil {
		return image.Config{}, err
	}
	return image.Config{
		ColorModel: d.model.NewImage(1, 1).ColorModel(),
		Width:      int(d.hdr.Width),
		Height:     int(d.hdr.Height),
	}, nil
}

// DecodeAll reads every frame of a PNG or APNG stream. A still PNG yields a
// single frame. With a nil opts frames are composed.
func DecodeAll(r io.Reader, opts *DecoderOptions) (*Animation, error) {
	o := DecoderOptions{Compose: true}
	if opts != nil {
		o = *opts
	}
	compose := o.Compose
	o.Compose = false
	o.IncludeDefaultImage = true

	d, err := NewDecoder(r, &o)
	if err != nil {
		return nil, err
	}
	ac, _ := d.Animation()
	anim := &Animation{
		Width:     int(d.hdr.Width),
		Height:    int(d.hdr.Height),
		LoopCount: ac.LoopCount,
	}
	for {
		f, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if f.IsDefault && d.DefaultHidden() {
			anim.Default = f.Image
			continue
		}
		anim.Frames = append(anim.Frames, *f)
	}
	anim.Text = d.Metadata().Text
	if compose {
		anim.Compose()
	}
	return anim, nil
}

// Encode writes img to w as a still PNG.
func Encode(w io.Writer, img image.Image, opts *EncoderOptions) error {
	var o EncoderOptions
	if opts != nil {
		o = *opts
	}
	o.FrameCount = 0
	o.DefaultImage = nil
	bw := bufio.NewWriter(w)
	e := NewEncoder(bw, &o)
	if err := e.Push(&Frame{Image: img}); err != nil {
		return err
	}
	if err := e.Finish(); err != nil {
		return err
	}
	return bw.Flush()
}

// EncodeAll writes anim to w. A single-frame animation without a default
// image is still written as an APNG; use Encode for a plain PNG. Fields of
// opts that describe the animation (canvas, frame and loop counts, default
// image and text) are taken from anim.
func EncodeAll(w io.Writer, anim *Animation, opts *EncoderOptions) error {
	if err := anim.Validate(); err != nil {
		return err
	}
	var o EncoderOptions
	if opts != nil {
		o = *opts
	}
	o.Width, o.Height = anim.Width, anim.Height
	o.FrameCount = len(anim.Frames)
	o.LoopCount = int(anim.LoopCount)
	o.DefaultImage = anim.Default
	if anim.Text != nil {
		o.Text = anim.Text
	}

	bw := bufio.NewWriter(w)
	e := NewEncoder(bw, &o)
	for i := range anim.Frames {
		if err := e.Push(&anim.Frames[i]); err != nil {
			return err
		}
	}
	if err := e.Finish(); err != nil {
		return err
	}
	return bw.Flush()
}
