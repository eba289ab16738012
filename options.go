package apng

import (
	"fmt"
	"image"
	"image/color"

	"github.com/klauspost/compress/zlib"

	"github.com/deepteams/apng/internal/container"
	"github.com/deepteams/apng/internal/filter"
)

// ColorModel selects the color type written to IHDR.
type ColorModel int

const (
	// ColorAuto derives the color type from the first image: *image.Gray and
	// *image.Gray16 stay grayscale, *image.Paletted stays indexed, opaque
	// images become rgb and everything else rgba.
	ColorAuto ColorModel = iota
	ColorGray
	ColorRGB
	ColorPalette
	ColorGrayAlpha
	ColorRGBA
)

func (c ColorModel) colorType() container.ColorType {
	switch c {
	case ColorGray:
		return container.ColorGray
	case ColorRGB:
		return container.ColorRGB
	case ColorPalette:
		return container.ColorPalette
	case ColorGrayAlpha:
		return container.ColorGrayAlpha
	}
	return container.ColorRGBA
}

// Filter selects how scanlines are filtered before compression.
type Filter int

const (
	// FilterAdaptive picks the filter with the smallest sum of absolute
	// residues for every scanline.
	FilterAdaptive Filter = iota
	FilterNone
	FilterSub
	FilterUp
	FilterAverage
	FilterPaeth
)

func (f Filter) mode() filter.Mode {
	if f == FilterAdaptive {
		return filter.Adaptive
	}
	return filter.Mode(f - 1)
}

// CompressionLevel selects the zlib effort. Values 1 to 9 are passed through
// as zlib levels.
type CompressionLevel int

const (
	DefaultCompression CompressionLevel = 0
	NoCompression      CompressionLevel = -1
	BestSpeed          CompressionLevel = -2
	BestCompression    CompressionLevel = -3
	HuffmanOnly        CompressionLevel = -4
)

func (c CompressionLevel) level() int {
	switch c {
	case DefaultCompression:
		return zlib.DefaultCompression
	case NoCompression:
		return zlib.NoCompression
	case BestSpeed:
		return zlib.BestSpeed
	case BestCompression:
		return zlib.BestCompression
	case HuffmanOnly:
		return zlib.HuffmanOnly
	}
	return int(c)
}

// EncoderOptions controls PNG/APNG encoding. The zero value writes a still
// image with the color model of the image, adaptive filtering and default
// compression.
type EncoderOptions struct {
	// Width and Height are the canvas size. Zero means the size of the first
	// image pushed (or of DefaultImage).
	Width  int
	Height int

	// ColorModel selects the IHDR color type.
	ColorModel ColorModel

	// BitDepth overrides the natural depth of the color model: 8 for most
	// models, 16 for 16-bit source images, the smallest depth holding the
	// palette for indexed images.
	BitDepth int

	// Palette is the PLTE content for ColorPalette. Nil takes the palette of
	// the first image, which must then be an *image.Paletted. Entries with
	// alpha below 255 produce a tRNS chunk.
	Palette color.Palette

	// Interlace enables Adam7 interlacing.
	Interlace bool

	Filter      Filter
	Compression CompressionLevel

	// MaxChunkSize caps the data bytes per IDAT or fdAT chunk. Zero means
	// 32 KiB.
	MaxChunkSize int

	// FrameCount declares an animation of that many frames. Zero writes a
	// plain PNG that takes exactly one frame.
	FrameCount int

	// LoopCount is the number of animation plays; 0 loops forever.
	LoopCount int

	// DefaultImage, if set, is written as the IDAT image shown by viewers
	// without APNG support and is not part of the animation. It must have
	// the canvas size. Requires FrameCount > 0.
	DefaultImage image.Image

	// Text holds tEXt chunks written before the image data.
	Text []Text

	// Chunks holds ancillary chunks forwarded verbatim before the image data.
	Chunks []RawChunk
}

// DecoderOptions controls decoding.
type DecoderOptions struct {
	// Compose renders every animation frame onto a canvas and returns a
	// snapshot in Frame.Canvas.
	Compose bool

	// IncludeDefaultImage makes Next also return an IDAT image that is not
	// part of the animation. It is flagged with IsDefault.
	IncludeDefaultImage bool

	// MaxChunkSize rejects chunks declaring more data bytes; zero means the
	// PNG limit of 2^31-1.
	MaxChunkSize uint32

	// MaxPixels rejects headers whose width x height is larger. Zero keeps
	// the built-in limit of 2^28 pixels, which it can only lower.
	MaxPixels uint64
}

func validateOptions(o *EncoderOptions) error {
	if o.Width < 0 || o.Height < 0 || o.Width > container.MaxDimension || o.Height > container.MaxDimension {
		return fmt.Errorf("apng: invalid canvas size %dx%d", o.Width, o.Height)
	}
	if o.ColorModel < ColorAuto || o.ColorModel > ColorRGBA {
		return fmt.Errorf("apng: invalid ColorModel %d", o.ColorModel)
	}
	if o.BitDepth < 0 || o.BitDepth > 16 {
		return fmt.Errorf("apng: invalid BitDepth %d", o.BitDepth)
	}
	if o.Filter < FilterAdaptive || o.Filter > FilterPaeth {
		return fmt.Errorf("apng: invalid Filter %d", o.Filter)
	}
	if o.Compression < HuffmanOnly || o.Compression > 9 {
		return fmt.Errorf("apng: invalid Compression %d", o.Compression)
	}
	if o.MaxChunkSize < 0 || o.MaxChunkSize > container.MaxChunkLength-container.SequenceSize {
		return fmt.Errorf("%w: MaxChunkSize %d", ErrChunkTooLarge, o.MaxChunkSize)
	}
	if o.FrameCount < 0 || uint64(o.FrameCount) > 1<<31-1 {
		return fmt.Errorf("apng: invalid FrameCount %d", o.FrameCount)
	}
	if o.LoopCount < 0 || uint64(o.LoopCount) > 1<<31-1 {
		return fmt.Errorf("apng: invalid LoopCount %d", o.LoopCount)
	}
	if o.DefaultImage != nil && o.FrameCount == 0 {
		return fmt.Errorf("apng: DefaultImage requires FrameCount > 0")
	}
	if len(o.Palette) > 256 {
		return fmt.Errorf("apng: palette has %d entries, at most 256 allowed", len(o.Palette))
	}
	for _, t := range o.Text {
		if err := t.Check(); err != nil {
			return err
		}
	}
	return nil
}
