package container

import (
	"encoding/binary"
	"fmt"
)

// ColorType is the IHDR color type.
type ColorType uint8

const (
	ColorGray      ColorType = 0 // greyscale: 1, 2, 4, 8, 16 bit
	ColorRGB       ColorType = 2 // truecolor: 8, 16 bit
	ColorPalette   ColorType = 3 // indexed: 1, 2, 4, 8 bit
	ColorGrayAlpha ColorType = 4 // greyscale with alpha: 8, 16 bit
	ColorRGBA      ColorType = 6 // truecolor with alpha: 8, 16 bit
)

// Channels returns the number of samples per pixel.
func (c ColorType) Channels() int {
	switch c {
	case ColorGray, ColorPalette:
		return 1
	case ColorGrayAlpha:
		return 2
	case ColorRGB:
		return 3
	case ColorRGBA:
		return 4
	}
	return 0
}

// String returns a human-readable color type name.
func (c ColorType) String() string {
	switch c {
	case ColorGray:
		return "grayscale"
	case ColorRGB:
		return "rgb"
	case ColorPalette:
		return "palette"
	case ColorGrayAlpha:
		return "grayscale+alpha"
	case ColorRGBA:
		return "rgba"
	}
	return fmt.Sprintf("colortype(%d)", uint8(c))
}

// AllowsDepth reports whether bit depth d is legal for the color type.
func (c ColorType) AllowsDepth(d uint8) bool {
	switch c {
	case ColorGray:
		return d == 1 || d == 2 || d == 4 || d == 8 || d == 16
	case ColorPalette:
		return d == 1 || d == 2 || d == 4 || d == 8
	case ColorRGB, ColorGrayAlpha, ColorRGBA:
		return d == 8 || d == 16
	}
	return false
}

// Interlace is the IHDR interlace method.
type Interlace uint8

const (
	InterlaceNone  Interlace = 0
	InterlaceAdam7 Interlace = 1
)

// Header is the resolved IHDR color model. It is created once per stream and
// never modified afterwards.
type Header struct {
	Width     uint32
	Height    uint32
	BitDepth  uint8
	ColorType ColorType
	Interlace Interlace
}

// ParseHeader validates an IHDR payload and resolves it into a Header. No
// partial header is returned on error.
func ParseHeader(data []byte) (Header, error) {
	if len(data) != IHDRSize {
		return Header{}, fmt.Errorf("%w: payload is %d bytes, want %d", ErrInvalidHeader, len(data), IHDRSize)
	}
	h := Header{
		Width:     binary.BigEndian.Uint32(data[0:4]),
		Height:    binary.BigEndian.Uint32(data[4:8]),
		BitDepth:  data[8],
		ColorType: ColorType(data[9]),
		Interlace: Interlace(data[12]),
	}
	if data[10] != 0 {
		return Header{}, fmt.Errorf("%w: compression method %d", ErrInvalidHeader, data[10])
	}
	if data[11] != 0 {
		return Header{}, fmt.Errorf("%w: filter method %d", ErrInvalidHeader, data[11])
	}
	if err := h.Validate(); err != nil {
		return Header{}, err
	}
	return h, nil
}

// Validate checks dimensions and area, color type, bit depth and interlace method.
func (h Header) Validate() error {
	if h.Width == 0 || h.Height == 0 {
		return fmt.Errorf("%w: zero dimension %dx%d", ErrInvalidHeader, h.Width, h.Height)
	}
	if h.Width > MaxDimension || h.Height > MaxDimension {
		return fmt.Errorf("%w: dimension %dx%d exceeds 2^31-1", ErrInvalidHeader, h.Width, h.Height)
	}
	if uint64(h.Width)*uint64(h.Height) >= MaxImageArea {
		return fmt.Errorf("%w: image area %dx%d exceeds %d pixels", ErrInvalidHeader, h.Width, h.Height, MaxImageArea)
	}
	if h.ColorType.Channels() == 0 {
		return fmt.Errorf("%w: color type %d", ErrInvalidHeader, uint8(h.ColorType))
	}
	if !h.ColorType.AllowsDepth(h.BitDepth) {
		return fmt.Errorf("%w: %w: %s at bit depth %d",
			ErrInvalidHeader, ErrUnsupportedColorCombination, h.ColorType, h.BitDepth)
	}
	if h.Interlace > InterlaceAdam7 {
		return fmt.Errorf("%w: interlace method %d", ErrInvalidHeader, uint8(h.Interlace))
	}
	return nil
}

// Marshal encodes the header as a 13-byte IHDR payload.
func (h Header) Marshal() []byte {
	buf := make([]byte, IHDRSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Width)
	binary.BigEndian.PutUint32(buf[4:8], h.Height)
	buf[8] = h.BitDepth
	buf[9] = byte(h.ColorType)
	buf[10] = 0 // compression method
	buf[11] = 0 // filter method
	buf[12] = byte(h.Interlace)
	return buf
}

// BitsPerPixel returns channels * bit depth.
func (h Header) BitsPerPixel() int {
	return h.ColorType.Channels() * int(h.BitDepth)
}

// BytesPerPixel returns the filter unit: the number of bytes per complete
// pixel, rounded up to 1 for sub-byte depths.
func (h Header) BytesPerPixel() int {
	return (h.BitsPerPixel() + 7) / 8
}

// RowBytes returns the packed byte width of a scanline of width pixels,
// excluding the filter type byte.
func (h Header) RowBytes(width int) int {
	return (width*h.BitsPerPixel() + 7) / 8
}

// ScanlineBytes returns RowBytes for the full image width.
func (h Header) ScanlineBytes() int {
	return h.RowBytes(int(h.Width))
}

// HasAlpha reports whether the color type carries an alpha channel.
func (h Header) HasAlpha() bool {
	return h.ColorType == ColorGrayAlpha || h.ColorType == ColorRGBA
}
