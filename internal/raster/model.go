// Package raster converts between packed PNG scanlines and Go images.
//
// A Model describes the pixel layout fixed by IHDR (plus PLTE and tRNS). Each
// layout decodes into the closest standard image type:
//
//	grayscale 1-8 bit     *image.Gray (samples scaled to 8 bits)
//	grayscale 16 bit      *image.Gray16
//	rgb 8 / 16 bit        *image.RGBA / *image.RGBA64
//	palette               *image.Paletted
//	gray+alpha, rgba 8    *image.NRGBA
//	gray+alpha, rgba 16   *image.NRGBA64
//
// Grayscale and rgb images with a tRNS color key decode to *image.NRGBA or
// *image.NRGBA64 so that keyed pixels can be transparent.
package raster

import (
	"image"
	"image/color"

	"github.com/deepteams/apng/internal/container"
)

// Model is the pixel layout of a PNG image.
type Model struct {
	ColorType container.ColorType
	BitDepth  uint8

	// Palette holds the PLTE entries as color.NRGBA with tRNS alpha applied.
	Palette color.Palette

	// Key is the tRNS transparent color (gray in Key[0]) when HasKey is set.
	Key    [3]uint16
	HasKey bool
}

// BitsPerPixel returns the packed pixel size.
func (m *Model) BitsPerPixel() int {
	return m.ColorType.Channels() * int(m.BitDepth)
}

// BytesPerPixel returns the filter unit, at least 1.
func (m *Model) BytesPerPixel() int {
	return (m.BitsPerPixel() + 7) / 8
}

// RowBytes returns the packed size of a scanline of width pixels.
func (m *Model) RowBytes(width int) int {
	return (width*m.BitsPerPixel() + 7) / 8
}

// BuildPalette merges PLTE entries and tRNS alpha values into a palette.
func BuildPalette(entries [][3]uint8, alpha []uint8) color.Palette {
	p := make(color.Palette, len(entries))
	for i, e := range entries {
		a := uint8(0xff)
		if i < len(alpha) {
			a = alpha[i]
		}
		p[i] = color.NRGBA{R: e[0], G: e[1], B: e[2], A: a}
	}
	return p
}

// SplitPalette is the inverse of BuildPalette. Trailing opaque entries are
// dropped from the alpha table; it is nil when every entry is opaque.
func SplitPalette(p color.Palette) (entries [][3]uint8, alpha []uint8) {
	entries = make([][3]uint8, len(p))
	alpha = make([]uint8, len(p))
	last := -1
	for i, c := range p {
		n := color.NRGBAModel.Convert(c).(color.NRGBA)
		entries[i] = [3]uint8{n.R, n.G, n.B}
		alpha[i] = n.A
		if n.A != 0xff {
			last = i
		}
	}
	if last < 0 {
		return entries, nil
	}
	return entries, alpha[:last+1]
}

// NewImage allocates an image of the type decoded for this model.
func (m *Model) NewImage(width, height int) image.Image {
	r := image.Rect(0, 0, width, height)
	wide := m.BitDepth == 16
	switch m.ColorType {
	case container.ColorGray:
		switch {
		case m.HasKey && wide:
			return image.NewNRGBA64(r)
		case m.HasKey:
			return image.NewNRGBA(r)
		case wide:
			return image.NewGray16(r)
		}
		return image.NewGray(r)
	case container.ColorRGB:
		switch {
		case m.HasKey && wide:
			return image.NewNRGBA64(r)
		case m.HasKey:
			return image.NewNRGBA(r)
		case wide:
			return image.NewRGBA64(r)
		}
		return image.NewRGBA(r)
	case container.ColorPalette:
		// Room for every index the bit depth can address. Indices beyond the
		// PLTE entries decode as opaque black, as image/png does.
		pal := make(color.Palette, len(m.Palette), 256)
		copy(pal, m.Palette)
		return image.NewPaletted(r, pal)
	}
	if wide {
		return image.NewNRGBA64(r)
	}
	return image.NewNRGBA(r)
}

// ModelFor picks the natural model for encoding img: the color type and depth
// that store it losslessly in the fewest bytes the image's type allows.
func ModelFor(img image.Image) Model {
	switch src := img.(type) {
	case *image.Gray:
		return Model{ColorType: container.ColorGray, BitDepth: 8}
	case *image.Gray16:
		return Model{ColorType: container.ColorGray, BitDepth: 16}
	case *image.Paletted:
		if len(src.Palette) > 0 && len(src.Palette) <= 256 {
			return Model{ColorType: container.ColorPalette, BitDepth: PaletteDepth(len(src.Palette)), Palette: src.Palette}
		}
	case *image.NRGBA:
		return Model{ColorType: container.ColorRGBA, BitDepth: 8}
	case *image.NRGBA64:
		return Model{ColorType: container.ColorRGBA, BitDepth: 16}
	case *image.RGBA64:
		if src.Opaque() {
			return Model{ColorType: container.ColorRGB, BitDepth: 16}
		}
		return Model{ColorType: container.ColorRGBA, BitDepth: 16}
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return Model{ColorType: container.ColorRGB, BitDepth: 8}
	}
	return Model{ColorType: container.ColorRGBA, BitDepth: 8}
}

// PaletteDepth returns the smallest bit depth addressing n palette entries.
func PaletteDepth(n int) uint8 {
	switch {
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 16:
		return 4
	}
	return 8
}
