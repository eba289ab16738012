package raster

import (
	"image"
	"image/color"

	"github.com/deepteams/apng/internal/container"
)

// EncodeRow packs row y (counted from the top of img's bounds) into row,
// converting pixels to the model's color type and depth. row must hold
// RowBytes(img.Bounds().Dx()) bytes.
func (m *Model) EncodeRow(row []byte, img image.Image, y int) {
	b := img.Bounds()
	w := b.Dx()
	sy := b.Min.Y + y
	d := m.BitDepth

	switch m.ColorType {
	case container.ColorGray:
		if d == 16 {
			for x := 0; x < w; x++ {
				v := gray16(img, b.Min.X+x, sy)
				row[2*x], row[2*x+1] = uint8(v>>8), uint8(v)
			}
			return
		}
		if d < 8 {
			clear(row)
		}
		for x := 0; x < w; x++ {
			v := uint8(gray16(img, b.Min.X+x, sy) >> 8)
			if d < 8 {
				pack(row, x, d, v>>(8-d))
			} else {
				row[x] = v
			}
		}

	case container.ColorRGB:
		if d == 16 {
			for x := 0; x < w; x++ {
				c := nrgba64(img, b.Min.X+x, sy)
				put16(row[6*x:], c.R, c.G, c.B)
			}
			return
		}
		for x := 0; x < w; x++ {
			c := nrgba(img, b.Min.X+x, sy)
			row[3*x], row[3*x+1], row[3*x+2] = c.R, c.G, c.B
		}

	case container.ColorPalette:
		src, direct := img.(*image.Paletted)
		direct = direct && samePalette(src.Palette, m.Palette)
		if d < 8 {
			clear(row)
		}
		for x := 0; x < w; x++ {
			var idx uint8
			if direct {
				idx = src.Pix[src.PixOffset(b.Min.X+x, sy)]
			} else {
				idx = uint8(m.Palette.Index(img.At(b.Min.X+x, sy)))
			}
			if d < 8 {
				pack(row, x, d, idx)
			} else {
				row[x] = idx
			}
		}

	case container.ColorGrayAlpha:
		for x := 0; x < w; x++ {
			c := nrgba64(img, b.Min.X+x, sy)
			g := luma(c.R, c.G, c.B)
			if d == 16 {
				put16(row[4*x:], g, c.A)
			} else {
				row[2*x], row[2*x+1] = uint8(g>>8), uint8(c.A>>8)
			}
		}

	case container.ColorRGBA:
		if d == 16 {
			for x := 0; x < w; x++ {
				c := nrgba64(img, b.Min.X+x, sy)
				put16(row[8*x:], c.R, c.G, c.B, c.A)
			}
			return
		}
		if src, ok := img.(*image.NRGBA); ok {
			i := src.PixOffset(b.Min.X, sy)
			copy(row[:4*w], src.Pix[i:i+4*w])
			return
		}
		for x := 0; x < w; x++ {
			c := nrgba(img, b.Min.X+x, sy)
			row[4*x], row[4*x+1], row[4*x+2], row[4*x+3] = c.R, c.G, c.B, c.A
		}
	}
}

// pack stores the low depth bits of v as the i-th sample of row.
func pack(row []byte, i int, depth uint8, v uint8) {
	v &= 1<<depth - 1
	bit := i * int(depth)
	shift := uint(8 - int(depth) - bit%8)
	row[bit/8] |= v << shift
}

func put16(dst []byte, vs ...uint16) {
	for i, v := range vs {
		dst[2*i], dst[2*i+1] = uint8(v>>8), uint8(v)
	}
}

// luma is the ITU-R 601 weighting used by color.GrayModel, applied to
// non-premultiplied 16-bit samples.
func luma(r, g, b uint16) uint16 {
	return uint16((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}

func gray16(img image.Image, x, y int) uint16 {
	switch src := img.(type) {
	case *image.Gray:
		v := src.Pix[src.PixOffset(x, y)]
		return uint16(v) * 0x101
	case *image.Gray16:
		i := src.PixOffset(x, y)
		return uint16(src.Pix[i])<<8 | uint16(src.Pix[i+1])
	}
	return color.Gray16Model.Convert(img.At(x, y)).(color.Gray16).Y
}

func nrgba(img image.Image, x, y int) color.NRGBA {
	switch src := img.(type) {
	case *image.NRGBA:
		i := src.PixOffset(x, y)
		s := src.Pix[i : i+4]
		return color.NRGBA{R: s[0], G: s[1], B: s[2], A: s[3]}
	case *image.RGBA:
		i := src.PixOffset(x, y)
		s := src.Pix[i : i+4]
		if s[3] == 0xff {
			return color.NRGBA{R: s[0], G: s[1], B: s[2], A: 0xff}
		}
	}
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func nrgba64(img image.Image, x, y int) color.NRGBA64 {
	switch src := img.(type) {
	case *image.NRGBA64:
		return src.NRGBA64At(x, y)
	case *image.NRGBA:
		// Widen exactly; a round trip through premultiplied color would
		// lose the color of translucent pixels.
		c := src.NRGBAAt(x, y)
		return color.NRGBA64{R: uint16(c.R) * 0x101, G: uint16(c.G) * 0x101, B: uint16(c.B) * 0x101, A: uint16(c.A) * 0x101}
	}
	return color.NRGBA64Model.Convert(img.At(x, y)).(color.NRGBA64)
}

func samePalette(a, b color.Palette) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		r1, g1, b1, a1 := a[i].RGBA()
		r2, g2, b2, a2 := b[i].RGBA()
		if r1 != r2 || g1 != g2 || b1 != b2 || a1 != a2 {
			return false
		}
	}
	return true
}
