package raster

import (
	"image"
	"image/color"

	"github.com/deepteams/apng/internal/container"
)

// sample returns the i-th packed sample of a row of sub-byte samples.
func sample(row []byte, i int, depth uint8) uint8 {
	bit := i * int(depth)
	shift := 8 - int(depth) - bit%8
	return row[bit/8] >> uint(shift) & (1<<depth - 1)
}

// scale expands a sample of depth bits to 8 bits.
func scale(v uint8, depth uint8) uint8 {
	switch depth {
	case 1:
		return v * 0xff
	case 2:
		return v * 0x55
	case 4:
		return v * 0x11
	}
	return v
}

// DecodeRow writes one unfiltered scanline into row y of img, which must have
// been allocated by NewImage for this model.
func (m *Model) DecodeRow(img image.Image, y int, row []byte) {
	d := m.BitDepth
	switch dst := img.(type) {
	case *image.Gray:
		pix := dst.Pix[y*dst.Stride:]
		w := dst.Rect.Dx()
		if d == 8 {
			copy(pix[:w], row)
			return
		}
		for x := 0; x < w; x++ {
			pix[x] = scale(sample(row, x, d), d)
		}

	case *image.Gray16:
		w := dst.Rect.Dx()
		copy(dst.Pix[y*dst.Stride:y*dst.Stride+2*w], row)

	case *image.RGBA:
		pix := dst.Pix[y*dst.Stride:]
		for x := 0; x < dst.Rect.Dx(); x++ {
			pix[4*x+0] = row[3*x+0]
			pix[4*x+1] = row[3*x+1]
			pix[4*x+2] = row[3*x+2]
			pix[4*x+3] = 0xff
		}

	case *image.RGBA64:
		pix := dst.Pix[y*dst.Stride:]
		for x := 0; x < dst.Rect.Dx(); x++ {
			copy(pix[8*x:8*x+6], row[6*x:6*x+6])
			pix[8*x+6] = 0xff
			pix[8*x+7] = 0xff
		}

	case *image.Paletted:
		pix := dst.Pix[y*dst.Stride:]
		for x := 0; x < dst.Rect.Dx(); x++ {
			var idx uint8
			if d == 8 {
				idx = row[x]
			} else {
				idx = sample(row, x, d)
			}
			if int(idx) >= len(dst.Palette) {
				n := len(dst.Palette)
				dst.Palette = dst.Palette[:int(idx)+1]
				for i := n; i <= int(idx); i++ {
					dst.Palette[i] = color.NRGBA{A: 0xff}
				}
			}
			pix[x] = idx
		}

	case *image.NRGBA:
		m.decodeNRGBA(dst, y, row)

	case *image.NRGBA64:
		m.decodeNRGBA64(dst, y, row)
	}
}

func (m *Model) decodeNRGBA(dst *image.NRGBA, y int, row []byte) {
	pix := dst.Pix[y*dst.Stride:]
	w := dst.Rect.Dx()
	d := m.BitDepth
	switch m.ColorType {
	case container.ColorGray:
		for x := 0; x < w; x++ {
			var v uint8
			if d == 8 {
				v = row[x]
			} else {
				v = sample(row, x, d)
			}
			a := uint8(0xff)
			if m.HasKey && uint16(v) == m.Key[0] {
				a = 0
			}
			g := scale(v, d)
			pix[4*x+0], pix[4*x+1], pix[4*x+2], pix[4*x+3] = g, g, g, a
		}
	case container.ColorRGB:
		for x := 0; x < w; x++ {
			r, g, b := row[3*x], row[3*x+1], row[3*x+2]
			a := uint8(0xff)
			if m.HasKey && uint16(r) == m.Key[0] && uint16(g) == m.Key[1] && uint16(b) == m.Key[2] {
				a = 0
			}
			pix[4*x+0], pix[4*x+1], pix[4*x+2], pix[4*x+3] = r, g, b, a
		}
	case container.ColorGrayAlpha:
		for x := 0; x < w; x++ {
			g, a := row[2*x], row[2*x+1]
			pix[4*x+0], pix[4*x+1], pix[4*x+2], pix[4*x+3] = g, g, g, a
		}
	case container.ColorRGBA:
		copy(pix[:4*w], row)
	}
}

func (m *Model) decodeNRGBA64(dst *image.NRGBA64, y int, row []byte) {
	pix := dst.Pix[y*dst.Stride:]
	w := dst.Rect.Dx()
	switch m.ColorType {
	case container.ColorGray:
		for x := 0; x < w; x++ {
			hi, lo := row[2*x], row[2*x+1]
			a := uint8(0xff)
			if m.HasKey && uint16(hi)<<8|uint16(lo) == m.Key[0] {
				a = 0
			}
			o := pix[8*x : 8*x+8]
			o[0], o[1], o[2], o[3], o[4], o[5], o[6], o[7] = hi, lo, hi, lo, hi, lo, a, a
		}
	case container.ColorRGB:
		for x := 0; x < w; x++ {
			s := row[6*x : 6*x+6]
			a := uint8(0xff)
			if m.HasKey &&
				uint16(s[0])<<8|uint16(s[1]) == m.Key[0] &&
				uint16(s[2])<<8|uint16(s[3]) == m.Key[1] &&
				uint16(s[4])<<8|uint16(s[5]) == m.Key[2] {
				a = 0
			}
			o := pix[8*x : 8*x+8]
			copy(o, s)
			o[6], o[7] = a, a
		}
	case container.ColorGrayAlpha:
		for x := 0; x < w; x++ {
			s := row[4*x : 4*x+4]
			o := pix[8*x : 8*x+8]
			o[0], o[1], o[2], o[3], o[4], o[5], o[6], o[7] = s[0], s[1], s[0], s[1], s[0], s[1], s[2], s[3]
		}
	case container.ColorRGBA:
		copy(pix[:8*w], row)
	}
}
