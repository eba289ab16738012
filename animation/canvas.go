package animation

import (
	"image"
	"image/color"
)

// Canvas reconstructs the displayed image of an animation by compositing
// frames in order. Pixels are non-premultiplied: 8 bits per channel for
// streams up to 8 bits deep and 16 bits per channel for 16-bit streams.
//
// The dispose operation of a frame takes effect when the next frame is
// rendered, so between Render calls the canvas shows the frame just
// composited.
type Canvas struct {
	wide bool
	img8 *image.NRGBA
	im16 *image.NRGBA64

	// Disposal owed by the previously rendered frame.
	dispose     DisposeMethod
	disposeRect image.Rectangle
	owed        bool

	// Region saved for DisposePrevious. Only one region is ever kept.
	saved []byte
}

// NewCanvas returns a transparent black canvas of the given size. wide
// selects 16-bit channels.
func NewCanvas(width, height int, wide bool) *Canvas {
	c := &Canvas{wide: wide}
	r := image.Rect(0, 0, width, height)
	if wide {
		c.im16 = image.NewNRGBA64(r)
	} else {
		c.img8 = image.NewNRGBA(r)
	}
	return c
}

// Bounds returns the canvas rectangle.
func (c *Canvas) Bounds() image.Rectangle {
	if c.wide {
		return c.im16.Rect
	}
	return c.img8.Rect
}

// Image returns the live canvas. It changes on the next Render.
func (c *Canvas) Image() image.Image {
	if c.wide {
		return c.im16
	}
	return c.img8
}

// Snapshot returns a copy of the canvas.
func (c *Canvas) Snapshot() image.Image {
	if c.wide {
		s := image.NewNRGBA64(c.im16.Rect)
		copy(s.Pix, c.im16.Pix)
		return s
	}
	s := image.NewNRGBA(c.img8.Rect)
	copy(s.Pix, c.img8.Pix)
	return s
}

// Reset clears the canvas and forgets any pending disposal.
func (c *Canvas) Reset() {
	clear(c.pix())
	c.owed = false
	c.saved = c.saved[:0]
}

// Render applies the disposal owed by the previous frame and then
// composites f.Image into f.Bounds using f.Blend.
func (c *Canvas) Render(f *Frame) {
	c.applyDispose()

	rect := f.Bounds.Intersect(c.Bounds())
	if f.Image != nil {
		size := image.Rectangle{Max: f.Image.Bounds().Size()}
		rect = rect.Intersect(size.Add(f.Bounds.Min))
	}
	if f.Dispose == DisposePrevious {
		c.save(rect)
	}
	if !rect.Empty() && f.Image != nil {
		if c.wide {
			c.composite16(f, rect)
		} else {
			c.composite8(f, rect)
		}
	}
	c.dispose, c.disposeRect, c.owed = f.Dispose, rect, true
}

func (c *Canvas) pix() []byte {
	if c.wide {
		return c.im16.Pix
	}
	return c.img8.Pix
}

func (c *Canvas) stride() int {
	if c.wide {
		return c.im16.Stride
	}
	return c.img8.Stride
}

func (c *Canvas) pixelSize() int {
	if c.wide {
		return 8
	}
	return 4
}

// rowSpan returns the canvas bytes of row y within rect.
func (c *Canvas) rowSpan(rect image.Rectangle, y int) []byte {
	ps := c.pixelSize()
	off := y*c.stride() + rect.Min.X*ps
	return c.pix()[off : off+rect.Dx()*ps]
}

func (c *Canvas) save(rect image.Rectangle) {
	c.saved = c.saved[:0]
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		c.saved = append(c.saved, c.rowSpan(rect, y)...)
	}
}

func (c *Canvas) applyDispose() {
	if !c.owed {
		return
	}
	c.owed = false
	rect := c.disposeRect
	switch c.dispose {
	case DisposeBackground:
		fillRect(c, rect)
	case DisposePrevious:
		n := rect.Dx() * c.pixelSize()
		for y, off := rect.Min.Y, 0; y < rect.Max.Y; y, off = y+1, off+n {
			copy(c.rowSpan(rect, y), c.saved[off:off+n])
		}
	}
}

// fillRect clears rect to transparent black.
func fillRect(c *Canvas, rect image.Rectangle) {
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		clear(c.rowSpan(rect, y))
	}
}

func (c *Canvas) composite8(f *Frame, rect image.Rectangle) {
	src := toNRGBA(f.Image)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		dst := c.rowSpan(rect, y)
		sy := y - f.Bounds.Min.Y
		sx := rect.Min.X - f.Bounds.Min.X
		s := src.Pix[sy*src.Stride+sx*4 : sy*src.Stride+(sx+rect.Dx())*4]
		if f.Blend == BlendSource {
			copy(dst, s)
			continue
		}
		for i := 0; i < len(s); i += 4 {
			blend8(dst[i:i+4:i+4], s[i:i+4:i+4])
		}
	}
}

func (c *Canvas) composite16(f *Frame, rect image.Rectangle) {
	src := toNRGBA64(f.Image)
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		dst := c.rowSpan(rect, y)
		sy := y - f.Bounds.Min.Y
		sx := rect.Min.X - f.Bounds.Min.X
		s := src.Pix[sy*src.Stride+sx*8 : sy*src.Stride+(sx+rect.Dx())*8]
		if f.Blend == BlendSource {
			copy(dst, s)
			continue
		}
		for i := 0; i < len(s); i += 8 {
			blend16(dst[i:i+8:i+8], s[i:i+8:i+8])
		}
	}
}

// blend8 composites one non-premultiplied source pixel over dst:
//
//	u = sa*255, v = (255-sa)*da, a = (u+v)/255
//	c = (sc*u + dc*v) / (u+v)
func blend8(dst, src []byte) {
	sa := uint32(src[3])
	if sa == 0 {
		return
	}
	da := uint32(dst[3])
	if sa == 0xff || da == 0 {
		copy(dst, src)
		return
	}
	u := sa * 0xff
	v := (0xff - sa) * da
	al := u + v
	for i := 0; i < 3; i++ {
		dst[i] = uint8((uint32(src[i])*u + uint32(dst[i])*v + al/2) / al)
	}
	dst[3] = uint8((al + 0x7f) / 0xff)
}

// blend16 is blend8 for big-endian 16-bit channels.
func blend16(dst, src []byte) {
	sa := uint64(src[6])<<8 | uint64(src[7])
	if sa == 0 {
		return
	}
	da := uint64(dst[6])<<8 | uint64(dst[7])
	if sa == 0xffff || da == 0 {
		copy(dst, src)
		return
	}
	u := sa * 0xffff
	v := (0xffff - sa) * da
	al := u + v
	for i := 0; i < 6; i += 2 {
		sc := uint64(src[i])<<8 | uint64(src[i+1])
		dc := uint64(dst[i])<<8 | uint64(dst[i+1])
		x := (sc*u + dc*v + al/2) / al
		dst[i], dst[i+1] = uint8(x>>8), uint8(x)
	}
	a := (al + 0x7fff) / 0xffff
	dst[6], dst[7] = uint8(a>>8), uint8(a)
}

// toNRGBA returns img as an origin-anchored *image.NRGBA, converting
// pixel by pixel when needed.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetNRGBA(x, y, color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA))
		}
	}
	return dst
}

// toNRGBA64 is toNRGBA for 16-bit channels.
func toNRGBA64(img image.Image) *image.NRGBA64 {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA64); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA64(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			dst.SetNRGBA64(x, y, color.NRGBA64Model.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA64))
		}
	}
	return dst
}
