// Package interlace computes Adam7 pass geometry and moves packed pixels
// between pass scanlines and full-image scanlines.
//
// Rows are packed as in the PNG data stream: pixels of fewer than 8 bits are
// stored most significant bits first, and wider pixels occupy whole bytes.
package interlace

// NumPasses is the number of Adam7 passes.
const NumPasses = 7

var adam7 = [NumPasses]struct{ x0, y0, dx, dy int }{
	{0, 0, 8, 8},
	{4, 0, 8, 8},
	{0, 4, 4, 8},
	{2, 0, 4, 4},
	{0, 2, 2, 4},
	{1, 0, 2, 2},
	{0, 1, 1, 2},
}

// Pass is the geometry of one Adam7 pass over an image.
type Pass struct {
	X0, Y0 int // first sampled column and row
	DX, DY int // column and row step
	Width  int // pixels per pass scanline
	Height int // scanlines in the pass
}

// Passes returns the seven passes for a width x height image in order. Passes
// with no pixels are included with zero Width or Height.
func Passes(width, height int) [NumPasses]Pass {
	var ps [NumPasses]Pass
	for i, a := range adam7 {
		ps[i] = Pass{
			X0: a.x0, Y0: a.y0, DX: a.dx, DY: a.dy,
			Width:  span(width, a.x0, a.dx),
			Height: span(height, a.y0, a.dy),
		}
	}
	return ps
}

// NonInterlaced returns the single pass that covers a whole image.
func NonInterlaced(width, height int) Pass {
	return Pass{DX: 1, DY: 1, Width: width, Height: height}
}

func span(n, start, step int) int {
	if n <= start {
		return 0
	}
	return (n - start + step - 1) / step
}

// Empty reports whether the pass contributes no scanlines.
func (p Pass) Empty() bool {
	return p.Width == 0 || p.Height == 0
}

// Row maps pass scanline py to its row in the full image.
func (p Pass) Row(py int) int {
	return p.Y0 + py*p.DY
}

// Col maps pass pixel px to its column in the full image.
func (p Pass) Col(px int) int {
	return p.X0 + px*p.DX
}

// Scatter copies the pixels of one pass scanline into their positions in the
// corresponding full-image scanline. bits is the pixel size in bits.
func (p Pass) Scatter(full, pass []byte, bits int) {
	if bits >= 8 {
		n := bits / 8
		for px := 0; px < p.Width; px++ {
			copy(full[p.Col(px)*n:p.Col(px)*n+n], pass[px*n:px*n+n])
		}
		return
	}
	for px := 0; px < p.Width; px++ {
		setPacked(full, p.Col(px), bits, getPacked(pass, px, bits))
	}
}

// Gather is the inverse of Scatter: it collects the pass pixels of one
// full-image scanline into a pass scanline.
func (p Pass) Gather(pass, full []byte, bits int) {
	if bits >= 8 {
		n := bits / 8
		for px := 0; px < p.Width; px++ {
			copy(pass[px*n:px*n+n], full[p.Col(px)*n:p.Col(px)*n+n])
		}
		return
	}
	for i := range pass {
		pass[i] = 0
	}
	for px := 0; px < p.Width; px++ {
		setPacked(pass, px, bits, getPacked(full, p.Col(px), bits))
	}
}

func getPacked(row []byte, i, bits int) uint8 {
	bit := i * bits
	shift := 8 - bits - bit%8
	return row[bit/8] >> uint(shift) & (1<<uint(bits) - 1)
}

func setPacked(row []byte, i, bits int, v uint8) {
	bit := i * bits
	shift := uint(8 - bits - bit%8)
	mask := uint8(1<<uint(bits)-1) << shift
	row[bit/8] = row[bit/8]&^mask | v<<shift&mask
}
