// Package filter implements the five PNG scanline filters and the adaptive
// per-row filter selection used by the encoder.
//
// All arithmetic is modulo 256. A nil previous row stands for the all-zero
// row that precedes the first scanline of an image or interlace pass.
package filter

import (
	"fmt"

	"github.com/deepteams/apng/internal/container"
)

// Type is a per-scanline filter type.
type Type uint8

const (
	None    Type = 0
	Sub     Type = 1
	Up      Type = 2
	Average Type = 3
	Paeth   Type = 4

	// NumTypes is the number of defined filter types.
	NumTypes = 5
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case Sub:
		return "sub"
	case Up:
		return "up"
	case Average:
		return "average"
	case Paeth:
		return "paeth"
	}
	return fmt.Sprintf("filter(%d)", uint8(t))
}

// paeth returns whichever of a (left), b (up) and c (upper left) is closest to
// a+b-c, preferring a, then b, then c on ties.
func paeth(a, b, c uint8) uint8 {
	p := int(a) + int(b) - int(c)
	pa := abs(p - int(a))
	pb := abs(p - int(b))
	pc := abs(p - int(c))
	if pa <= pb && pa <= pc {
		return a
	}
	if pb <= pc {
		return b
	}
	return c
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// Unfilter reverses filter t in place on cur, using prev as the reconstructed
// previous row (nil for none). bpp is the filter unit in bytes.
func Unfilter(t Type, cur, prev []byte, bpp int) error {
	n := len(cur)
	if prev != nil && len(prev) < n {
		return fmt.Errorf("filter: previous row has %d bytes, want %d", len(prev), n)
	}
	switch t {
	case None:

	case Sub:
		for i := bpp; i < n; i++ {
			cur[i] += cur[i-bpp]
		}

	case Up:
		if prev == nil {
			return nil
		}
		for i := 0; i < n; i++ {
			cur[i] += prev[i]
		}

	case Average:
		if prev == nil {
			for i := bpp; i < n; i++ {
				cur[i] += cur[i-bpp] / 2
			}
			return nil
		}
		for i := 0; i < bpp && i < n; i++ {
			cur[i] += prev[i] / 2
		}
		for i := bpp; i < n; i++ {
			cur[i] += uint8((int(cur[i-bpp]) + int(prev[i])) / 2)
		}

	case Paeth:
		if prev == nil {
			// paeth(a, 0, 0) == a, so Paeth degenerates to Sub.
			for i := bpp; i < n; i++ {
				cur[i] += cur[i-bpp]
			}
			return nil
		}
		for i := 0; i < bpp && i < n; i++ {
			cur[i] += prev[i]
		}
		for i := bpp; i < n; i++ {
			cur[i] += paeth(cur[i-bpp], prev[i], prev[i-bpp])
		}

	default:
		return fmt.Errorf("%w: unknown filter type %d", container.ErrDecompression, uint8(t))
	}
	return nil
}

// Apply writes cur filtered with t into dst, which must be at least as long as
// cur. prev is the unfiltered previous row, or nil for none.
func Apply(t Type, dst, cur, prev []byte, bpp int) {
	n := len(cur)
	dst = dst[:n]
	left := func(i int) uint8 {
		if i < bpp {
			return 0
		}
		return cur[i-bpp]
	}
	up := func(i int) uint8 {
		if prev == nil {
			return 0
		}
		return prev[i]
	}
	upLeft := func(i int) uint8 {
		if prev == nil || i < bpp {
			return 0
		}
		return prev[i-bpp]
	}

	switch t {
	case Sub:
		for i := 0; i < n; i++ {
			dst[i] = cur[i] - left(i)
		}
	case Up:
		for i := 0; i < n; i++ {
			dst[i] = cur[i] - up(i)
		}
	case Average:
		for i := 0; i < n; i++ {
			dst[i] = cur[i] - uint8((int(left(i))+int(up(i)))/2)
		}
	case Paeth:
		for i := 0; i < n; i++ {
			dst[i] = cur[i] - paeth(left(i), up(i), upLeft(i))
		}
	default:
		copy(dst, cur)
	}
}
