package filter

// Mode selects how the encoder picks a filter type per scanline.
type Mode int

const (
	// Adaptive tries all five filters on every row and keeps the one with the
	// smallest sum of absolute signed residues. Ties go to the lowest type.
	Adaptive Mode = -1
	// Fixed modes use the filter type of the same number on every row.
	FixedNone    = Mode(None)
	FixedSub     = Mode(Sub)
	FixedUp      = Mode(Up)
	FixedAverage = Mode(Average)
	FixedPaeth   = Mode(Paeth)
)

// Valid reports whether m is Adaptive or names a filter type.
func (m Mode) Valid() bool {
	return m == Adaptive || (m >= 0 && m < NumTypes)
}

// Filterer filters rows for the encoder. It owns one output buffer per filter
// type so that adaptive selection never allocates per row. A Filterer is not
// safe for concurrent use.
type Filterer struct {
	mode Mode
	bpp  int
	bufs [NumTypes][]byte
}

// NewFilterer returns a Filterer for rows of up to rowBytes bytes.
func NewFilterer(mode Mode, rowBytes, bpp int) *Filterer {
	f := &Filterer{mode: mode, bpp: bpp}
	if mode == Adaptive {
		for i := range f.bufs {
			f.bufs[i] = make([]byte, rowBytes)
		}
	} else {
		f.bufs[0] = make([]byte, rowBytes)
	}
	return f
}

// Filter filters cur against prev (nil for none) and returns the chosen type
// and the filtered bytes. The returned slice is reused by the next call.
func (f *Filterer) Filter(cur, prev []byte) (Type, []byte) {
	n := len(cur)
	if f.mode != Adaptive {
		t := Type(f.mode)
		Apply(t, f.bufs[0], cur, prev, f.bpp)
		return t, f.bufs[0][:n]
	}

	best, bestSum := None, -1
	for t := None; t < NumTypes; t++ {
		out := f.bufs[t][:n]
		Apply(t, out, cur, prev, f.bpp)
		sum := 0
		for _, b := range out {
			sum += abs8(b)
		}
		if bestSum < 0 || sum < bestSum {
			best, bestSum = t, sum
		}
	}
	return best, f.bufs[best][:n]
}

// abs8 is the magnitude of b read as a signed residue.
func abs8(b uint8) int {
	if b < 128 {
		return int(b)
	}
	return 256 - int(b)
}
