package container

import "fmt"

// Validator enforces the structural chunk ordering rules of a PNG/APNG
// stream. It validates only; it never reorders. The same rules apply to
// decoding and encoding.
type Validator struct {
	header    Header
	count     int
	seenPLTE  bool
	seenTRNS  bool
	seenACTL  bool
	seenIDAT  bool // at least one IDAT
	idatDone  bool // an fcTL or fdAT followed the IDAT run
	seenFrame bool // any IDAT or fdAT
	seenIEND  bool
}

// Header returns the header recorded from IHDR, if Check has seen it.
func (v *Validator) Header() Header { return v.header }

// Check validates that a chunk of type t carrying data may appear next and
// records it. IHDR payloads are resolved here so later rules can depend on
// the color type.
func (v *Validator) Check(t ChunkType, data []byte) error {
	if v.seenIEND {
		return fmt.Errorf("%w: %s after IEND", ErrChunkOrder, t)
	}
	if v.count == 0 && t != TypeIHDR {
		return fmt.Errorf("%w: got %s", ErrHeaderMissing, t)
	}
	v.count++

	switch t {
	case TypeIHDR:
		if v.count > 1 {
			return fmt.Errorf("%w: duplicate IHDR", ErrChunkOrder)
		}
		h, err := ParseHeader(data)
		if err != nil {
			return err
		}
		v.header = h

	case TypePLTE:
		switch {
		case v.seenPLTE:
			return fmt.Errorf("%w: duplicate PLTE", ErrChunkOrder)
		case v.seenFrame:
			return fmt.Errorf("%w: PLTE after image data", ErrChunkOrder)
		case v.header.ColorType != ColorPalette:
			return fmt.Errorf("%w: PLTE in %s image", ErrChunkOrder, v.header.ColorType)
		}
		v.seenPLTE = true

	case TypeTRNS:
		switch {
		case v.seenTRNS:
			return fmt.Errorf("%w: duplicate tRNS", ErrChunkOrder)
		case v.seenFrame:
			return fmt.Errorf("%w: tRNS after image data", ErrChunkOrder)
		case v.header.ColorType == ColorPalette && !v.seenPLTE:
			return fmt.Errorf("%w: tRNS before PLTE", ErrChunkOrder)
		}
		v.seenTRNS = true

	case TypeACTL:
		switch {
		case v.seenACTL:
			return fmt.Errorf("%w: duplicate acTL", ErrChunkOrder)
		case v.seenFrame:
			return fmt.Errorf("%w: acTL after image data", ErrChunkOrder)
		}
		v.seenACTL = true

	case TypeIDAT:
		if v.idatDone {
			return fmt.Errorf("%w: IDAT after animation frame data", ErrChunkOrder)
		}
		if err := v.checkPalette(); err != nil {
			return err
		}
		v.seenIDAT = true
		v.seenFrame = true

	case TypeFCTL:
		if v.seenIDAT {
			v.idatDone = true
		}

	case TypeFDAT:
		if err := v.checkPalette(); err != nil {
			return err
		}
		if v.seenIDAT {
			v.idatDone = true
		}
		v.seenFrame = true

	case TypeIEND:
		if len(data) != 0 {
			return fmt.Errorf("%w: IEND carries %d bytes", ErrInvalidChunk, len(data))
		}
		if !v.seenIDAT {
			return fmt.Errorf("%w: IEND before IDAT", ErrChunkOrder)
		}
		v.seenIEND = true

	default:
		if t.IsCritical() {
			return fmt.Errorf("%w: %s", ErrUnsupportedCriticalChunk, t)
		}
	}
	return nil
}

func (v *Validator) checkPalette() error {
	if v.header.ColorType == ColorPalette && !v.seenPLTE {
		return fmt.Errorf("%w: image data before PLTE", ErrChunkOrder)
	}
	return nil
}

// End reports whether the stream may end now: IEND must have been seen.
func (v *Validator) End() error {
	if !v.seenIEND {
		if v.count == 0 {
			return ErrHeaderMissing
		}
		return fmt.Errorf("%w: missing IEND", ErrTruncatedStream)
	}
	return nil
}

// Done reports whether IEND has been recorded.
func (v *Validator) Done() bool { return v.seenIEND }

// SeenACTL reports whether an acTL chunk has been recorded.
func (v *Validator) SeenACTL() bool { return v.seenACTL }
