// Package mux provides chunk-level demuxing and muxing for the PNG and APNG
// container formats.
//
// Every chunk the codec understands is represented by one concrete type in a
// closed set (ImageHeader, Palette, Transparency, AnimationControl,
// FrameControl, ImageData, FrameData, Text, End) plus Raw for everything else.
// The Demuxer frames, checks and types the chunks of a stream; the Muxer writes
// them back in a validated order.
package mux

import (
	"encoding/binary"
	"fmt"
	"image"
	"time"
	"unicode/utf8"

	"github.com/deepteams/apng/internal/container"
)

// ChunkType is a four-letter PNG chunk name.
type ChunkType = container.ChunkType

// Chunk types re-exported from the container package.
const (
	TypeIHDR = container.TypeIHDR
	TypePLTE = container.TypePLTE
	TypeIDAT = container.TypeIDAT
	TypeIEND = container.TypeIEND
	TypeTRNS = container.TypeTRNS
	TypeTEXT = container.TypeTEXT
	TypeACTL = container.TypeACTL
	TypeFCTL = container.TypeFCTL
	TypeFDAT = container.TypeFDAT
)

// Chunk is one typed chunk. The set of implementations is closed; use a type
// switch over the concrete types to dispatch.
type Chunk interface {
	// Type returns the chunk tag.
	Type() ChunkType
	// Marshal returns the chunk payload as written on the wire.
	Marshal() []byte

	chunk()
}

// ImageHeader is the IHDR chunk.
type ImageHeader struct {
	container.Header
}

func (ImageHeader) Type() ChunkType { return TypeIHDR }
func (ImageHeader) chunk()          {}

// Palette is the PLTE chunk: up to 256 RGB entries.
type Palette struct {
	Entries [][3]uint8
}

func (Palette) Type() ChunkType { return TypePLTE }
func (Palette) chunk()          {}

// Marshal returns the packed RGB triples.
func (p Palette) Marshal() []byte {
	out := make([]byte, 0, 3*len(p.Entries))
	for _, e := range p.Entries {
		out = append(out, e[0], e[1], e[2])
	}
	return out
}

func parsePalette(data []byte) (Palette, error) {
	if len(data) == 0 || len(data)%3 != 0 || len(data) > 3*256 {
		return Palette{}, fmt.Errorf("%w: PLTE length %d", container.ErrInvalidChunk, len(data))
	}
	p := Palette{Entries: make([][3]uint8, len(data)/3)}
	for i := range p.Entries {
		copy(p.Entries[i][:], data[3*i:])
	}
	return p, nil
}

// Transparency is the tRNS chunk. Its payload depends on the color type:
// one alpha byte per palette entry, a 16-bit gray key, or a 16-bit RGB key.
type Transparency struct {
	Data []byte
}

func (Transparency) Type() ChunkType { return TypeTRNS }
func (Transparency) chunk()          {}

// Marshal returns the raw payload.
func (t Transparency) Marshal() []byte { return t.Data }

// PaletteTransparency builds a tRNS chunk from per-entry alpha values.
func PaletteTransparency(alpha []uint8) Transparency {
	return Transparency{Data: append([]byte(nil), alpha...)}
}

// GrayKey builds a tRNS chunk marking gray level v as fully transparent.
func GrayKey(v uint16) Transparency {
	return Transparency{Data: binary.BigEndian.AppendUint16(nil, v)}
}

// RGBKey builds a tRNS chunk marking the color (r, g, b) as fully transparent.
func RGBKey(r, g, b uint16) Transparency {
	data := make([]byte, 0, 6)
	data = binary.BigEndian.AppendUint16(data, r)
	data = binary.BigEndian.AppendUint16(data, g)
	data = binary.BigEndian.AppendUint16(data, b)
	return Transparency{Data: data}
}

// Check validates the payload against the image color type and palette size.
func (t Transparency) Check(ct container.ColorType, paletteLen int) error {
	switch ct {
	case container.ColorPalette:
		if len(t.Data) > paletteLen {
			return fmt.Errorf("%w: tRNS has %d entries for a %d-entry palette",
				container.ErrInvalidChunk, len(t.Data), paletteLen)
		}
	case container.ColorGray:
		if len(t.Data) != 2 {
			return fmt.Errorf("%w: gray tRNS length %d", container.ErrInvalidChunk, len(t.Data))
		}
	case container.ColorRGB:
		if len(t.Data) != 6 {
			return fmt.Errorf("%w: rgb tRNS length %d", container.ErrInvalidChunk, len(t.Data))
		}
	default:
		return fmt.Errorf("%w: tRNS in %s image", container.ErrInvalidChunk, ct)
	}
	return nil
}

// Key returns the transparent color key. Gray keys occupy Key()[0].
func (t Transparency) Key() [3]uint16 {
	var k [3]uint16
	for i := 0; i < 3 && 2*i+1 < len(t.Data); i++ {
		k[i] = binary.BigEndian.Uint16(t.Data[2*i:])
	}
	return k
}

// AnimationControl is the acTL chunk.
type AnimationControl struct {
	FrameCount uint32
	LoopCount  uint32 // 0 = infinite
}

func (AnimationControl) Type() ChunkType { return TypeACTL }
func (AnimationControl) chunk()          {}

// Marshal returns the 8-byte payload.
func (a AnimationControl) Marshal() []byte {
	out := make([]byte, container.ACTLSize)
	binary.BigEndian.PutUint32(out[0:4], a.FrameCount)
	binary.BigEndian.PutUint32(out[4:8], a.LoopCount)
	return out
}

func parseAnimationControl(data []byte) (AnimationControl, error) {
	if len(data) != container.ACTLSize {
		return AnimationControl{}, fmt.Errorf("%w: acTL length %d", container.ErrInvalidChunk, len(data))
	}
	a := AnimationControl{
		FrameCount: binary.BigEndian.Uint32(data[0:4]),
		LoopCount:  binary.BigEndian.Uint32(data[4:8]),
	}
	if a.FrameCount == 0 {
		return AnimationControl{}, fmt.Errorf("%w: acTL frame count is 0", container.ErrInvalidAnimation)
	}
	return a, nil
}

// DisposeOp is the fcTL dispose_op field.
type DisposeOp uint8

const (
	DisposeOpNone       DisposeOp = 0
	DisposeOpBackground DisposeOp = 1
	DisposeOpPrevious   DisposeOp = 2
)

// BlendOp is the fcTL blend_op field.
type BlendOp uint8

const (
	BlendOpSource BlendOp = 0
	BlendOpOver   BlendOp = 1
)

// FrameControl is the fcTL chunk.
type FrameControl struct {
	SequenceNumber uint32
	Width          uint32
	Height         uint32
	XOffset        uint32
	YOffset        uint32
	DelayNum       uint16
	DelayDen       uint16
	Dispose        DisposeOp
	Blend          BlendOp
}

func (FrameControl) Type() ChunkType { return TypeFCTL }
func (FrameControl) chunk()          {}

// Marshal returns the 26-byte payload.
func (f FrameControl) Marshal() []byte {
	out := make([]byte, container.FCTLSize)
	binary.BigEndian.PutUint32(out[0:4], f.SequenceNumber)
	binary.BigEndian.PutUint32(out[4:8], f.Width)
	binary.BigEndian.PutUint32(out[8:12], f.Height)
	binary.BigEndian.PutUint32(out[12:16], f.XOffset)
	binary.BigEndian.PutUint32(out[16:20], f.YOffset)
	binary.BigEndian.PutUint16(out[20:22], f.DelayNum)
	binary.BigEndian.PutUint16(out[22:24], f.DelayDen)
	out[24] = byte(f.Dispose)
	out[25] = byte(f.Blend)
	return out
}

func parseFrameControl(data []byte) (FrameControl, error) {
	if len(data) != container.FCTLSize {
		return FrameControl{}, fmt.Errorf("%w: fcTL length %d", container.ErrInvalidChunk, len(data))
	}
	f := FrameControl{
		SequenceNumber: binary.BigEndian.Uint32(data[0:4]),
		Width:          binary.BigEndian.Uint32(data[4:8]),
		Height:         binary.BigEndian.Uint32(data[8:12]),
		XOffset:        binary.BigEndian.Uint32(data[12:16]),
		YOffset:        binary.BigEndian.Uint32(data[16:20]),
		DelayNum:       binary.BigEndian.Uint16(data[20:22]),
		DelayDen:       binary.BigEndian.Uint16(data[22:24]),
		Dispose:        DisposeOp(data[24]),
		Blend:          BlendOp(data[25]),
	}
	if f.Width == 0 || f.Height == 0 {
		return FrameControl{}, fmt.Errorf("%w: fcTL %d has zero dimension", container.ErrInvalidAnimation, f.SequenceNumber)
	}
	if f.Dispose > DisposeOpPrevious {
		return FrameControl{}, fmt.Errorf("%w: fcTL dispose_op %d", container.ErrInvalidAnimation, f.Dispose)
	}
	if f.Blend > BlendOpOver {
		return FrameControl{}, fmt.Errorf("%w: fcTL blend_op %d", container.ErrInvalidAnimation, f.Blend)
	}
	return f, nil
}

// CheckBounds verifies the frame region lies inside a width x height canvas.
func (f FrameControl) CheckBounds(width, height uint32) error {
	if uint64(f.XOffset)+uint64(f.Width) > uint64(width) ||
		uint64(f.YOffset)+uint64(f.Height) > uint64(height) {
		return fmt.Errorf("%w: %dx%d at (%d,%d) on a %dx%d canvas", container.ErrFrameOutOfCanvas,
			f.Width, f.Height, f.XOffset, f.YOffset, width, height)
	}
	return nil
}

// Bounds returns the frame region in canvas coordinates.
func (f FrameControl) Bounds() image.Rectangle {
	x, y := int(f.XOffset), int(f.YOffset)
	return image.Rect(x, y, x+int(f.Width), y+int(f.Height))
}

// Delay returns the display duration. A zero denominator means 1/100 s.
func (f FrameControl) Delay() time.Duration {
	den := f.DelayDen
	if den == 0 {
		den = 100
	}
	return time.Duration(f.DelayNum) * time.Second / time.Duration(den)
}

// ImageData is one IDAT chunk: a slice of the default image's zlib stream.
type ImageData struct {
	Data []byte
}

func (ImageData) Type() ChunkType { return TypeIDAT }
func (ImageData) chunk()          {}

// Marshal returns the compressed bytes.
func (d ImageData) Marshal() []byte { return d.Data }

// FrameData is one fdAT chunk: a sequence number followed by a slice of an
// animation frame's zlib stream.
type FrameData struct {
	SequenceNumber uint32
	Data           []byte
}

func (FrameData) Type() ChunkType { return TypeFDAT }
func (FrameData) chunk()          {}

// Marshal returns the sequence number and the compressed bytes.
func (d FrameData) Marshal() []byte {
	out := make([]byte, container.SequenceSize, container.SequenceSize+len(d.Data))
	binary.BigEndian.PutUint32(out, d.SequenceNumber)
	return append(out, d.Data...)
}

func parseFrameData(data []byte) (FrameData, error) {
	if len(data) < container.SequenceSize {
		return FrameData{}, fmt.Errorf("%w: fdAT length %d", container.ErrInvalidChunk, len(data))
	}
	return FrameData{
		SequenceNumber: binary.BigEndian.Uint32(data),
		Data:           data[container.SequenceSize:],
	}, nil
}

// Text is a tEXt chunk. Keyword and Value hold Latin-1 text decoded to UTF-8.
type Text struct {
	Keyword string
	Value   string
}

func (Text) Type() ChunkType { return TypeTEXT }
func (Text) chunk()          {}

// Marshal returns keyword, NUL separator and value in Latin-1. Characters
// outside Latin-1 are written as '?'; use Check to reject them instead.
func (t Text) Marshal() []byte {
	out := appendLatin1(nil, t.Keyword)
	out = append(out, 0)
	return appendLatin1(out, t.Value)
}

// Check validates the keyword length and that both fields are Latin-1.
func (t Text) Check() error {
	n := utf8.RuneCountInString(t.Keyword)
	if n == 0 || n > container.MaxTextKeyword {
		return fmt.Errorf("%w: tEXt keyword length %d", container.ErrInvalidChunk, n)
	}
	for _, s := range [2]string{t.Keyword, t.Value} {
		for _, r := range s {
			if r > 0xff {
				return fmt.Errorf("%w: tEXt character %q is not Latin-1", container.ErrInvalidChunk, r)
			}
		}
	}
	if containsNUL(t.Keyword) {
		return fmt.Errorf("%w: tEXt keyword contains NUL", container.ErrInvalidChunk)
	}
	return nil
}

func parseText(data []byte) (Text, error) {
	sep := -1
	for i, c := range data {
		if c == 0 {
			sep = i
			break
		}
	}
	if sep < 1 || sep > container.MaxTextKeyword {
		return Text{}, fmt.Errorf("%w: tEXt keyword length %d", container.ErrInvalidChunk, sep)
	}
	return Text{Keyword: latin1(data[:sep]), Value: latin1(data[sep+1:])}, nil
}

func latin1(b []byte) string {
	r := make([]rune, len(b))
	for i, c := range b {
		r[i] = rune(c)
	}
	return string(r)
}

func appendLatin1(dst []byte, s string) []byte {
	for _, r := range s {
		if r > 0xff {
			r = '?'
		}
		dst = append(dst, byte(r))
	}
	return dst
}

func containsNUL(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return true
		}
	}
	return false
}

// End is the IEND chunk.
type End struct{}

func (End) Type() ChunkType { return TypeIEND }
func (End) Marshal() []byte { return nil }
func (End) chunk()          {}

// Raw is any chunk without a dedicated type, forwarded byte for byte.
type Raw struct {
	Tag  ChunkType
	Data []byte
}

func (r Raw) Type() ChunkType { return r.Tag }
func (r Raw) Marshal() []byte { return r.Data }
func (Raw) chunk()            {}

// Parse decodes a chunk payload into its typed representation. Unknown chunk
// types become Raw. Payload checks that depend on the image header (tRNS
// sizes, fcTL bounds) are left to the caller.
func Parse(t ChunkType, data []byte) (Chunk, error) {
	switch t {
	case TypeIHDR:
		h, err := container.ParseHeader(data)
		if err != nil {
			return nil, err
		}
		return ImageHeader{h}, nil
	case TypePLTE:
		return typed(parsePalette(data))
	case TypeTRNS:
		return Transparency{Data: data}, nil
	case TypeACTL:
		return typed(parseAnimationControl(data))
	case TypeFCTL:
		return typed(parseFrameControl(data))
	case TypeIDAT:
		return ImageData{Data: data}, nil
	case TypeFDAT:
		return typed(parseFrameData(data))
	case TypeTEXT:
		return typed(parseText(data))
	case TypeIEND:
		if len(data) != 0 {
			return nil, fmt.Errorf("%w: IEND carries %d bytes", container.ErrInvalidChunk, len(data))
		}
		return End{}, nil
	}
	return Raw{Tag: t, Data: data}, nil
}

// typed drops the zero value of a failed parse so callers never see a
// non-nil Chunk alongside an error.
func typed[C Chunk](c C, err error) (Chunk, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}
