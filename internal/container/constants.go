// Package container defines the PNG chunk stream: wire constants, chunk
// framing with CRC-32 validation, chunk ordering rules and the IHDR header
// model that governs how image data is laid out.
package container

import "encoding/binary"

// Signature is the fixed 8-byte prefix of every PNG datastream.
const Signature = "\x89PNG\r\n\x1a\n"

// ChunkType is a four-letter chunk name packed big-endian, so that
// ChunkType('I'<<24|'H'<<16|'D'<<8|'R') is "IHDR".
type ChunkType uint32

// TypeOf packs four tag bytes into a ChunkType.
func TypeOf(a, b, c, d byte) ChunkType {
	return ChunkType(uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d))
}

// Chunk types known to the codec.
const (
	TypeIHDR ChunkType = 'I'<<24 | 'H'<<16 | 'D'<<8 | 'R'
	TypePLTE ChunkType = 'P'<<24 | 'L'<<16 | 'T'<<8 | 'E'
	TypeIDAT ChunkType = 'I'<<24 | 'D'<<16 | 'A'<<8 | 'T'
	TypeIEND ChunkType = 'I'<<24 | 'E'<<16 | 'N'<<8 | 'D'
	TypeTRNS ChunkType = 't'<<24 | 'R'<<16 | 'N'<<8 | 'S'
	TypeTEXT ChunkType = 't'<<24 | 'E'<<16 | 'X'<<8 | 't'
	TypeACTL ChunkType = 'a'<<24 | 'c'<<16 | 'T'<<8 | 'L'
	TypeFCTL ChunkType = 'f'<<24 | 'c'<<16 | 'T'<<8 | 'L'
	TypeFDAT ChunkType = 'f'<<24 | 'd'<<16 | 'A'<<8 | 'T'
)

// String returns the four-letter chunk name.
func (t ChunkType) String() string {
	var b [TagSize]byte
	binary.BigEndian.PutUint32(b[:], uint32(t))
	return string(b[:])
}

// IsCritical reports whether the chunk is critical (first letter uppercase).
func (t ChunkType) IsCritical() bool {
	return t&(0x20<<24) == 0
}

// IsSafeToCopy reports whether an editor that does not recognise the chunk
// may copy it to a modified stream (fourth letter lowercase).
func (t ChunkType) IsSafeToCopy() bool {
	return t&0x20 != 0
}

// Valid reports whether every byte of the tag is an ASCII letter.
func (t ChunkType) Valid() bool {
	for shift := 24; shift >= 0; shift -= 8 {
		c := byte(t >> uint(shift))
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
			return false
		}
	}
	return true
}

// Container structure sizes.
const (
	SignatureSize   = 8  // Size of the PNG signature
	TagSize         = 4  // Size of a chunk tag (e.g. "IDAT")
	LengthSize      = 4  // Size of a chunk's length field
	ChunkHeaderSize = 8  // Length + tag
	CRCSize         = 4  // Size of the trailing CRC-32
	IHDRSize        = 13 // Size of an IHDR payload
	ACTLSize        = 8  // Size of an acTL payload
	FCTLSize        = 26 // Size of an fcTL payload
	SequenceSize    = 4  // Size of the sequence number prefix of fdAT
)

// Limits.
const (
	// MaxChunkLength is the largest length a chunk may declare (2^31-1).
	MaxChunkLength = 1<<31 - 1
	// MaxDimension is the largest IHDR/fcTL width or height (2^31-1).
	MaxDimension = 1<<31 - 1
	// MaxImageArea bounds width x height; headers at or above it are
	// rejected before any pixel buffer is allocated.
	MaxImageArea = uint64(1) << 28
	// DefaultDataChunkSize bounds each IDAT/fdAT payload written by the encoder.
	DefaultDataChunkSize = 1 << 15
	// MaxTextKeyword is the longest tEXt keyword, in bytes.
	MaxTextKeyword = 79
)
