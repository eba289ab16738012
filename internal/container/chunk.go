package container

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Chunk is a single framed chunk: its tag, payload and stored CRC-32.
type Chunk struct {
	Type ChunkType
	Data []byte
	CRC  uint32
}

// Checksum returns the CRC-32 (ITU-T) over the chunk tag and data.
func Checksum(t ChunkType, data []byte) uint32 {
	var tag [TagSize]byte
	binary.BigEndian.PutUint32(tag[:], uint32(t))
	crc := crc32.NewIEEE()
	crc.Write(tag[:])
	crc.Write(data)
	return crc.Sum32()
}

// ReadSignature consumes the 8-byte PNG signature from r.
func ReadSignature(r io.Reader) error {
	var sig [SignatureSize]byte
	if _, err := io.ReadFull(r, sig[:]); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return ErrInvalidSignature
		}
		return err
	}
	if string(sig[:]) != Signature {
		return ErrInvalidSignature
	}
	return nil
}

// WriteSignature writes the 8-byte PNG signature to w.
func WriteSignature(w io.Writer) error {
	_, err := io.WriteString(w, Signature)
	return err
}

// Reader frames chunks out of a byte stream, verifying each chunk's CRC.
// It does not enforce chunk ordering; see Validator.
type Reader struct {
	r      io.Reader
	maxLen uint32
	hdr    [ChunkHeaderSize]byte
	tail   [CRCSize]byte
}

// NewReader returns a Reader over r. Chunks declaring more than maxLen bytes
// of data are rejected before any allocation; maxLen of 0 means MaxChunkLength.
func NewReader(r io.Reader, maxLen uint32) *Reader {
	if maxLen == 0 || maxLen > MaxChunkLength {
		maxLen = MaxChunkLength
	}
	return &Reader{r: r, maxLen: maxLen}
}

// Next reads the next chunk. It returns io.EOF only when the source ends
// cleanly on a chunk boundary; a source ending inside a chunk is
// ErrTruncatedStream.
func (cr *Reader) Next() (Chunk, error) {
	if _, err := io.ReadFull(cr.r, cr.hdr[:]); err != nil {
		if err == io.EOF {
			return Chunk{}, io.EOF
		}
		return Chunk{}, truncated(err, "chunk header")
	}

	length := binary.BigEndian.Uint32(cr.hdr[0:4])
	t := ChunkType(binary.BigEndian.Uint32(cr.hdr[4:8]))
	if !t.Valid() {
		return Chunk{}, fmt.Errorf("%w: invalid chunk tag %q", ErrInvalidChunk, cr.hdr[4:8])
	}
	if length > cr.maxLen {
		return Chunk{}, fmt.Errorf("%w: %s declares %d bytes", ErrChunkTooLarge, t, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(cr.r, data); err != nil {
		return Chunk{}, truncated(err, t.String()+" data")
	}
	if _, err := io.ReadFull(cr.r, cr.tail[:]); err != nil {
		return Chunk{}, truncated(err, t.String()+" CRC")
	}

	stored := binary.BigEndian.Uint32(cr.tail[:])
	if sum := Checksum(t, data); sum != stored {
		return Chunk{}, fmt.Errorf("%w: %s stored 0x%08x, computed 0x%08x", ErrCorruptChunk, t, stored, sum)
	}
	return Chunk{Type: t, Data: data, CRC: stored}, nil
}

// truncated maps short reads to ErrTruncatedStream and passes other I/O
// errors through unchanged.
func truncated(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: reading %s", ErrTruncatedStream, what)
	}
	return err
}

// WriteChunk writes one framed chunk (length, tag, data, CRC) to w and
// returns the number of bytes written.
func WriteChunk(w io.Writer, t ChunkType, data []byte) (int64, error) {
	if uint64(len(data)) > MaxChunkLength {
		return 0, fmt.Errorf("%w: %s has %d bytes", ErrChunkTooLarge, t, len(data))
	}
	var header [ChunkHeaderSize]byte
	var footer [CRCSize]byte
	binary.BigEndian.PutUint32(header[0:4], uint32(len(data)))
	binary.BigEndian.PutUint32(header[4:8], uint32(t))
	binary.BigEndian.PutUint32(footer[:], Checksum(t, data))

	hl, err := w.Write(header[:])
	if err != nil {
		return int64(hl), err
	}
	bl, err := w.Write(data)
	if err != nil {
		return int64(hl + bl), err
	}
	fl, err := w.Write(footer[:])
	return int64(hl + bl + fl), err
}
