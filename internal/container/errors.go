package container

import "errors"

// Errors shared by every layer of the codec. All of them are terminal for the
// session that produced them.
var (
	ErrInvalidSignature            = errors.New("apng: invalid PNG signature")
	ErrCorruptChunk                = errors.New("apng: chunk CRC mismatch")
	ErrHeaderMissing               = errors.New("apng: first chunk is not IHDR")
	ErrInvalidHeader               = errors.New("apng: invalid IHDR")
	ErrUnsupportedColorCombination = errors.New("apng: unsupported color type and bit depth combination")
	ErrUnsupportedCriticalChunk    = errors.New("apng: unsupported critical chunk")
	ErrChunkOrder                  = errors.New("apng: chunk out of order")
	ErrChunkTooLarge               = errors.New("apng: chunk length exceeds limit")
	ErrInvalidChunk                = errors.New("apng: malformed chunk")
	ErrTruncatedStream             = errors.New("apng: truncated stream")
	ErrDecompression               = errors.New("apng: image data decompression failed")
	ErrInvalidAnimation            = errors.New("apng: invalid animation")
	ErrIncompleteAnimation         = errors.New("apng: incomplete animation")
	ErrSequenceOrder               = errors.New("apng: animation sequence number out of order")
	ErrFrameOutOfCanvas            = errors.New("apng: frame exceeds canvas bounds")
)
