package apng

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/klauspost/compress/zlib"

	"github.com/deepteams/apng/internal/container"
	"github.com/deepteams/apng/mux"
)

// Helpers that build PNG/APNG streams chunk by chunk, bypassing the Encoder.

type rawChunk struct {
	tag  string
	data []byte
}

func tagOf(s string) container.ChunkType {
	return container.TypeOf(s[0], s[1], s[2], s[3])
}

func buildStream(t testing.TB, chunks ...rawChunk) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(container.Signature)
	for _, c := range chunks {
		if _, err := container.WriteChunk(&buf, tagOf(c.tag), c.data); err != nil {
			t.Fatal(err)
		}
	}
	return buf.Bytes()
}

func ihdrChunk(w, h uint32, depth uint8, ct container.ColorType) rawChunk {
	hdr := container.Header{Width: w, Height: h, BitDepth: depth, ColorType: ct}
	return rawChunk{"IHDR", hdr.Marshal()}
}

func actlChunk(frames, loops uint32) rawChunk {
	return rawChunk{"acTL", mux.AnimationControl{FrameCount: frames, LoopCount: loops}.Marshal()}
}

func fctlChunk(seq uint32, r image.Rectangle, dispose mux.DisposeOp, blend mux.BlendOp) rawChunk {
	fc := mux.FrameControl{
		SequenceNumber: seq,
		Width:          uint32(r.Dx()),
		Height:         uint32(r.Dy()),
		XOffset:        uint32(r.Min.X),
		YOffset:        uint32(r.Min.Y),
		DelayNum:       1,
		DelayDen:       10,
		Dispose:        dispose,
		Blend:          blend,
	}
	return rawChunk{"fcTL", fc.Marshal()}
}

func fdatChunk(seq uint32, data []byte) rawChunk {
	return rawChunk{"fdAT", mux.FrameData{SequenceNumber: seq, Data: data}.Marshal()}
}

func iendChunk() rawChunk { return rawChunk{"IEND", nil} }

// deflate compresses raw (already filtered) scanlines.
func deflate(t testing.TB, raw []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// rgbaRows returns unfiltered (type 0) scanlines of a solid RGBA8 image.
func rgbaRows(w, h int, c color.NRGBA) []byte {
	var raw []byte
	for y := 0; y < h; y++ {
		raw = append(raw, 0)
		for x := 0; x < w; x++ {
			raw = append(raw, c.R, c.G, c.B, c.A)
		}
	}
	return raw
}

func makeGradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w-1, 1)),
				G: uint8(y * 255 / max(h-1, 1)),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func makeNoise(rng *rand.Rand, w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	return img
}

func solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func nrgbaAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

// sameNRGBA64 reports whether a and b hold the same non-premultiplied
// 16-bit colors everywhere.
func sameNRGBA64(a, b image.Image) (image.Point, bool) {
	if a.Bounds().Size() != b.Bounds().Size() {
		return image.Point{-1, -1}, false
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ca := color.NRGBA64Model.Convert(a.At(ab.Min.X+x, ab.Min.Y+y))
			cb := color.NRGBA64Model.Convert(b.At(bb.Min.X+x, bb.Min.Y+y))
			if ca != cb {
				return image.Pt(x, y), false
			}
		}
	}
	return image.Point{}, true
}
