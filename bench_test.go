package apng

import (
	"bytes"
	"image"
	"testing"
)

func loadTestImage(b *testing.B) image.Image {
	b.Helper()
	return makeGradient(640, 480)
}

func benchmarkEncode(b *testing.B, opts *EncoderOptions) {
	img := loadTestImage(b)
	buf := &bytes.Buffer{}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		buf.Reset()
		if err := Encode(buf, img, opts); err != nil {
			b.Fatal(err)
		}
	}
	b.SetBytes(int64(640 * 480 * 4))
}

func BenchmarkEncodeAdaptive(b *testing.B) { benchmarkEncode(b, nil) }

func BenchmarkEncodeFilterNone(b *testing.B) {
	benchmarkEncode(b, &EncoderOptions{Filter: FilterNone})
}

func BenchmarkEncodeBestSpeed(b *testing.B) {
	benchmarkEncode(b, &EncoderOptions{Compression: BestSpeed})
}

func BenchmarkEncodeInterlaced(b *testing.B) {
	benchmarkEncode(b, &EncoderOptions{Interlace: true})
}

func benchmarkDecode(b *testing.B, opts *EncoderOptions) {
	img := loadTestImage(b)
	var buf bytes.Buffer
	if err := Encode(&buf, img, opts); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Decode(bytes.NewReader(data)); err != nil {
			b.Fatal(err)
		}
	}
	b.SetBytes(int64(640 * 480 * 4))
}

func BenchmarkDecode(b *testing.B) { benchmarkDecode(b, nil) }

func BenchmarkDecodeInterlaced(b *testing.B) {
	benchmarkDecode(b, &EncoderOptions{Interlace: true})
}

func BenchmarkDecodeAllComposed(b *testing.B) {
	anim := newBenchAnimation()
	var buf bytes.Buffer
	if err := EncodeAll(&buf, anim, nil); err != nil {
		b.Fatal(err)
	}
	data := buf.Bytes()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := DecodeAll(bytes.NewReader(data), nil); err != nil {
			b.Fatal(err)
		}
	}
}

func newBenchAnimation() *Animation {
	anim := &Animation{Width: 128, Height: 128}
	anim.Frames = append(anim.Frames, Frame{Image: makeGradient(128, 128)})
	for i := 1; i < 16; i++ {
		off := image.Pt(i*4, i*4)
		anim.Frames = append(anim.Frames, Frame{
			Image:   makeGradient(64, 64),
			Bounds:  image.Rectangle{Min: off, Max: off.Add(image.Pt(64, 64))},
			Dispose: DisposeMethod(i % 3),
			Blend:   BlendOver,
		})
	}
	return anim
}
