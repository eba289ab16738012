// Package apng provides a pure Go encoder and decoder for PNG and animated
// PNG (APNG) images.
//
// The package works at three levels:
//   - one-shot helpers (Decode, DecodeConfig, DecodeAll, Encode, EncodeAll)
//   - a pull-based step codec (Decoder.Next, Encoder.Push/Finish) that
//     handles one frame at a time without buffering the whole animation
//   - the chunk level, in the mux subpackage (Demuxer, Muxer)
//
// Every color type and bit depth allowed by PNG is supported, with or
// without Adam7 interlacing, along with PLTE, tRNS, tEXt and the APNG
// chunks acTL, fcTL and fdAT. Unknown ancillary chunks are skipped on decode
// and may be forwarded on encode. Compression uses
// github.com/klauspost/compress.
//
// The package registers the "apng" format with the standard library's image
// package. It shares the PNG signature with image/png, so image.Decode picks
// whichever of the two was registered first.
//
// Basic usage for decoding:
//
//	img, err := apng.Decode(reader)
//
// Stepping through an animation:
//
//	d, err := apng.NewDecoder(reader, &apng.DecoderOptions{Compose: true})
//	for {
//		f, err := d.Next()
//		if err == io.EOF {
//			break
//		}
//		...
//	}
//
// Basic usage for encoding:
//
//	err := apng.Encode(writer, img, nil)
package apng
