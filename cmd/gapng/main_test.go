package main

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/deepteams/apng"
)

// runGapng executes the command in-process with the given arguments and
// optional stdin data. Returns stdout, stderr, and the exit code.
func runGapng(t *testing.T, stdin []byte, args ...string) (stdout, stderr []byte, code int) {
	t.Helper()
	var outBuf, errBuf bytes.Buffer
	c := &cli{stdin: bytes.NewReader(stdin), stdout: &outBuf, stderr: &errBuf}
	code = c.run(args)
	return outBuf.Bytes(), errBuf.Bytes(), code
}

func gradient() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetNRGBA(x, y, color.NRGBA{
				R: uint8(x * 32),
				G: uint8(y * 32),
				B: 128,
				A: 255,
			})
		}
	}
	return img
}

// createTestPNG writes an 8x8 gradient with the standard library encoder and
// returns the file path.
func createTestPNG(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "input.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating test PNG: %v", err)
	}
	if err := png.Encode(f, gradient()); err != nil {
		f.Close()
		t.Fatalf("encoding test PNG: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("closing test PNG: %v", err)
	}
	return path
}

// createTestGIF writes a 3-frame 6x6 GIF: a red background, a green square
// disposed to background and a blue square disposed to previous.
func createTestGIF(t *testing.T, dir string) string {
	t.Helper()
	pal := color.Palette{color.RGBA{}, color.RGBA{R: 255, A: 255}, color.RGBA{G: 255, A: 255}, color.RGBA{B: 255, A: 255}}
	frame := func(r image.Rectangle, idx uint8) *image.Paletted {
		p := image.NewPaletted(r, pal)
		for i := range p.Pix {
			p.Pix[i] = idx
		}
		return p
	}
	g := &gif.GIF{
		Image: []*image.Paletted{
			frame(image.Rect(0, 0, 6, 6), 1),
			frame(image.Rect(1, 1, 3, 3), 2),
			frame(image.Rect(3, 3, 5, 5), 3),
		},
		Delay:     []int{5, 20, 0},
		Disposal:  []byte{gif.DisposalNone, gif.DisposalBackground, gif.DisposalPrevious},
		LoopCount: 2,
		Config:    image.Config{ColorModel: pal, Width: 6, Height: 6},
	}
	path := filepath.Join(dir, "anim.gif")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := gif.EncodeAll(f, g); err != nil {
		t.Fatal(err)
	}
	return path
}

// createTestAPNG writes a 3-frame 8x8 APNG and returns its path.
func createTestAPNG(t *testing.T, dir string) string {
	t.Helper()
	anim := &apng.Animation{Width: 8, Height: 8, Frames: []apng.Frame{
		{Image: gradient(), DelayNum: 1, DelayDen: 10},
		{Image: image.NewNRGBA(image.Rect(0, 0, 2, 2)), Bounds: image.Rect(1, 1, 3, 3), DelayNum: 1, DelayDen: 10},
		{Image: gradient().SubImage(image.Rect(0, 0, 4, 4)), Bounds: image.Rect(4, 4, 8, 8), DelayNum: 3, DelayDen: 10,
			Dispose: apng.DisposeBackground, Blend: apng.BlendOver},
	}}
	var buf bytes.Buffer
	if err := apng.EncodeAll(&buf, anim, nil); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "anim.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// assertPNGHeader verifies that data starts with the PNG signature.
func assertPNGHeader(t *testing.T, data []byte) {
	t.Helper()
	if len(data) < 8 {
		t.Fatalf("output too small (%d bytes)", len(data))
	}
	if string(data[:8]) != "\x89PNG\r\n\x1a\n" {
		t.Errorf("expected PNG signature, got % x", data[:8])
	}
}

func assertContains(t *testing.T, haystack, needle, msg string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Errorf("%s: expected %q in:\n%s", msg, needle, haystack)
	}
}

// --- enc tests ---

func TestEnc_PNGToPNG(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	out := filepath.Join(dir, "output.png")

	_, stderr, code := runGapng(t, nil, "enc", "-o", out, in)
	if code != 0 {
		t.Fatalf("enc failed (%d): %s", code, stderr)
	}
	assertContains(t, string(stderr), "Encoded", "stderr")

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	assertPNGHeader(t, data)

	// The standard library reads what we write.
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("image/png: %v", err)
	}
	want := gradient()
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if got := color.NRGBAModel.Convert(img.At(x, y)); got != want.At(x, y) {
				t.Fatalf("(%d,%d) = %v, want %v", x, y, got, want.At(x, y))
			}
		}
	}
}

func TestEnc_Options(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	out := filepath.Join(dir, "gray.png")

	_, stderr, code := runGapng(t, nil, "enc",
		"-interlace", "-filter", "paeth", "-z", "best", "-color", "gray",
		"-text", "Title=gradient", "-text", "Author=me", "-chunk", "16", "-v",
		"-o", out, in)
	if code != 0 {
		t.Fatalf("enc failed (%d): %s", code, stderr)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	d, err := apng.NewDecoder(f, nil)
	if err != nil {
		t.Fatal(err)
	}
	hdr := d.Header()
	if hdr.ColorType != apng.Grayscale || hdr.Interlace == 0 {
		t.Errorf("header %+v", hdr)
	}
	if text := d.Metadata().Text; len(text) != 2 || text[0].Value != "gradient" || text[1].Keyword != "Author" {
		t.Errorf("text %+v", text)
	}
	assertContains(t, string(stderr), "8x8 grayscale/8", "verbose output")
}

func TestEnc_StdinStdout(t *testing.T) {
	var in bytes.Buffer
	if err := png.Encode(&in, gradient()); err != nil {
		t.Fatal(err)
	}
	stdout, stderr, code := runGapng(t, in.Bytes(), "enc", "-o", "-", "-")
	if code != 0 {
		t.Fatalf("enc failed (%d): %s", code, stderr)
	}
	assertPNGHeader(t, stdout)
	if _, err := apng.Decode(bytes.NewReader(stdout)); err != nil {
		t.Fatal(err)
	}
}

func TestEnc_OtherInputFormats(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name   string
		encode func(*bytes.Buffer) error
	}{
		{"in.bmp", func(b *bytes.Buffer) error { return bmp.Encode(b, gradient()) }},
		{"in.tiff", func(b *bytes.Buffer) error { return tiff.Encode(b, gradient(), nil) }},
		{"in.gif", func(b *bytes.Buffer) error { return gif.Encode(b, gradient(), nil) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.encode(&buf); err != nil {
				t.Fatal(err)
			}
			in := filepath.Join(dir, tt.name)
			if err := os.WriteFile(in, buf.Bytes(), 0o644); err != nil {
				t.Fatal(err)
			}
			out := filepath.Join(dir, tt.name+".png")
			_, stderr, code := runGapng(t, nil, "enc", "-o", out, in)
			if code != 0 {
				t.Fatalf("enc failed (%d): %s", code, stderr)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			cfg, err := apng.DecodeConfig(bytes.NewReader(data))
			if err != nil {
				t.Fatal(err)
			}
			if cfg.Width != 8 || cfg.Height != 8 {
				t.Fatalf("%dx%d", cfg.Width, cfg.Height)
			}
		})
	}
}

func TestEnc_AnimatedGIF(t *testing.T) {
	dir := t.TempDir()
	in := createTestGIF(t, dir)
	out := filepath.Join(dir, "anim.png")

	_, stderr, code := runGapng(t, nil, "enc", "-v", "-o", out, in)
	if code != 0 {
		t.Fatalf("enc failed (%d): %s", code, stderr)
	}
	assertContains(t, string(stderr), "3 frames", "stderr")
	assertContains(t, string(stderr), "frame 1: (1,1)-(3,3)", "verbose output")

	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	anim, err := apng.DecodeAll(f, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(anim.Frames) != 3 || anim.LoopCount != 3 {
		t.Fatalf("%d frames, %d loops", len(anim.Frames), anim.LoopCount)
	}
	wantDelay := []int64{50, 200, 100}
	wantDispose := []apng.DisposeMethod{apng.DisposeNone, apng.DisposeBackground, apng.DisposePrevious}
	for i, fr := range anim.Frames {
		if fr.Delay().Milliseconds() != wantDelay[i] {
			t.Errorf("frame %d delay %v", i, fr.Delay())
		}
		if fr.Dispose != wantDispose[i] {
			t.Errorf("frame %d dispose %s", i, fr.Dispose)
		}
	}
	// Frame 1 was disposed to background before frame 2.
	c := anim.Frames[2].Canvas
	if got := color.NRGBAModel.Convert(c.At(1, 1)); got != (color.NRGBA{}) {
		t.Errorf("frame 2 (1,1) = %v, want transparent", got)
	}
	if got := color.NRGBAModel.Convert(c.At(4, 4)); got != (color.NRGBA{B: 255, A: 255}) {
		t.Errorf("frame 2 (4,4) = %v, want blue", got)
	}
}

func TestEnc_LoopOverride(t *testing.T) {
	dir := t.TempDir()
	in := createTestGIF(t, dir)
	stdout, stderr, code := runGapng(t, nil, "enc", "-loop", "0", "-o", "-", in)
	if code != 0 {
		t.Fatalf("enc failed (%d): %s", code, stderr)
	}
	d, err := apng.NewDecoder(bytes.NewReader(stdout), nil)
	if err != nil {
		t.Fatal(err)
	}
	if ac, ok := d.Animation(); !ok || ac.LoopCount != 0 || ac.FrameCount != 3 {
		t.Fatalf("acTL %+v animated=%v", ac, ok)
	}
}

func TestEnc_Errors(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing input", []string{"enc"}, "missing input file"},
		{"nonexistent file", []string{"enc", filepath.Join(dir, "nope.png")}, "gapng:"},
		{"bad filter", []string{"enc", "-filter", "median", in}, "unknown filter"},
		{"bad level", []string{"enc", "-z", "11", in}, "unknown compression level"},
		{"bad color", []string{"enc", "-color", "cmyk", in}, "unknown color type"},
		{"bad text", []string{"enc", "-text", "novalue", in}, "keyword=value"},
		{"bad depth", []string{"enc", "-color", "rgb", "-depth", "4", "-o", filepath.Join(dir, "x.png"), in}, "bit depth"},
		{"not an image", []string{"enc", "-o", "-", "-"}, "decoding input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runGapng(t, []byte("garbage"), tt.args...)
			if code == 0 {
				t.Fatal("expected failure")
			}
			assertContains(t, string(stderr), tt.want, "stderr")
		})
	}
	if _, err := os.Stat(filepath.Join(dir, "x.png")); !os.IsNotExist(err) {
		t.Error("failed output file was not removed")
	}
}

// --- dec tests ---

func TestDec_PNGToFormats(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	tests := []struct {
		args  []string
		out   string
		check func([]byte) error
	}{
		{[]string{}, "a.png", func(b []byte) error { _, err := png.Decode(bytes.NewReader(b)); return err }},
		{[]string{"-fmt", "jpeg"}, "b.out", func(b []byte) error { _, _, err := image.Decode(bytes.NewReader(b)); return err }},
		{[]string{}, "c.bmp", func(b []byte) error { _, err := bmp.Decode(bytes.NewReader(b)); return err }},
		{[]string{}, "d.tif", func(b []byte) error { _, err := tiff.Decode(bytes.NewReader(b)); return err }},
		{[]string{}, "e.gif", func(b []byte) error { _, err := gif.Decode(bytes.NewReader(b)); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.out, func(t *testing.T) {
			out := filepath.Join(dir, tt.out)
			args := append([]string{"dec"}, tt.args...)
			args = append(args, "-o", out, in)
			_, stderr, code := runGapng(t, nil, args...)
			if code != 0 {
				t.Fatalf("dec failed (%d): %s", code, stderr)
			}
			data, err := os.ReadFile(out)
			if err != nil {
				t.Fatal(err)
			}
			if err := tt.check(data); err != nil {
				t.Fatalf("output does not decode: %v", err)
			}
		})
	}
}

func TestDec_StdinStdout(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(createTestPNG(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	stdout, stderr, code := runGapng(t, data, "dec", "-o", "-", "-")
	if code != 0 {
		t.Fatalf("dec failed (%d): %s", code, stderr)
	}
	assertPNGHeader(t, stdout)
	if len(stderr) != 0 {
		t.Errorf("unexpected stderr: %s", stderr)
	}
}

func TestDec_AnimatedFrames(t *testing.T) {
	dir := t.TempDir()
	in := createTestAPNG(t, dir)
	out := filepath.Join(dir, "frame.png")

	_, stderr, code := runGapng(t, nil, "dec", "-v", "-o", out, in)
	if code != 0 {
		t.Fatalf("dec failed (%d): %s", code, stderr)
	}
	assertContains(t, string(stderr), "3 frames", "stderr")
	for i, name := range []string{"frame_000.png", "frame_001.png", "frame_002.png"} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if img.Bounds() != image.Rect(0, 0, 8, 8) {
			t.Fatalf("frame %d bounds %v", i, img.Bounds())
		}
	}
}

func TestDec_AnimatedGIF(t *testing.T) {
	dir := t.TempDir()
	in := createTestAPNG(t, dir)
	out := filepath.Join(dir, "anim.gif")

	_, stderr, code := runGapng(t, nil, "dec", "-o", out, in)
	if code != 0 {
		t.Fatalf("dec failed (%d): %s", code, stderr)
	}
	f, err := os.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	g, err := gif.DecodeAll(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(g.Image) != 3 {
		t.Fatalf("%d GIF frames", len(g.Image))
	}
	if g.Delay[2] != 30 {
		t.Errorf("delays %v", g.Delay)
	}

	// An animation written to stdout becomes a GIF.
	data, _ := os.ReadFile(in)
	stdout, stderr, code := runGapng(t, data, "dec", "-o", "-", "-")
	if code != 0 {
		t.Fatalf("dec to stdout failed (%d): %s", code, stderr)
	}
	if !bytes.HasPrefix(stdout, []byte("GIF8")) {
		t.Fatal("stdout is not a GIF")
	}
}

func TestDec_Errors(t *testing.T) {
	dir := t.TempDir()
	in := createTestAPNG(t, dir)
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing input", []string{"dec"}, "missing input file"},
		{"not a PNG", []string{"dec", "-"}, "invalid PNG signature"},
		{"frames to stdout", []string{"dec", "-fmt", "png", "-o", "-", in}, "use -fmt gif"},
		{"unknown format", []string{"dec", "-fmt", "webp", "-o", filepath.Join(dir, "x"), in}, "unknown output format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, code := runGapng(t, []byte("garbage"), tt.args...)
			if code == 0 {
				t.Fatal("expected failure")
			}
			assertContains(t, string(stderr), tt.want, "stderr")
		})
	}
}

// --- info tests ---

func TestInfo_Still(t *testing.T) {
	dir := t.TempDir()
	in := createTestPNG(t, dir)
	stdout, stderr, code := runGapng(t, nil, "info", in)
	if code != 0 {
		t.Fatalf("info failed (%d): %s", code, stderr)
	}
	out := string(stdout)
	assertContains(t, out, "Format:     PNG", "info output")
	assertContains(t, out, "Dimensions: 8 x 8", "info output")
	assertContains(t, out, "Animation:  false", "info output")
	assertContains(t, out, "File size:", "info output")
}

func TestInfo_Animated(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(createTestAPNG(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	stdout, stderr, code := runGapng(t, data, "info", "-")
	if code != 0 {
		t.Fatalf("info failed (%d): %s", code, stderr)
	}
	out := string(stdout)
	assertContains(t, out, "File:       <stdin>", "info output")
	assertContains(t, out, "Format:     APNG", "info output")
	assertContains(t, out, "Frames:     3", "info output")
	assertContains(t, out, "Loop count: infinite", "info output")
	assertContains(t, out, "frame 2: seq 3, 4x4 at (4,4), delay 300ms", "info output")
	assertContains(t, out, "Duration:   500ms", "info output")
}

func TestInfo_MissingInput(t *testing.T) {
	_, stderr, code := runGapng(t, nil, "info")
	if code == 0 {
		t.Fatal("expected failure")
	}
	assertContains(t, string(stderr), "missing input file", "stderr")
}

// --- command dispatch ---

func TestUnknownCommand(t *testing.T) {
	_, stderr, code := runGapng(t, nil, "frobnicate")
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	assertContains(t, string(stderr), `unknown command "frobnicate"`, "stderr")
}

func TestNoArgs(t *testing.T) {
	_, stderr, code := runGapng(t, nil)
	if code != 1 {
		t.Fatalf("exit code %d", code)
	}
	assertContains(t, string(stderr), "Usage:", "stderr")
}

func TestHelp(t *testing.T) {
	_, stderr, code := runGapng(t, nil, "help")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	assertContains(t, string(stderr), "gapng enc", "usage")
}

func TestEnc_Help(t *testing.T) {
	_, stderr, code := runGapng(t, nil, "enc", "-h")
	if code != 0 {
		t.Fatalf("exit code %d", code)
	}
	assertContains(t, string(stderr), "-interlace", "flag usage")
}
