package filter

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/deepteams/apng/internal/container"
)

func randomRow(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func TestPaethTieBreak(t *testing.T) {
	tests := []struct {
		a, b, c, want uint8
	}{
		{0, 0, 0, 0},
		{10, 10, 10, 10},  // all equal: a wins
		{10, 20, 10, 20},  // p=20: pb=0
		{20, 10, 10, 20},  // p=20: pa=0
		{10, 20, 30, 10},  // p=0: pa=10, pb=20, pc=30
		{50, 60, 100, 50}, // p=10: pa=40, pb=50, pc=90
		{100, 50, 60, 100},
		{255, 255, 0, 255},
		{1, 3, 2, 2}, // p=2: pa=1, pb=1, pc=0
	}
	for _, tt := range tests {
		if got := paeth(tt.a, tt.b, tt.c); got != tt.want {
			t.Errorf("paeth(%d,%d,%d) = %d, want %d", tt.a, tt.b, tt.c, got, tt.want)
		}
	}
}

func TestUnfilterInvertsApply(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, bpp := range []int{1, 2, 3, 4, 6, 8} {
		for _, n := range []int{1, 2, 7, 64} {
			prev := randomRow(rng, n)
			cur := randomRow(rng, n)
			for ty := None; ty < NumTypes; ty++ {
				for _, p := range [][]byte{prev, nil} {
					filtered := make([]byte, n)
					Apply(ty, filtered, cur, p, bpp)
					if err := Unfilter(ty, filtered, p, bpp); err != nil {
						t.Fatalf("Unfilter(%s): %v", ty, err)
					}
					if !bytes.Equal(filtered, cur) {
						t.Fatalf("bpp=%d n=%d %s prev=%v: round trip mismatch\n got %x\nwant %x",
							bpp, n, ty, p != nil, filtered, cur)
					}
				}
			}
		}
	}
}

func TestNilPreviousMatchesZeroRow(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	cur := randomRow(rng, 33)
	zero := make([]byte, len(cur))
	for ty := None; ty < NumTypes; ty++ {
		a := make([]byte, len(cur))
		b := make([]byte, len(cur))
		Apply(ty, a, cur, nil, 3)
		Apply(ty, b, cur, zero, 3)
		if !bytes.Equal(a, b) {
			t.Fatalf("%s: nil previous row differs from zero row", ty)
		}
		if err := Unfilter(ty, a, nil, 3); err != nil {
			t.Fatal(err)
		}
		if err := Unfilter(ty, b, zero, 3); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(a, b) {
			t.Fatalf("%s: unfilter with nil previous row differs from zero row", ty)
		}
	}
}

func TestUnfilterKnownValues(t *testing.T) {
	// Sub with bpp=1 over residues {1,1,1} reconstructs {1,2,3}.
	row := []byte{1, 1, 1}
	Unfilter(Sub, row, nil, 1)
	if !bytes.Equal(row, []byte{1, 2, 3}) {
		t.Errorf("Sub: got %v", row)
	}
	// Up wraps modulo 256.
	row = []byte{200, 0}
	Unfilter(Up, row, []byte{100, 255}, 1)
	if !bytes.Equal(row, []byte{44, 255}) {
		t.Errorf("Up: got %v", row)
	}
	// Average floors (left+up)/2 computed without overflow.
	row = []byte{0, 0}
	Unfilter(Average, row, []byte{255, 255}, 1)
	// i=0: 0 + 255/2 = 127; i=1: 0 + (127+255)/2 = 191.
	if !bytes.Equal(row, []byte{127, 191}) {
		t.Errorf("Average: got %v", row)
	}
}

func TestUnfilterUnknownType(t *testing.T) {
	err := Unfilter(Type(5), []byte{1}, nil, 1)
	if !errors.Is(err, container.ErrDecompression) {
		t.Fatalf("expected ErrDecompression, got %v", err)
	}
}

func TestFiltererAdaptivePicksMinimum(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	f := NewFilterer(Adaptive, 48, 3)
	for iter := 0; iter < 50; iter++ {
		prev := randomRow(rng, 48)
		cur := randomRow(rng, 48)
		got, out := f.Filter(cur, prev)

		best, bestSum := None, -1
		for ty := None; ty < NumTypes; ty++ {
			buf := make([]byte, 48)
			Apply(ty, buf, cur, prev, 3)
			sum := 0
			for _, b := range buf {
				sum += abs8(b)
			}
			if bestSum < 0 || sum < bestSum {
				best, bestSum = ty, sum
			}
		}
		if got != best {
			t.Fatalf("iter %d: picked %s, want %s", iter, got, best)
		}
		back := append([]byte(nil), out...)
		if err := Unfilter(got, back, prev, 3); err != nil || !bytes.Equal(back, cur) {
			t.Fatalf("iter %d: selected filter does not invert (%v)", iter, err)
		}
	}
}

func TestFiltererTieGoesToLowestType(t *testing.T) {
	// A constant zero row with a zero previous row scores 0 under every filter.
	f := NewFilterer(Adaptive, 8, 1)
	if got, _ := f.Filter(make([]byte, 8), make([]byte, 8)); got != None {
		t.Fatalf("picked %s, want none", got)
	}
	// With prev == cur both Up and Paeth score 0; Up is numbered lower.
	row := bytes.Repeat([]byte{9}, 8)
	if got, _ := f.Filter(row, row); got != Up {
		t.Fatalf("picked %s, want up", got)
	}
	if got, _ := f.Filter([]byte{0, 0, 0, 0}, nil); got != None {
		t.Fatalf("picked %s, want none", got)
	}
}

func TestFiltererFixed(t *testing.T) {
	f := NewFilterer(FixedPaeth, 4, 1)
	got, out := f.Filter([]byte{1, 2, 3, 4}, nil)
	if got != Paeth {
		t.Fatalf("type = %s, want paeth", got)
	}
	if !bytes.Equal(out, []byte{1, 1, 1, 1}) {
		t.Fatalf("out = %v", out)
	}
	if !FixedNone.Valid() || !Adaptive.Valid() || Mode(5).Valid() || Mode(-2).Valid() {
		t.Fatal("Mode.Valid mismatch")
	}
}

func BenchmarkFilterAdaptive(b *testing.B) {
	rng := rand.New(rand.NewSource(4))
	prev := randomRow(rng, 4096)
	cur := randomRow(rng, 4096)
	f := NewFilterer(Adaptive, 4096, 4)
	b.SetBytes(4096)
	for i := 0; i < b.N; i++ {
		f.Filter(cur, prev)
	}
}

func BenchmarkUnfilterPaeth(b *testing.B) {
	rng := rand.New(rand.NewSource(5))
	prev := randomRow(rng, 4096)
	cur := randomRow(rng, 4096)
	b.SetBytes(4096)
	for i := 0; i < b.N; i++ {
		Unfilter(Paeth, cur, prev, 4)
	}
}
