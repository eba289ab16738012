// Package pool recycles scanline and image-data buffers between frames and
// between codec sessions. Buffers are grouped into size classes so that a
// returned row can serve any later request of the same class.
package pool

import "sync"

// Size classes, each four times the previous one.
const (
	minClass   = 256     // smallest pooled capacity
	maxClass   = 1 << 22 // largest pooled capacity (4 MiB)
	numClasses = 8
)

var classes [numClasses]sync.Pool

// class returns the index of the smallest class holding size bytes, or -1
// when size exceeds the largest class.
func class(size int) int {
	c := minClass
	for i := 0; i < numClasses; i++ {
		if size <= c {
			return i
		}
		c <<= 2
	}
	return -1
}

func classSize(i int) int {
	return minClass << (2 * uint(i))
}

// Get returns a slice of length size. Its contents are unspecified. Call Put
// when the buffer is no longer referenced.
func Get(size int) []byte {
	i := class(size)
	if i < 0 {
		return make([]byte, size)
	}
	if bp, ok := classes[i].Get().(*[]byte); ok && cap(*bp) >= size {
		return (*bp)[:size]
	}
	return make([]byte, size, classSize(i))
}

// GetZeroed is Get with the returned bytes cleared, for use as the all-zero
// row preceding the first scanline of an image or pass.
func GetZeroed(size int) []byte {
	b := Get(size)
	clear(b)
	return b
}

// Put returns b to its size class. Buffers smaller than the smallest class
// or larger than the largest are left to the garbage collector.
func Put(b []byte) {
	c := cap(b)
	if c < minClass || c > maxClass {
		return
	}
	// File the buffer under the largest class it can fully serve.
	i := class(c)
	if classSize(i) > c {
		i--
	}
	b = b[:c]
	classes[i].Put(&b)
}
