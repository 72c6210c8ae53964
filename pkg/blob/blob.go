// Package blob provides the mutable byte store an image is assembled in. It
// replaces ad hoc file seeking with a single owned buffer: the file is read
// once, mutated in memory, and written back once.
package blob

import (
	"fmt"
	"os"
)

// Blob is a byte-addressable image buffer. Reads past the end return short
// results, writes past the end grow the buffer. Not safe for concurrent use.
type Blob struct {
	data []byte
}

// New wraps data in a Blob. The Blob takes ownership of the slice.
func New(data []byte) *Blob {
	return &Blob{data: data}
}

// Load reads an entire file into a new Blob.
func Load(path string) (*Blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read image: %w", err)
	}
	return &Blob{data: data}, nil
}

// Len returns the current total length.
func (b *Blob) Len() int {
	return len(b.data)
}

// Read returns a copy of n bytes starting at off. A negative n means
// everything from off to the end. Reads beyond the end are clamped, so the
// result may be shorter than requested, or empty.
func (b *Blob) Read(off, n int) []byte {
	if off < 0 || off >= len(b.data) {
		return nil
	}
	end := len(b.data)
	if n >= 0 && off+n < end {
		end = off + n
	}
	out := make([]byte, end-off)
	copy(out, b.data[off:end])
	return out
}

// Write stores p at absolute offset off, growing the buffer if the write
// extends past the current end. A gap between the old end and off is filled
// with zero bytes.
func (b *Blob) Write(off int, p []byte) {
	if off < 0 {
		return
	}
	if need := off + len(p); need > len(b.data) {
		grown := make([]byte, need)
		copy(grown, b.data)
		b.data = grown
	}
	copy(b.data[off:], p)
}

// Bytes returns the underlying buffer. The caller must not hold on to it
// across further writes.
func (b *Blob) Bytes() []byte {
	return b.data
}

// Save writes the buffer out to path.
func (b *Blob) Save(path string) error {
	if err := os.WriteFile(path, b.data, 0600); err != nil {
		return fmt.Errorf("could not write image: %w", err)
	}
	return nil
}
