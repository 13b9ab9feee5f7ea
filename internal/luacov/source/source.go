// Package source holds the immutable byte buffer and line index shared by
// every component that needs to map a byte offset to a line number.
package source

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash is a content hash used as the second half of a cache key
// (FileKey, content_hash).
type Hash string

// Buffer is an immutable source file: its bytes plus a prebuilt index of
// line-start byte offsets, enabling amortized O(1) position_to_line.
type Buffer struct {
	bytes      []byte
	lineStarts []int // lineStarts[i] is the byte offset where line i+1 begins
	hash       Hash
}

// New builds a Buffer from raw file bytes.
func New(content []byte) *Buffer {
	b := &Buffer{
		bytes: content,
		hash:  hashOf(content),
	}
	b.lineStarts = append(b.lineStarts, 0)
	for i, c := range content {
		if c == '\n' {
			b.lineStarts = append(b.lineStarts, i+1)
		}
	}
	return b
}

func hashOf(content []byte) Hash {
	sum := sha256.Sum256(content)
	return Hash(hex.EncodeToString(sum[:]))
}

// Bytes returns the underlying content. Callers must not mutate it.
func (b *Buffer) Bytes() []byte { return b.bytes }

// Hash returns the content hash used for cache invalidation.
func (b *Buffer) Hash() Hash { return b.hash }

// LineCount returns the number of lines in the buffer. A file with no
// trailing newline still counts its last partial line.
func (b *Buffer) LineCount() int {
	n := len(b.lineStarts)
	// The final recorded line start is only "real" if there is content
	// (or a newline) after it; an empty buffer has zero lines.
	if len(b.bytes) == 0 {
		return 0
	}
	if b.lineStarts[n-1] == len(b.bytes) {
		// Trailing newline: the phantom final empty line is not counted.
		return n - 1
	}
	return n
}

// LineStart returns the byte offset at which the given 1-based line
// begins. Panics if line is out of range; callers should check against
// LineCount first.
func (b *Buffer) LineStart(line int) int {
	return b.lineStarts[line-1]
}

// LineEnd returns the byte offset one past the given 1-based line's
// last byte, excluding its trailing newline.
func (b *Buffer) LineEnd(line int) int {
	var end int
	if line >= len(b.lineStarts) {
		end = len(b.bytes)
	} else {
		end = b.lineStarts[line]
	}
	for end > b.LineStart(line) && (b.bytes[end-1] == '\n' || b.bytes[end-1] == '\r') {
		end--
	}
	return end
}

// Line returns the raw bytes of a 1-based line, excluding its line
// terminator.
func (b *Buffer) Line(line int) []byte {
	return b.bytes[b.LineStart(line):b.LineEnd(line)]
}

// PositionToLine maps a byte offset to its 1-based line number in
// amortized O(1) via binary search over the prebuilt line-start index.
func (b *Buffer) PositionToLine(offset int) int {
	lo, hi := 0, len(b.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if b.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}
