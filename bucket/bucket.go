// Package bucket implements the output buffer list that every writer
// stage in fmp4split appends to: an ordered sequence of owned-memory
// segments and source-file byte ranges, flushed to an io.Writer without
// ever materialising the whole output in memory.
//
// Grounded on the contiguous-range merge already present in
// remux/remuxer.go's generateFragment (the reused []byteRange slice with
// `if len(ranges) > 0 && ranges[len(ranges)-1].End == sStart`); this
// package generalises that single-purpose slice into the bucket list the
// fragment, split and alternate-format writers all share, and replaces
// the teacher's doubly-linked design note with a plain append-only
// slice, which is simpler and equally sufficient for a single producer
// writing out in order.
package bucket

import "io"

// Kind distinguishes an owned in-memory payload from a byte range that
// must be copied out of the source reader.
type Kind int

const (
	Memory Kind = iota
	FileRange
)

// Bucket is one segment of the output stream.
type Bucket struct {
	Kind Kind

	// Memory segment.
	Bytes []byte

	// FileRange segment, both in bytes; the range is [Offset, Offset+Size).
	Offset int64
	Size   int64
}

// List is an ordered, append-only sequence of buckets.
type List []Bucket

// AppendMemory appends an owned byte payload. b is retained, not copied.
func (l *List) AppendMemory(b []byte) {
	if len(b) == 0 {
		return
	}
	*l = append(*l, Bucket{Kind: Memory, Bytes: b})
}

// AppendRange appends a source byte range, coalescing it into the
// preceding bucket when it is itself a FileRange whose end equals this
// range's start. This is the only merge rule the bucket list performs.
func (l *List) AppendRange(offset, size int64) {
	if size <= 0 {
		return
	}
	if n := len(*l); n > 0 {
		last := &(*l)[n-1]
		if last.Kind == FileRange && last.Offset+last.Size == offset {
			last.Size += size
			return
		}
	}
	*l = append(*l, Bucket{Kind: FileRange, Offset: offset, Size: size})
}

// TotalSize returns the sum of every bucket's byte length.
func (l List) TotalSize() int64 {
	var n int64
	for _, b := range l {
		if b.Kind == Memory {
			n += int64(len(b.Bytes))
		} else {
			n += b.Size
		}
	}
	return n
}

// WriteTo writes every bucket to w in order, copying FileRange buckets
// out of src via ReadAt in copyBufSize chunks.
func (l List) WriteTo(w io.Writer, src io.ReaderAt) (int64, error) {
	var written int64
	buf := make([]byte, copyBufSize)
	for _, b := range l {
		if b.Kind == Memory {
			n, err := w.Write(b.Bytes)
			written += int64(n)
			if err != nil {
				return written, err
			}
			continue
		}
		off, remaining := b.Offset, b.Size
		for remaining > 0 {
			chunk := int64(len(buf))
			if remaining < chunk {
				chunk = remaining
			}
			nr, err := src.ReadAt(buf[:chunk], off)
			if nr > 0 {
				nw, werr := w.Write(buf[:nr])
				written += int64(nw)
				if werr != nil {
					return written, werr
				}
				off += int64(nr)
				remaining -= int64(nr)
			}
			if err != nil {
				if err == io.EOF && remaining == 0 {
					break
				}
				return written, err
			}
		}
	}
	return written, nil
}

const copyBufSize = 32 * 1024
