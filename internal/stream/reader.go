// Package stream buffers inbound bytes from an upload connection and
// exposes them to a single consumer as a blocking, ordered byte stream,
// independent of how many writes the producer used to deliver them.
//
// Reader pairs a mutex-guarded chunk queue with a sync.Cond rather than a
// channel of []byte, since a consumer needs to read an exact or
// best-effort byte count across chunk boundaries — a plain channel would
// force the caller to do that re-slicing itself on every receive.
package stream

import (
	"errors"
	"sync"
)

// ErrClosed is returned by ReadExact when the stream finishes before the
// requested number of bytes arrived.
var ErrClosed = errors.New("stream: unexpected end of input")

// Reader is a single-producer/single-consumer byte stream: one goroutine
// calls Append (and eventually Finish), another calls ReadExact/ReadSome.
type Reader struct {
	mu       sync.Mutex
	cond     *sync.Cond
	chunks   [][]byte
	offset   int // read offset into chunks[0]
	finished bool
	total    uint64
}

// NewReader creates an empty Reader ready to accept Append calls.
func NewReader() *Reader {
	r := &Reader{}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Append hands ownership of a chunk of bytes to the reader. Append after
// Finish is a silent no-op: a producer racing its own shutdown against a
// last write should not need to synchronize around it.
func (r *Reader) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)

	r.mu.Lock()
	if r.finished {
		r.mu.Unlock()
		return
	}
	r.chunks = append(r.chunks, chunk)
	r.total += uint64(len(chunk))
	r.mu.Unlock()

	r.cond.Broadcast()
}

// Finish marks the stream as having no further bytes. Any blocked or
// future ReadSome call returns 0 once the queued chunks are drained.
func (r *Reader) Finish() {
	r.mu.Lock()
	r.finished = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

// TotalBytes reports the cumulative number of bytes ever appended.
func (r *Reader) TotalBytes() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// ReadSome blocks until at least one byte is available or the stream has
// finished, then copies up to len(buf) bytes into buf and returns the
// count copied. It returns 0 only once the stream is finished and fully
// drained.
func (r *Reader) ReadSome(buf []byte) int {
	if len(buf) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for len(r.chunks) == 0 && !r.finished {
		r.cond.Wait()
	}
	if len(r.chunks) == 0 {
		return 0
	}

	chunk := r.chunks[0]
	available := len(chunk) - r.offset
	n := len(buf)
	if n > available {
		n = available
	}
	copy(buf, chunk[r.offset:r.offset+n])
	r.offset += n

	if r.offset == len(chunk) {
		r.chunks = r.chunks[1:]
		r.offset = 0
	}
	return n
}

// ReadExact blocks until exactly len(buf) bytes have been copied into
// buf, or returns ErrClosed if the stream finishes first.
func (r *Reader) ReadExact(buf []byte) error {
	copied := 0
	for copied < len(buf) {
		n := r.ReadSome(buf[copied:])
		if n == 0 {
			return ErrClosed
		}
		copied += n
	}
	return nil
}
