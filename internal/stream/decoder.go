package stream

import (
	"errors"
	"io"

	"mbo-ingest/internal/wire"
	"mbo-ingest/pkg/types"
)

// Decoder pulls fixed-size wire records off a Reader and decodes them one
// at a time. Next returns io.EOF once the underlying stream has finished
// cleanly on a record boundary.
type Decoder struct {
	r   *Reader
	buf [wire.RecordSize]byte
}

// NewDecoder wraps r, decoding records as they become available.
func NewDecoder(r *Reader) *Decoder {
	return &Decoder{r: r}
}

// Next blocks for the next full record and decodes it. It returns io.EOF
// if the stream ended with no partial record pending, or
// io.ErrUnexpectedEOF if the stream ended mid-record.
func (d *Decoder) Next() (types.Event, error) {
	n := d.r.ReadSome(d.buf[:])
	if n == 0 {
		return types.Event{}, io.EOF
	}

	for n < wire.RecordSize {
		more := d.r.ReadSome(d.buf[n:])
		if more == 0 {
			return types.Event{}, io.ErrUnexpectedEOF
		}
		n += more
	}

	evt, err := wire.Decode(d.buf[:])
	if err != nil && errors.Is(err, wire.ErrShortRecord) {
		return types.Event{}, io.ErrUnexpectedEOF
	}
	return evt, err
}
