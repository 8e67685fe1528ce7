// Package wire decodes the packed little-endian MBO record used as the
// legacy raw-TCP framing when a sender emits records directly rather
// than through a DBN-formatted payload.
//
// Decoding is explicit field-by-field encoding/binary reads rather than
// reflection-based struct unmarshalling: the wire layout is packed, so
// a Go struct cannot mirror it directly anyway.
package wire

import (
	"encoding/binary"
	"fmt"

	"mbo-ingest/pkg/types"
)

// RecordSize is the total packed size of one MBO record on the wire.
const RecordSize = 55

// ErrShortRecord is returned by Decode when fewer than RecordSize bytes
// are supplied.
var ErrShortRecord = fmt.Errorf("wire: record shorter than %d bytes", RecordSize)

// Decode parses one packed 55-byte MBO record from buf (which must have
// length >= RecordSize; any bytes past RecordSize are ignored) into an
// Event. Unknown Action/Side codes are NOT rejected here — they pass
// through unchanged so the book engine's own unknown-action handling is
// the single point of truth for that failure.
func Decode(buf []byte) (types.Event, error) {
	if len(buf) < RecordSize {
		return types.Event{}, ErrShortRecord
	}

	return types.Event{
		TsEvent:      binary.LittleEndian.Uint64(buf[0:8]),
		TsRecv:       binary.LittleEndian.Uint64(buf[8:16]),
		RType:        buf[16],
		PublisherID:  binary.LittleEndian.Uint16(buf[17:19]),
		InstrumentID: binary.LittleEndian.Uint32(buf[19:23]),
		Action:       types.Action(buf[23]),
		Side:         types.Side(buf[24]),
		Price:        int64(binary.LittleEndian.Uint64(buf[25:33])),
		Size:         binary.LittleEndian.Uint32(buf[33:37]),
		ChannelID:    buf[37],
		OrderID:      binary.LittleEndian.Uint64(buf[38:46]),
		Flags:        buf[46],
		TsInDelta:    int32(binary.LittleEndian.Uint32(buf[47:51])),
		Sequence:     binary.LittleEndian.Uint32(buf[51:55]),
	}, nil
}

// Encode packs evt into its 55-byte wire representation. Used by tests
// and by any in-process producer feeding the Frame Reader without a real
// network hop.
func Encode(evt types.Event) []byte {
	buf := make([]byte, RecordSize)
	binary.LittleEndian.PutUint64(buf[0:8], evt.TsEvent)
	binary.LittleEndian.PutUint64(buf[8:16], evt.TsRecv)
	buf[16] = evt.RType
	binary.LittleEndian.PutUint16(buf[17:19], evt.PublisherID)
	binary.LittleEndian.PutUint32(buf[19:23], evt.InstrumentID)
	buf[23] = byte(evt.Action)
	buf[24] = byte(evt.Side)
	binary.LittleEndian.PutUint64(buf[25:33], uint64(evt.Price))
	binary.LittleEndian.PutUint32(buf[33:37], evt.Size)
	buf[37] = evt.ChannelID
	binary.LittleEndian.PutUint64(buf[38:46], evt.OrderID)
	buf[46] = evt.Flags
	binary.LittleEndian.PutUint32(buf[47:51], uint32(evt.TsInDelta))
	binary.LittleEndian.PutUint32(buf[51:55], evt.Sequence)
	return buf
}
