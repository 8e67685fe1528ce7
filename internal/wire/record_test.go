package wire

import (
	"testing"

	"mbo-ingest/pkg/types"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	evt := types.Event{
		TsEvent:      1234567890123,
		TsRecv:       1234567890456,
		RType:        160,
		PublisherID:  2,
		InstrumentID: 42,
		Action:       types.ActionAdd,
		Side:         types.SideBid,
		Price:        1_000_000_000,
		Size:         25,
		ChannelID:    1,
		OrderID:      98765,
		Flags:        types.TOBFlag,
		TsInDelta:    -7,
		Sequence:     9001,
	}

	buf := Encode(evt)
	if len(buf) != RecordSize {
		t.Fatalf("Encode produced %d bytes, want %d", len(buf), RecordSize)
	}

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != evt {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, evt)
	}
}

func TestDecodeShortRecord(t *testing.T) {
	t.Parallel()

	_, err := Decode(make([]byte, RecordSize-1))
	if err != ErrShortRecord {
		t.Errorf("Decode short buffer: got %v, want ErrShortRecord", err)
	}
}

func TestDecodeIgnoresTrailingBytes(t *testing.T) {
	t.Parallel()

	evt := types.Event{Action: types.ActionCancel, Side: types.SideAsk, OrderID: 1}
	buf := append(Encode(evt), 0xDE, 0xAD, 0xBE, 0xEF)

	got, err := Decode(buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Action != types.ActionCancel || got.OrderID != 1 {
		t.Errorf("Decode with trailing bytes produced wrong event: %+v", got)
	}
}
