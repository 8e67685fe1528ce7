package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"mbo-ingest/internal/stream"
)

func TestAcceptStreamsBinaryChunksUntilComplete(t *testing.T) {
	t.Parallel()

	r := stream.NewReader()
	metaCh := make(chan Metadata, 1)
	connCh := make(chan *Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		meta, c, err := Accept(w, req, r, slog.Default())
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		metaCh <- meta
		connCh <- c
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/upload"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Metadata{Type: "metadata", FileName: "test.dbn", FileSize: 12}); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	select {
	case meta := <-metaCh:
		if meta.FileName != "test.dbn" || meta.FileSize != 12 {
			t.Fatalf("got metadata %+v", meta)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not return metadata in time")
	}

	payload := []byte("0123456789AB")
	if err := conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	complete, _ := json.Marshal(map[string]string{"type": "complete"})
	if err := conn.WriteMessage(websocket.TextMessage, complete); err != nil {
		t.Fatalf("write complete frame: %v", err)
	}

	buf := make([]byte, len(payload))
	readDone := make(chan error, 1)
	go func() {
		readDone <- r.ReadExact(buf)
	}()

	select {
	case err := <-readDone:
		if err != nil {
			t.Fatalf("ReadExact: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ReadExact did not return in time")
	}

	if string(buf) != string(payload) {
		t.Fatalf("ReadExact got %q, want %q", buf, payload)
	}

	// After "complete", Finish was called; a further ReadExact beyond
	// what was appended should report the stream closed.
	more := make([]byte, 1)
	if err := r.ReadExact(more); err != stream.ErrClosed {
		t.Fatalf("ReadExact past end = %v, want stream.ErrClosed", err)
	}

	// The server half stays open so the session outcome can be reported;
	// the client should receive the terminal frame before the close.
	(<-connCh).ReportComplete("session_123_0001", 1, 1)

	var frame struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read terminal frame: %v", err)
	}
	if frame.Type != "complete" || frame.SessionID != "session_123_0001" {
		t.Fatalf("terminal frame = %+v, want complete/session_123_0001", frame)
	}
}

func TestReportErrorSendsErrorFrame(t *testing.T) {
	t.Parallel()

	r := stream.NewReader()
	connCh := make(chan *Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		_, c, err := Accept(w, req, r, slog.Default())
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		connCh <- c
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/upload"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Metadata{Type: "metadata", FileName: "bad.dbn", FileSize: 1}); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	select {
	case c := <-connCh:
		c.ReportError("session_123_0002", errBookFault)
	case <-time.After(2 * time.Second):
		t.Fatal("Accept did not hand back a Conn in time")
	}

	var frame struct {
		Type      string `json:"type"`
		SessionID string `json:"sessionId"`
		Error     string `json:"error"`
	}
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if frame.Type != "error" || frame.SessionID != "session_123_0002" || frame.Error != errBookFault.Error() {
		t.Fatalf("error frame = %+v", frame)
	}
}

var errBookFault = errors.New("over_cancel: order id 1: cancel size 6 exceeds remaining 5")
