// Package transport accepts an upload connection and streams its bytes
// into a stream.Reader: a websocket handler that expects one textual
// metadata frame, then binary payload chunks, then an optional
// {"type":"complete"} frame or a plain close.
package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"mbo-ingest/internal/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Metadata is the textual header frame a client sends before any binary
// payload chunks.
type Metadata struct {
	Type     string `json:"type"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

type controlFrame struct {
	Type string `json:"type"`
}

// Conn is the server half of one accepted upload connection, retained
// past the binary stream so the ingest session's terminal status can be
// reported back to the client before the connection closes.
type Conn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
}

func (c *Conn) close() {
	c.closeOnce.Do(func() { c.ws.Close() })
}

// ReportComplete sends the client a {"type":"complete"} frame carrying
// the session id and counters, then closes the connection.
func (c *Conn) ReportComplete(sessionID string, messagesReceived, ordersProcessed uint64) {
	c.report(map[string]any{
		"type":             "complete",
		"sessionId":        sessionID,
		"messagesReceived": messagesReceived,
		"ordersProcessed":  ordersProcessed,
	})
}

// ReportError sends the client a {"type":"error"} frame with the failure
// text, then closes the connection.
func (c *Conn) ReportError(sessionID string, err error) {
	c.report(map[string]any{
		"type":      "error",
		"sessionId": sessionID,
		"error":     err.Error(),
	})
}

func (c *Conn) report(frame map[string]any) {
	defer c.close()
	msg, err := json.Marshal(frame)
	if err != nil {
		return
	}
	// A client that already disconnected makes this write fail; the
	// session outcome is still in the database, so the error is dropped.
	_ = c.ws.WriteMessage(websocket.TextMessage, msg)
}

// Accept upgrades the connection to a websocket, reads the metadata
// frame, and starts streaming binary chunks into r in a background
// goroutine. It returns as soon as the metadata frame is parsed, so the
// caller can start an ingest session against r immediately; r.Finish is
// called once the client sends {"type":"complete"} or the connection
// closes. The returned Conn stays open until ReportComplete/ReportError.
func Accept(w http.ResponseWriter, req *http.Request, r *stream.Reader, logger *slog.Logger) (Metadata, *Conn, error) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		return Metadata{}, nil, fmt.Errorf("transport: upgrade: %w", err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return Metadata{}, nil, fmt.Errorf("transport: read metadata frame: %w", err)
	}

	var meta Metadata
	if err := json.Unmarshal(msg, &meta); err != nil {
		conn.Close()
		return Metadata{}, nil, fmt.Errorf("transport: decode metadata frame: %w", err)
	}
	if meta.Type != "metadata" {
		conn.Close()
		return Metadata{}, nil, fmt.Errorf("transport: expected metadata frame, got type %q", meta.Type)
	}

	go streamChunks(conn, r, logger)

	return meta, &Conn{ws: conn}, nil
}

func streamChunks(conn *websocket.Conn, r *stream.Reader, logger *slog.Logger) {
	defer r.Finish()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("upload connection read error", "error", err)
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			r.Append(data)
		case websocket.TextMessage:
			var ctrl controlFrame
			if err := json.Unmarshal(data, &ctrl); err == nil && ctrl.Type == "complete" {
				return
			}
		}
	}
}
