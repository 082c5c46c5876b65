package status

import (
	"encoding/json"
	"sync"

	"github.com/creastat/infra/telemetry"
	"github.com/gorilla/websocket"
)

// WebSocketSinkConfig holds the configuration a WebSocketSink needs to
// address its messages.
type WebSocketSinkConfig struct {
	Conn      *websocket.Conn
	SessionID string
	Logger    telemetry.Logger
}

// WebSocketSink publishes status snapshots as JSON text frames over a
// WebSocket connection. A write failure marks the sink dead rather than
// panicking or blocking the Run that's publishing to it -- once the
// connection is gone, further snapshots are silently dropped so the
// pipeline itself never stalls on a disconnected viewer.
type WebSocketSink struct {
	config WebSocketSinkConfig

	mu   sync.Mutex
	dead bool
}

// NewWebSocketSink constructs a WebSocketSink over an already-established
// connection.
func NewWebSocketSink(config WebSocketSinkConfig) *WebSocketSink {
	return &WebSocketSink{config: config}
}

type snapshotMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Steps     []StepSnapshot `json:"steps"`
}

// Publish implements Sink.
func (w *WebSocketSink) Publish(s Snapshot) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.dead {
		return
	}

	logger := w.logger()
	msg := snapshotMessage{Type: "run.status", SessionID: w.config.SessionID, Steps: s.Steps}
	data, err := json.Marshal(msg)
	if err != nil {
		if logger != nil {
			logger.Error("failed to marshal status snapshot", telemetry.Err(err), telemetry.String("session_id", w.config.SessionID))
		}
		return
	}

	if err := w.config.Conn.WriteMessage(websocket.TextMessage, data); err != nil {
		if logger != nil {
			logger.Warn("status websocket write failed, marking sink dead", telemetry.Err(err), telemetry.String("session_id", w.config.SessionID))
		}
		w.dead = true
		return
	}
	if logger != nil {
		logger.Debug("published status snapshot", telemetry.Int("steps", len(s.Steps)), telemetry.String("session_id", w.config.SessionID))
	}
}

func (w *WebSocketSink) logger() telemetry.Logger {
	if w.config.Logger == nil {
		return nil
	}
	return w.config.Logger.WithModule("status_websocket_sink")
}
