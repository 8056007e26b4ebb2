// Package devtools streams recorded dispatch events to an inspector client
// over a WebSocket: internal/telemetry.Recorder's buffered trace events are
// drained and forwarded straight to a connected coder/websocket connection,
// one JSON frame per event. It is an optional sidecar: nothing in
// internal/dispatch or the engine packages depends on it.
package devtools

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/cryguy/ipcbridge/internal/telemetry"
)

// PollInterval is how often the sidecar drains the recorder for new events.
const PollInterval = 200 * time.Millisecond

// WriteTimeout bounds a single frame write to a stalled inspector client.
const WriteTimeout = 5 * time.Second

// Server streams every event recorded by Trace to connected inspector
// clients over WebSocket, one JSON object per frame.
type Server struct {
	Trace  *telemetry.Recorder
	Logger *slog.Logger
}

// NewServer wires a Server. If logger is nil, slog.Default() is used.
func NewServer(trace *telemetry.Recorder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Trace: trace, Logger: logger}
}

// ServeHTTP upgrades the request to a WebSocket and streams drained trace
// events, one JSON object per text frame, until the client disconnects or
// the request context is done.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.Logger.Error("devtools: accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return
		case <-ticker.C:
			events := s.Trace.Drain()
			for _, e := range events {
				if err := s.writeEvent(ctx, conn, e); err != nil {
					s.Logger.Error("devtools: write failed", "error", err)
					_ = conn.Close(websocket.StatusInternalError, "write failed")
					return
				}
			}
		}
	}
}

// event is the wire shape of one streamed trace event.
type event struct {
	Kind   string    `json:"kind"`
	FnID   uint32    `json:"fn_id"`
	Detail string    `json:"detail"`
	Time   time.Time `json:"time"`
}

func (s *Server) writeEvent(ctx context.Context, conn *websocket.Conn, e telemetry.TraceEvent) error {
	writeCtx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()

	payload, err := json.Marshal(event{Kind: string(e.Kind), FnID: e.FnID, Detail: e.Detail, Time: e.Time})
	if err != nil {
		return err
	}
	return conn.Write(writeCtx, websocket.MessageText, payload)
}
