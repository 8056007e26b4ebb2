package transport

import (
	"bytes"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/cryguy/ipcbridge/internal/dispatch"
)

// Server exposes a dispatch.Handler over HTTP for a peer running
// out-of-process. internal/v8engine and internal/quickjsengine instead
// call the handler directly, since an in-process JS engine needs no
// header-carried-base64 workaround.
//
// Incoming requests carry a peer-initiated Evaluate. Processing it may
// itself need to call back out to the peer (a registered function that
// invokes a peer-function wrapper); Send reaches that peer's own reply
// endpoint to keep the conversation going, per dispatch.Handler.Drive's
// re-entrant design. The original HTTP response only ever acknowledges
// receipt — the actual payload already went out through Send's chain of
// round trips.
type Server struct {
	Handler *dispatch.Handler
	Send    dispatch.Sender
	Logger  *slog.Logger
}

// NewServer wires a Server. If logger is nil, slog.Default() is used.
func NewServer(h *dispatch.Handler, send dispatch.Sender, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Handler: h, Send: send, Logger: logger}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b64 := r.Header.Get(PayloadHeader)
	if b64 == "" {
		http.Error(w, "missing "+PayloadHeader, http.StatusBadRequest)
		return
	}
	buf, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		http.Error(w, "invalid base64 payload", http.StatusBadRequest)
		return
	}
	if r.Header.Get(CompressionHeader) == "br" {
		decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(buf)))
		if err != nil {
			http.Error(w, "invalid brotli payload", http.StatusBadRequest)
			return
		}
		buf = decoded
	}

	if _, err := s.Handler.Drive(buf, s.Send); err != nil {
		s.Logger.Error("dispatch error", "call_id", r.Header.Get(CallIDHeader), "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.WriteHeader(http.StatusOK)
}
