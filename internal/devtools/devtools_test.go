package devtools

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/cryguy/ipcbridge/internal/telemetry"
)

func TestServerStreamsDrainedEvents(t *testing.T) {
	trace := telemetry.NewRecorder()
	srv := NewServer(trace, nil)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + ts.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	trace.Record(telemetry.EventEvaluate, 7, "ping")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Kind != string(telemetry.EventEvaluate) || got.FnID != 7 || got.Detail != "ping" {
		t.Fatalf("unexpected event: %+v", got)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

func TestServerStreamsEventsInOrder(t *testing.T) {
	trace := telemetry.NewRecorder()
	srv := NewServer(trace, nil)

	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + ts.URL[len("http"):]
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	trace.Record(telemetry.EventEvaluate, 1, "first")
	trace.Record(telemetry.EventRespond, 2, "second")

	for _, want := range []event{{Kind: "evaluate", FnID: 1, Detail: "first"}, {Kind: "respond", FnID: 2, Detail: "second"}} {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var got event
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Kind != want.Kind || got.FnID != want.FnID || got.Detail != want.Detail {
			t.Fatalf("got %+v, want %+v", got, want)
		}
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
}
