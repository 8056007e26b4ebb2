package tracestore

import (
	"testing"
	"time"

	"github.com/cryguy/ipcbridge/internal/telemetry"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"session-1", false},
		{"", true},
		{"../etc/passwd", true},
		{"a/b", true},
		{"a\x00b", true},
	}
	for _, c := range cases {
		err := ValidateName(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("ValidateName(%q) err = %v, wantErr %v", c.name, err, c.wantErr)
		}
	}
}

func TestAppendAndRecent(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	events := []telemetry.TraceEvent{
		{Kind: telemetry.EventEvaluate, FnID: 0, Detail: "reserved=0", Time: time.Unix(1000, 0)},
		{Kind: telemetry.EventCallNative, FnID: 5, Detail: "", Time: time.Unix(1001, 0)},
	}
	if err := s.Append(events); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rows, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].FnID != 5 || rows[0].Kind != string(telemetry.EventCallNative) {
		t.Fatalf("rows[0] = %+v", rows[0])
	}
	if rows[1].FnID != 0 || rows[1].Detail != "reserved=0" {
		t.Fatalf("rows[1] = %+v", rows[1])
	}
}

func TestAppendEmptyIsNoop(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	if err := s.Append(nil); err != nil {
		t.Fatalf("Append(nil): %v", err)
	}
	rows, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("len(rows) = %d, want 0", len(rows))
	}
}

func TestDrainInto(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	rec := telemetry.NewRecorder()
	rec.Record(telemetry.EventRespond, 0, "12 bytes")
	rec.Record(telemetry.EventDropRef, 9, "")

	if err := DrainInto(rec, s); err != nil {
		t.Fatalf("DrainInto: %v", err)
	}
	if more := rec.Drain(); len(more) != 0 {
		t.Fatalf("expected recorder drained, got %d events", len(more))
	}
	rows, err := s.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	defer s.Close()

	var events []telemetry.TraceEvent
	for i := 0; i < 5; i++ {
		events = append(events, telemetry.TraceEvent{Kind: telemetry.EventCallNative, FnID: uint32(i), Time: time.Unix(int64(i), 0)})
	}
	if err := s.Append(events); err != nil {
		t.Fatalf("Append: %v", err)
	}
	rows, err := s.Recent(2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}
	if rows[0].FnID != 4 || rows[1].FnID != 3 {
		t.Fatalf("rows = %+v", rows)
	}
}
