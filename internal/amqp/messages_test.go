package amqp

import (
	"testing"
	"time"
)

func TestRefreshRequestJSON(t *testing.T) {
	msg := NewRefreshRequest("cron")
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}

	decoded, err := RefreshRequestFromJSON(data)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if decoded.RequestedBy != "cron" {
		t.Fatalf("requested_by = %q, want cron", decoded.RequestedBy)
	}
	if decoded.Timestamp.IsZero() {
		t.Fatalf("timestamp not set")
	}
}

func TestRefreshRequestFromJSONInvalid(t *testing.T) {
	if _, err := RefreshRequestFromJSON([]byte("{not json")); err == nil {
		t.Fatalf("expected error for malformed payload")
	}
}

func TestSnapshotRefreshedJSON(t *testing.T) {
	loaded := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &SnapshotRefreshed{Pledges: 10, Payments: 42, LoadedAt: loaded, Timestamp: time.Now()}
	data, err := msg.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}

	decoded, err := SnapshotRefreshedFromJSON(data)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if decoded.Pledges != 10 || decoded.Payments != 42 {
		t.Fatalf("counts lost: %+v", decoded)
	}
	if !decoded.LoadedAt.Equal(loaded) {
		t.Fatalf("loaded_at = %s, want %s", decoded.LoadedAt, loaded)
	}
}
