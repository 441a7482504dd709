package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLoggerWritesKeyValues(t *testing.T) {
	var buf bytes.Buffer
	logger := New("extract", &buf)

	logger.Warn("extract.no_resolver", "document_field", "applicant", "page", 2, "cause", errors.New("boom"))

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", buf.String(), err)
	}

	want := map[string]interface{}{
		"level":          "warn",
		"message":        "extract.no_resolver",
		"component":      "extract",
		"document_field": "applicant",
		"page":           float64(2),
		"cause":          "boom",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := New("queue", &buf).With("job_id", "job-1")

	logger.Info("job started")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["job_id"] != "job-1" {
		t.Errorf("job_id = %v", entry["job_id"])
	}
}

func TestNopDiscards(t *testing.T) {
	logger := Nop()
	logger.Info("ignored", "k", "v")
	logger.With("a", 1).Error("ignored")
}
