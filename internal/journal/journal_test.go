package journal

import (
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndList(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	j.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	type result struct {
		OrderID string `json:"order_id"`
	}
	if err := j.Record("wf-1", result{OrderID: "o-1"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := j.Record("wf-2", result{OrderID: "o-2"}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	entries, err := j.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	// Chronological order comes from the time-prefixed keys.
	if entries[0].WorkflowID != "wf-1" || entries[1].WorkflowID != "wf-2" {
		t.Fatalf("order = %s, %s; want wf-1 then wf-2", entries[0].WorkflowID, entries[1].WorkflowID)
	}
	if string(entries[0].Result) != `{"order_id":"o-1"}` {
		t.Fatalf("result payload = %s", entries[0].Result)
	}
}

func TestListOrdersSubSecondEntries(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	// 100ms and 150ms have different printed fractional widths; the key
	// encoding must still sort the older entry first byte-wise.
	times := []time.Duration{100 * time.Millisecond, 150 * time.Millisecond}
	i := 0
	j.now = func() time.Time {
		at := base.Add(times[i])
		i++
		return at
	}

	if err := j.Record("older", struct{}{}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}
	if err := j.Record("newer", struct{}{}); err != nil {
		t.Fatalf("Record() error: %v", err)
	}

	entries, err := j.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].WorkflowID != "older" || entries[1].WorkflowID != "newer" {
		t.Fatalf("order = %s, %s; want older then newer", entries[0].WorkflowID, entries[1].WorkflowID)
	}
}

func TestRecordRejectsEmptyID(t *testing.T) {
	j := openTestJournal(t)
	if err := j.Record("", struct{}{}); err == nil {
		t.Fatalf("Record() with empty id succeeded, want error")
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Options{}); err == nil {
		t.Fatalf("Open() without path succeeded, want error")
	}
}
