package counter

import (
	"fmt"
	"testing"
)

func TestParsePending(t *testing.T) {
	entries := parsePending(map[string]string{
		"2026-08-29": "3",
		"2026-08-30": "7",
		"not-a-date": "4",
		"2026-08-28": "junk",
		"2026-08-27": "0",
	})
	if len(entries) != 2 {
		t.Fatalf("expected invalid fields skipped, got %+v", entries)
	}
	if entries[0].date != "2026-08-29" || entries[0].count != 3 {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].date != "2026-08-30" || entries[1].count != 7 {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
}

func TestFlushPending_ReturnsUnflushedOnError(t *testing.T) {
	entries := []pendingCount{
		{date: "2026-08-28", count: 1},
		{date: "2026-08-29", count: 2},
		{date: "2026-08-30", count: 3},
	}

	var applied []string
	leftover, err := flushPending(entries, func(entry pendingCount) error {
		if entry.date == "2026-08-29" {
			return fmt.Errorf("forced upsert failure")
		}
		applied = append(applied, entry.date)
		return nil
	})
	if err == nil {
		t.Fatalf("expected the forced failure to surface")
	}
	if len(applied) != 1 || applied[0] != "2026-08-28" {
		t.Fatalf("expected flush to stop at the failure, applied=%v", applied)
	}
	// The failed entry and everything after it must come back for merge-back.
	if len(leftover) != 2 || leftover[0].date != "2026-08-29" || leftover[1].date != "2026-08-30" {
		t.Fatalf("expected unflushed entries returned, got %+v", leftover)
	}
}

func TestFlushPending_Empty(t *testing.T) {
	leftover, err := flushPending(nil, func(pendingCount) error {
		t.Fatalf("upsert must not run for empty input")
		return nil
	})
	if err != nil || leftover != nil {
		t.Fatalf("expected clean no-op, got leftover=%v err=%v", leftover, err)
	}
}
