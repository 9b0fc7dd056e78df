package api

import (
	"testing"
	"time"
)

func TestSortJobsNewestFirst(t *testing.T) {
	jobs := []Job{
		{ID: 1, CreatedAt: "2026-01-01T10:00:00.000Z"},
		{ID: 3, CreatedAt: "2026-01-02T10:00:00.000Z"},
		{ID: 2, CreatedAt: "2026-01-02T10:00:00.000Z"},
	}
	sorted := SortJobsNewestFirst(jobs)
	if sorted[0].ID != 3 || sorted[1].ID != 2 || sorted[2].ID != 1 {
		t.Fatalf("unexpected order: %v, %v, %v", sorted[0].ID, sorted[1].ID, sorted[2].ID)
	}
	if jobs[0].ID != 1 {
		t.Fatal("input slice should not be mutated")
	}
}

func TestSortJobsNewestFirstEmpty(t *testing.T) {
	if got := SortJobsNewestFirst(nil); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestParseQueueTime(t *testing.T) {
	parsed := ParseQueueTime("2026-01-02T10:00:00.000Z")
	want := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	if !parsed.Equal(want) {
		t.Fatalf("parsed = %v, want %v", parsed, want)
	}
	if !ParseQueueTime("garbage").IsZero() {
		t.Fatal("invalid timestamp should parse to zero time")
	}
}
