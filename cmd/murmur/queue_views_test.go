package main

import (
	"strings"
	"testing"

	"murmur/internal/ipc"
)

func TestBuildQueueListRowsOrder(t *testing.T) {
	items := []ipc.QueueItem{
		{ID: 1, AudioPath: "/clips/old.wav", Status: "completed", CapturedAt: "2026-08-20T08:00:00Z"},
		{ID: 2, AudioPath: "/clips/new.wav", Status: "pending", CapturedAt: "2026-08-21T08:00:00Z"},
		{ID: 3, AudioPath: "/clips/tied.wav", Status: "pending", CapturedAt: "2026-08-21T08:00:00Z"},
	}

	rows := buildQueueListRows(items)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "3" || rows[1][0] != "2" || rows[2][0] != "1" {
		t.Fatalf("row order = %s, %s, %s; want newest first with ID tiebreak",
			rows[0][0], rows[1][0], rows[2][0])
	}
	if rows[0][1] != "tied.wav" {
		t.Fatalf("clip column = %q, want base name", rows[0][1])
	}
	if rows[2][2] != "Completed" {
		t.Fatalf("status column = %q, want Completed", rows[2][2])
	}
	if rows[0][3] != "2026-08-21 08:00" {
		t.Fatalf("captured column = %q", rows[0][3])
	}
}

func TestItemDetailPrecedence(t *testing.T) {
	withError := ipc.QueueItem{
		ErrorMessage:  "render server rejected the workflow",
		NeedsReview:   true,
		ReviewReason:  "transcript empty",
		ProgressStage: "rendering",
	}
	if got := itemDetail(withError); got != "render server rejected the workflow" {
		t.Fatalf("itemDetail = %q, want error message first", got)
	}

	withReview := ipc.QueueItem{NeedsReview: true, ReviewReason: "transcript empty", ProgressStage: "prompting"}
	if got := itemDetail(withReview); got != "transcript empty" {
		t.Fatalf("itemDetail = %q, want review reason", got)
	}

	reviewNoReason := ipc.QueueItem{NeedsReview: true}
	if got := itemDetail(reviewNoReason); got != "needs review" {
		t.Fatalf("itemDetail = %q, want generic review marker", got)
	}

	progressOnly := ipc.QueueItem{ProgressStage: "transcribing"}
	if got := itemDetail(progressOnly); got != "transcribing" {
		t.Fatalf("itemDetail = %q, want progress stage", got)
	}
}

func TestFormatStatusLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"pending", "Pending"},
		{"transcribing", "Transcribing"},
		{"needs_review", "Needs Review"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := formatStatusLabel(tc.in); got != tc.want {
			t.Errorf("formatStatusLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateDetail(t *testing.T) {
	if got := truncateDetail("short", 48); got != "short" {
		t.Fatalf("truncateDetail = %q, want unchanged", got)
	}
	long := strings.Repeat("a", 60)
	got := truncateDetail(long, 48)
	if len(got) != 48 || !strings.HasSuffix(got, "...") {
		t.Fatalf("truncateDetail = %q (len %d), want 48 chars ending in ellipsis", got, len(got))
	}
	if got := truncateDetail(long, 3); got != long {
		t.Fatalf("truncateDetail with tiny max = %q, want unchanged", got)
	}
}

func TestBuildQueueStatusRows(t *testing.T) {
	rows := buildQueueStatusRows(map[string]int{"pending": 2, "failed": 1})
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0][0] != "Failed" || rows[0][1] != "1" {
		t.Fatalf("first row = %v, want sorted Failed count", rows[0])
	}
	if rows[1][0] != "Pending" || rows[1][1] != "2" {
		t.Fatalf("second row = %v", rows[1])
	}

	if rows := buildQueueStatusRows(nil); rows != nil {
		t.Fatalf("expected nil rows for empty stats, got %v", rows)
	}
}
