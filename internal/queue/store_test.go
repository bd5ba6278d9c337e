package queue_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"murmur/internal/queue"
	"murmur/internal/testsupport"
)

func TestOpenInitializesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := store.NewClip(ctx, "/tmp/recording_0001.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	if item.ID == 0 {
		t.Fatal("expected item ID to be assigned")
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("expected pending status, got %s", item.Status)
	}

	fetched, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.AudioPath != "/tmp/recording_0001.wav" {
		t.Fatalf("unexpected fetched item: %#v", fetched)
	}

	found, err := store.FindByAudioPath(ctx, "/tmp/recording_0001.wav")
	if err != nil {
		t.Fatalf("FindByAudioPath failed: %v", err)
	}
	if found == nil || found.ID != item.ID {
		t.Fatalf("expected to find inserted item, got %#v", found)
	}
}

func TestNewClipRequiresAudioPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewClip(ctx, "", time.Now()); err == nil {
		t.Fatal("expected error when audio path missing")
	}
}

func TestNewClipRejectsDuplicateAudioPath(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewClip(ctx, "/tmp/dup.wav", time.Now()); err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	if _, err := store.NewClip(ctx, "/tmp/dup.wav", time.Now()); err == nil {
		t.Fatal("expected error when inserting the same clip twice")
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	cases := []struct {
		name          string
		initialStatus queue.Status
		expected      queue.Status
	}{
		{"transcribing", queue.StatusTranscribing, queue.StatusPending},
		{"prompting", queue.StatusPrompting, queue.StatusTranscribed},
		{"rendering", queue.StatusRendering, queue.StatusPrompted},
	}
	var ids []int64
	for i, tc := range cases {
		item, err := store.NewClip(ctx, fmt.Sprintf("/tmp/reset-%d.wav", i), time.Now())
		if err != nil {
			t.Fatalf("NewClip failed: %v", err)
		}
		item.Status = tc.initialStatus
		item.ProgressStage = tc.name
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, item.ID)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if int(count) != len(cases) {
		t.Fatalf("expected %d items reset, got %d", len(cases), count)
	}

	for idx, tc := range cases {
		updated, err := store.GetByID(ctx, ids[idx])
		if err != nil {
			t.Fatalf("GetByID failed: %v", err)
		}
		if updated.Status != tc.expected {
			t.Fatalf("%s: expected status %s, got %s", tc.name, tc.expected, updated.Status)
		}
		if updated.LastHeartbeat != nil {
			t.Fatalf("%s: expected heartbeat cleared", tc.name)
		}
	}
}

func TestItemsByStatusOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	if _, err := store.NewClip(ctx, "/tmp/clip-a.wav", time.Now()); err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	b, err := store.NewClip(ctx, "/tmp/clip-b.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	b.Status = queue.StatusTranscribed
	b.Transcript = "a quiet desk fan hums"
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	items, err := store.ItemsByStatus(ctx, queue.StatusTranscribed)
	if err != nil {
		t.Fatalf("ItemsByStatus failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one transcribed item, got %d", len(items))
	}
	if items[0].AudioPath != "/tmp/clip-b.wav" {
		t.Fatalf("expected clip-b, got %s", items[0].AudioPath)
	}
	if items[0].Transcript != "a quiet desk fan hums" {
		t.Fatalf("expected transcript persisted, got %q", items[0].Transcript)
	}
}

func TestListSupportsStatusFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a, err := store.NewClip(ctx, "/tmp/list-a.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	b, err := store.NewClip(ctx, "/tmp/list-b.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	b.Status = queue.StatusTranscribed
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	c, err := store.NewClip(ctx, "/tmp/list-c.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	c.Status = queue.StatusFailed
	c.ErrorMessage = "boom"
	if err := store.Update(ctx, c); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	items, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if items[0].ID != a.ID || items[1].ID != b.ID || items[2].ID != c.ID {
		t.Fatalf("expected order A,B,C, got IDs %d,%d,%d", items[0].ID, items[1].ID, items[2].ID)
	}

	filtered, err := store.List(ctx, queue.StatusTranscribed, queue.StatusFailed)
	if err != nil {
		t.Fatalf("Filtered list failed: %v", err)
	}
	if len(filtered) != 2 {
		t.Fatalf("expected 2 items, got %d", len(filtered))
	}
	if filtered[0].ID != b.ID || filtered[1].ID != c.ID {
		t.Fatalf("unexpected filtered order: got %d,%d", filtered[0].ID, filtered[1].ID)
	}
}

func TestNextForStatusesReturnsOldest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	first, err := store.NewClip(ctx, "/tmp/next-1.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}
	if _, err := store.NewClip(ctx, "/tmp/next-2.wav", time.Now()); err != nil {
		t.Fatalf("NewClip failed: %v", err)
	}

	next, err := store.NextForStatuses(ctx, queue.StatusPending)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest pending item %d, got %#v", first.ID, next)
	}

	none, err := store.NextForStatuses(ctx, queue.StatusRendering)
	if err != nil {
		t.Fatalf("NextForStatuses failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no rendering items, got %#v", none)
	}
}

func TestRetryFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a, err := store.NewClip(ctx, "/tmp/retry-a.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	b, err := store.NewClip(ctx, "/tmp/retry-b.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	for _, item := range []*queue.Item{a, b} {
		item.Status = queue.StatusFailed
		item.ErrorMessage = "boom"
		if err := store.Update(ctx, item); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	updated, err := store.RetryFailed(ctx)
	if err != nil {
		t.Fatalf("RetryFailed all: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 items retried, got %d", updated)
	}

	item, err := store.GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if item.Status != queue.StatusPending {
		t.Fatalf("expected item A pending, got %s", item.Status)
	}
	if item.ErrorMessage != "" {
		t.Fatalf("expected error message cleared, got %q", item.ErrorMessage)
	}

	// Mark B failed again and retry targeted selection.
	b.Status = queue.StatusFailed
	if err := store.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err = store.RetryFailed(ctx, b.ID)
	if err != nil {
		t.Fatalf("RetryFailed targeted: %v", err)
	}
	if updated != 1 {
		t.Fatalf("expected 1 item retried, got %d", updated)
	}
}

func TestUpdateHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := store.NewClip(ctx, "/tmp/heartbeat.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	item.Status = queue.StatusTranscribing
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := store.UpdateHeartbeat(ctx, item.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	updated, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.LastHeartbeat == nil {
		t.Fatal("expected last heartbeat to be set")
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	t.Run("all statuses", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		store := testsupport.MustOpenStore(t, cfg)

		ctx := context.Background()
		past := time.Now().Add(-2 * time.Hour).UTC()
		cases := []struct {
			name       string
			processing queue.Status
			expected   queue.Status
		}{
			{"transcribing", queue.StatusTranscribing, queue.StatusPending},
			{"prompting", queue.StatusPrompting, queue.StatusTranscribed},
			{"rendering", queue.StatusRendering, queue.StatusPrompted},
		}
		var ids []int64
		for i, tc := range cases {
			item, err := store.NewClip(ctx, fmt.Sprintf("/tmp/stale-%d.wav", i), time.Now())
			if err != nil {
				t.Fatalf("NewClip: %v", err)
			}
			item.Status = tc.processing
			item.LastHeartbeat = &past
			if err := store.Update(ctx, item); err != nil {
				t.Fatalf("Update: %v", err)
			}
			ids = append(ids, item.ID)
		}

		count, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-1*time.Hour))
		if err != nil {
			t.Fatalf("ReclaimStaleProcessing: %v", err)
		}
		if int(count) != len(cases) {
			t.Fatalf("expected %d items reclaimed, got %d", len(cases), count)
		}

		for idx, tc := range cases {
			updated, err := store.GetByID(ctx, ids[idx])
			if err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if updated.Status != tc.expected {
				t.Fatalf("%s: expected status %s after reclaim, got %s", tc.name, tc.expected, updated.Status)
			}
			if updated.LastHeartbeat != nil {
				t.Fatalf("%s: expected heartbeat cleared, got %v", tc.name, updated.LastHeartbeat)
			}
		}
	})

	t.Run("filtered statuses", func(t *testing.T) {
		cfg := testsupport.NewConfig(t)
		store := testsupport.MustOpenStore(t, cfg)

		ctx := context.Background()
		past := time.Now().Add(-2 * time.Hour).UTC()

		transcribing, err := store.NewClip(ctx, "/tmp/stale-transcribing.wav", time.Now())
		if err != nil {
			t.Fatalf("NewClip transcribing: %v", err)
		}
		transcribing.Status = queue.StatusTranscribing
		transcribing.LastHeartbeat = &past
		if err := store.Update(ctx, transcribing); err != nil {
			t.Fatalf("Update transcribing: %v", err)
		}

		rendering, err := store.NewClip(ctx, "/tmp/stale-rendering.wav", time.Now())
		if err != nil {
			t.Fatalf("NewClip rendering: %v", err)
		}
		rendering.Status = queue.StatusRendering
		rendering.LastHeartbeat = &past
		if err := store.Update(ctx, rendering); err != nil {
			t.Fatalf("Update rendering: %v", err)
		}

		count, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-1*time.Hour), queue.StatusRendering)
		if err != nil {
			t.Fatalf("ReclaimStaleProcessing filtered: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 item reclaimed, got %d", count)
		}

		reclaimed, err := store.GetByID(ctx, rendering.ID)
		if err != nil {
			t.Fatalf("GetByID rendering: %v", err)
		}
		if reclaimed.Status != queue.StatusPrompted {
			t.Fatalf("expected rendering item rolled back to prompted, got %s", reclaimed.Status)
		}
		if reclaimed.LastHeartbeat != nil {
			t.Fatalf("expected rendering heartbeat cleared, got %v", reclaimed.LastHeartbeat)
		}

		unchanged, err := store.GetByID(ctx, transcribing.ID)
		if err != nil {
			t.Fatalf("GetByID transcribing: %v", err)
		}
		if unchanged.Status != queue.StatusTranscribing {
			t.Fatalf("expected transcribing item untouched, got %s", unchanged.Status)
		}
		if unchanged.LastHeartbeat == nil || !unchanged.LastHeartbeat.Equal(past) {
			t.Fatalf("expected transcribing heartbeat unchanged, got %v", unchanged.LastHeartbeat)
		}
	})
}

func TestUpdateProgressPreservesHeartbeat(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	item, err := store.NewClip(ctx, "/tmp/progress.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	item.Status = queue.StatusTranscribing
	past := time.Now().Add(-5 * time.Minute).UTC()
	item.LastHeartbeat = &past
	if err := store.Update(ctx, item); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := store.UpdateHeartbeat(ctx, item.ID); err != nil {
		t.Fatalf("UpdateHeartbeat: %v", err)
	}

	before, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID before progress: %v", err)
	}
	if before.LastHeartbeat == nil {
		t.Fatal("expected heartbeat set before progress update")
	}
	origHeartbeat := *before.LastHeartbeat

	before.ProgressStage = "Transcribe"
	before.ProgressPercent = 42.5
	before.ProgressMessage = "Decoding audio"
	if err := store.UpdateProgress(ctx, before); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	after, err := store.GetByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("GetByID after progress: %v", err)
	}
	if after.LastHeartbeat == nil {
		t.Fatal("expected heartbeat preserved after progress update")
	}
	if !after.LastHeartbeat.Equal(origHeartbeat) {
		t.Fatalf("expected heartbeat unchanged, before %v after %v", origHeartbeat, after.LastHeartbeat)
	}
	if after.ProgressStage != "Transcribe" || after.ProgressMessage != "Decoding audio" {
		t.Fatalf("expected progress fields persisted, got stage=%q message=%q", after.ProgressStage, after.ProgressMessage)
	}
	if after.ProgressPercent != 42.5 {
		t.Fatalf("expected progress percent 42.5, got %f", after.ProgressPercent)
	}
}

func TestHealthCountsReviewItems(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	a, err := store.NewClip(ctx, "/tmp/health-a.wav", time.Now())
	if err != nil {
		t.Fatalf("NewClip: %v", err)
	}
	a.SetReview("workflow file missing")
	if err := store.Update(ctx, a); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := store.NewClip(ctx, "/tmp/health-b.wav", time.Now()); err != nil {
		t.Fatalf("NewClip: %v", err)
	}

	health, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.Total != 2 || health.Review != 1 || health.Pending != 1 {
		t.Fatalf("unexpected health summary: %+v", health)
	}
}
