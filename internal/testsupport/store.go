package testsupport

import (
	"context"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewClip creates a new clip item for tests using the provided store.
func NewClip(t testing.TB, store *queue.Store, audioPath string) *queue.Item {
	t.Helper()

	item, err := store.NewClip(context.Background(), audioPath, time.Now())
	if err != nil {
		t.Fatalf("store.NewClip: %v", err)
	}
	return item
}
