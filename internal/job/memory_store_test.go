package job

import (
	"context"
	stdErrors "errors"
	"testing"

	"github.com/lattibeaudiere/eigenclaw/internal/classify"
)

func newTestJob(id string) *Job {
	return &Job{
		ID:         id,
		Records:    []classify.Record{{"description": "swap"}},
		Status:     StatusPending,
		MaxRetries: 2,
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, newTestJob("job-1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.Create(ctx, newTestJob("job-1")); !stdErrors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict on duplicate create, got %v", err)
	}

	claimed, err := store.Claim(ctx, "job-1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("claimed = %+v", claimed)
	}

	// 运行中的任务不能被再次领取。
	if _, err := store.Claim(ctx, "job-1"); !stdErrors.Is(err, ErrJobConflict) {
		t.Fatalf("expected conflict on double claim, got %v", err)
	}

	if err := store.SetProgress(ctx, "job-1", 1, 1); err != nil {
		t.Fatalf("set progress failed: %v", err)
	}

	results := []classify.Record{{"description": "swap", "label": map[string]any{"error": "x"}}}
	if err := store.MarkSucceeded(ctx, "job-1", results); err != nil {
		t.Fatalf("mark succeeded failed: %v", err)
	}
	stored, err := store.Get(ctx, "job-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.Status != StatusSucceeded || len(stored.Results) != 1 || stored.Done != 1 {
		t.Fatalf("stored = %+v", stored)
	}

	// 完成的任务再领取要报已完成。
	if _, err := store.Claim(ctx, "job-1"); !stdErrors.Is(err, ErrJobCompleted) {
		t.Fatalf("expected completed, got %v", err)
	}
}

func TestMemoryStoreClaimExhausted(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	created := newTestJob("job-2")
	created.MaxRetries = 1
	if err := store.Create(ctx, created); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := store.Claim(ctx, "job-2"); err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if err := store.MarkFailed(ctx, "job-2", CodeJobProcessing, "boom"); err != nil {
		t.Fatalf("mark failed errored: %v", err)
	}
	if _, err := store.Claim(ctx, "job-2"); !stdErrors.Is(err, ErrJobExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, newTestJob("job-3")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, _ := store.Get(ctx, "job-3")
	first.Records[0]["description"] = "tampered"
	second, _ := store.Get(ctx, "job-3")
	if second.Records[0]["description"] != "swap" {
		t.Fatalf("store leaked internal state: %v", second.Records[0])
	}
}

func TestMemoryStoreList(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Create(ctx, newTestJob(id)); err != nil {
			t.Fatalf("create %s failed: %v", id, err)
		}
	}
	list, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(list))
	}

	if _, err := store.Get(ctx, "missing"); !stdErrors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
