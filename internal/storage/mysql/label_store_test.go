package mysql

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestMemoryLabelRepositorySaveAndList(t *testing.T) {
	t.Parallel()

	repo, err := NewMemoryLabelRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}

	ctx := context.Background()
	now := time.Now().Unix()
	for i := 0; i < 3; i++ {
		record := &LabelRecord{
			TxHash:      fmt.Sprintf("0x%064d", i),
			Description: "supply 250 USDC",
			ActionType:  "SUPPLY",
			Protocol:    "Aave V3",
			Label:       `{"action_type":"SUPPLY"}`,
			Backend:     "EigenAI",
			CreatedAt:   now + int64(i),
		}
		if err := repo.Save(ctx, record); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if record.ID == 0 {
			t.Fatalf("expected record ID to be assigned")
		}
	}

	list, err := repo.ListLatest(ctx, 2)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 records, got %d", len(list))
	}
	if list[0].CreatedAt < list[1].CreatedAt {
		t.Fatalf("records not in reverse chronological order: %+v", list)
	}
}

func TestMemoryLabelRepositoryReloadsFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	repo, err := NewMemoryLabelRepository(dir)
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}
	record := &LabelRecord{Description: "swap", ActionType: "SWAP", Label: "{}", CreatedAt: 1}
	if err := repo.Save(ctx, record); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded, err := NewMemoryLabelRepository(dir)
	if err != nil {
		t.Fatalf("failed to reload repo: %v", err)
	}
	list, err := reloaded.ListLatest(ctx, 10)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 1 || list[0].ActionType != "SWAP" {
		t.Fatalf("unexpected list result: %+v", list)
	}

	// 续写时 ID 不能与历史记录冲突。
	next := &LabelRecord{Description: "borrow", ActionType: "BORROW", Label: "{}", CreatedAt: 2}
	if err := reloaded.Save(ctx, next); err != nil {
		t.Fatalf("save after reload failed: %v", err)
	}
	if next.ID <= record.ID {
		t.Fatalf("ID not advanced after reload: %d <= %d", next.ID, record.ID)
	}
}

func TestMemoryLabelRepositoryLimitClamped(t *testing.T) {
	t.Parallel()

	repo, err := NewMemoryLabelRepository(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create memory repo: %v", err)
	}
	list, err := repo.ListLatest(context.Background(), 100)
	if err != nil {
		t.Fatalf("list latest failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}
}
