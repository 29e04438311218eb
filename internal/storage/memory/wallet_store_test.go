package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"wallet-fleet/internal/storage"
)

func TestWalletStore_NextIndexConcurrent(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uint64]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			idx, _ := store.NextIndex(ctx)
			mu.Lock()
			seen[idx] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct indices, got %d", n, len(seen))
	}
}

func TestWalletStore_ListPaging(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	for _, addr := range []string{"a", "b", "c", "d", "e"} {
		idx, err := store.NextIndex(ctx)
		if err != nil {
			t.Fatalf("NextIndex failed: %v", err)
		}
		if err := store.SetAddress(ctx, idx, addr); err != nil {
			t.Fatalf("SetAddress failed: %v", err)
		}
	}

	page, err := store.List(ctx, 2, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page) != 2 || page[0].Address != "c" || page[1].Address != "d" {
		t.Errorf("unexpected page: %+v", page)
	}

	tail, err := store.List(ctx, 4, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tail) != 1 || tail[0].Index != 4 {
		t.Errorf("unexpected tail: %+v", tail)
	}

	empty, err := store.List(ctx, 10, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty page, got %d", len(empty))
	}

	if _, err := store.List(ctx, -1, 10); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestWalletStore_DuplicateKey(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	if err := store.SetAddress(ctx, 0, "a"); err != nil {
		t.Fatalf("SetAddress failed: %v", err)
	}
	if err := store.SetAddress(ctx, 1, "a"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("duplicate address: expected ErrDuplicateKey, got %v", err)
	}
	if err := store.SetAddress(ctx, 0, "b"); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("duplicate index: expected ErrDuplicateKey, got %v", err)
	}

	// Explicit index advances the reservation counter.
	idx, _ := store.NextIndex(ctx)
	if idx != 1 {
		t.Errorf("NextIndex after SetAddress(0): got %d, want 1", idx)
	}
}

func TestWalletStore_GetByAddresses(t *testing.T) {
	store := NewWalletStore()
	ctx := context.Background()

	_ = store.SetAddress(ctx, 0, "a")
	_ = store.SetAddress(ctx, 1, "b")

	got, err := store.GetByAddresses(ctx, []string{"b", "zzz", "a", "b"})
	if err != nil {
		t.Fatalf("GetByAddresses failed: %v", err)
	}
	if len(got) != 2 || got[0].Address != "a" || got[1].Address != "b" {
		t.Errorf("unexpected result: %+v", got)
	}

	// Returned records are copies.
	got[0].Address = "mutated"
	again, _ := store.GetByAddresses(ctx, []string{"a"})
	if again[0].Address != "a" {
		t.Error("store returned a shared pointer")
	}

	count, _ := store.Count(ctx)
	if count != 2 {
		t.Errorf("Count: got %d, want 2", count)
	}
}
