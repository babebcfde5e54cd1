package history

import (
	"testing"
)

func TestSnapshotAndHistory(t *testing.T) {
	svc := New(t.TempDir())

	first := []byte(`{"waterfall":{"inputs":{"carryPct":20}}}`)
	info1, err := svc.Snapshot("owner-1", "payout", first, "Avery", "save waterfall")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if info1.Hash == "" {
		t.Fatal("expected commit hash")
	}

	second := []byte(`{"waterfall":{"inputs":{"carryPct":25}}}`)
	info2, err := svc.Snapshot("owner-1", "payout", second, "Avery", "bump carry")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if info2.Hash == info1.Hash {
		t.Fatal("expected a new commit for changed content")
	}

	items, err := svc.History("owner-1", "payout", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(items))
	}
	if items[0].Hash != info2.Hash {
		t.Errorf("expected newest entry first, got %s", items[0].Hash)
	}
}

func TestSnapshotUnchangedContentReturnsHead(t *testing.T) {
	svc := New(t.TempDir())

	raw := []byte(`{"waterfall":{"inputs":{"carryPct":20}}}`)
	info1, err := svc.Snapshot("owner-1", "payout", raw, "Avery", "save")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	info2, err := svc.Snapshot("owner-1", "payout", raw, "Avery", "save again")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if info2.Hash != info1.Hash {
		t.Errorf("expected unchanged content to keep head %s, got %s", info1.Hash, info2.Hash)
	}

	items, err := svc.History("owner-1", "payout", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(items))
	}
}

func TestGetSnapshotReturnsOlderVersion(t *testing.T) {
	svc := New(t.TempDir())

	first := []byte(`{"tokenModel":{"inputs":{"supply":1000000}}}`)
	info1, err := svc.Snapshot("owner-1", "tokenomics", first, "Avery", "initial model")
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if _, err := svc.Snapshot("owner-1", "tokenomics", []byte(`{"tokenModel":{"inputs":{"supply":2000000}}}`), "Avery", "double supply"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	raw, err := svc.GetSnapshot("owner-1", "tokenomics", info1.Hash)
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	if string(raw) != string(first)+"\n" {
		t.Errorf("unexpected snapshot bytes: %s", raw)
	}
}

func TestHistoryForUnknownDraftIsEmpty(t *testing.T) {
	svc := New(t.TempDir())

	items, err := svc.History("owner-1", "jurisdiction", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty history, got %d entries", len(items))
	}
}

func TestOwnersHaveSeparateHistories(t *testing.T) {
	svc := New(t.TempDir())

	if _, err := svc.Snapshot("owner-a", "payout", []byte(`{"a":1}`), "A", "save"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if _, err := svc.Snapshot("owner-b", "payout", []byte(`{"b":2}`), "B", "save"); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	items, err := svc.History("owner-a", "payout", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 entry for owner-a, got %d", len(items))
	}
	if items[0].Author != "A" {
		t.Errorf("expected author A, got %s", items[0].Author)
	}
}
