package snapshot

import "testing"

func TestHistoryEvictsOldestByCount(t *testing.T) {
	h := NewHistory(2, 0)
	h.Push(Record{ID: "1", Content: "a"})
	h.Push(Record{ID: "2", Content: "b"})
	h.Push(Record{ID: "3", Content: "c"})

	all := h.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(all))
	}
	if all[0].ID != "2" || all[1].ID != "3" {
		t.Fatalf("expected oldest evicted, got %+v", all)
	}
}

func TestHistoryEvictsOldestByBytes(t *testing.T) {
	h := NewHistory(100, 5)
	h.Push(Record{ID: "1", Content: "abc"})
	h.Push(Record{ID: "2", Content: "de"})
	h.Push(Record{ID: "3", Content: "f"})

	all := h.All()
	var total int
	for _, r := range all {
		total += len(r.Content)
	}
	if total > 5 {
		t.Fatalf("expected byte bound enforced, got %d bytes across %d entries", total, len(all))
	}
	if all[len(all)-1].ID != "3" {
		t.Fatal("expected newest entry retained")
	}
}

func TestHistoryLen(t *testing.T) {
	h := NewHistory(0, 0)
	if h.Len() != 0 {
		t.Fatalf("expected empty history, got len %d", h.Len())
	}
	h.Push(Record{ID: "1", Content: "x"})
	if h.Len() != 1 {
		t.Fatalf("expected len 1, got %d", h.Len())
	}
}
