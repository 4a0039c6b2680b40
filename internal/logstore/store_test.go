package logstore

import "testing"

func TestStore_AppendAndContent(t *testing.T) {
	store := NewStore()
	store.Append("run-1", "starting")
	store.Append("run-1", "done\n")

	content, ok := store.Content("run-1")
	if !ok {
		t.Fatal("run-1 should exist")
	}
	if content != "starting\ndone\n" {
		t.Errorf("content = %q", content)
	}

	if _, ok := store.Content("run-2"); ok {
		t.Error("unknown ID should miss")
	}
}

func TestStore_ListSortedWithPrefix(t *testing.T) {
	store := NewStore()
	store.Append("run-2", "b")
	store.Append("run-1", "a")
	store.Append("build-1", "c")

	all := store.List("")
	if len(all) != 3 {
		t.Fatalf("List(\"\") returned %d entries, want 3", len(all))
	}
	if all[0].ID != "build-1" || all[1].ID != "run-1" || all[2].ID != "run-2" {
		t.Errorf("entries not sorted by ID: %v", all)
	}

	runs := store.List("run-")
	if len(runs) != 2 {
		t.Fatalf("List(run-) returned %d entries, want 2", len(runs))
	}
	if runs[0].Size != 2 {
		t.Errorf("run-1 size = %d, want 2", runs[0].Size)
	}
}
