package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "ven.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ven.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ven.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	var name string
	err = s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='events'",
	).Scan(&name)
	if err != nil {
		t.Errorf("events table not found after idempotent opens: %v", err)
	}
}

func TestOpen_InvalidPath(t *testing.T) {
	_, err := Open("/nonexistent/dir/ven.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestClose_NilDB(t *testing.T) {
	s := &Store{db: nil}
	if err := s.Close(); err != nil {
		t.Errorf("Close() on nil db should not error: %v", err)
	}
}

func TestUpdateAndGetEvent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	row := EventRow{VTNID: "vtn1", EventID: "E1", ModNumber: 1, Raw: []byte("<eiEvent/>")}
	if err := s.UpdateEvent(ctx, row); err != nil {
		t.Fatalf("UpdateEvent() failed: %v", err)
	}

	raw, err := s.GetEvent(ctx, "E1")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if string(raw) != "<eiEvent/>" {
		t.Errorf("raw = %q, want %q", raw, "<eiEvent/>")
	}

	// Upsert overwrites the row.
	row.ModNumber = 2
	row.Raw = []byte("<eiEvent v='2'/>")
	if err := s.UpdateEvent(ctx, row); err != nil {
		t.Fatalf("UpdateEvent() upsert failed: %v", err)
	}

	raw, err = s.GetEvent(ctx, "E1")
	if err != nil {
		t.Fatalf("GetEvent() after upsert failed: %v", err)
	}
	if string(raw) != "<eiEvent v='2'/>" {
		t.Errorf("raw after upsert = %q", raw)
	}

	if n, _ := s.CountEvents(ctx); n != 1 {
		t.Errorf("CountEvents() = %d, want 1", n)
	}
}

func TestGetEvent_Absent(t *testing.T) {
	s := openTestStore(t)

	raw, err := s.GetEvent(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if raw != nil {
		t.Errorf("expected nil raw for absent id, got %q", raw)
	}
}

func TestActiveEvents_Snapshot(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"E1", "E2", "E3"} {
		err := s.UpdateEvent(ctx, EventRow{VTNID: "vtn1", EventID: id, ModNumber: 1, Raw: []byte(id)})
		if err != nil {
			t.Fatalf("UpdateEvent(%s) failed: %v", id, err)
		}
	}

	snap, err := s.ActiveEvents(ctx)
	if err != nil {
		t.Fatalf("ActiveEvents() failed: %v", err)
	}
	if len(snap) != 3 {
		t.Fatalf("snapshot size = %d, want 3", len(snap))
	}
	if string(snap["E2"]) != "E2" {
		t.Errorf("snap[E2] = %q", snap["E2"])
	}
}

func TestUpdateAllEvents_Bulk(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	rows := []EventRow{
		{VTNID: "vtn1", EventID: "E1", ModNumber: 1, Raw: []byte("a")},
		{VTNID: "vtn1", EventID: "E2", ModNumber: 4, Raw: []byte("b")},
	}
	if err := s.UpdateAllEvents(ctx, rows); err != nil {
		t.Fatalf("UpdateAllEvents() failed: %v", err)
	}

	listed, err := s.ListEvents(ctx)
	if err != nil {
		t.Fatalf("ListEvents() failed: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("ListEvents() len = %d, want 2", len(listed))
	}
	if listed[1].EventID != "E2" || listed[1].ModNumber != 4 {
		t.Errorf("listed[1] = %+v", listed[1])
	}

	if err := s.UpdateAllEvents(ctx, nil); err != nil {
		t.Errorf("UpdateAllEvents(nil) should be a no-op: %v", err)
	}
}

func TestRemoveEvents(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"E1", "E2", "E3"} {
		if err := s.UpdateEvent(ctx, EventRow{VTNID: "vtn1", EventID: id, ModNumber: 1, Raw: []byte(id)}); err != nil {
			t.Fatalf("UpdateEvent(%s) failed: %v", id, err)
		}
	}

	if err := s.RemoveEvents(ctx, []string{"E1", "E3", "unknown"}); err != nil {
		t.Fatalf("RemoveEvents() failed: %v", err)
	}

	snap, err := s.ActiveEvents(ctx)
	if err != nil {
		t.Fatalf("ActiveEvents() failed: %v", err)
	}
	if len(snap) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(snap))
	}
	if _, ok := snap["E2"]; !ok {
		t.Error("E2 should survive removal")
	}

	if err := s.RemoveEvents(ctx, nil); err != nil {
		t.Errorf("RemoveEvents(nil) should be a no-op: %v", err)
	}
}
