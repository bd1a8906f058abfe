package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	hosterrors "adaptive-mesh/pkg/errors"
)

func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestRecordAssignsID(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			run, err := store.Record(ctx, Run{Filename: "part.gcode", Result: ResultInserted})
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			if run.ID == "" {
				t.Fatal("expected an ID to be assigned")
			}
			if run.StartedAt.IsZero() {
				t.Error("expected a start time to be assigned")
			}
		})
	}
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			for i, file := range []string{"a.gcode", "b.gcode", "c.gcode"} {
				_, err := store.Record(ctx, Run{
					Filename:  file,
					Source:    SourceCLI,
					StartedAt: base.Add(time.Duration(i) * time.Minute),
					Result:    ResultPassThrough,
				})
				if err != nil {
					t.Fatalf("Record: %v", err)
				}
			}

			runs, err := store.List(ctx, ListOptions{Limit: 2})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(runs) != 2 {
				t.Fatalf("expected 2 runs, got %d", len(runs))
			}
			if runs[0].Filename != "c.gcode" || runs[1].Filename != "b.gcode" {
				t.Errorf("unexpected order: %s, %s", runs[0].Filename, runs[1].Filename)
			}

			runs, err = store.List(ctx, ListOptions{Limit: 10, Start: 2})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(runs) != 1 || runs[0].Filename != "a.gcode" {
				t.Errorf("unexpected page: %+v", runs)
			}

			runs, err = store.List(ctx, ListOptions{Start: 10})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if runs == nil || len(runs) != 0 {
				t.Errorf("expected an empty non-nil page, got %v", runs)
			}
		})
	}
}

func TestGetRoundTripsFields(t *testing.T) {
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := Run{
		Filename:  "benchy.gcode",
		Source:    SourceUpload,
		StartedAt: started,
		Duration:  1500 * time.Millisecond,
		Result:    ResultInserted,
		Command:   "M557 X40.0:90.0 Y30.0:70.0 S10",
		MinX:      50, MaxX: 80, MinY: 40, MaxY: 60,
		BedWidth: 300, BedHeight: 300,
		Spacing: 10, XOffset: 0, YOffset: 0,
		Layers: 4, Bytes: 2048,
	}
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec, err := store.Record(ctx, want)
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			got, err := store.Get(ctx, rec.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !got.StartedAt.Equal(started) {
				t.Errorf("StartedAt = %v, want %v", got.StartedAt, started)
			}
			got.StartedAt = rec.StartedAt
			if got != rec {
				t.Errorf("Get = %+v, want %+v", got, rec)
			}
		})
	}
}

func TestDeleteAndNotFound(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			rec, err := store.Record(ctx, Run{Filename: "x.gcode", Result: ResultError, Error: "boom"})
			if err != nil {
				t.Fatalf("Record: %v", err)
			}
			if err := store.Delete(ctx, rec.ID); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Get(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete: expected ErrNotFound, got %v", err)
			}
			if err := store.Delete(ctx, rec.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Delete: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestTotals(t *testing.T) {
	ctx := context.Background()
	for name, store := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			runs := []Run{
				{Result: ResultInserted, Bytes: 100, Duration: time.Second},
				{Result: ResultInserted, Bytes: 50, Duration: 3 * time.Second},
				{Result: ResultPassThrough, Bytes: 10},
				{Result: ResultError},
			}
			for _, r := range runs {
				if _, err := store.Record(ctx, r); err != nil {
					t.Fatalf("Record: %v", err)
				}
			}
			tot, err := store.Totals(ctx)
			if err != nil {
				t.Fatalf("Totals: %v", err)
			}
			want := Totals{Runs: 4, Inserted: 2, PassThrough: 1, Errors: 1, Bytes: 160, Longest: 3 * time.Second}
			if tot != want {
				t.Errorf("Totals = %+v, want %+v", tot, want)
			}
		})
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	rec, err := s.Record(ctx, Run{Filename: "keep.gcode", Result: ResultInserted})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	s.Close()

	s, err = OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Filename != "keep.gcode" {
		t.Errorf("Filename = %q", got.Filename)
	}
}

func TestOpenEmptyPathUsesMemory(t *testing.T) {
	s, err := Open("")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, ok := s.(*MemoryStore); !ok {
		t.Errorf("expected *MemoryStore, got %T", s)
	}
	if _, err := OpenSQLite(""); !hosterrors.Is(err, hosterrors.ErrHistory) {
		t.Errorf("expected HISTORY error, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryStore().Record(ctx, Run{}); err == nil {
		t.Error("expected error for cancelled context")
	}
}
