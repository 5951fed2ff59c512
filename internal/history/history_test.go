package history

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ok := Run{
		CreatedAt:    time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Image1:       "/a.png",
		Image2:       "/b.png",
		Engine:       "engine",
		Backend:      "cpu",
		Adapter:      "none",
		Metric:       "dssim_gaussian5x5_luma",
		Status:       "ok",
		Score:        0.0123,
		WeightedSSIM: 0.9878,
		Scales: []Scale{
			{Level: 0, Width: 16, Height: 16, Sum: 1 << 40, MeanDssim: 0.01, Score: 0.98, Weight: 0.028},
			{Level: 1, Width: 8, Height: 8, Sum: 12, MeanDssim: 0.005, Score: 0.99, Weight: 0.197},
		},
	}
	id1, err := s.Record(ctx, ok)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	failed := Run{Image1: "/a.png", Image2: "/c.png", Status: "error", Error: "decode: bad file"}
	id2, err := s.Record(ctx, failed)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id2 <= id1 {
		t.Errorf("ids not increasing: %d, %d", id1, id2)
	}

	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != id2 || runs[0].Error != "decode: bad file" || len(runs[0].Scales) != 0 {
		t.Errorf("newest run = %+v", runs[0])
	}
	got := runs[1]
	if got.Score != ok.Score || got.Metric != ok.Metric || !got.CreatedAt.Equal(ok.CreatedAt) {
		t.Errorf("run = %+v", got)
	}
	if len(got.Scales) != 2 || got.Scales[0].Sum != 1<<40 || got.Scales[1].Width != 8 {
		t.Errorf("scales = %+v", got.Scales)
	}

	limited, err := s.Recent(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("Recent(1) returned %d runs", len(limited))
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Record(context.Background(), Run{Image1: "a", Image2: "b", Status: "ok"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	runs, err := s.Recent(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("got %d runs after reopen, want 1", len(runs))
	}
}

func TestClosedStore(t *testing.T) {
	s := openTestStore(t)
	s.Close()
	if _, err := s.Record(context.Background(), Run{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Record: got %v, want ErrClosed", err)
	}
	if _, err := s.Recent(context.Background(), 1); !errors.Is(err, ErrClosed) {
		t.Errorf("Recent: got %v, want ErrClosed", err)
	}
}

func TestDriverRegistered(t *testing.T) {
	if !slices.Contains(sql.Drivers(), driverName) {
		t.Fatalf("driver %q not registered; have %v", driverName, sql.Drivers())
	}
}
