package maintenance

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"sightline/pkg/db"
	"sightline/pkg/geo"
	"sightline/pkg/los"
	"sightline/pkg/store"
)

func TestMaintenance(t *testing.T) {
	tempDir := t.TempDir()
	d, err := db.Init(filepath.Join(tempDir, "maint_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	s := store.NewSQLiteStore(d)
	ctx := context.Background()

	req := los.Request{Start: geo.Point3D{Z: 10}, End: geo.Point3D{X: 100, Z: 10}, SampleSpacing: 10}
	old := &store.QueryRecord{ID: "old", CreatedAt: time.Now().Add(-40 * 24 * time.Hour), Request: req}
	fresh := &store.QueryRecord{ID: "fresh", Request: req}
	for _, rec := range []*store.QueryRecord{old, fresh} {
		if err := s.SaveQuery(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := d.Exec("INSERT INTO elevation_cache (key, value, created_at) VALUES ('stale', x'00', ?)",
		time.Now().Add(-40*24*time.Hour).UTC()); err != nil {
		t.Fatal(err)
	}

	Run(ctx, s, 30*24*time.Hour)

	if got, _ := s.GetQuery(ctx, "old"); got != nil {
		t.Error("old query should have been pruned")
	}
	if got, _ := s.GetQuery(ctx, "fresh"); got == nil {
		t.Error("fresh query should have been kept")
	}
	if _, hit := s.GetCache(ctx, "stale"); hit {
		t.Error("stale cache entry should have been pruned")
	}
}

type fakePruner struct {
	runs atomic.Int32
	err  error
}

func (f *fakePruner) PruneQueries(context.Context, time.Duration) (int64, error) {
	f.runs.Add(1)
	return 0, f.err
}

func (f *fakePruner) PruneCache(context.Context, time.Duration) (int64, error) {
	return 0, f.err
}

func TestRun_DisabledRetention(t *testing.T) {
	p := &fakePruner{}
	Run(context.Background(), p, 0)
	if p.runs.Load() != 0 {
		t.Error("zero retention should skip pruning")
	}
}

func TestRun_ErrorsAreLogged(t *testing.T) {
	p := &fakePruner{err: errors.New("disk full")}
	Run(context.Background(), p, time.Hour)
	if p.runs.Load() != 1 {
		t.Errorf("expected one prune attempt, got %d", p.runs.Load())
	}
}

func TestSchedule(t *testing.T) {
	p := &fakePruner{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		Schedule(ctx, p, time.Hour, 5*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for p.runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated runs, got %d", p.runs.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Schedule did not stop after cancel")
	}
}
