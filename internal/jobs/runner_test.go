package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"tolma/api/internal/store"
)

type fakeMaintenanceStore struct {
	lockedSegments []store.Segment
	cleared        []string
	sweepCutoff    time.Time
	purgeCutoff    time.Time
	listErr        error
}

func (f *fakeMaintenanceStore) ListIdleLockedSegments(_ context.Context, before time.Time) ([]store.Segment, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lockedSegments, nil
}

func (f *fakeMaintenanceStore) ClearSegmentLock(_ context.Context, segmentID string) error {
	f.cleared = append(f.cleared, segmentID)
	return nil
}

func (f *fakeMaintenanceStore) SweepDrafts(_ context.Context, before time.Time) (int64, error) {
	f.sweepCutoff = before
	return 2, nil
}

func (f *fakeMaintenanceStore) PurgeStaleVoteComments(_ context.Context, before time.Time) (int64, error) {
	f.purgeCutoff = before
	return 0, nil
}

func TestRunOnceClearsIdleLocks(t *testing.T) {
	fs := &fakeMaintenanceStore{
		lockedSegments: []store.Segment{{ID: "seg_1"}, {ID: "seg_2"}},
	}
	r := NewRunner(fs, 3*time.Minute, 30*24*time.Hour)
	r.runOnce(context.Background())

	if len(fs.cleared) != 2 || fs.cleared[0] != "seg_1" || fs.cleared[1] != "seg_2" {
		t.Fatalf("expected both idle locks cleared, got %v", fs.cleared)
	}
}

func TestRunOnceUsesRetentionCutoff(t *testing.T) {
	fs := &fakeMaintenanceStore{}
	retention := 30 * 24 * time.Hour
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewRunner(fs, 3*time.Minute, retention)
	r.now = func() time.Time { return fixed }

	r.runOnce(context.Background())

	want := fixed.Add(-retention)
	if !fs.sweepCutoff.Equal(want) {
		t.Fatalf("draft sweep cutoff = %v, want %v", fs.sweepCutoff, want)
	}
	if !fs.purgeCutoff.Equal(want) {
		t.Fatalf("comment purge cutoff = %v, want %v", fs.purgeCutoff, want)
	}
}

func TestRunOnceSurvivesListError(t *testing.T) {
	fs := &fakeMaintenanceStore{listErr: errors.New("db down")}
	r := NewRunner(fs, 3*time.Minute, 30*24*time.Hour)
	r.runOnce(context.Background())

	if len(fs.cleared) != 0 {
		t.Fatalf("no locks should be cleared when listing fails")
	}
	if fs.sweepCutoff.IsZero() {
		t.Fatalf("draft sweep should still run after an unlock error")
	}
}
