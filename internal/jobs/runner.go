// Package jobs runs the periodic maintenance work of the segment engine:
// releasing abandoned editing locks, sweeping expired drafts and purging
// vote comments that no longer refer to a current translation.
package jobs

import (
	"context"
	"log"
	"time"

	"tolma/api/internal/store"
)

type maintenanceStore interface {
	ListIdleLockedSegments(ctx context.Context, before time.Time) ([]store.Segment, error)
	ClearSegmentLock(ctx context.Context, segmentID string) error
	SweepDrafts(ctx context.Context, before time.Time) (int64, error)
	PurgeStaleVoteComments(ctx context.Context, before time.Time) (int64, error)
}

type Runner struct {
	store          maintenanceStore
	idleUnlock     time.Duration
	draftRetention time.Duration
	interval       time.Duration
	now            func() time.Time
}

func NewRunner(st maintenanceStore, idleUnlock, draftRetention time.Duration) *Runner {
	return &Runner{
		store:          st,
		idleUnlock:     idleUnlock,
		draftRetention: draftRetention,
		interval:       30 * time.Second,
		now:            time.Now,
	}
}

// Start launches the maintenance loop. It stops when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.runOnce(ctx)
			}
		}
	}()
}

func (r *Runner) runOnce(ctx context.Context) {
	r.unlockIdleSegments(ctx)

	// Drafts and comments age out on a much coarser scale; running the
	// sweeps every tick is still cheap because they are single statements.
	if swept, err := r.store.SweepDrafts(ctx, r.now().Add(-r.draftRetention)); err != nil {
		log.Printf(`{"job":"draft_sweep","error":%q}`, err.Error())
	} else if swept > 0 {
		log.Printf(`{"job":"draft_sweep","deleted":%d}`, swept)
	}

	if purged, err := r.store.PurgeStaleVoteComments(ctx, r.now().Add(-r.draftRetention)); err != nil {
		log.Printf(`{"job":"comment_purge","error":%q}`, err.Error())
	} else if purged > 0 {
		log.Printf(`{"job":"comment_purge","deleted":%d}`, purged)
	}
}

func (r *Runner) unlockIdleSegments(ctx context.Context) {
	cutoff := r.now().Add(-r.idleUnlock)
	segments, err := r.store.ListIdleLockedSegments(ctx, cutoff)
	if err != nil {
		log.Printf(`{"job":"idle_unlock","error":%q}`, err.Error())
		return
	}
	for _, seg := range segments {
		if err := r.store.ClearSegmentLock(ctx, seg.ID); err != nil {
			log.Printf(`{"job":"idle_unlock","segment":%q,"error":%q}`, seg.ID, err.Error())
			continue
		}
		log.Printf(`{"job":"idle_unlock","segment":%q}`, seg.ID)
	}
}
