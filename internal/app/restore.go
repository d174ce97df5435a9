package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"tolma/api/internal/progress"
	"tolma/api/internal/reputation"
	"tolma/api/internal/store"
	"tolma/api/internal/util"
)

type RestoreInput struct {
	// Version selects the history record to restore. When nil the call is
	// an undo: the caller's own hot edit is erased, anything older is
	// cleared with a delete record.
	Version *int `json:"version"`
}

// RestoreTranslation brings a history record back as the current translation,
// or undoes/clears the segment when no version is named. Restoring appends a
// record pointing at its origin and carries the origin's standing votes over
// to it, so reviving an approved version does not throw the approvals away.
func (s *Service) RestoreTranslation(ctx context.Context, session Session, segmentID string, input RestoreInput) (map[string]any, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	seg, err := tx.GetSegmentForUpdate(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	work, err := tx.GetWork(ctx, seg.WorkID)
	if err != nil {
		return nil, err
	}
	if err := checkProtected(work); err != nil {
		return nil, err
	}
	if err := s.checkLock(seg, session.UserID); err != nil {
		return nil, err
	}

	if input.Version == nil {
		return s.undoClear(ctx, tx, seg, session, work.Language)
	}
	return s.restoreVersion(ctx, tx, seg, work, session, *input.Version)
}

// undoClear implements restore without a version: reviewed content is
// untouchable, the caller's own unvoted hot edit vanishes when it is the
// whole history, and anything else is cleared through a delete record.
func (s *Service) undoClear(ctx context.Context, tx storeTx, seg store.Segment, session Session, language string) (map[string]any, error) {
	if progress.State(seg.Progress) >= progress.InReview {
		return nil, domainError(http.StatusConflict, "CONTENT_LOCKED", "Reviewed translations cannot be undone", map[string]any{
			"progress": progress.State(seg.Progress).String(),
		})
	}
	if _, err := requireCapability(ctx, tx, session.UserID, language, reputation.DeleteTranslation); err != nil {
		return nil, err
	}

	latest, err := tx.LatestHistoryRecord(ctx, seg.ID)
	if errors.Is(err, sql.ErrNoRows) {
		// Nothing to undo; drop the caller's editing lock so the client
		// returns to a clean state.
		if seg.LockedBy != nil && *seg.LockedBy == session.UserID {
			if err := tx.ClearSegmentLock(ctx, seg.ID); err != nil {
				return nil, err
			}
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return nil, domainError(http.StatusConflict, "NOTHING_TO_RESTORE", "Segment has no history", nil)
	}
	if err != nil {
		return nil, err
	}

	if seg.TranslatedContent == "" {
		// Already cleared; report success without another record.
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return segmentPayload(seg), nil
	}

	hot := false
	if s.recordHot(latest, seg.CurrentRelativeID, session.UserID) {
		voted, err := tx.HasVotes(ctx, seg.ID, latest.RelativeID)
		if err != nil {
			return nil, err
		}
		hot = !voted
	}

	var deleted *int
	switch {
	case hot && latest.RelativeID == 1:
		// The caller's fresh edit is the whole history; it never happened.
		if err := tx.DeleteLatestHistoryRecord(ctx, seg.ID, latest.RelativeID); err != nil {
			return nil, err
		}
		deleted = &latest.RelativeID
		seg.CurrentRelativeID = 0
	case latest.RelativeID == 1:
		// A single record that is not the caller's hot edit cannot be
		// undone away.
		return nil, domainError(http.StatusConflict, "NOTHING_TO_RESTORE", "No earlier version to fall back to", nil)
	default:
		rec, err := tx.InsertHistoryRecord(ctx, seg.ID, "", session.UserID, store.ReasonDelete, nil)
		if err != nil {
			return nil, err
		}
		seg.CurrentRelativeID = rec.RelativeID
	}

	seg.TranslatedContent = ""
	seg.Progress = int(progress.Blank)
	seg.TranslatorID = nil
	seg.TranslatedAt = nil
	if err := tx.UpdateSegmentTranslation(ctx, seg); err != nil {
		return nil, err
	}
	if err := s.refreshStats(ctx, tx, seg); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.indexSegment(seg)
	payload := segmentPayload(seg)
	if deleted != nil {
		payload["deletedRelativeId"] = *deleted
	}
	return payload, nil
}

func (s *Service) restoreVersion(ctx context.Context, tx storeTx, seg store.Segment, work store.Work, session Session, version int) (map[string]any, error) {
	target, err := tx.GetHistoryRecord(ctx, seg.ID, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainError(http.StatusNotFound, "VERSION_NOT_FOUND", "No such translation version", nil)
	}
	if err != nil {
		return nil, err
	}
	latest, err := tx.LatestHistoryRecord(ctx, seg.ID)
	if err != nil {
		return nil, err
	}

	if target.RelativeID == latest.RelativeID {
		return s.resetToCurrent(ctx, tx, seg, work, session, latest)
	}

	if _, err := requireCapability(ctx, tx, session.UserID, work.Language, reputation.RestoreTranslation); err != nil {
		return nil, err
	}

	if latest.RestoredFrom != nil && *latest.RestoredFrom == target.RelativeID &&
		latest.Content == target.Content && latest.RelativeID == seg.CurrentRelativeID {
		// Already restored; report success without another record.
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return segmentPayload(seg), nil
	}

	origin := target.RelativeID
	rec, err := tx.InsertHistoryRecord(ctx, seg.ID, target.Content, session.UserID, store.ReasonRestore, &origin)
	if err != nil {
		return nil, err
	}
	if err := s.carryVotes(ctx, tx, seg.ID, origin, rec.RelativeID); err != nil {
		return nil, err
	}

	totals, err := tx.AccumulatedVotes(ctx, seg.ID, rec.RelativeID)
	if err != nil {
		return nil, err
	}
	state := progress.Clamp(progress.Evaluate(
		seg.OriginalContent, target.Content, work.Language,
		progress.Votes{Translator: totals.Translator, Reviewer: totals.Reviewer, Trustee: totals.Trustee},
		progress.Requirements{Translator: work.RequiredTranslators, Reviewer: work.RequiredReviewers, Trustee: work.RequiredTrustees},
	), progress.State(seg.Progress))

	now := s.now()
	seg.TranslatedContent = target.Content
	seg.Progress = int(state)
	seg.CurrentRelativeID = rec.RelativeID
	seg.TranslatorID = &target.AuthorID
	seg.TranslatedAt = &now
	if err := tx.UpdateSegmentTranslation(ctx, seg); err != nil {
		return nil, err
	}
	if err := s.refreshStats(ctx, tx, seg); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.indexSegment(seg)
	payload := segmentPayload(seg)
	payload["restoredFrom"] = origin
	payload["record"] = historyPayload(rec)
	return payload, nil
}

// resetToCurrent handles restoring the newest record. When that record is the
// caller's own unvoted hot edit and older records exist, the edit is undone:
// the record is deleted and the previous one becomes current again. Otherwise
// the segment is put back to the record's content without adding anything.
func (s *Service) resetToCurrent(ctx context.Context, tx storeTx, seg store.Segment, work store.Work, session Session, latest store.HistoryRecord) (map[string]any, error) {
	undo := false
	if s.recordHot(latest, seg.CurrentRelativeID, session.UserID) && latest.RelativeID > 1 {
		voted, err := tx.HasVotes(ctx, seg.ID, latest.RelativeID)
		if err != nil {
			return nil, err
		}
		undo = !voted
	}

	capability := reputation.RestoreTranslation
	if undo {
		// Undoing your own fresh edit is a delete, not a restore.
		capability = reputation.DeleteTranslation
	}
	if _, err := requireCapability(ctx, tx, session.UserID, work.Language, capability); err != nil {
		return nil, err
	}

	if !undo {
		if seg.TranslatedContent == latest.Content && seg.CurrentRelativeID == latest.RelativeID {
			if err := tx.Commit(); err != nil {
				return nil, err
			}
			return segmentPayload(seg), nil
		}
		seg.TranslatedContent = latest.Content
		seg.CurrentRelativeID = latest.RelativeID
		seg.TranslatorID = &latest.AuthorID
		if err := tx.UpdateSegmentTranslation(ctx, seg); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		s.indexSegment(seg)
		return segmentPayload(seg), nil
	}

	if err := tx.DeleteLatestHistoryRecord(ctx, seg.ID, latest.RelativeID); err != nil {
		return nil, err
	}
	prev, err := tx.GetHistoryRecord(ctx, seg.ID, latest.RelativeID-1)
	if err != nil {
		return nil, err
	}
	totals, err := tx.AccumulatedVotes(ctx, seg.ID, prev.RelativeID)
	if err != nil {
		return nil, err
	}
	state := progress.Evaluate(
		seg.OriginalContent, prev.Content, work.Language,
		progress.Votes{Translator: totals.Translator, Reviewer: totals.Reviewer, Trustee: totals.Trustee},
		progress.Requirements{Translator: work.RequiredTranslators, Reviewer: work.RequiredReviewers, Trustee: work.RequiredTrustees},
	)

	seg.TranslatedContent = prev.Content
	seg.Progress = int(state)
	seg.CurrentRelativeID = prev.RelativeID
	seg.TranslatorID = &prev.AuthorID
	if err := tx.UpdateSegmentTranslation(ctx, seg); err != nil {
		return nil, err
	}
	if err := s.refreshStats(ctx, tx, seg); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.indexSegment(seg)
	payload := segmentPayload(seg)
	payload["deletedRelativeId"] = latest.RelativeID
	return payload, nil
}

// carryVotes copies the standing per-user nets from the origin record onto
// the fresh restore record. Copying, not moving: the origin keeps its ledger
// so a later restore of the same version still finds the votes.
func (s *Service) carryVotes(ctx context.Context, tx storeTx, segmentID string, origin, target int) error {
	nets, err := tx.NetVotes(ctx, segmentID, origin)
	if err != nil {
		return err
	}
	for _, net := range nets {
		if err := tx.InsertVote(ctx, store.Vote{
			ID:         util.NewID("vot"),
			SegmentID:  segmentID,
			RelativeID: target,
			UserID:     net.UserID,
			Role:       net.Role,
			Value:      net.Value,
		}); err != nil {
			return err
		}
	}
	return nil
}
