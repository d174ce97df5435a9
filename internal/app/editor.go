package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"tolma/api/internal/progress"
	"tolma/api/internal/reputation"
	"tolma/api/internal/sanitize"
	"tolma/api/internal/search"
	"tolma/api/internal/store"
	"tolma/api/internal/util"
	"tolma/api/internal/votes"
)

type UpdateSegmentInput struct {
	Content string `json:"content"`
	// LastModified is the updatedAt the client last saw. Checked only when
	// the stale-edit guard is enabled.
	LastModified *time.Time `json:"lastModified"`
}

var allowlist = sanitize.Default()

// UpdateSegment records a new translation for a segment. The edit runs under
// the segment row lock: sanitize, validate, write history (coalescing into
// the author's own recent record), re-evaluate progress and refresh stats.
func (s *Service) UpdateSegment(ctx context.Context, session Session, segmentID string, input UpdateSegmentInput) (map[string]any, error) {
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
	capability := reputation.ChangeTranslation
	if seg.TranslatedContent == "" {
		capability = reputation.AddTranslation
	}
	rep, err := requireCapability(ctx, tx, session.UserID, work.Language, capability)
	if err != nil {
		return nil, err
	}
	voteTotals, err := tx.AccumulatedVotes(ctx, seg.ID, seg.CurrentRelativeID)
	if err != nil {
		return nil, err
	}
	if _, err := editRole(rep.Score, seg, voteTotals); err != nil {
		return nil, err
	}
	if err := s.checkLock(seg, session.UserID); err != nil {
		return nil, err
	}
	if s.cfg.EditStaleCheck && input.LastModified != nil && seg.UpdatedAt.After(*input.LastModified) {
		return nil, domainError(http.StatusConflict, "STALE_EDIT", "Segment changed since you loaded it", map[string]any{
			"updatedAt": seg.UpdatedAt.Format(time.RFC3339),
		})
	}

	clean := sanitize.Sanitize(input.Content, work.Language)
	if clean == "" {
		// Committing empty content is a delete, with the delete path's own
		// capability and progress checks.
		return s.blankSegment(ctx, tx, seg, work, session)
	}
	if err := allowlist.Validate(clean); err != nil {
		v, ok := err.(*sanitize.Violation)
		if !ok {
			return nil, err
		}
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_MARKUP", v.Error(), map[string]any{
			"tag":   v.Tag,
			"attr":  v.Attr,
			"class": v.Class,
		})
	}

	if clean == seg.TranslatedContent {
		// Nothing changed; just keep the editing lock fresh.
		if err := tx.SetSegmentLock(ctx, seg.ID, session.UserID); err != nil {
			return nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return segmentPayload(seg), nil
	}

	// Drafts are an append-only edit trail per user. The first edit also
	// captures the content the user started from.
	touched, err := tx.HasDrafts(ctx, session.UserID, seg.ID)
	if err != nil {
		return nil, err
	}
	if !touched {
		if err := tx.InsertDraft(ctx, store.Draft{
			ID:        util.NewID("dft"),
			SegmentID: seg.ID,
			UserID:    session.UserID,
			Content:   seg.TranslatedContent,
		}); err != nil {
			return nil, err
		}
	}
	if err := tx.InsertDraft(ctx, store.Draft{
		ID:        util.NewID("dft"),
		SegmentID: seg.ID,
		UserID:    session.UserID,
		Content:   clean,
	}); err != nil {
		return nil, err
	}

	relativeID, err := s.writeHistory(ctx, tx, seg, clean, session.UserID)
	if err != nil {
		return nil, err
	}

	// Below RELEASED the standing votes follow the edit onto the new record;
	// a released translation leaves them behind, tied to the version the
	// voters actually saw.
	if relativeID != seg.CurrentRelativeID && seg.CurrentRelativeID > 0 &&
		progress.State(seg.Progress) < progress.Released {
		if err := s.carryVotes(ctx, tx, seg.ID, seg.CurrentRelativeID, relativeID); err != nil {
			return nil, err
		}
	}

	totals, err := tx.AccumulatedVotes(ctx, seg.ID, relativeID)
	if err != nil {
		return nil, err
	}
	state := progress.Clamp(progress.Evaluate(
		seg.OriginalContent, clean, work.Language,
		progress.Votes{Translator: totals.Translator, Reviewer: totals.Reviewer, Trustee: totals.Trustee},
		progress.Requirements{Translator: work.RequiredTranslators, Reviewer: work.RequiredReviewers, Trustee: work.RequiredTrustees},
	), progress.State(seg.Progress))

	now := s.now()
	seg.TranslatedContent = clean
	seg.Progress = int(state)
	seg.CurrentRelativeID = relativeID
	seg.TranslatorID = &session.UserID
	seg.TranslatedAt = &now
	if err := tx.UpdateSegmentTranslation(ctx, seg); err != nil {
		return nil, err
	}
	if err := tx.SetSegmentLock(ctx, seg.ID, session.UserID); err != nil {
		return nil, err
	}
	if err := s.refreshStats(ctx, tx, seg); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.indexSegment(seg)
	return segmentPayload(seg), nil
}

// writeHistory appends a history record for the new content, or overwrites
// the latest record when the same author keeps editing the current version
// within the hot window. Delete and restore records, and records that already
// carry votes, are never coalesced into: a vote must keep pointing at the
// content it approved.
func (s *Service) writeHistory(ctx context.Context, tx storeTx, seg store.Segment, content, authorID string) (int, error) {
	latest, err := tx.LatestHistoryRecord(ctx, seg.ID)
	if err == nil && s.recordHot(latest, seg.CurrentRelativeID, authorID) {
		voted, err := tx.HasVotes(ctx, seg.ID, latest.RelativeID)
		if err != nil {
			return 0, err
		}
		if !voted {
			// The record's reason already encodes whether the content
			// before it was empty; a coalesced edit keeps it.
			if err := tx.OverwriteHistoryRecord(ctx, seg.ID, latest.RelativeID, content, latest.ChangeReason); err != nil {
				return 0, err
			}
			return latest.RelativeID, nil
		}
	}
	reason := store.ReasonChange
	if seg.TranslatedContent == "" {
		reason = store.ReasonNew
	}
	rec, err := tx.InsertHistoryRecord(ctx, seg.ID, content, authorID, reason, nil)
	if err != nil {
		return 0, err
	}
	return rec.RelativeID, nil
}

// recordHot reports whether the record is the author's own current edit still
// inside the hot window. Hot records may be overwritten or undone.
func (s *Service) recordHot(rec store.HistoryRecord, currentRelativeID int, userID string) bool {
	return rec.RelativeID == currentRelativeID &&
		rec.AuthorID == userID &&
		store.IsEditReason(rec.ChangeReason) &&
		s.now().Sub(rec.RecordedAt) < s.cfg.HotWindow
}

// DeleteTranslation blanks a segment, treating the delete as an edit that
// commits empty content. Only translations below review may be deleted.
func (s *Service) DeleteTranslation(ctx context.Context, session Session, segmentID string) (map[string]any, error) {
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
	return s.blankSegment(ctx, tx, seg, work, session)
}

// blankSegment is the shared delete path: a DELETE call and a PATCH whose
// content sanitizes to nothing both land here, under the caller's open
// transaction and row lock.
func (s *Service) blankSegment(ctx context.Context, tx storeTx, seg store.Segment, work store.Work, session Session) (map[string]any, error) {
	if err := checkProtected(work); err != nil {
		return nil, err
	}
	if _, err := requireCapability(ctx, tx, session.UserID, work.Language, reputation.DeleteTranslation); err != nil {
		return nil, err
	}
	if err := s.checkLock(seg, session.UserID); err != nil {
		return nil, err
	}
	if seg.TranslatedContent == "" {
		return nil, domainError(http.StatusConflict, "NO_TRANSLATION", "Segment has no translation", nil)
	}
	if progress.State(seg.Progress) >= progress.InReview {
		return nil, domainError(http.StatusConflict, "CONTENT_LOCKED", "Reviewed translations cannot be deleted", map[string]any{
			"progress": progress.State(seg.Progress).String(),
		})
	}

	current, err := s.recordDeletion(ctx, tx, seg, session.UserID)
	if err != nil {
		return nil, err
	}

	seg.TranslatedContent = ""
	seg.Progress = int(progress.Blank)
	seg.CurrentRelativeID = current
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
	return segmentPayload(seg), nil
}

// recordDeletion writes the history side of blanking a segment and returns
// the new current relative id. The author's own unvoted hot edit disappears
// without trace; established content gets a delete record so the trail shows
// who erased what.
func (s *Service) recordDeletion(ctx context.Context, tx storeTx, seg store.Segment, userID string) (int, error) {
	latest, err := tx.LatestHistoryRecord(ctx, seg.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if s.recordHot(latest, seg.CurrentRelativeID, userID) {
		voted, err := tx.HasVotes(ctx, seg.ID, latest.RelativeID)
		if err != nil {
			return 0, err
		}
		if !voted {
			if latest.RelativeID == 1 {
				if err := tx.DeleteLatestHistoryRecord(ctx, seg.ID, latest.RelativeID); err != nil {
					return 0, err
				}
				return 0, nil
			}
			if err := tx.OverwriteHistoryRecord(ctx, seg.ID, latest.RelativeID, "", store.ReasonDelete); err != nil {
				return 0, err
			}
			return latest.RelativeID, nil
		}
	}
	rec, err := tx.InsertHistoryRecord(ctx, seg.ID, "", userID, store.ReasonDelete, nil)
	if err != nil {
		return 0, err
	}
	return rec.RelativeID, nil
}

// Release marks a segment that gathered enough trustee approvals as the
// final published translation.
func (s *Service) Release(ctx context.Context, session Session, segmentID string) (map[string]any, error) {
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
	if _, err := requireCapability(ctx, tx, session.UserID, work.Language, reputation.Trustee); err != nil {
		return nil, err
	}
	if progress.State(seg.Progress) != progress.TrusteeDone {
		return nil, domainError(http.StatusConflict, "NOT_READY", "Segment has not collected trustee approval", map[string]any{
			"progress": progress.State(seg.Progress).String(),
		})
	}

	seg.Progress = int(progress.Released)
	if err := tx.UpdateSegmentProgress(ctx, seg.ID, seg.Progress); err != nil {
		return nil, err
	}
	if err := tx.ClearSegmentLock(ctx, seg.ID); err != nil {
		return nil, err
	}
	if err := s.refreshStats(ctx, tx, seg); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.indexSegment(seg)
	return segmentPayload(seg), nil
}

// LockSegment acquires or releases the editing lock without writing content.
func (s *Service) LockSegment(ctx context.Context, session Session, segmentID, action string) (map[string]any, error) {
	if action != "acquire" && action != "release" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "action must be acquire or release", nil)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	seg, err := tx.GetSegmentForUpdate(ctx, segmentID)
	if err != nil {
		return nil, err
	}

	switch action {
	case "acquire":
		if err := s.checkLock(seg, session.UserID); err != nil {
			return nil, err
		}
		if err := tx.SetSegmentLock(ctx, seg.ID, session.UserID); err != nil {
			return nil, err
		}
		seg.LockedBy = &session.UserID
	case "release":
		if seg.LockedBy != nil && *seg.LockedBy == session.UserID {
			if err := tx.ClearSegmentLock(ctx, seg.ID); err != nil {
				return nil, err
			}
		}
		seg.LockedBy = nil
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	payload := map[string]any{"id": seg.ID, "locked": seg.LockedBy != nil}
	if seg.LockedBy != nil {
		payload["lockedBy"] = *seg.LockedBy
	}
	return payload, nil
}

// LockHandoff moves the caller's editing lock from one segment to the next
// in a single transaction, the hop a translator makes when advancing through
// a chapter. Either side may be empty: only-prior releases, only-current
// acquires.
func (s *Service) LockHandoff(ctx context.Context, session Session, priorID, currentID string) (map[string]any, error) {
	if priorID == "" && currentID == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "priorSegmentId or currentSegmentId is required", nil)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	payload := map[string]any{}
	if priorID != "" {
		prior, err := tx.GetSegmentForUpdate(ctx, priorID)
		if err != nil {
			return nil, err
		}
		if prior.LockedBy != nil && *prior.LockedBy == session.UserID {
			if err := tx.ClearSegmentLock(ctx, prior.ID); err != nil {
				return nil, err
			}
			prior.LockedBy = nil
			prior.LockedAt = nil
		}
		payload["prior"] = segmentPayload(prior)
	}
	if currentID != "" {
		current, err := tx.GetSegmentForUpdate(ctx, currentID)
		if err != nil {
			return nil, err
		}
		if err := s.checkLock(current, session.UserID); err != nil {
			return nil, err
		}
		if err := tx.SetSegmentLock(ctx, current.ID, session.UserID); err != nil {
			return nil, err
		}
		current.LockedBy = &session.UserID
		now := s.now()
		current.LockedAt = &now
		payload["current"] = segmentPayload(current)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return payload, nil
}

// editRole picks the strongest of the caller's roles that may still touch
// the segment: reviewer-approved content is closed to plain translators and
// trustee-approved content to reviewers.
func editRole(score int64, seg store.Segment, totals store.RoleTotals) (votes.Role, error) {
	for _, role := range reputation.RolesFor(score) {
		switch role {
		case votes.RoleTrustee:
			return role, nil
		case votes.RoleReviewer:
			if totals.Trustee < 1 {
				return role, nil
			}
		case votes.RoleTranslator:
			if progress.State(seg.Progress) < progress.InReview && totals.Reviewer < 1 && totals.Trustee < 1 {
				return role, nil
			}
		}
	}
	return "", domainError(http.StatusForbidden, "ROLE_FORBIDDEN", "Translation is under review; a higher role is required to edit it", map[string]any{
		"progress": progress.State(seg.Progress).String(),
	})
}

// checkProtected rejects content mutations on a frozen work.
func checkProtected(work store.Work) error {
	if !work.Protected {
		return nil
	}
	return domainError(http.StatusConflict, "WORK_PROTECTED", "Work is protected; its translations are frozen", map[string]any{
		"workId": work.ID,
	})
}

// checkLock rejects edits while another user holds a live lock. Locks older
// than the idle-unlock window are treated as abandoned and taken over. The
// error carries a fresh snapshot so the client can show who holds the lock
// and what the segment looks like now.
func (s *Service) checkLock(seg store.Segment, userID string) error {
	if seg.LockedBy == nil || *seg.LockedBy == userID {
		return nil
	}
	if seg.LockedAt != nil && s.now().Sub(*seg.LockedAt) >= s.cfg.IdleUnlock {
		return nil
	}
	return domainError(http.StatusConflict, "SEGMENT_LOCKED", "Segment is being edited by another user", map[string]any{
		"lockedBy": *seg.LockedBy,
		"segment":  segmentPayload(seg),
	})
}

func (s *Service) refreshStats(ctx context.Context, tx storeTx, seg store.Segment) error {
	if _, err := tx.RefreshChapterStats(ctx, seg.ChapterID); err != nil {
		return err
	}
	_, err := tx.RefreshWorkStats(ctx, seg.WorkID)
	return err
}

func (s *Service) indexSegment(seg store.Segment) {
	if s.search == nil {
		return
	}
	s.search.IndexSegment(search.SegmentRecord{
		ID:         seg.ID,
		WorkID:     seg.WorkID,
		ChapterID:  seg.ChapterID,
		Original:   seg.OriginalContent,
		Translated: seg.TranslatedContent,
		Progress:   seg.Progress,
	})
}
