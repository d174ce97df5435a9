package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"tolma/api/internal/progress"
	"tolma/api/internal/reputation"
	"tolma/api/internal/store"
	"tolma/api/internal/util"
	"tolma/api/internal/votes"
)

type VoteInput struct {
	SetTo int `json:"setTo"`
	// Role is optional; the caller's strongest eligible role applies when
	// it is empty.
	Role string `json:"role"`
	// Comment is optional; when present it is stored atomically with an
	// admitted vote.
	Comment string `json:"comment"`
	// AsOf fences the vote to the translation version the client saw; a
	// vote prepared against a superseded version is rejected.
	AsOf *int `json:"asOf"`
}

// SubmitVote records an approval, disapproval or revocation for the current
// translation of a segment and applies the reputation delta to its author.
func (s *Service) SubmitVote(ctx context.Context, session Session, segmentID string, input VoteInput) (map[string]any, error) {
	if input.SetTo < -1 || input.SetTo > 1 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "setTo must be -1, 0 or 1", nil)
	}
	if input.AsOf == nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "asOf version is required", nil)
	}
	comment := strings.TrimSpace(input.Comment)

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	seg, err := tx.GetSegmentForUpdate(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	if seg.CurrentRelativeID == 0 || progress.State(seg.Progress) == progress.Blank {
		return nil, domainError(http.StatusConflict, "NO_TRANSLATION", "Segment has no translation to vote on", nil)
	}
	if *input.AsOf != seg.CurrentRelativeID {
		return nil, domainError(http.StatusConflict, "STALE_VOTE", "Translation changed since the vote was prepared", map[string]any{
			"currentVersion": seg.CurrentRelativeID,
		})
	}
	if seg.TranslatorID != nil && *seg.TranslatorID == session.UserID {
		return nil, domainError(http.StatusConflict, "OWN_TRANSLATION", "You cannot vote on your own translation", nil)
	}
	// Any live lock blocks voting, the caller's own included: a held lock
	// means the translation may still change. Idle locks count as abandoned.
	if seg.LockedBy != nil &&
		(seg.LockedAt == nil || s.now().Sub(*seg.LockedAt) < s.cfg.IdleUnlock) {
		return nil, domainError(http.StatusConflict, "SEGMENT_LOCKED", "Segment is being edited; the translation may change", map[string]any{
			"lockedBy": *seg.LockedBy,
		})
	}

	work, err := tx.GetWork(ctx, seg.WorkID)
	if err != nil {
		return nil, err
	}

	rep, err := tx.GetReputation(ctx, session.UserID, work.Language)
	if err != nil {
		return nil, err
	}
	switch input.SetTo {
	case 0, 1:
		if !reputation.Has(rep.Score, reputation.ApproveTranslation) {
			return nil, insufficientReputation(reputation.ApproveTranslation, rep.Score)
		}
	case -1:
		if !reputation.Has(rep.Score, reputation.DisapproveTranslation) {
			return nil, insufficientReputation(reputation.DisapproveTranslation, rep.Score)
		}
	}

	role, err := voteRole(rep.Score, input.Role)
	if err != nil {
		return nil, err
	}

	totals, err := tx.AccumulatedVotes(ctx, seg.ID, seg.CurrentRelativeID)
	if err != nil {
		return nil, err
	}
	if err := checkQuorum(role, totals, work); err != nil {
		return nil, err
	}

	prior, err := tx.UserVoteSum(ctx, seg.ID, seg.CurrentRelativeID, session.UserID)
	if err != nil {
		return nil, err
	}
	value, revoke, err := votes.Transition(prior, input.SetTo)
	if err != nil {
		switch {
		case errors.Is(err, votes.ErrAlreadyVoted):
			return nil, domainError(http.StatusConflict, "ALREADY_VOTED", "Your vote already stands", nil)
		case errors.Is(err, votes.ErrNothingToRevoke):
			return nil, domainError(http.StatusConflict, "NOTHING_TO_REVOKE", "You have no standing vote on this translation", nil)
		default:
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
		}
	}

	vote := store.Vote{
		ID:         util.NewID("vot"),
		SegmentID:  seg.ID,
		RelativeID: seg.CurrentRelativeID,
		UserID:     session.UserID,
		Role:       string(role),
		Value:      value,
		Revoked:    revoke,
	}
	if err := tx.InsertVote(ctx, vote); err != nil {
		return nil, err
	}
	if comment != "" {
		if err := tx.CreateVoteComment(ctx, store.VoteComment{
			ID:        util.NewID("cmt"),
			VoteID:    vote.ID,
			SegmentID: seg.ID,
			UserID:    session.UserID,
			Body:      comment,
		}); err != nil {
			return nil, err
		}
	}
	if seg.TranslatorID != nil && value != 0 {
		if _, err := tx.AddReputation(ctx, *seg.TranslatorID, work.Language, int64(value)); err != nil {
			return nil, err
		}
	}

	totals, err = tx.AccumulatedVotes(ctx, seg.ID, seg.CurrentRelativeID)
	if err != nil {
		return nil, err
	}
	state := progress.Clamp(progress.Evaluate(
		seg.OriginalContent, seg.TranslatedContent, work.Language,
		progress.Votes{Translator: totals.Translator, Reviewer: totals.Reviewer, Trustee: totals.Trustee},
		progress.Requirements{Translator: work.RequiredTranslators, Reviewer: work.RequiredReviewers, Trustee: work.RequiredTrustees},
	), progress.State(seg.Progress))
	if int(state) != seg.Progress {
		seg.Progress = int(state)
		if err := tx.UpdateSegmentProgress(ctx, seg.ID, seg.Progress); err != nil {
			return nil, err
		}
		if err := s.refreshStats(ctx, tx, seg); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	s.indexSegment(seg)
	return map[string]any{
		"segmentId": seg.ID,
		"version":   seg.CurrentRelativeID,
		"role":      string(role),
		"progress":  seg.Progress,
		"votes": map[string]any{
			"translator": totals.Translator,
			"reviewer":   totals.Reviewer,
			"trustee":    totals.Trustee,
		},
	}, nil
}

// ListSegmentVotes returns the vote ledger for the current translation.
func (s *Service) ListSegmentVotes(ctx context.Context, segmentID string) (map[string]any, error) {
	seg, err := s.store.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	ledger, err := s.store.ListVotes(ctx, seg.ID, seg.CurrentRelativeID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.AccumulatedVotes(ctx, seg.ID, seg.CurrentRelativeID)
	if err != nil {
		return nil, err
	}
	events := make([]map[string]any, 0, len(ledger))
	for _, v := range ledger {
		events = append(events, map[string]any{
			"id":        v.ID,
			"userId":    v.UserID,
			"role":      v.Role,
			"value":     v.Value,
			"revoked":   v.Revoked,
			"createdAt": v.CreatedAt,
		})
	}
	return map[string]any{
		"segmentId": seg.ID,
		"version":   seg.CurrentRelativeID,
		"events":    events,
		"totals": map[string]any{
			"translator": totals.Translator,
			"reviewer":   totals.Reviewer,
			"trustee":    totals.Trustee,
		},
	}, nil
}

func voteRole(score int64, requested string) (votes.Role, error) {
	if requested != "" {
		role := votes.Role(requested)
		if !votes.ValidRole(role) {
			return "", domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unknown role", nil)
		}
		if !reputation.HasRole(score, role) {
			return "", domainError(http.StatusForbidden, "INSUFFICIENT_REPUTATION", "Reputation too low for role "+requested, nil)
		}
		return role, nil
	}
	eligible := reputation.RolesFor(score)
	if len(eligible) == 0 {
		return "", insufficientReputation(reputation.AddTranslation, score)
	}
	return eligible[0], nil
}

// checkQuorum gates the higher roles: reviewers vote only once the work's
// translator quorum is met, trustees only once the reviewer quorum is met.
func checkQuorum(role votes.Role, totals store.RoleTotals, work store.Work) error {
	switch role {
	case votes.RoleReviewer:
		if totals.Translator < work.RequiredTranslators {
			return quorumNotMet("translator", work.RequiredTranslators, totals.Translator)
		}
	case votes.RoleTrustee:
		if totals.Reviewer < work.RequiredReviewers {
			return quorumNotMet("reviewer", work.RequiredReviewers, totals.Reviewer)
		}
	}
	return nil
}

func quorumNotMet(role string, required, have int) error {
	return domainError(http.StatusConflict, "QUORUM_NOT_MET", "Earlier voting stage is not complete", map[string]any{
		"role":     role,
		"required": required,
		"have":     have,
	})
}

func insufficientReputation(c reputation.Capability, score int64) error {
	return domainError(http.StatusForbidden, "INSUFFICIENT_REPUTATION",
		"Reputation too low for "+string(c), map[string]any{
			"required": reputation.Threshold(c),
			"score":    score,
		})
}
