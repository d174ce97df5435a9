package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"tolma/api/internal/reputation"
	"tolma/api/internal/search"
	"tolma/api/internal/store"
	"tolma/api/internal/util"
	"tolma/api/internal/votes"
)

type CreateWorkInput struct {
	Title          string `json:"title"`
	Author         string `json:"author"`
	Kind           string `json:"kind"`
	Language       string `json:"language"`
	SourceLanguage string `json:"sourceLanguage"`
	Description    string `json:"description"`
	// OriginalID makes the new work a translation of an existing original.
	OriginalID          string `json:"originalId"`
	RequiredTranslators *int   `json:"requiredTranslators"`
	RequiredReviewers   *int   `json:"requiredReviewers"`
	RequiredTrustees    *int   `json:"requiredTrustees"`
}

type UpdateWorkInput struct {
	Title               *string `json:"title"`
	Author              *string `json:"author"`
	Description         *string `json:"description"`
	Protected           *bool   `json:"protected"`
	RequiredTranslators *int    `json:"requiredTranslators"`
	RequiredReviewers   *int    `json:"requiredReviewers"`
	RequiredTrustees    *int    `json:"requiredTrustees"`
}

type CreateChapterInput struct {
	Title    string `json:"title"`
	Position int    `json:"position"`
}

type ImportSegmentsInput struct {
	Segments []struct {
		Position        int    `json:"position"`
		Tag             string `json:"tag"`
		Classes         string `json:"classes"`
		Reference       string `json:"reference"`
		PageLabel       string `json:"pageLabel"`
		Original        string `json:"original"`
		BaseTranslation string `json:"baseTranslation"`
	} `json:"segments"`
}

func (s *Service) ListWorks(ctx context.Context) ([]map[string]any, error) {
	works, err := s.store.ListWorks(ctx)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(works))
	for _, w := range works {
		payload = append(payload, workPayload(w))
	}
	return payload, nil
}

func (s *Service) GetWork(ctx context.Context, workID string) (map[string]any, error) {
	work, err := s.store.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	chapters, err := s.store.ListChapters(ctx, workID)
	if err != nil {
		return nil, err
	}
	chapterPayload := make([]map[string]any, 0, len(chapters))
	for _, c := range chapters {
		chapterPayload = append(chapterPayload, map[string]any{
			"id":       c.ID,
			"title":    c.Title,
			"position": c.Position,
		})
	}
	payload := workPayload(work)
	payload["chapters"] = chapterPayload
	return payload, nil
}

// CreateWork registers an original work or, when originalId is given, the
// translated work for an (original, language) pair. Only trustees of the
// target language may create works.
func (s *Service) CreateWork(ctx context.Context, session Session, input CreateWorkInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	language := strings.ToLower(strings.TrimSpace(input.Language))
	if language == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "language is required", nil)
	}
	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		kind = store.KindBook
	}
	if !store.ValidWorkKind(kind) {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be book, periodical or manuscript", nil)
	}
	if err := s.requireTrustee(ctx, session.UserID, language); err != nil {
		return nil, err
	}

	var originalID *string
	if id := strings.TrimSpace(input.OriginalID); id != "" {
		original, err := s.store.GetWork(ctx, id)
		if err != nil {
			return nil, err
		}
		if original.OriginalID != nil {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "originalId must reference an original work, not a translation", nil)
		}
		if existing, err := s.store.GetTranslationOf(ctx, original.ID, language); err == nil {
			return nil, domainError(http.StatusConflict, "TRANSLATION_EXISTS", "The original already has a translation in this language", map[string]any{
				"workId": existing.ID,
			})
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		originalID = &original.ID
	}

	work := store.Work{
		ID:                  util.NewID("wrk"),
		Title:               title,
		Author:              strings.TrimSpace(input.Author),
		Kind:                kind,
		Language:            language,
		SourceLanguage:      strings.ToLower(strings.TrimSpace(input.SourceLanguage)),
		Description:         strings.TrimSpace(input.Description),
		OriginalID:          originalID,
		RequiredTranslators: 0,
		RequiredReviewers:   2,
		RequiredTrustees:    1,
		CreatedBy:           session.UserID,
	}
	if input.RequiredTranslators != nil {
		work.RequiredTranslators = *input.RequiredTranslators
	}
	if input.RequiredReviewers != nil {
		work.RequiredReviewers = *input.RequiredReviewers
	}
	if input.RequiredTrustees != nil {
		work.RequiredTrustees = *input.RequiredTrustees
	}
	if work.RequiredTranslators < 0 || work.RequiredReviewers < 0 || work.RequiredTrustees < 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "quorum requirements must not be negative", nil)
	}

	if err := s.store.CreateWork(ctx, work); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexWork(search.WorkRecord{
			ID:          work.ID,
			Title:       work.Title,
			Author:      work.Author,
			Language:    work.Language,
			Description: work.Description,
		})
	}

	return workPayload(work), nil
}

func (s *Service) UpdateWork(ctx context.Context, session Session, workID string, input UpdateWorkInput) (map[string]any, error) {
	work, err := s.store.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTrustee(ctx, session.UserID, work.Language); err != nil {
		return nil, err
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title must not be empty", nil)
		}
		work.Title = title
	}
	if input.Author != nil {
		work.Author = strings.TrimSpace(*input.Author)
	}
	if input.Description != nil {
		work.Description = strings.TrimSpace(*input.Description)
	}
	if input.Protected != nil {
		work.Protected = *input.Protected
	}
	if input.RequiredTranslators != nil {
		work.RequiredTranslators = *input.RequiredTranslators
	}
	if input.RequiredReviewers != nil {
		work.RequiredReviewers = *input.RequiredReviewers
	}
	if input.RequiredTrustees != nil {
		work.RequiredTrustees = *input.RequiredTrustees
	}
	if work.RequiredTranslators < 0 || work.RequiredReviewers < 0 || work.RequiredTrustees < 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "quorum requirements must not be negative", nil)
	}

	if err := s.store.UpdateWork(ctx, work); err != nil {
		return nil, err
	}

	if s.search != nil {
		s.search.IndexWork(search.WorkRecord{
			ID:          work.ID,
			Title:       work.Title,
			Author:      work.Author,
			Language:    work.Language,
			Description: work.Description,
		})
	}

	return workPayload(work), nil
}

func (s *Service) DeleteWork(ctx context.Context, session Session, workID string) error {
	work, err := s.store.GetWork(ctx, workID)
	if err != nil {
		return err
	}
	if err := s.requireTrustee(ctx, session.UserID, work.Language); err != nil {
		return err
	}
	err = s.store.DeleteWork(ctx, workID)
	if errors.Is(err, store.ErrWorkNotEmpty) {
		return domainError(http.StatusConflict, "WORK_NOT_EMPTY", "Work still has segments", nil)
	}
	if err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteWork(workID)
	}
	return nil
}

func (s *Service) CreateChapter(ctx context.Context, session Session, workID string, input CreateChapterInput) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	work, err := s.store.GetWork(ctx, workID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTrustee(ctx, session.UserID, work.Language); err != nil {
		return nil, err
	}

	chapter := store.Chapter{
		ID:       util.NewID("chp"),
		WorkID:   workID,
		Title:    title,
		Position: input.Position,
	}
	if err := s.store.CreateChapter(ctx, chapter); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":       chapter.ID,
		"workId":   chapter.WorkID,
		"title":    chapter.Title,
		"position": chapter.Position,
	}, nil
}

func (s *Service) GetChapter(ctx context.Context, chapterID string) (map[string]any, error) {
	chapter, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":       chapter.ID,
		"workId":   chapter.WorkID,
		"title":    chapter.Title,
		"position": chapter.Position,
	}, nil
}

// ImportSegments loads the original text of a chapter. Segments are created
// without a translation; an optional machine or translation-memory suggestion
// can be attached per segment to seed the editor.
func (s *Service) ImportSegments(ctx context.Context, session Session, chapterID string, input ImportSegmentsInput) (map[string]any, error) {
	if len(input.Segments) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "segments are required", nil)
	}

	chapter, err := s.store.GetChapter(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	work, err := s.store.GetWork(ctx, chapter.WorkID)
	if err != nil {
		return nil, err
	}
	if err := s.requireTrustee(ctx, session.UserID, work.Language); err != nil {
		return nil, err
	}

	created := 0
	for _, item := range input.Segments {
		original := strings.TrimSpace(item.Original)
		if original == "" {
			continue
		}
		tag := strings.ToLower(strings.TrimSpace(item.Tag))
		if tag == "" {
			tag = "p"
		}
		seg := store.Segment{
			ID:              util.NewID("seg"),
			WorkID:          chapter.WorkID,
			ChapterID:       chapter.ID,
			Position:        item.Position,
			Tag:             tag,
			ClassList:       strings.TrimSpace(item.Classes),
			Reference:       strings.TrimSpace(item.Reference),
			PageLabel:       strings.TrimSpace(item.PageLabel),
			OriginalContent: original,
			BaseTranslation: strings.TrimSpace(item.BaseTranslation),
		}
		if err := s.store.CreateSegment(ctx, seg); err != nil {
			return nil, err
		}
		if s.search != nil {
			s.search.IndexSegment(search.SegmentRecord{
				ID:        seg.ID,
				WorkID:    seg.WorkID,
				ChapterID: seg.ChapterID,
				Original:  seg.OriginalContent,
			})
		}
		created++
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.RefreshChapterStats(ctx, chapter.ID); err != nil {
		return nil, err
	}
	if _, err := tx.RefreshWorkStats(ctx, chapter.WorkID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return map[string]any{"imported": created}, nil
}

func (s *Service) ListSegments(ctx context.Context, chapterID string) ([]map[string]any, error) {
	segments, err := s.store.ListSegments(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(segments))
	for _, seg := range segments {
		payload = append(payload, segmentPayload(seg))
	}
	return payload, nil
}

// GetSegment returns the segment together with everything the editor UI
// needs to decide what the caller may do with it: accumulated votes, the
// caller's own standing vote per role, history and comment counts, and the
// canEdit/canVote verdicts.
func (s *Service) GetSegment(ctx context.Context, session Session, segmentID string) (map[string]any, error) {
	seg, err := s.store.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	work, err := s.store.GetWork(ctx, seg.WorkID)
	if err != nil {
		return nil, err
	}
	totals, err := s.store.AccumulatedVotes(ctx, seg.ID, seg.CurrentRelativeID)
	if err != nil {
		return nil, err
	}
	nets, err := s.store.NetVotes(ctx, seg.ID, seg.CurrentRelativeID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.CountHistory(ctx, seg.ID)
	if err != nil {
		return nil, err
	}
	comments, err := s.store.ListVoteComments(ctx, seg.ID)
	if err != nil {
		return nil, err
	}

	payload := segmentPayload(seg)
	payload["votes"] = map[string]any{
		"translator": totals.Translator,
		"reviewer":   totals.Reviewer,
		"trustee":    totals.Trustee,
	}

	myVotes := map[string]any{}
	for _, net := range nets {
		if net.UserID == session.UserID {
			myVotes[net.Role] = net.Value
		}
	}
	payload["myVotes"] = myVotes
	payload["counts"] = map[string]any{
		"records":  records,
		"comments": len(comments),
	}

	rep, err := s.store.GetReputation(ctx, session.UserID, work.Language)
	if err != nil {
		return nil, err
	}
	capability := reputation.ChangeTranslation
	if seg.TranslatedContent == "" {
		capability = reputation.AddTranslation
	}
	canEdit := reputation.Has(rep.Score, capability)
	if canEdit {
		if _, err := editRole(rep.Score, seg, totals); err != nil {
			canEdit = false
		}
	}
	if canEdit && seg.LockedBy != nil && *seg.LockedBy != session.UserID &&
		(seg.LockedAt == nil || s.now().Sub(*seg.LockedAt) < s.cfg.IdleUnlock) {
		canEdit = false
	}
	payload["canEdit"] = canEdit

	own := seg.TranslatorID != nil && *seg.TranslatorID == session.UserID
	canVote := map[string]any{}
	for _, role := range []votes.Role{votes.RoleTranslator, votes.RoleReviewer, votes.RoleTrustee} {
		eligible := reputation.HasRole(rep.Score, role) &&
			reputation.Has(rep.Score, reputation.ApproveTranslation) &&
			seg.CurrentRelativeID > 0 && seg.TranslatedContent != "" && !own &&
			checkQuorum(role, totals, work) == nil
		canVote[string(role)] = eligible
	}
	payload["canVote"] = canVote

	return payload, nil
}

func workPayload(w store.Work) map[string]any {
	payload := map[string]any{
		"id":             w.ID,
		"title":          w.Title,
		"author":         w.Author,
		"kind":           w.Kind,
		"language":       w.Language,
		"sourceLanguage": w.SourceLanguage,
		"description":    w.Description,
		"protected":      w.Protected,
		"requirements": map[string]any{
			"translators": w.RequiredTranslators,
			"reviewers":   w.RequiredReviewers,
			"trustees":    w.RequiredTrustees,
		},
		"createdBy": w.CreatedBy,
		"updatedAt": w.UpdatedAt.Format(time.RFC3339),
	}
	if w.OriginalID != nil {
		payload["originalId"] = *w.OriginalID
	}
	return payload
}

func segmentPayload(seg store.Segment) map[string]any {
	payload := map[string]any{
		"id":         seg.ID,
		"workId":     seg.WorkID,
		"chapterId":  seg.ChapterID,
		"position":   seg.Position,
		"tag":        seg.Tag,
		"original":   seg.OriginalContent,
		"translated": seg.TranslatedContent,
		// The reading view: the translation when there is one, the
		// original otherwise, so chapter listings are always readable.
		"content":   seg.TranslatedContent,
		"progress":  seg.Progress,
		"version":   seg.CurrentRelativeID,
		"updatedAt": seg.UpdatedAt.Format(time.RFC3339),
	}
	if seg.TranslatedContent == "" {
		payload["content"] = seg.OriginalContent
	}
	if seg.ClassList != "" {
		payload["classes"] = seg.ClassList
	}
	if seg.Reference != "" {
		payload["reference"] = seg.Reference
	}
	if seg.PageLabel != "" {
		payload["pageLabel"] = seg.PageLabel
	}
	if seg.BaseTranslation != "" {
		payload["baseTranslation"] = seg.BaseTranslation
	}
	if seg.TranslatorID != nil {
		payload["translatorId"] = *seg.TranslatorID
	}
	if seg.LockedBy != nil {
		payload["lockedBy"] = *seg.LockedBy
	}
	if seg.TranslatedAt != nil {
		payload["translatedAt"] = seg.TranslatedAt.Format(time.RFC3339)
	}
	return payload
}

// requireCapability loads the caller's reputation for the work's target
// language inside the transaction and asserts the capability.
func requireCapability(ctx context.Context, tx storeTx, userID, language string, c reputation.Capability) (store.Reputation, error) {
	rep, err := tx.GetReputation(ctx, userID, language)
	if err != nil {
		return store.Reputation{}, err
	}
	if !reputation.Has(rep.Score, c) {
		return rep, insufficientReputation(c, rep.Score)
	}
	return rep, nil
}

// requireTrustee asserts the caller administers the language. Work and
// chapter administration is trustee-only.
func (s *Service) requireTrustee(ctx context.Context, userID, language string) error {
	rep, err := s.store.GetReputation(ctx, userID, language)
	if err != nil {
		return err
	}
	if !reputation.Has(rep.Score, reputation.Trustee) {
		return insufficientReputation(reputation.Trustee, rep.Score)
	}
	return nil
}
