package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"tolma/api/internal/export"
	"tolma/api/internal/search"
	"tolma/api/internal/store"
	"tolma/api/internal/util"
)

// SegmentHistory returns the full version trail of a segment, newest first.
func (s *Service) SegmentHistory(ctx context.Context, segmentID string) (map[string]any, error) {
	seg, err := s.store.GetSegment(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListHistory(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		entry := historyPayload(rec)
		entry["current"] = rec.RelativeID == seg.CurrentRelativeID
		payload = append(payload, entry)
	}
	return map[string]any{
		"segmentId": seg.ID,
		"version":   seg.CurrentRelativeID,
		"records":   payload,
	}, nil
}

func historyPayload(rec store.HistoryRecord) map[string]any {
	entry := map[string]any{
		"version":    rec.RelativeID,
		"content":    rec.Content,
		"authorId":   rec.AuthorID,
		"reason":     rec.ChangeReason,
		"recordedAt": rec.RecordedAt.Format(time.RFC3339),
	}
	if rec.RestoredFrom != nil {
		entry["restoredFrom"] = *rec.RestoredFrom
	}
	return entry
}

func (s *Service) ListSegmentComments(ctx context.Context, segmentID string) ([]map[string]any, error) {
	comments, err := s.store.ListVoteComments(ctx, segmentID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(comments))
	for _, c := range comments {
		payload = append(payload, map[string]any{
			"id":        c.ID,
			"voteId":    c.VoteID,
			"userId":    c.UserID,
			"body":      c.Body,
			"createdAt": c.CreatedAt.Format(time.RFC3339),
		})
	}
	return payload, nil
}

type DraftInput struct {
	Content string `json:"content"`
}

// SaveDraft appends a snapshot of the caller's work in progress; drafts
// never touch the shared translation until the user saves.
func (s *Service) SaveDraft(ctx context.Context, session Session, segmentID string, input DraftInput) error {
	if _, err := s.store.GetSegment(ctx, segmentID); err != nil {
		return err
	}
	return s.store.InsertDraft(ctx, store.Draft{
		ID:        util.NewID("dft"),
		SegmentID: segmentID,
		UserID:    session.UserID,
		Content:   input.Content,
	})
}

// ListDrafts returns the caller's draft trail for a segment, oldest first.
func (s *Service) ListDrafts(ctx context.Context, session Session, segmentID string) (map[string]any, error) {
	drafts, err := s.store.ListDrafts(ctx, session.UserID, segmentID)
	if err != nil {
		return nil, err
	}
	payload := make([]map[string]any, 0, len(drafts))
	for _, d := range drafts {
		payload = append(payload, map[string]any{
			"id":        d.ID,
			"content":   d.Content,
			"createdAt": d.CreatedAt.Format(time.RFC3339),
		})
	}
	return map[string]any{
		"segmentId": segmentID,
		"drafts":    payload,
	}, nil
}

// DiscardDrafts drops the caller's whole draft trail for a segment.
func (s *Service) DiscardDrafts(ctx context.Context, session Session, segmentID string) error {
	return s.store.DeleteDrafts(ctx, session.UserID, segmentID)
}

func (s *Service) ChapterStats(ctx context.Context, chapterID string) (map[string]any, error) {
	counts, err := s.store.GetChapterStats(ctx, chapterID)
	if err != nil {
		return nil, err
	}
	return statsPayload(counts), nil
}

func (s *Service) WorkStats(ctx context.Context, workID string) (map[string]any, error) {
	counts, err := s.store.GetWorkStats(ctx, workID)
	if err != nil {
		return nil, err
	}
	return statsPayload(counts), nil
}

func statsPayload(c store.StateCounts) map[string]any {
	translated := c.TranslationDone + c.InReview + c.ReviewDone + c.TrusteeDone + c.Released
	reviewed := c.ReviewDone + c.TrusteeDone + c.Released
	payload := map[string]any{
		"total":        c.Total,
		"contributors": c.Contributors,
		"states": map[string]any{
			"blank":           c.Blank,
			"inTranslation":   c.InTranslation,
			"translationDone": c.TranslationDone,
			"inReview":        c.InReview,
			"reviewDone":      c.ReviewDone,
			"trusteeDone":     c.TrusteeDone,
			"released":        c.Released,
		},
	}
	if c.Total > 0 {
		payload["translatedPercent"] = 100 * translated / c.Total
		payload["reviewedPercent"] = 100 * reviewed / c.Total
		payload["releasedPercent"] = 100 * c.Released / c.Total
	}
	if c.LastActivity != nil {
		payload["lastActivity"] = c.LastActivity.Format(time.RFC3339)
	}
	return payload
}

func (s *Service) Search(q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
	}
	return s.search.Search(q), nil
}

// ExportWork renders a work to HTML or PDF. When toArchive is set the
// artifact is stored in the archive bucket and a presigned link is returned
// instead of the bytes.
func (s *Service) ExportWork(ctx context.Context, req export.Request, toArchive bool) (*export.Result, map[string]any, error) {
	result, err := s.export.Export(ctx, req)
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return nil, nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF rendering is not available", nil)
	}
	if err != nil {
		return nil, nil, err
	}
	if !toArchive {
		return result, nil, nil
	}
	if s.archive == nil {
		return nil, nil, domainError(http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "Archive storage is not configured", nil)
	}
	key, err := s.archive.Put(ctx, req.WorkID, result.Filename, result.MimeType, result.Data)
	if err != nil {
		return nil, nil, err
	}
	url, err := s.archive.PresignedURL(ctx, key, 24*time.Hour)
	if err != nil {
		return nil, nil, err
	}
	return nil, map[string]any{
		"key":      key,
		"url":      url,
		"filename": result.Filename,
	}, nil
}
