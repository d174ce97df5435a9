package export

import (
	"context"
	"fmt"

	"tolma/api/internal/progress"
	"tolma/api/internal/store"
)

// DataStore is the slice of storage the exporter needs.
type DataStore interface {
	GetWork(ctx context.Context, workID string) (store.Work, error)
	ListChapters(ctx context.Context, workID string) ([]store.Chapter, error)
	ListSegments(ctx context.Context, chapterID string) ([]store.Segment, error)
}

// Service assembles work content and renders it into the requested format.
type Service struct {
	store DataStore
}

func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export loads a work with its chapters and segments and renders it.
// With ReleasedOnly set, only released segments carry their translation;
// everything else falls back to the original text.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	work, err := s.store.GetWork(ctx, req.WorkID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	chapters, err := s.store.ListChapters(ctx, req.WorkID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
	}

	data := WorkData{
		ID:             work.ID,
		Title:          work.Title,
		Author:         work.Author,
		Language:       work.Language,
		SourceLanguage: work.SourceLanguage,
		Description:    work.Description,
		UpdatedAt:      work.UpdatedAt,
	}

	for _, chapter := range chapters {
		segments, err := s.store.ListSegments(ctx, chapter.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrContentUnavailable, err)
		}
		cd := ChapterData{Title: chapter.Title}
		for _, seg := range segments {
			translated := seg.TranslatedContent
			if req.ReleasedOnly && seg.Progress < int(progress.Released) {
				translated = seg.OriginalContent
			}
			if translated == "" {
				translated = seg.OriginalContent
			}
			cd.Segments = append(cd.Segments, SegmentData{
				Original:   seg.OriginalContent,
				Translated: translated,
				Progress:   seg.Progress,
			})
		}
		data.Chapters = append(data.Chapters, cd)
	}

	html, err := renderHTML(data, req.IncludeOriginal)
	if err != nil {
		return nil, err
	}

	switch req.Format {
	case FormatHTML, "":
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(work.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return renderPDF(html, work.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}
