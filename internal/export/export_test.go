package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"tolma/api/internal/store"
)

type fakeDataStore struct {
	work     store.Work
	chapters []store.Chapter
	segments map[string][]store.Segment
	workErr  error
}

func (f *fakeDataStore) GetWork(context.Context, string) (store.Work, error) {
	if f.workErr != nil {
		return store.Work{}, f.workErr
	}
	return f.work, nil
}

func (f *fakeDataStore) ListChapters(context.Context, string) ([]store.Chapter, error) {
	return f.chapters, nil
}

func (f *fakeDataStore) ListSegments(_ context.Context, chapterID string) ([]store.Segment, error) {
	return f.segments[chapterID], nil
}

func testExportStore() *fakeDataStore {
	return &fakeDataStore{
		work: store.Work{ID: "wrk_1", Title: "Der Prozess", Author: "Franz Kafka", Language: "en", SourceLanguage: "de"},
		chapters: []store.Chapter{
			{ID: "chp_1", WorkID: "wrk_1", Title: "Verhaftung", Position: 1},
		},
		segments: map[string][]store.Segment{
			"chp_1": {
				{ID: "seg_1", OriginalContent: "Jemand musste Josef K. verleumdet haben.", TranslatedContent: "Someone must have slandered Josef K.", Progress: 6},
				{ID: "seg_2", OriginalContent: "Die Köchin kam nicht.", TranslatedContent: "The cook did not come.", Progress: 2},
				{ID: "seg_3", OriginalContent: "Ein unübersetzter Satz.", TranslatedContent: "", Progress: 0},
			},
		},
	}
}

func TestExportHTML(t *testing.T) {
	svc := NewService(testExportStore())

	result, err := svc.Export(context.Background(), Request{WorkID: "wrk_1", Format: FormatHTML})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Errorf("unexpected mime type %q", result.MimeType)
	}
	if result.Filename != "Der-Prozess.html" {
		t.Errorf("unexpected filename %q", result.Filename)
	}

	html := string(result.Data)
	for _, want := range []string{"Der Prozess", "Franz Kafka", "Verhaftung", "Someone must have slandered Josef K."} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
	// Untranslated segments fall back to the original text.
	if !strings.Contains(html, "Ein unübersetzter Satz.") {
		t.Errorf("expected original fallback for the blank segment")
	}
}

func TestExportReleasedOnly(t *testing.T) {
	svc := NewService(testExportStore())

	result, err := svc.Export(context.Background(), Request{WorkID: "wrk_1", Format: FormatHTML, ReleasedOnly: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	html := string(result.Data)
	if !strings.Contains(html, "Someone must have slandered Josef K.") {
		t.Errorf("released translation should be included")
	}
	if strings.Contains(html, "The cook did not come.") {
		t.Errorf("unreleased translation must fall back to the original")
	}
	if !strings.Contains(html, "Die Köchin kam nicht.") {
		t.Errorf("expected the original text for the unreleased segment")
	}
}

func TestExportIncludeOriginal(t *testing.T) {
	svc := NewService(testExportStore())

	result, err := svc.Export(context.Background(), Request{WorkID: "wrk_1", Format: FormatHTML, IncludeOriginal: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(result.Data), "Jemand musste Josef K. verleumdet haben.") {
		t.Errorf("expected the source text alongside the translation")
	}
}

func TestExportErrors(t *testing.T) {
	t.Run("missing work", func(t *testing.T) {
		svc := NewService(&fakeDataStore{workErr: errors.New("no rows")})
		_, err := svc.Export(context.Background(), Request{WorkID: "wrk_gone"})
		if !errors.Is(err, ErrContentUnavailable) {
			t.Fatalf("expected ErrContentUnavailable, got %v", err)
		}
	})

	t.Run("unsupported format", func(t *testing.T) {
		svc := NewService(testExportStore())
		_, err := svc.Export(context.Background(), Request{WorkID: "wrk_1", Format: "epub"})
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
		}
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Der Prozess", "Der-Prozess"},
		{"War & Peace: Vol. 1/2", "War--Peace-Vol-12"},
		{"", "work"},
	}
	for _, tc := range tests {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
