package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultSegment ResultType = "segment"
	ResultWork    ResultType = "work"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	WorkID    string     `json:"workId"`
	ChapterID string     `json:"chapterId,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text         string
	FilterType   ResultType // empty = all types
	FilterWorkID string
	Limit        int
	Offset       int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// SegmentRecord is the data we index for a segment.
type SegmentRecord struct {
	ID         string `json:"id"`
	WorkID     string `json:"workId"`
	ChapterID  string `json:"chapterId"`
	Original   string `json:"original"`
	Translated string `json:"translated"`
	Progress   int    `json:"progress"`
}

// WorkRecord is the data we index for a work.
type WorkRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Language    string `json:"language"`
	Description string `json:"description"`
}
