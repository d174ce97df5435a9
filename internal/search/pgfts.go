package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across segments and works using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('simple', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultSegment {
		segWhere := fmt.Sprintf(
			"to_tsvector('simple', s.original_content || ' ' || s.translated_content) @@ %s", tsQuery)
		if q.FilterWorkID != "" {
			segWhere += fmt.Sprintf(" AND s.work_id = $%d", argN)
			args = append(args, q.FilterWorkID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'segment'::text AS type, s.id, s.original_content AS title,
				ts_headline('simple', coalesce(s.translated_content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				s.work_id, s.chapter_id,
				ts_rank(to_tsvector('simple', s.original_content || ' ' || s.translated_content), %s) AS rank
			FROM segments s
			WHERE %s`, tsQuery, tsQuery, segWhere))
	}

	if q.FilterType == "" || q.FilterType == ResultWork {
		workWhere := fmt.Sprintf(
			"to_tsvector('simple', w.title || ' ' || w.author || ' ' || w.description) @@ %s", tsQuery)
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'work'::text AS type, w.id, w.title,
				ts_headline('simple', coalesce(w.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				w.id AS work_id, ''::text AS chapter_id,
				ts_rank(to_tsvector('simple', w.title || ' ' || w.author || ' ' || w.description), %s) AS rank
			FROM works w
			WHERE %s`, tsQuery, tsQuery, workWhere))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	query := fmt.Sprintf(`
		SELECT type, id, title, snippet, work_id, chapter_id, COUNT(*) OVER () AS total
		FROM (%s) hits
		ORDER BY rank DESC
		LIMIT %d OFFSET %d
	`, strings.Join(subQueries, " UNION ALL "), limit, offset)

	rows, err := p.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.WorkID, &r.ChapterID, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every indexable entity for a bulk reindex.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]SegmentRecord, []WorkRecord, error) {
	segRows, err := p.db.QueryContext(ctx, `
		SELECT id, work_id, chapter_id, original_content, translated_content, progress FROM segments
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load segments: %w", err)
	}
	defer segRows.Close()

	var segments []SegmentRecord
	for segRows.Next() {
		var rec SegmentRecord
		if err := segRows.Scan(&rec.ID, &rec.WorkID, &rec.ChapterID, &rec.Original, &rec.Translated, &rec.Progress); err != nil {
			return nil, nil, fmt.Errorf("scan segment record: %w", err)
		}
		segments = append(segments, rec)
	}
	if err := segRows.Err(); err != nil {
		return nil, nil, err
	}

	workRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, author, language, description FROM works
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load works: %w", err)
	}
	defer workRows.Close()

	var works []WorkRecord
	for workRows.Next() {
		var rec WorkRecord
		if err := workRows.Scan(&rec.ID, &rec.Title, &rec.Author, &rec.Language, &rec.Description); err != nil {
			return nil, nil, fmt.Errorf("scan work record: %w", err)
		}
		works = append(works, rec)
	}
	return segments, works, workRows.Err()
}
