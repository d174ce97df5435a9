package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (q queries) CreateWork(ctx context.Context, w Work) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO works (id, title, author, kind, language, source_language, description,
			original_id, protected, required_translators, required_reviewers, required_trustees, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, w.ID, w.Title, w.Author, w.Kind, w.Language, w.SourceLanguage, w.Description,
		w.OriginalID, w.Protected, w.RequiredTranslators, w.RequiredReviewers, w.RequiredTrustees, w.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert work: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `INSERT INTO work_stats (work_id) VALUES ($1)`, w.ID)
	if err != nil {
		return fmt.Errorf("insert work stats: %w", err)
	}
	return nil
}

const workColumns = `id, title, author, kind, language, source_language, description,
	original_id, protected, required_translators, required_reviewers, required_trustees, created_by, created_at, updated_at`

func scanWork(row *sql.Row) (Work, error) {
	var w Work
	err := row.Scan(&w.ID, &w.Title, &w.Author, &w.Kind, &w.Language, &w.SourceLanguage, &w.Description,
		&w.OriginalID, &w.Protected, &w.RequiredTranslators, &w.RequiredReviewers, &w.RequiredTrustees,
		&w.CreatedBy, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return Work{}, err
	}
	return w, nil
}

func (q queries) GetWork(ctx context.Context, workID string) (Work, error) {
	return scanWork(q.q.QueryRowContext(ctx, `SELECT `+workColumns+` FROM works WHERE id=$1`, workID))
}

// GetTranslationOf finds the translated work for an (original, language)
// pair; at most one exists.
func (q queries) GetTranslationOf(ctx context.Context, originalID, language string) (Work, error) {
	return scanWork(q.q.QueryRowContext(ctx, `
		SELECT `+workColumns+` FROM works WHERE original_id=$1 AND language=$2
	`, originalID, language))
}

func (q queries) ListWorks(ctx context.Context) ([]Work, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+workColumns+` FROM works ORDER BY title, id`)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	defer rows.Close()

	var works []Work
	for rows.Next() {
		var w Work
		if err := rows.Scan(&w.ID, &w.Title, &w.Author, &w.Kind, &w.Language, &w.SourceLanguage, &w.Description,
			&w.OriginalID, &w.Protected, &w.RequiredTranslators, &w.RequiredReviewers, &w.RequiredTrustees,
			&w.CreatedBy, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan work: %w", err)
		}
		works = append(works, w)
	}
	return works, rows.Err()
}

func (q queries) UpdateWork(ctx context.Context, w Work) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE works
		SET title=$2, author=$3, description=$4, protected=$5,
			required_translators=$6, required_reviewers=$7, required_trustees=$8, updated_at=NOW()
		WHERE id=$1
	`, w.ID, w.Title, w.Author, w.Description, w.Protected, w.RequiredTranslators, w.RequiredReviewers, w.RequiredTrustees)
	if err != nil {
		return fmt.Errorf("update work: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update work rows: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteWork removes a work. It refuses while segments remain.
func (q queries) DeleteWork(ctx context.Context, workID string) error {
	var count int
	if err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM segments WHERE work_id=$1`, workID).Scan(&count); err != nil {
		return fmt.Errorf("count segments: %w", err)
	}
	if count > 0 {
		return ErrWorkNotEmpty
	}
	res, err := q.q.ExecContext(ctx, `DELETE FROM works WHERE id=$1`, workID)
	if err != nil {
		return fmt.Errorf("delete work: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete work rows: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- chapters ----

func (q queries) CreateChapter(ctx context.Context, c Chapter) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO chapters (id, work_id, title, position) VALUES ($1, $2, $3, $4)
	`, c.ID, c.WorkID, c.Title, c.Position)
	if err != nil {
		return fmt.Errorf("insert chapter: %w", err)
	}
	_, err = q.q.ExecContext(ctx, `INSERT INTO chapter_stats (chapter_id) VALUES ($1)`, c.ID)
	if err != nil {
		return fmt.Errorf("insert chapter stats: %w", err)
	}
	return nil
}

func (q queries) GetChapter(ctx context.Context, chapterID string) (Chapter, error) {
	var c Chapter
	err := q.q.QueryRowContext(ctx, `
		SELECT id, work_id, title, position, created_at FROM chapters WHERE id=$1
	`, chapterID).Scan(&c.ID, &c.WorkID, &c.Title, &c.Position, &c.CreatedAt)
	if err != nil {
		return Chapter{}, err
	}
	return c, nil
}

func (q queries) ListChapters(ctx context.Context, workID string) ([]Chapter, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, work_id, title, position, created_at FROM chapters WHERE work_id=$1 ORDER BY position
	`, workID)
	if err != nil {
		return nil, fmt.Errorf("list chapters: %w", err)
	}
	defer rows.Close()

	var chapters []Chapter
	for rows.Next() {
		var c Chapter
		if err := rows.Scan(&c.ID, &c.WorkID, &c.Title, &c.Position, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chapter: %w", err)
		}
		chapters = append(chapters, c)
	}
	return chapters, rows.Err()
}

// ---- segments ----

const segmentColumns = `id, work_id, chapter_id, position, tag, class_list, reference, page_label,
	original_content, base_translation, translated_content, progress, current_relative_id,
	translator_id, translated_at, locked_by, locked_at, updated_at`

func scanSegment(row *sql.Row) (Segment, error) {
	var seg Segment
	err := row.Scan(&seg.ID, &seg.WorkID, &seg.ChapterID, &seg.Position,
		&seg.Tag, &seg.ClassList, &seg.Reference, &seg.PageLabel,
		&seg.OriginalContent, &seg.BaseTranslation, &seg.TranslatedContent, &seg.Progress, &seg.CurrentRelativeID,
		&seg.TranslatorID, &seg.TranslatedAt, &seg.LockedBy, &seg.LockedAt, &seg.UpdatedAt)
	if err != nil {
		return Segment{}, err
	}
	return seg, nil
}

func (q queries) CreateSegment(ctx context.Context, seg Segment) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO segments (id, work_id, chapter_id, position, tag, class_list, reference, page_label,
			original_content, base_translation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, seg.ID, seg.WorkID, seg.ChapterID, seg.Position, seg.Tag, seg.ClassList, seg.Reference, seg.PageLabel,
		seg.OriginalContent, seg.BaseTranslation)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

func (q queries) GetSegment(ctx context.Context, segmentID string) (Segment, error) {
	return scanSegment(q.q.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id=$1`, segmentID))
}

// GetSegmentForUpdate takes a row lock on the segment for the duration of the
// enclosing transaction.
func (q queries) GetSegmentForUpdate(ctx context.Context, segmentID string) (Segment, error) {
	return scanSegment(q.q.QueryRowContext(ctx, `SELECT `+segmentColumns+` FROM segments WHERE id=$1 FOR UPDATE`, segmentID))
}

func (q queries) ListSegments(ctx context.Context, chapterID string) ([]Segment, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+segmentColumns+` FROM segments WHERE chapter_id=$1 ORDER BY position
	`, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	return collectSegments(rows)
}

func collectSegments(rows *sql.Rows) ([]Segment, error) {
	defer rows.Close()
	var segments []Segment
	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.ID, &seg.WorkID, &seg.ChapterID, &seg.Position,
			&seg.Tag, &seg.ClassList, &seg.Reference, &seg.PageLabel,
			&seg.OriginalContent, &seg.BaseTranslation, &seg.TranslatedContent, &seg.Progress, &seg.CurrentRelativeID,
			&seg.TranslatorID, &seg.TranslatedAt, &seg.LockedBy, &seg.LockedAt, &seg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

// UpdateSegmentTranslation writes the current translation and its bookkeeping
// columns in one statement.
func (q queries) UpdateSegmentTranslation(ctx context.Context, seg Segment) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE segments
		SET translated_content=$2, progress=$3, current_relative_id=$4,
			translator_id=$5, translated_at=$6, updated_at=NOW()
		WHERE id=$1
	`, seg.ID, seg.TranslatedContent, seg.Progress, seg.CurrentRelativeID, seg.TranslatorID, seg.TranslatedAt)
	if err != nil {
		return fmt.Errorf("update segment translation: %w", err)
	}
	return nil
}

func (q queries) UpdateSegmentProgress(ctx context.Context, segmentID string, progress int) error {
	_, err := q.q.ExecContext(ctx, `UPDATE segments SET progress=$2, updated_at=NOW() WHERE id=$1`, segmentID, progress)
	if err != nil {
		return fmt.Errorf("update segment progress: %w", err)
	}
	return nil
}

func (q queries) SetSegmentLock(ctx context.Context, segmentID, userID string) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE segments SET locked_by=$2, locked_at=NOW(), updated_at=NOW() WHERE id=$1
	`, segmentID, userID)
	if err != nil {
		return fmt.Errorf("set segment lock: %w", err)
	}
	return nil
}

func (q queries) ClearSegmentLock(ctx context.Context, segmentID string) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE segments SET locked_by=NULL, locked_at=NULL, updated_at=NOW() WHERE id=$1
	`, segmentID)
	if err != nil {
		return fmt.Errorf("clear segment lock: %w", err)
	}
	return nil
}

// ListIdleLockedSegments returns segments whose lock is older than the cutoff.
func (q queries) ListIdleLockedSegments(ctx context.Context, before time.Time) ([]Segment, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+segmentColumns+` FROM segments
		WHERE locked_by IS NOT NULL AND locked_at < $1
	`, before)
	if err != nil {
		return nil, fmt.Errorf("list idle locked segments: %w", err)
	}
	return collectSegments(rows)
}
