package store

import (
	"context"
	"fmt"
)

const countsSelect = `
	COUNT(*) AS total,
	COUNT(*) FILTER (WHERE progress = 0) AS blank,
	COUNT(*) FILTER (WHERE progress = 1) AS in_translation,
	COUNT(*) FILTER (WHERE progress = 2) AS translation_done,
	COUNT(*) FILTER (WHERE progress = 3) AS in_review,
	COUNT(*) FILTER (WHERE progress = 4) AS review_done,
	COUNT(*) FILTER (WHERE progress = 5) AS trustee_done,
	COUNT(*) FILTER (WHERE progress = 6) AS released
`

// RefreshChapterStats recomputes the chapter aggregate from its segments:
// progress counts, distinct history authors and the latest segment activity.
func (q queries) RefreshChapterStats(ctx context.Context, chapterID string) (StateCounts, error) {
	var c StateCounts
	err := q.q.QueryRowContext(ctx, `
		UPDATE chapter_stats cs
		SET total=src.total, blank=src.blank, in_translation=src.in_translation,
			translation_done=src.translation_done, in_review=src.in_review,
			review_done=src.review_done, trustee_done=src.trustee_done,
			released=src.released, contributors=src.contributors,
			last_activity=src.last_activity, updated_at=NOW()
		FROM (SELECT `+countsSelect+`,
			MAX(updated_at) AS last_activity,
			(SELECT COUNT(DISTINCT h.author_id)
				FROM history_records h
				JOIN segments hs ON hs.id = h.segment_id
				WHERE hs.chapter_id=$1) AS contributors
			FROM segments WHERE chapter_id=$1) src
		WHERE cs.chapter_id=$1
		RETURNING cs.total, cs.blank, cs.in_translation, cs.translation_done, cs.in_review, cs.review_done, cs.trustee_done, cs.released, cs.contributors, cs.last_activity
	`, chapterID).Scan(&c.Total, &c.Blank, &c.InTranslation, &c.TranslationDone, &c.InReview, &c.ReviewDone, &c.TrusteeDone, &c.Released, &c.Contributors, &c.LastActivity)
	if err != nil {
		return StateCounts{}, fmt.Errorf("refresh chapter stats: %w", err)
	}
	return c, nil
}

// RefreshWorkStats recomputes the work aggregate from its segments.
func (q queries) RefreshWorkStats(ctx context.Context, workID string) (StateCounts, error) {
	var c StateCounts
	err := q.q.QueryRowContext(ctx, `
		UPDATE work_stats ws
		SET total=src.total, blank=src.blank, in_translation=src.in_translation,
			translation_done=src.translation_done, in_review=src.in_review,
			review_done=src.review_done, trustee_done=src.trustee_done,
			released=src.released, contributors=src.contributors,
			last_activity=src.last_activity, updated_at=NOW()
		FROM (SELECT `+countsSelect+`,
			MAX(updated_at) AS last_activity,
			(SELECT COUNT(DISTINCT h.author_id)
				FROM history_records h
				JOIN segments hs ON hs.id = h.segment_id
				WHERE hs.work_id=$1) AS contributors
			FROM segments WHERE work_id=$1) src
		WHERE ws.work_id=$1
		RETURNING ws.total, ws.blank, ws.in_translation, ws.translation_done, ws.in_review, ws.review_done, ws.trustee_done, ws.released, ws.contributors, ws.last_activity
	`, workID).Scan(&c.Total, &c.Blank, &c.InTranslation, &c.TranslationDone, &c.InReview, &c.ReviewDone, &c.TrusteeDone, &c.Released, &c.Contributors, &c.LastActivity)
	if err != nil {
		return StateCounts{}, fmt.Errorf("refresh work stats: %w", err)
	}
	return c, nil
}

func (q queries) GetChapterStats(ctx context.Context, chapterID string) (StateCounts, error) {
	var c StateCounts
	err := q.q.QueryRowContext(ctx, `
		SELECT total, blank, in_translation, translation_done, in_review, review_done, trustee_done, released, contributors, last_activity
		FROM chapter_stats WHERE chapter_id=$1
	`, chapterID).Scan(&c.Total, &c.Blank, &c.InTranslation, &c.TranslationDone, &c.InReview, &c.ReviewDone, &c.TrusteeDone, &c.Released, &c.Contributors, &c.LastActivity)
	if err != nil {
		return StateCounts{}, err
	}
	return c, nil
}

func (q queries) GetWorkStats(ctx context.Context, workID string) (StateCounts, error) {
	var c StateCounts
	err := q.q.QueryRowContext(ctx, `
		SELECT total, blank, in_translation, translation_done, in_review, review_done, trustee_done, released, contributors, last_activity
		FROM work_stats WHERE work_id=$1
	`, workID).Scan(&c.Total, &c.Blank, &c.InTranslation, &c.TranslationDone, &c.InReview, &c.ReviewDone, &c.TrusteeDone, &c.Released, &c.Contributors, &c.LastActivity)
	if err != nil {
		return StateCounts{}, err
	}
	return c, nil
}

// SearchSegments is the Postgres full text fallback used when Meilisearch is
// not configured.
func (q queries) SearchSegments(ctx context.Context, workID, query string, limit int) ([]Segment, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT `+segmentColumns+`
		FROM segments
		WHERE ($1 = '' OR work_id = $1)
			AND to_tsvector('simple', original_content || ' ' || translated_content)
				@@ plainto_tsquery('simple', $2)
		ORDER BY position
		LIMIT $3
	`, workID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search segments: %w", err)
	}
	return collectSegments(rows)
}
