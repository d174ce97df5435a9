package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertHistoryRecord appends a record with the next dense relative id and
// returns it. Callers must hold the segment row lock.
func (q queries) InsertHistoryRecord(ctx context.Context, segmentID, content, authorID, reason string, restoredFrom *int) (HistoryRecord, error) {
	var rec HistoryRecord
	err := q.q.QueryRowContext(ctx, `
		INSERT INTO history_records (segment_id, relative_id, content, author_id, change_reason, restored_from)
		SELECT $1, COALESCE(MAX(relative_id), 0) + 1, $2, $3, $4, $5
		FROM history_records WHERE segment_id = $1
		RETURNING segment_id, relative_id, content, author_id, change_reason, recorded_at, restored_from
	`, segmentID, content, authorID, reason, restoredFrom).Scan(
		&rec.SegmentID, &rec.RelativeID, &rec.Content, &rec.AuthorID, &rec.ChangeReason, &rec.RecordedAt, &rec.RestoredFrom)
	if err != nil {
		return HistoryRecord{}, fmt.Errorf("insert history record: %w", err)
	}
	return rec, nil
}

// OverwriteHistoryRecord replaces the content and reason of an existing record
// in place, refreshing its timestamp. Used when coalescing edits inside the
// hot window.
func (q queries) OverwriteHistoryRecord(ctx context.Context, segmentID string, relativeID int, content, reason string) error {
	res, err := q.q.ExecContext(ctx, `
		UPDATE history_records SET content=$3, change_reason=$4, recorded_at=NOW()
		WHERE segment_id=$1 AND relative_id=$2
	`, segmentID, relativeID, content, reason)
	if err != nil {
		return fmt.Errorf("overwrite history record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("overwrite history rows: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteLatestHistoryRecord removes the record only when it is the newest one
// for the segment, keeping relative ids dense.
func (q queries) DeleteLatestHistoryRecord(ctx context.Context, segmentID string, relativeID int) error {
	res, err := q.q.ExecContext(ctx, `
		DELETE FROM history_records
		WHERE segment_id=$1 AND relative_id=$2
			AND relative_id = (SELECT MAX(relative_id) FROM history_records WHERE segment_id=$1)
	`, segmentID, relativeID)
	if err != nil {
		return fmt.Errorf("delete history record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete history rows: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (q queries) GetHistoryRecord(ctx context.Context, segmentID string, relativeID int) (HistoryRecord, error) {
	var rec HistoryRecord
	err := q.q.QueryRowContext(ctx, `
		SELECT segment_id, relative_id, content, author_id, change_reason, recorded_at, restored_from
		FROM history_records WHERE segment_id=$1 AND relative_id=$2
	`, segmentID, relativeID).Scan(
		&rec.SegmentID, &rec.RelativeID, &rec.Content, &rec.AuthorID, &rec.ChangeReason, &rec.RecordedAt, &rec.RestoredFrom)
	if err != nil {
		return HistoryRecord{}, err
	}
	return rec, nil
}

func (q queries) LatestHistoryRecord(ctx context.Context, segmentID string) (HistoryRecord, error) {
	var rec HistoryRecord
	err := q.q.QueryRowContext(ctx, `
		SELECT segment_id, relative_id, content, author_id, change_reason, recorded_at, restored_from
		FROM history_records WHERE segment_id=$1
		ORDER BY relative_id DESC LIMIT 1
	`, segmentID).Scan(
		&rec.SegmentID, &rec.RelativeID, &rec.Content, &rec.AuthorID, &rec.ChangeReason, &rec.RecordedAt, &rec.RestoredFrom)
	if err != nil {
		return HistoryRecord{}, err
	}
	return rec, nil
}

func (q queries) ListHistory(ctx context.Context, segmentID string) ([]HistoryRecord, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT segment_id, relative_id, content, author_id, change_reason, recorded_at, restored_from
		FROM history_records WHERE segment_id=$1
		ORDER BY relative_id DESC
	`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var records []HistoryRecord
	for rows.Next() {
		var rec HistoryRecord
		if err := rows.Scan(&rec.SegmentID, &rec.RelativeID, &rec.Content, &rec.AuthorID, &rec.ChangeReason, &rec.RecordedAt, &rec.RestoredFrom); err != nil {
			return nil, fmt.Errorf("scan history record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (q queries) CountHistory(ctx context.Context, segmentID string) (int, error) {
	var count int
	err := q.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM history_records WHERE segment_id=$1`, segmentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return count, nil
}

// ---- votes ----

// UserVoteSum returns the caller's net contribution to one translation
// version. The ledger keeps every vote event, so the net is always in
// {-1, 0, +1}.
func (q queries) UserVoteSum(ctx context.Context, segmentID string, relativeID int, userID string) (int, error) {
	var sum int
	err := q.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(value), 0)
		FROM votes WHERE segment_id=$1 AND relative_id=$2 AND user_id=$3
	`, segmentID, relativeID, userID).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum user votes: %w", err)
	}
	return sum, nil
}

// InsertVote appends one vote event to the ledger.
func (q queries) InsertVote(ctx context.Context, v Vote) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO votes (id, segment_id, relative_id, user_id, role, value, revoked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.SegmentID, v.RelativeID, v.UserID, v.Role, v.Value, v.Revoked)
	if err != nil {
		return fmt.Errorf("insert vote: %w", err)
	}
	return nil
}

func (q queries) ListVotes(ctx context.Context, segmentID string, relativeID int) ([]Vote, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, segment_id, relative_id, user_id, role, value, revoked, created_at
		FROM votes WHERE segment_id=$1 AND relative_id=$2
		ORDER BY created_at
	`, segmentID, relativeID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var votes []Vote
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.ID, &v.SegmentID, &v.RelativeID, &v.UserID, &v.Role, &v.Value, &v.Revoked, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

// HasVotes reports whether any vote event targets one translation version.
// Records that collected votes are never coalesced into.
func (q queries) HasVotes(ctx context.Context, segmentID string, relativeID int) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM votes WHERE segment_id=$1 AND relative_id=$2)
	`, segmentID, relativeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check votes: %w", err)
	}
	return exists, nil
}

// NetVotes collapses the ledger for one translation version into one net
// stance per (user, role), dropping users whose events sum to zero. Restore
// uses this to carry a record's standing votes onto the restored version.
func (q queries) NetVotes(ctx context.Context, segmentID string, relativeID int) ([]Vote, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT user_id, role, SUM(value)
		FROM votes WHERE segment_id=$1 AND relative_id=$2
		GROUP BY user_id, role
		HAVING SUM(value) <> 0
	`, segmentID, relativeID)
	if err != nil {
		return nil, fmt.Errorf("net votes: %w", err)
	}
	defer rows.Close()

	var nets []Vote
	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.UserID, &v.Role, &v.Value); err != nil {
			return nil, fmt.Errorf("scan net vote: %w", err)
		}
		v.SegmentID = segmentID
		v.RelativeID = relativeID
		nets = append(nets, v)
	}
	return nets, rows.Err()
}

// AccumulatedVotes sums the vote ledger per role for one translation version
// of a segment.
func (q queries) AccumulatedVotes(ctx context.Context, segmentID string, relativeID int) (RoleTotals, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT role, COALESCE(SUM(value), 0)
		FROM votes
		WHERE segment_id=$1 AND relative_id=$2
		GROUP BY role
	`, segmentID, relativeID)
	if err != nil {
		return RoleTotals{}, fmt.Errorf("accumulate votes: %w", err)
	}
	defer rows.Close()

	var totals RoleTotals
	for rows.Next() {
		var role string
		var sum int
		if err := rows.Scan(&role, &sum); err != nil {
			return RoleTotals{}, fmt.Errorf("scan vote total: %w", err)
		}
		switch role {
		case "translator":
			totals.Translator = sum
		case "reviewer":
			totals.Reviewer = sum
		case "trustee":
			totals.Trustee = sum
		}
	}
	return totals, rows.Err()
}

// ---- vote comments ----

func (q queries) CreateVoteComment(ctx context.Context, c VoteComment) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO vote_comments (id, vote_id, segment_id, user_id, body)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.VoteID, c.SegmentID, c.UserID, c.Body)
	if err != nil {
		return fmt.Errorf("insert vote comment: %w", err)
	}
	return nil
}

func (q queries) ListVoteComments(ctx context.Context, segmentID string) ([]VoteComment, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, vote_id, segment_id, user_id, body, created_at
		FROM vote_comments WHERE segment_id=$1
		ORDER BY created_at
	`, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list vote comments: %w", err)
	}
	defer rows.Close()

	var comments []VoteComment
	for rows.Next() {
		var c VoteComment
		if err := rows.Scan(&c.ID, &c.VoteID, &c.SegmentID, &c.UserID, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vote comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// PurgeStaleVoteComments deletes comments whose vote no longer targets the
// segment's current translation and that are older than the cutoff.
func (q queries) PurgeStaleVoteComments(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		DELETE FROM vote_comments vc
		USING votes v, segments s
		WHERE vc.vote_id = v.id
			AND s.id = v.segment_id
			AND v.relative_id <> s.current_relative_id
			AND vc.created_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("purge vote comments: %w", err)
	}
	return res.RowsAffected()
}

// ---- drafts ----

// InsertDraft appends one draft snapshot. Drafts are never overwritten.
func (q queries) InsertDraft(ctx context.Context, d Draft) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO drafts (id, segment_id, user_id, content)
		VALUES ($1, $2, $3, $4)
	`, d.ID, d.SegmentID, d.UserID, d.Content)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

// HasDrafts reports whether the user already holds draft snapshots for the
// segment; the editor captures the pre-edit content only on first touch.
func (q queries) HasDrafts(ctx context.Context, userID, segmentID string) (bool, error) {
	var exists bool
	err := q.q.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM drafts WHERE user_id=$1 AND segment_id=$2)
	`, userID, segmentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check drafts: %w", err)
	}
	return exists, nil
}

func (q queries) ListDrafts(ctx context.Context, userID, segmentID string) ([]Draft, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, segment_id, user_id, content, created_at
		FROM drafts WHERE user_id=$1 AND segment_id=$2
		ORDER BY created_at
	`, userID, segmentID)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer rows.Close()

	var drafts []Draft
	for rows.Next() {
		var d Draft
		if err := rows.Scan(&d.ID, &d.SegmentID, &d.UserID, &d.Content, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		drafts = append(drafts, d)
	}
	return drafts, rows.Err()
}

func (q queries) DeleteDrafts(ctx context.Context, userID, segmentID string) error {
	_, err := q.q.ExecContext(ctx, `DELETE FROM drafts WHERE user_id=$1 AND segment_id=$2`, userID, segmentID)
	if err != nil {
		return fmt.Errorf("delete drafts: %w", err)
	}
	return nil
}

// SweepDrafts deletes draft snapshots older than the cutoff.
func (q queries) SweepDrafts(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.q.ExecContext(ctx, `DELETE FROM drafts WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("sweep drafts: %w", err)
	}
	return res.RowsAffected()
}
