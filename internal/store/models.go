package store

import "time"

type User struct {
	ID                    string
	DisplayName           string
	Email                 string
	PasswordHash          string
	IsEmailVerified       bool
	VerificationToken     string
	VerificationExpiresAt *time.Time
	DeactivatedAt         *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Reputation is a per-(user, language) score. Trust earned translating
// German does not carry over to French.
type Reputation struct {
	UserID    string
	Language  string
	Score     int64
	UpdatedAt time.Time
}

// Work is either an original (OriginalID nil) or a translated work pointing
// at the original it translates. A protected translated work is frozen: no
// edits, deletes or restores until the flag is lifted.
type Work struct {
	ID                  string
	Title               string
	Author              string
	Kind                string
	Language            string
	SourceLanguage      string
	Description         string
	OriginalID          *string
	Protected           bool
	RequiredTranslators int
	RequiredReviewers   int
	RequiredTrustees    int
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Work kinds.
const (
	KindBook       = "book"
	KindPeriodical = "periodical"
	KindManuscript = "manuscript"
)

func ValidWorkKind(kind string) bool {
	return kind == KindBook || kind == KindPeriodical || kind == KindManuscript
}

type Chapter struct {
	ID        string
	WorkID    string
	Title     string
	Position  int
	CreatedAt time.Time
}

type Segment struct {
	ID                string
	WorkID            string
	ChapterID         string
	Position          int
	Tag               string
	ClassList         string
	Reference         string
	PageLabel         string
	OriginalContent   string
	BaseTranslation   string
	TranslatedContent string
	Progress          int
	CurrentRelativeID int
	TranslatorID      *string
	TranslatedAt      *time.Time
	LockedBy          *string
	LockedAt          *time.Time
	UpdatedAt         time.Time
}

// HistoryRecord is one entry in a segment's append-only translation history.
// RelativeID is dense per segment, starting at 1. RestoredFrom is set when the
// record was produced by restoring an earlier record.
type HistoryRecord struct {
	SegmentID    string
	RelativeID   int
	Content      string
	AuthorID     string
	ChangeReason string
	RecordedAt   time.Time
	RestoredFrom *int
}

// Change reasons carried on history records. New and Change are the edit
// reasons and differ only in whether the previous content was empty; only
// edit records are ever coalesced into.
const (
	ReasonNew     = "new"
	ReasonChange  = "change"
	ReasonDelete  = "delete"
	ReasonRestore = "restore"
)

// IsEditReason reports whether a record was produced by a plain edit rather
// than a delete or restore.
func IsEditReason(reason string) bool {
	return reason == ReasonNew || reason == ReasonChange
}

// Vote is one event in a segment's vote ledger. A user's net contribution to
// a translation version is the sum of their events, always in {-1, 0, +1}.
type Vote struct {
	ID         string
	SegmentID  string
	RelativeID int
	UserID     string
	Role       string
	Value      int
	Revoked    bool
	CreatedAt  time.Time
}

type VoteComment struct {
	ID        string
	VoteID    string
	SegmentID string
	UserID    string
	Body      string
	CreatedAt time.Time
}

// Draft is one append-only snapshot of a user's in-progress content for a
// segment. The editor captures the pre-edit content as the user's first
// draft, then one snapshot per saved edit; a sweeper expires old rows.
type Draft struct {
	ID        string
	SegmentID string
	UserID    string
	Content   string
	CreatedAt time.Time
}

// StateCounts aggregates segment progress for a chapter or a whole work,
// together with the distinct history authors and the most recent activity.
type StateCounts struct {
	Total           int
	Blank           int
	InTranslation   int
	TranslationDone int
	InReview        int
	ReviewDone      int
	TrusteeDone     int
	Released        int
	Contributors    int
	LastActivity    *time.Time
}

// RoleTotals carries the accumulated active vote value per role for the
// current translation of a segment.
type RoleTotals struct {
	Translator int
	Reviewer   int
	Trustee    int
}
