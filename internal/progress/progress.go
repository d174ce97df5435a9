// Package progress maps segment content and accumulated votes to the
// translation progress state.
package progress

import "strings"

type State int

const (
	Blank State = iota
	InTranslation
	TranslationDone
	InReview
	ReviewDone
	TrusteeDone
	Released
)

func (s State) String() string {
	switch s {
	case Blank:
		return "blank"
	case InTranslation:
		return "in_translation"
	case TranslationDone:
		return "translation_done"
	case InReview:
		return "in_review"
	case ReviewDone:
		return "review_done"
	case TrusteeDone:
		return "trustee_done"
	case Released:
		return "released"
	default:
		return "unknown"
	}
}

// Requirements holds the per-work net approval counts needed to advance
// past TRANSLATION_DONE, REVIEW_DONE and TRUSTEE_DONE.
type Requirements struct {
	Translator int
	Reviewer   int
	Trustee    int
}

// Votes holds the accumulated net vote per role for a segment.
type Votes struct {
	Translator int
	Reviewer   int
	Trustee    int
}

// languageRatios is the minimum translated/original text-length ratio per
// target language below which a non-empty translation still counts as
// in-translation. Languages not listed fall back to defaultRatio.
var languageRatios = map[string]float64{
	"de": 0.6,
	"en": 0.6,
	"nl": 0.6,
	"fr": 0.65,
	"es": 0.65,
	"it": 0.65,
	"pt": 0.65,
	"ru": 0.55,
	"uk": 0.55,
	"pl": 0.55,
	"cs": 0.55,
	"hu": 0.5,
	"fi": 0.5,
	"tr": 0.5,
	"ja": 0.3,
	"zh": 0.25,
	"ko": 0.35,
}

const defaultRatio = 0.5

// shortOriginalLimit: originals at or under this stripped length get the
// ratio halved, since headings and very short lines translate to wildly
// varying lengths.
const shortOriginalLimit = 50

// Evaluate computes the progress state for a segment. Vote thresholds win
// over the content-length heuristic; REVIEW_DONE and TRUSTEE_DONE are
// reachable only through votes.
func Evaluate(originalContent, translatedContent, language string, v Votes, req Requirements) State {
	if translatedContent == "" {
		return Blank
	}
	if v.Trustee >= req.Trustee && req.Trustee > 0 {
		return TrusteeDone
	}
	if v.Reviewer >= req.Reviewer && req.Reviewer > 0 {
		return ReviewDone
	}
	if v.Reviewer >= 1 {
		return InReview
	}
	return lengthState(originalContent, translatedContent, language)
}

func lengthState(originalContent, translatedContent, language string) State {
	originalLen := TextLength(originalContent)
	translatedLen := TextLength(translatedContent)
	if originalLen == 0 {
		return TranslationDone
	}
	required := languageRatios[language]
	if required == 0 {
		required = defaultRatio
	}
	if originalLen <= shortOriginalLimit {
		required /= 2
	}
	if float64(translatedLen)/float64(originalLen) <= required {
		return InTranslation
	}
	return TranslationDone
}

// Clamp applies the downgrade rule: once a segment has reached IN_REVIEW it
// cannot fall below it through re-evaluation. States the evaluator returns
// at or above IN_REVIEW are kept as computed.
func Clamp(computed, previous State) State {
	if previous >= InReview && computed < InReview {
		return InReview
	}
	return computed
}

// TextLength returns the rune length of content with HTML tags stripped.
func TextLength(content string) int {
	if content == "" {
		return 0
	}
	var b strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return len([]rune(b.String()))
}
