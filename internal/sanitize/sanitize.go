// Package sanitize normalizes segment HTML before persistence and validates
// it against the per-work tag allowlist. Sanitize never fails; validation is
// a separate step the editor runs before writing.
package sanitize

import (
	"regexp"
	"strings"
)

// tagReplacements maps legacy tags to their canonical form. Applied to both
// opening and closing tags, attributes preserved.
var tagReplacements = map[string]string{
	"b":      "strong",
	"i":      "em",
	"strike": "s",
	"tt":     "code",
}

// unwrapTags are removed entirely, keeping their children.
var unwrapTags = []string{"font", "center", "big", "small"}

// removeIfEmpty is the tag set stripped when checking whether a text is
// effectively empty.
var removeIfEmpty = []string{"p", "em", "strong", "s", "span", "sub", "sup", "br", "q"}

type substitution struct {
	old string
	new string
}

// literalSubstitutions run in definition order, before whitespace collapse.
var literalSubstitutions = map[string][]substitution{
	"de": {
		{" - ", " – "},
		{"--", "–"},
	},
	"en": {
		{" - ", " — "},
		{"--", "—"},
	},
	"fr": {
		{" - ", " – "},
		{"--", "–"},
	},
	"ru": {
		{" - ", " — "},
		{"--", "—"},
	},
	"es": {
		{" - ", " — "},
		{"--", "—"},
	},
}

// traits describes the typographic attribute set of a language: q enables
// smart quotes with the given pairs, e enables ellipsis collapsing.
type traits struct {
	quotes     bool
	ellipsis   bool
	doublePair [2]rune
	singlePair [2]rune
}

var languageTraits = map[string]traits{
	"de": {quotes: true, ellipsis: true, doublePair: [2]rune{'„', '“'}, singlePair: [2]rune{'‚', '‘'}},
	"en": {quotes: true, ellipsis: true, doublePair: [2]rune{'“', '”'}, singlePair: [2]rune{'‘', '’'}},
	"fr": {quotes: true, ellipsis: true, doublePair: [2]rune{'«', '»'}, singlePair: [2]rune{'‘', '’'}},
	"ru": {quotes: true, ellipsis: true, doublePair: [2]rune{'«', '»'}, singlePair: [2]rune{'„', '“'}},
	"es": {quotes: true, ellipsis: true, doublePair: [2]rune{'«', '»'}, singlePair: [2]rune{'‘', '’'}},
	"it": {quotes: true, ellipsis: true, doublePair: [2]rune{'«', '»'}, singlePair: [2]rune{'‘', '’'}},
	"nl": {quotes: true, ellipsis: true, doublePair: [2]rune{'„', '”'}, singlePair: [2]rune{'‘', '’'}},
}

var (
	multiSpace    = regexp.MustCompile(`  +`)
	tagPattern    = regexp.MustCompile(`<\s*(/?)\s*([a-zA-Z][a-zA-Z0-9]*)((?:[^>"]|"[^"]*")*)>`)
	replacePats   = map[string]*regexp.Regexp{}
	unwrapPats    []*regexp.Regexp
	emptyCheckPat *regexp.Regexp
)

func init() {
	for old := range tagReplacements {
		replacePats[old] = regexp.MustCompile(`(?i)<(/?)` + old + `(\s[^>]*)?>`)
	}
	for _, tag := range unwrapTags {
		unwrapPats = append(unwrapPats, regexp.MustCompile(`(?i)</?`+tag+`(\s[^>]*)?>`))
	}
	emptyCheckPat = regexp.MustCompile(`(?i)</?(?:` + strings.Join(removeIfEmpty, "|") + `)(\s[^>]*)?/?>`)
}

// Sanitize normalizes text for the given target language. It is idempotent:
// Sanitize(Sanitize(t, l), l) == Sanitize(t, l).
func Sanitize(text, language string) string {
	// 1. non-breaking-space escape to plain space
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, " ", " ")

	// 2. legacy tag canonicalization, unwrap set removed
	for old, canonical := range tagReplacements {
		text = replacePats[old].ReplaceAllString(text, "<${1}"+canonical+"${2}>")
	}
	for _, pat := range unwrapPats {
		text = pat.ReplaceAllString(text, "")
	}

	// 3. language literal substitutions, in definition order
	for _, sub := range literalSubstitutions[language] {
		text = strings.ReplaceAll(text, sub.old, sub.new)
	}

	// 4. trim and collapse internal space runs
	text = strings.TrimSpace(text)
	text = multiSpace.ReplaceAllString(text, " ")

	// 5. effectively empty check
	if strings.TrimSpace(emptyCheckPat.ReplaceAllString(text, "")) == "" {
		return ""
	}

	// 6. smart quotes and ellipsis per language traits
	tr, ok := languageTraits[language]
	if !ok {
		tr = traits{ellipsis: true}
	}
	if tr.ellipsis {
		text = strings.ReplaceAll(text, "...", "…")
	}
	if tr.quotes {
		text = smartQuotes(text, tr)
	}
	return text
}

// smartQuotes converts straight quotes outside of tags into the language's
// quote pair. Apostrophes between letters become typographic apostrophes.
func smartQuotes(text string, tr traits) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	inTag := false
	doubleOpen := false
	singleOpen := false
	for i, r := range runes {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(r)
		case r == '>':
			inTag = false
			b.WriteRune(r)
		case inTag:
			b.WriteRune(r)
		case r == '"':
			if doubleOpen {
				b.WriteRune(tr.doublePair[1])
			} else {
				b.WriteRune(tr.doublePair[0])
			}
			doubleOpen = !doubleOpen
		case r == '\'':
			if i > 0 && i < len(runes)-1 && isLetter(runes[i-1]) && isLetter(runes[i+1]) {
				b.WriteRune('’')
				continue
			}
			if singleOpen {
				b.WriteRune(tr.singlePair[1])
			} else {
				b.WriteRune(tr.singlePair[0])
			}
			singleOpen = !singleOpen
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r >= 0x00c0
}
