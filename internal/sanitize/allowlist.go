package sanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// TagRule describes what a single tag may carry. Attrs maps attribute names
// to a value pattern; Classes lists the permitted class tokens.
type TagRule struct {
	Attrs   map[string]*regexp.Regexp
	Classes []string
}

// Allowlist is the set of tags a work accepts in translated content.
type Allowlist map[string]TagRule

// Violation reports the first disallowed construct found by Validate.
type Violation struct {
	Tag   string
	Attr  string
	Class string
}

func (v *Violation) Error() string {
	switch {
	case v.Class != "":
		return fmt.Sprintf("class %q not allowed on <%s>", v.Class, v.Tag)
	case v.Attr != "":
		return fmt.Sprintf("attribute %q not allowed on <%s>", v.Attr, v.Tag)
	default:
		return fmt.Sprintf("tag <%s> not allowed", v.Tag)
	}
}

var safeHref = regexp.MustCompile(`^(https?://|/|#)`)

// Default is the allowlist applied when a work does not define its own.
func Default() Allowlist {
	return Allowlist{
		"em":     {},
		"strong": {},
		"s":      {},
		"sub":    {},
		"sup":    {},
		"br":     {},
		"q":      {},
		"code":   {},
		"span": {
			Classes: []string{"ref", "note", "pb", "fn", "speaker", "verse"},
		},
		"a": {
			Attrs: map[string]*regexp.Regexp{"href": safeHref},
		},
		"abbr": {
			Attrs: map[string]*regexp.Regexp{"title": nil},
		},
	}
}

var attrPattern = regexp.MustCompile(`([a-zA-Z-]+)\s*=\s*"([^"]*)"`)

// Validate scans text for tags and returns the first violation against the
// allowlist, or nil when everything conforms. Closing tags are checked for
// the tag name only.
func (al Allowlist) Validate(text string) error {
	for _, m := range tagPattern.FindAllStringSubmatch(text, -1) {
		closing, tag, attrs := m[1] == "/", strings.ToLower(m[2]), m[3]
		rule, ok := al[tag]
		if !ok {
			return &Violation{Tag: tag}
		}
		if closing {
			continue
		}
		for _, am := range attrPattern.FindAllStringSubmatch(attrs, -1) {
			name, value := strings.ToLower(am[1]), am[2]
			if name == "class" {
				for _, token := range strings.Fields(value) {
					if !contains(rule.Classes, token) {
						return &Violation{Tag: tag, Attr: name, Class: token}
					}
				}
				continue
			}
			pat, ok := rule.Attrs[name]
			if !ok {
				return &Violation{Tag: tag, Attr: name}
			}
			if pat != nil && !pat.MatchString(value) {
				return &Violation{Tag: tag, Attr: name}
			}
		}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
