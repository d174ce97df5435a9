package sanitize

import "testing"

func TestSanitizeTagNormalization(t *testing.T) {
	got := Sanitize(`<b>bold</b> and <i>italic</i>`, "en")
	want := `<strong>bold</strong> and <em>italic</em>`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSanitizeUnwrap(t *testing.T) {
	got := Sanitize(`<font color="red">text</font>`, "en")
	if got != "text" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeNbspAndSpaces(t *testing.T) {
	got := Sanitize("  a&nbsp;b   c  ", "en")
	if got != "a b c" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeEmptyAfterStrip(t *testing.T) {
	for _, in := range []string{"", "   ", "<p> </p>", "<em></em><br/>", "<strong>  </strong>"} {
		if got := Sanitize(in, "de"); got != "" {
			t.Fatalf("Sanitize(%q) = %q, want empty", in, got)
		}
	}
}

func TestSanitizeGermanQuotes(t *testing.T) {
	got := Sanitize(`Er sagte "Hallo" zu ihr.`, "de")
	want := "Er sagte „Hallo“ zu ihr."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSanitizeApostrophe(t *testing.T) {
	got := Sanitize("It's John's book.", "en")
	want := "It’s John’s book."
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSanitizeEllipsis(t *testing.T) {
	got := Sanitize("Well...", "en")
	if got != "Well…" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeQuotesSkipTags(t *testing.T) {
	got := Sanitize(`<span class="note">x</span> said "hi"`, "en")
	want := `<span class="note">x</span> said “hi”`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSanitizeDashSubstitution(t *testing.T) {
	got := Sanitize("so - then", "de")
	if got != "so – then" {
		t.Fatalf("got %q", got)
	}
	got = Sanitize("so - then", "ru")
	if got != "so — then" {
		t.Fatalf("got %q", got)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		`He said "let's go..." <b>now</b>`,
		`"nested 'singles' inside"`,
		`so - then -- done`,
		`&nbsp;&nbsp;spaces   here`,
		`<span class="verse">a "b" c</span>`,
	}
	for _, lang := range []string{"de", "en", "fr", "ru", "xx"} {
		for _, in := range inputs {
			once := Sanitize(in, lang)
			twice := Sanitize(once, lang)
			if once != twice {
				t.Fatalf("not idempotent for %q lang=%s: %q != %q", in, lang, once, twice)
			}
		}
	}
}

func TestSanitizeUnknownLanguage(t *testing.T) {
	got := Sanitize(`keep "straight" quotes...`, "xx")
	want := `keep "straight" quotes…`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestValidateAllowed(t *testing.T) {
	al := Default()
	ok := []string{
		`plain text`,
		`<em>x</em> <strong>y</strong> <br/>`,
		`<span class="note fn">z</span>`,
		`<a href="https://example.org/p">link</a>`,
		`<a href="/rel">rel</a> <a href="#frag">frag</a>`,
		`<abbr title="anything here">a</abbr>`,
	}
	for _, in := range ok {
		if err := al.Validate(in); err != nil {
			t.Fatalf("Validate(%q) = %v, want nil", in, err)
		}
	}
}

func TestValidateRejections(t *testing.T) {
	al := Default()
	cases := []struct {
		in      string
		tag     string
		attr    string
		class   string
	}{
		{`<script>x</script>`, "script", "", ""},
		{`<div>x</div>`, "div", "", ""},
		{`<span class="evil">x</span>`, "span", "class", "evil"},
		{`<em onclick="x()">x</em>`, "em", "onclick", ""},
		{`<a href="javascript:alert(1)">x</a>`, "a", "href", ""},
	}
	for _, tc := range cases {
		err := al.Validate(tc.in)
		if err == nil {
			t.Fatalf("Validate(%q) = nil, want violation", tc.in)
		}
		v, ok := err.(*Violation)
		if !ok {
			t.Fatalf("Validate(%q) returned %T", tc.in, err)
		}
		if v.Tag != tc.tag || v.Attr != tc.attr || v.Class != tc.class {
			t.Fatalf("Validate(%q) = %+v, want tag=%s attr=%s class=%s", tc.in, v, tc.tag, tc.attr, tc.class)
		}
	}
}
