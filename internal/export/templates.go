package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// SafeHTML marks a string as safe HTML for template rendering. Translated
// content has already passed the tag allowlist when it was stored.
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

var workTemplate = template.Must(template.New("work").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"safeHTML": SafeHTML,
}).Parse(workTemplateHTML))

const workTemplateHTML = `<!DOCTYPE html>
<html lang="{{.Language}}">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
  body { font-family: Georgia, "Times New Roman", serif; margin: 2em auto; max-width: 42em; line-height: 1.6; }
  h1 { font-size: 1.8em; margin-bottom: 0.1em; }
  .author { color: #555; font-style: italic; margin-bottom: 2em; }
  h2 { font-size: 1.3em; margin-top: 2em; page-break-after: avoid; }
  .segment { margin: 0.6em 0; }
  .original { color: #777; font-size: 0.9em; margin: 0.2em 0 0.6em 1.5em; border-left: 2px solid #ddd; padding-left: 0.8em; }
  .meta { color: #999; font-size: 0.8em; margin-top: 3em; border-top: 1px solid #ddd; padding-top: 0.8em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{if .Author}}<p class="author">{{.Author}}</p>{{end}}
{{range .Chapters}}
<h2>{{.Title}}</h2>
{{range .Segments}}
<div class="segment">{{safeHTML .Translated}}</div>
{{if $.IncludeOriginal}}<div class="original">{{safeHTML .Original}}</div>{{end}}
{{end}}
{{end}}
<div class="meta">{{formatDate .UpdatedAt "2006-01-02"}} &middot; {{lower .SourceLanguage}} &rarr; {{lower .Language}}</div>
</body>
</html>`

type templateData struct {
	WorkData
	IncludeOriginal bool
}

func renderHTML(work WorkData, includeOriginal bool) (string, error) {
	var buf bytes.Buffer
	if err := workTemplate.Execute(&buf, templateData{WorkData: work, IncludeOriginal: includeOriginal}); err != nil {
		return "", fmt.Errorf("render work template: %w", err)
	}
	return buf.String(), nil
}
