package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/conneroisu/roaster/internal/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// excerptContext is the number of source lines shown on each side of the
// failing line.
const excerptContext = 2

const defaultErrorKind = "Compilation Error"

// Diagnostic is everything the error page shows about a failed compilation.
// Line is 0 when unknown; the columns are -1 when unknown.
type Diagnostic struct {
	Source      string
	Kind        string
	Message     string
	Line        int
	ColumnStart int
	ColumnEnd   int
	Excerpt     []ExcerptLine
}

// ExcerptLine is one numbered line of source around the failure.
type ExcerptLine struct {
	Number  int
	Text    string
	Failing bool
}

// NewDiagnostic builds a Diagnostic from a compile error and the content of
// the source that failed.
func NewDiagnostic(ce *errors.CompileError, content string) Diagnostic {
	return Diagnostic{
		Source:      ce.SourcePath,
		Kind:        errorKind(ce.Message),
		Message:     ce.Message,
		Line:        ce.Line,
		ColumnStart: ce.ColumnStart,
		ColumnEnd:   ce.ColumnEnd,
		Excerpt:     excerpt(content, ce.Line),
	}
}

// errorKind names the class of failure a compiler message reports:
// "Parse error on line 4: ..." gives "Parse Error" and
// "[stdin]:2:1: error: ..." gives "Error". Messages that name no error
// class give defaultErrorKind.
func errorKind(msg string) string {
	for _, segment := range strings.Split(msg, ":") {
		segment = strings.TrimSpace(segment)
		if i := strings.Index(segment, " on line"); i >= 0 {
			segment = segment[:i]
		}
		if segment != "" && strings.Contains(strings.ToLower(segment), "error") {
			// Casers are stateful, so each call gets its own. NoLower keeps
			// spellings such as SyntaxError intact.
			return cases.Title(language.English, cases.NoLower).String(segment)
		}
	}
	return defaultErrorKind
}

func excerpt(content string, line int) []ExcerptLine {
	if line <= 0 || content == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	if line > len(lines) {
		return nil
	}

	first := max(1, line-excerptContext)
	last := min(len(lines), line+excerptContext)

	out := make([]ExcerptLine, 0, last-first+1)
	for n := first; n <= last; n++ {
		out = append(out, ExcerptLine{Number: n, Text: lines[n-1], Failing: n == line})
	}
	return out
}

// ErrorPage renders the diagnostic page for a failed compilation.
func ErrorPage(d Diagnostic) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		kind := d.Kind
		if kind == "" {
			kind = defaultErrorKind
		}
		writeHead(&b, kind+" in "+d.Source)

		b.WriteString(`<h1>` + templ.EscapeString(kind) + `</h1>`)
		b.WriteString(`<p class="location"><span class="source">` + templ.EscapeString(d.Source) + `</span>`)
		if d.Line > 0 {
			b.WriteString(` line <span class="line">` + strconv.Itoa(d.Line) + `</span>`)
		}
		b.WriteString(`</p>`)
		b.WriteString(`<pre class="message">` + templ.EscapeString(d.Message) + `</pre>`)

		if len(d.Excerpt) > 0 {
			b.WriteString(`<table class="excerpt">`)
			for _, l := range d.Excerpt {
				class := ""
				if l.Failing {
					class = ` class="failing"`
				}
				fmt.Fprintf(&b, `<tr%s><td class="number">%d</td><td><pre>%s</pre></td></tr>`,
					class, l.Number, templ.EscapeString(l.Text))
			}
			b.WriteString(`</table>`)
		}

		b.WriteString(`</body></html>`)
		_, err := io.WriteString(w, b.String())
		return err
	})
}

// GenericErrorPage renders a page for failures whose details must not reach
// the requester.
func GenericErrorPage(status int) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder

		title := http.StatusText(status)
		writeHead(&b, title)
		b.WriteString(`<h1>` + templ.EscapeString(title) + `</h1>`)
		b.WriteString(`<p>The asset could not be served. Details have been logged.</p>`)
		b.WriteString(`</body></html>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func writeHead(b *strings.Builder, title string) {
	b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>`)
	b.WriteString(templ.EscapeString(title))
	b.WriteString(`</title><style>`)
	b.WriteString(errorPageCSS)
	b.WriteString(`</style></head><body>`)
}

const errorPageCSS = `body{font-family:system-ui,sans-serif;margin:2rem;color:#222}` +
	`h1{color:#b00020;font-size:1.4rem}` +
	`.source{font-family:monospace;font-weight:bold}` +
	`.message{background:#fff4f4;border-left:4px solid #b00020;padding:.75rem;white-space:pre-wrap}` +
	`.excerpt{border-collapse:collapse;font-family:monospace}` +
	`.excerpt td{padding:0 .5rem}.excerpt pre{margin:0}` +
	`.number{color:#888;text-align:right}` +
	`.failing{background:#ffe0e0}`

// renderPage writes a component as an HTML response.
func renderPage(ctx context.Context, w http.ResponseWriter, status int, c templ.Component) error {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	return c.Render(ctx, w)
}
