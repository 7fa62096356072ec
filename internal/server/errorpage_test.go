package server

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/conneroisu/roaster/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

// textOf returns the text content of every element with the given class.
func textOf(t *testing.T, page string, class string) []string {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)

	var out []string
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			for _, attr := range n.Attr {
				if attr.Key == "class" && attr.Val == class {
					var b strings.Builder
					collectText(n, &b)
					out = append(out, b.String())
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return out
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

func TestNewDiagnostic_Excerpt(t *testing.T) {
	content := "one\ntwo\nthree\nfour\nfive\nsix\nseven\n"
	ce := errors.NewCompileError("app/a.coffee", "Parse error on line 4: unexpected INDENT", nil)

	d := NewDiagnostic(ce, content)

	assert.Equal(t, "app/a.coffee", d.Source)
	assert.Equal(t, 4, d.Line)
	assert.Equal(t, -1, d.ColumnStart)
	assert.Equal(t, -1, d.ColumnEnd)
	require.Len(t, d.Excerpt, 5)
	assert.Equal(t, ExcerptLine{Number: 2, Text: "two"}, d.Excerpt[0])
	assert.Equal(t, ExcerptLine{Number: 4, Text: "four", Failing: true}, d.Excerpt[2])
	assert.Equal(t, ExcerptLine{Number: 6, Text: "six"}, d.Excerpt[4])
}

func TestNewDiagnostic_ExcerptEdges(t *testing.T) {
	content := "one\ntwo\nthree"

	first := NewDiagnostic(errors.NewCompileError("a.coffee", "error on line 1", nil), content)
	require.Len(t, first.Excerpt, 3)
	assert.True(t, first.Excerpt[0].Failing)

	unknown := NewDiagnostic(errors.NewCompileError("a.coffee", "something broke", nil), content)
	assert.Zero(t, unknown.Line)
	assert.Empty(t, unknown.Excerpt)

	beyond := NewDiagnostic(errors.NewCompileError("a.coffee", "error on line 40", nil), content)
	assert.Empty(t, beyond.Excerpt)
}

func TestErrorPage_Render(t *testing.T) {
	ce := errors.NewCompileError("app/bad.coffee", "Parse error on line 2: unexpected <script>", nil)
	d := NewDiagnostic(ce, "a = 1\nb = (\nc = 3\n")

	var buf bytes.Buffer
	require.NoError(t, ErrorPage(d).Render(context.Background(), &buf))
	page := buf.String()

	assert.Equal(t, []string{"app/bad.coffee"}, textOf(t, page, "source"))
	assert.Equal(t, []string{"2"}, textOf(t, page, "line"))
	assert.Equal(t, []string{"Parse error on line 2: unexpected <script>"}, textOf(t, page, "message"))
	assert.Equal(t, []string{"2b = ("}, textOf(t, page, "failing"))
	assert.NotContains(t, page, "<script>", "messages are escaped")
	assert.Contains(t, page, "<title>Parse Error in app/bad.coffee</title>")
	assert.Contains(t, page, "<h1>Parse Error</h1>")
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"Parse error on line 2: unexpected INDENT", "Parse Error"},
		{"[stdin]:2:1: error: unexpected indentation", "Error"},
		{"SyntaxError: missing )", "SyntaxError"},
		{"reserved word error in assignment: \"class\"", "Reserved Word Error In Assignment"},
		{"compiler crashed", defaultErrorKind},
		{"", defaultErrorKind},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, errorKind(tt.msg))
		})
	}
}

func TestErrorPage_UnknownLine(t *testing.T) {
	ce := errors.NewCompileError("app/bad.coffee", "compiler crashed", nil)

	var buf bytes.Buffer
	require.NoError(t, ErrorPage(NewDiagnostic(ce, "x = 1")).Render(context.Background(), &buf))

	assert.Empty(t, textOf(t, buf.String(), "line"))
	assert.Empty(t, textOf(t, buf.String(), "excerpt"))
	assert.Contains(t, buf.String(), "<h1>Compilation Error</h1>")
}

func TestGenericErrorPage(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, GenericErrorPage(http.StatusInternalServerError).Render(context.Background(), &buf))

	assert.Contains(t, buf.String(), "<h1>Internal Server Error</h1>")
}
