// Package markdown flattens item descriptions for terminal and tool output.
package markdown

import (
	"html"
	"strings"

	gm "github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	gmparser "github.com/gomarkdown/markdown/parser"
)

// PlainText renders a description as a single line of text. Markdown
// emphasis, links, and inline HTML tags are dropped; their text is kept.
func PlainText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}

	doc := gm.Parse([]byte(src), gmparser.NewWithExtensions(
		gmparser.CommonExtensions|gmparser.Autolink,
	))

	var b strings.Builder
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		switch n := node.(type) {
		case *ast.Text:
			if entering {
				b.Write(n.Literal)
			}
		case *ast.Code:
			if entering {
				b.Write(n.Literal)
			}
		case *ast.CodeBlock:
			if entering {
				b.WriteByte(' ')
				b.Write(n.Literal)
				b.WriteByte(' ')
			}
		case *ast.Softbreak, *ast.Hardbreak:
			b.WriteByte(' ')
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if !entering {
				b.WriteByte(' ')
			}
		}
		return ast.GoToNext
	})

	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}

// Summary is PlainText cut to at most max runes, ending in an ellipsis when
// cut.
func Summary(src string, max int) string {
	text := PlainText(src)
	runes := []rune(text)
	if max <= 0 || len(runes) <= max {
		return text
	}
	return strings.TrimRight(string(runes[:max-1]), " ") + "…"
}
