package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docchunk/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Headings keep their
// level as font size; every other block becomes body text.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read markdown: %w", err)
	}
	if len(bytes.TrimSpace(src)) == 0 {
		return nil, ErrEmptyInput
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	var l layout
	meta := make(map[string]any)
	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := extractText(node, src)
			if _, ok := meta["title"]; !ok && node.Level == 1 && title != "" {
				meta["title"] = title
			}
			l.heading(title, node.Level)
		case *ast.ThematicBreak:
			continue
		default:
			for _, line := range strings.Split(extractText(n, src), "\n") {
				l.body(line)
			}
		}
	}

	return newDocument(filename, l.result(), 1, meta)
}

// extractText gets the text content of a goldmark AST node. Blocks without
// inline children (code blocks) contribute their raw lines.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && n.FirstChild() == nil {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
		return strings.TrimSpace(buf.String())
	}
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
			continue
		}
		if buf.Len() > 0 && c.Type() == ast.TypeBlock {
			buf.WriteByte('\n')
		}
		buf.WriteString(extractText(c, src))
	}
	return strings.TrimSpace(buf.String())
}
