package parser

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Ordered list items
// keep their rendered number so "1." style markers survive extraction.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	doc := md.Parser().Parse(text.NewReader(src))

	title := titleFromFilename(filename)
	b := &builder{}
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok && h.Level == 1 && len(b.blocks) == 0 {
			title = nodeText(h, src)
		}
		p.block(b, n, src)
	}
	return b.document(title), nil
}

func (p *MarkdownParser) block(b *builder, n ast.Node, src []byte) {
	switch node := n.(type) {
	case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
		b.text(nodeText(node, src))
	case *ast.FencedCodeBlock, *ast.CodeBlock:
		b.text(blockLines(node, src))
	case *ast.List:
		p.list(b, node, src)
	case *extast.Table:
		b.table("", tableRows(node, src))
	case *ast.ThematicBreak, *ast.HTMLBlock:
	default:
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			p.block(b, c, src)
		}
	}
}

func (p *MarkdownParser) list(b *builder, l *ast.List, src []byte) {
	num := l.Start
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		prefix := ""
		if l.IsOrdered() {
			prefix = fmt.Sprintf("%d%c ", num, l.Marker)
			num++
		}
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if _, nested := c.(*ast.List); prefix != "" && !nested {
				b.text(prefix + nodeText(c, src))
				prefix = ""
				continue
			}
			p.block(b, c, src)
		}
	}
}

func tableRows(t *extast.Table, src []byte) [][]string {
	var rows [][]string
	for r := t.FirstChild(); r != nil; r = r.NextSibling() {
		var row []string
		for c := r.FirstChild(); c != nil; c = c.NextSibling() {
			if cell, ok := c.(*extast.TableCell); ok {
				row = append(row, nodeText(cell, src))
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows
}

// nodeText renders the inline text of n, one output line per source line.
func nodeText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	writeInline(&buf, n, src)
	return strings.TrimSpace(buf.String())
}

func writeInline(buf *bytes.Buffer, n ast.Node, src []byte) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			buf.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(t.Value)
		default:
			writeInline(buf, c, src)
		}
	}
}

func blockLines(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(src))
	}
	return buf.String()
}
