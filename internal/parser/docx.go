package parser

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Table-of-contents paragraphs are skipped;
// tables keep their grid and pick up a preceding "表" caption as title.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	// go-docx needs a ReaderAt+size, so write to temp file.
	tmp, err := os.CreateTemp("", "docoutline-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	doc, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	b := &builder{}
	for _, item := range doc.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			if isTOCStyle(it) {
				continue
			}
			text := docxParagraphText(it)
			if strings.ReplaceAll(text, " ", "") == "目录" {
				continue
			}
			b.text(text)
		case *docx.Table:
			b.table("", docxTableRows(it))
		}
	}
	return b.document(titleFromFilename(filename)), nil
}

func isTOCStyle(para *docx.Paragraph) bool {
	if para.Properties == nil || para.Properties.Style == nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(para.Properties.Style.Val), "toc")
}

func docxTableRows(t *docx.Table) [][]string {
	rows := make([][]string, 0, len(t.TableRows))
	for _, tr := range t.TableRows {
		row := make([]string, 0, len(tr.TableCells))
		for _, tc := range tr.TableCells {
			parts := make([]string, 0, len(tc.Paragraphs))
			for _, para := range tc.Paragraphs {
				if s := docxParagraphText(para); s != "" {
					parts = append(parts, s)
				}
			}
			row = append(row, strings.Join(parts, " "))
		}
		rows = append(rows, row)
	}
	return rows
}

// docxParagraphText joins the text runs of a paragraph and collapses
// whitespace, ideographic spaces included.
func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				buf.WriteString(t.Text)
			}
		}
	}
	return strings.Join(strings.Fields(buf.String()), " ")
}
