package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// Parser extracts ordered text lines and tables from raw document bytes.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.Document, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

func titleFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// isTableTitle reports whether a line captions the table that follows it,
// e.g. "表1 检验项目" or "附录检验项目表".
func isTableTitle(line string) bool {
	return strings.HasPrefix(line, "表") || strings.HasSuffix(line, "表")
}

// builder accumulates document blocks. A caption line is held back until
// the next block: a table takes it as its title, anything else releases it
// as plain text.
type builder struct {
	blocks  []doctree.Block
	caption string
}

// text appends each non-empty line of s.
func (b *builder) text(s string) {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.release()
		if isTableTitle(line) {
			b.caption = line
			continue
		}
		b.blocks = append(b.blocks, doctree.Block{Text: line})
	}
}

// table appends a table. An empty title falls back to the held caption.
func (b *builder) table(title string, rows [][]string) {
	if title == "" {
		title = b.caption
	} else {
		b.release()
	}
	b.caption = ""
	if len(rows) == 0 && title == "" {
		return
	}
	b.blocks = append(b.blocks, doctree.Block{Table: &doctree.Table{Title: title, Rows: rows}})
}

func (b *builder) release() {
	if b.caption != "" {
		b.blocks = append(b.blocks, doctree.Block{Text: b.caption})
		b.caption = ""
	}
}

func (b *builder) document(title string) *doctree.Document {
	b.release()
	return &doctree.Document{Title: title, Blocks: b.blocks}
}
