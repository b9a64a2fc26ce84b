package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
)

// TextParser handles plain text files. Every non-empty line is a block;
// blank lines carry no structure.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []doctree.Block
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line != "" {
			blocks = append(blocks, doctree.Block{Text: line})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return &doctree.Document{Title: titleFromFilename(filename), Blocks: blocks}, nil
}
