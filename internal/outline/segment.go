package outline

import (
	"regexp"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
)

// boundary matches lines that open an appendix: "附件", "附 3", "附3-1",
// "Appendix", "Appendix 2", "Appendix 2-1".
var boundary = regexp.MustCompile(`^(?:附件|附\s*\d+(?:-\d+)?|(?i:appendix)(?:\s+\d+(?:-\d+)?)?)$`)

// IsBoundary reports whether a line starts a new paragraph.
func IsBoundary(line string) bool {
	return boundary.MatchString(marker.Normalize(line))
}

// SplitParagraphs splits raw text at appendix boundaries. The boundary line
// opens the next paragraph. Empty input yields a single empty paragraph.
func SplitParagraphs(content string) []string {
	var paragraphs []string
	var current []string
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		line = strings.TrimSpace(line)
		if IsBoundary(line) && len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, "\n"))
			current = nil
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
	}
	return paragraphs
}

// SplitBlocks applies the boundary rule of SplitParagraphs to extracted
// blocks. Tables stay with the paragraph they appear in.
func SplitBlocks(blocks []doctree.Block) [][]doctree.Block {
	var groups [][]doctree.Block
	var current []doctree.Block
	hasContent := false
	for _, b := range blocks {
		if b.Table == nil && IsBoundary(b.Text) && hasContent {
			groups = append(groups, current)
			current, hasContent = nil, false
		}
		current = append(current, b)
		if b.Table != nil || strings.TrimSpace(b.Text) != "" {
			hasContent = true
		}
	}
	if len(current) > 0 || len(groups) == 0 {
		groups = append(groups, current)
	}
	return groups
}
