package doctree

import "github.com/dgallion1/docoutline/internal/marker"

// Document is the extracted form of a source file: an ordered run of text
// lines and tables.
type Document struct {
	Title  string
	Blocks []Block
}

// Block is one extracted unit. Exactly one of Text or Table is set.
type Block struct {
	Text  string
	Table *Table
}

// Table is a captioned grid of cell text.
type Table struct {
	Title string     `json:"title"`
	Rows  [][]string `json:"rows"`
}

// Lines returns the text blocks of the document, skipping tables.
func (d *Document) Lines() []string {
	lines := make([]string, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		if b.Table == nil {
			lines = append(lines, b.Text)
		}
	}
	return lines
}

// TextBlocks wraps lines as text blocks.
func TextBlocks(lines []string) []Block {
	blocks := make([]Block, len(lines))
	for i, l := range lines {
		blocks[i] = Block{Text: l}
	}
	return blocks
}

// Node is one entry of an outline tree.
type Node struct {
	Block      string       `json:"block"`       // Marker line, empty for content-only nodes.
	Content    string       `json:"content"`     // Newline-joined text following the marker line.
	Children   []*Node      `json:"children"`
	MarkerType *marker.Type `json:"marker_type"` // nil for content-only and table nodes.
	Level      int          `json:"level,omitempty"`
	Table      *Table       `json:"table,omitempty"`
}

// Tree is the outline of one paragraph.
type Tree struct {
	MarkerTypes []marker.Type `json:"marker_types"`
	Output      []*Node       `json:"output"`
	Error       string        `json:"error,omitempty"` // Why the paragraph fell back to a flat node.
}

// ParseResult is the per-paragraph outcome of level inference.
type ParseResult struct {
	Content      string              `json:"content"`
	MarkerLevels map[marker.Type]int `json:"marker_levels,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// Chunk is a retrieval-ready piece of a flattened outline.
type Chunk struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}
