package chunker

import (
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
)

// Config controls flattening.
type Config struct {
	ChunkSize    int           // Budget per chunk in characters.
	HeadingTypes []marker.Type // Marker types that extend the title path.
	ArticleTypes []marker.Type // Marker types that are terminal unless they have children.
}

// DefaultConfig returns the defaults used for Chinese regulatory documents.
func DefaultConfig() Config {
	return Config{
		ChunkSize:    1500,
		HeadingTypes: []marker.Type{marker.Chapter, marker.Section, marker.Part, 5},
		ArticleTypes: []marker.Type{marker.Article},
	}
}

// WithPolicy overrides the type sets with the ones a catalog declares.
func (c Config) WithPolicy(p marker.Policy) Config {
	if p.HeadingTypes != nil {
		c.HeadingTypes = p.HeadingTypes
	}
	if p.ArticleTypes != nil {
		c.ArticleTypes = p.ArticleTypes
	}
	return c
}

// Fill takes the type sets from p only where c leaves them unset.
func (c Config) Fill(p marker.Policy) Config {
	if c.HeadingTypes == nil {
		c.HeadingTypes = p.HeadingTypes
	}
	if c.ArticleTypes == nil {
		c.ArticleTypes = p.ArticleTypes
	}
	return c
}

// Flatten turns the paragraph trees of one document into ordered chunks.
func Flatten(trees []*doctree.Tree, cfg Config) []doctree.Chunk {
	def := DefaultConfig()
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.HeadingTypes == nil {
		cfg.HeadingTypes = def.HeadingTypes
	}
	if cfg.ArticleTypes == nil {
		cfg.ArticleTypes = def.ArticleTypes
	}

	f := &flattener{cfg: cfg}
	for i, tree := range trees {
		f.paragraph = i
		for _, n := range tree.Output {
			f.walk(n, nil)
		}
	}
	for i := range f.chunks {
		f.chunks[i].Metadata["index"] = i
		f.chunks[i].Metadata["tokens"] = EstimateTokens(f.chunks[i].Content)
	}
	return f.chunks
}

// FlattenTree flattens a single paragraph tree.
func FlattenTree(tree *doctree.Tree, cfg Config) []doctree.Chunk {
	return Flatten([]*doctree.Tree{tree}, cfg)
}

type flattener struct {
	cfg       Config
	paragraph int
	chunks    []doctree.Chunk
}

// walk emits chunks for n and its subtree. path holds the marker lines of
// enclosing headings.
func (f *flattener) walk(n *doctree.Node, path []string) {
	if n.Table != nil {
		f.emitTable(n.Table, path)
		return
	}
	if n.MarkerType == nil {
		f.emitText(path, n.Content, nil)
		f.walkChildren(n, path)
		return
	}

	t := *n.MarkerType
	switch {
	case slices.Contains(f.cfg.HeadingTypes, t):
		extended := appendPath(path, n.Block)
		if n.Content != "" || len(n.Children) == 0 {
			f.emitText(extended, n.Content, &t)
		}
		f.walkChildren(n, extended)
	case slices.Contains(f.cfg.ArticleTypes, t) && len(n.Children) > 0:
		extended := appendPath(path, n.Block)
		if n.Content != "" {
			f.emitText(extended, n.Content, &t)
		}
		f.walkChildren(n, extended)
	default:
		f.emitText(path, joinLines(n.Block, n.Content), &t)
		f.walkChildren(n, path)
	}
}

func (f *flattener) walkChildren(n *doctree.Node, path []string) {
	for _, c := range n.Children {
		f.walk(c, path)
	}
}

// emitText writes body under the path prefix, splitting on line boundaries
// when the whole would exceed the budget. A line is never cut.
func (f *flattener) emitText(path []string, body string, t *marker.Type) {
	prefix := strings.Join(path, "\n")
	if body == "" {
		if prefix != "" {
			f.push(prefix, path, t, false)
		}
		return
	}
	for _, piece := range splitLines(body, f.cfg.ChunkSize-runeLen(prefix)-1) {
		f.push(joinLines(prefix, piece), path, t, false)
	}
}

// emitTable groups rows under the path and table title. A row that would
// push the current chunk past the budget starts a new chunk carrying the
// same prefix.
func (f *flattener) emitTable(tbl *doctree.Table, path []string) {
	prefix := joinLines(strings.Join(path, "\n"), cleanString(tbl.Title))
	var current string
	for _, row := range tbl.Rows {
		text := cleanString(strings.Join(row, "|"))
		if text == "" {
			continue
		}
		if current != "" && runeLen(current)+1+runeLen(text) <= f.cfg.ChunkSize {
			current += "\n" + text
			continue
		}
		if current != "" {
			f.push(current, path, nil, true)
		}
		current = joinLines(prefix, text)
	}
	switch {
	case current != "":
		f.push(current, path, nil, true)
	case prefix != "":
		f.push(prefix, path, nil, true)
	}
}

// push appends a chunk, merging with the previous one when either is a
// line-aligned prefix or suffix of the other.
func (f *flattener) push(content string, path []string, t *marker.Type, table bool) {
	meta := map[string]any{
		"paragraph":  f.paragraph,
		"breadcrumb": copyBreadcrumb(path),
	}
	if t != nil {
		meta["marker_type"] = int(*t)
	}
	if table {
		meta["table"] = true
	}
	chunk := doctree.Chunk{Content: content, Metadata: meta}

	if n := len(f.chunks); n > 0 {
		last := f.chunks[n-1].Content
		switch {
		case covers(content, last):
			f.chunks[n-1] = chunk
			return
		case covers(last, content):
			return
		}
	}
	f.chunks = append(f.chunks, chunk)
}

func covers(s, part string) bool {
	return s == part || strings.HasPrefix(s, part+"\n") || strings.HasSuffix(s, "\n"+part)
}

// splitLines groups lines into pieces of at most budget characters.
func splitLines(text string, budget int) []string {
	if runeLen(text) <= budget {
		return []string{text}
	}
	var pieces []string
	var current strings.Builder
	currentLen := 0
	for _, line := range strings.Split(text, "\n") {
		n := runeLen(line)
		if currentLen > 0 && currentLen+1+n > budget {
			pieces = append(pieces, current.String())
			current.Reset()
			currentLen = 0
		}
		if currentLen > 0 {
			current.WriteByte('\n')
			currentLen++
		}
		current.WriteString(line)
		currentLen += n
	}
	if currentLen > 0 {
		pieces = append(pieces, current.String())
	}
	return pieces
}

var whitespace = regexp.MustCompile(`\s+`)

// cleanString replaces ideographic spaces and collapses whitespace runs.
func cleanString(s string) string {
	s = strings.ReplaceAll(s, "　", " ")
	return whitespace.ReplaceAllString(strings.TrimSpace(s), " ")
}

func joinLines(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "\n" + b
}

func appendPath(path []string, title string) []string {
	out := make([]string, len(path), len(path)+1)
	copy(out, path)
	return append(out, title)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func copyBreadcrumb(bc []string) []string {
	out := make([]string, len(bc))
	copy(out, bc)
	return out
}
