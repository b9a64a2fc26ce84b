package marker

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dlclark/regexp2"
	"golang.org/x/text/width"
)

// Type identifies one pattern of a catalog. Values are small positive ints
// and are only meaningful within the catalog that produced them.
type Type int

// Catalog classifies lines against an ordered set of marker patterns.
type Catalog interface {
	Name() string
	Classify(line string) (Type, bool)
	Split(line string) (marker, rest string)
	Types() []Type
}

// Policy tells the chunker which marker types open a heading path and which
// are articles. A nil slice means the chunker default applies.
type Policy struct {
	HeadingTypes []Type
	ArticleTypes []Type
}

// regexp2 patterns only run for lines that RE2 cannot express; a bounded
// timeout keeps a hostile custom pattern from stalling a parse.
const matchTimeout = 250 * time.Millisecond

var punctuation = strings.NewReplacer("（", "(", "）", ")", "、", ".")

// Normalize maps full-width punctuation and digits to their ASCII forms and
// trims the line, so "（一）" and "(一)" classify identically.
func Normalize(line string) string {
	return strings.TrimSpace(width.Fold.String(punctuation.Replace(line)))
}

// Pattern is a single entry of a catalog.
type Pattern struct {
	Type Type
	Expr string
	m    matcher
}

type matcher interface {
	// prefix returns the byte length of a match anchored at the start of s.
	prefix(s string) (int, bool)
}

type stdMatcher struct{ re *regexp.Regexp }

func (m stdMatcher) prefix(s string) (int, bool) {
	loc := m.re.FindStringIndex(s)
	if loc == nil || loc[0] != 0 {
		return 0, false
	}
	return loc[1], true
}

type lookaroundMatcher struct{ re *regexp2.Regexp }

func (m lookaroundMatcher) prefix(s string) (int, bool) {
	match, err := m.re.FindStringMatch(s)
	if err != nil || match == nil || match.Index != 0 {
		return 0, false
	}
	// regexp2 reports rune offsets; the matched text gives the byte length.
	return len(match.String()), true
}

// compilePattern anchors expr at line start. RE2 is tried first; expressions
// using lookaround fall through to regexp2.
func compilePattern(t Type, expr string) (Pattern, error) {
	anchored := "^(?:" + expr + ")"
	if re, err := regexp.Compile(anchored); err == nil {
		return Pattern{Type: t, Expr: expr, m: stdMatcher{re}}, nil
	}
	re, err := regexp2.Compile(anchored, regexp2.None)
	if err != nil {
		return Pattern{}, fmt.Errorf("compile marker %d %q: %w", t, expr, err)
	}
	re.MatchTimeout = matchTimeout
	return Pattern{Type: t, Expr: expr, m: lookaroundMatcher{re}}, nil
}

// PatternCatalog is an immutable, ordered pattern list. It is safe for
// concurrent use.
type PatternCatalog struct {
	name        string
	description string
	patterns    []Pattern
	policy      Policy
}

// NewCatalog compiles patterns in priority order.
func NewCatalog(name, description string, entries []Entry, policy Policy) (*PatternCatalog, error) {
	c := &PatternCatalog{name: name, description: description, policy: policy}
	seen := make(map[Type]bool, len(entries))
	for _, e := range entries {
		if e.Type <= 0 {
			return nil, fmt.Errorf("catalog %s: marker type must be positive, got %d", name, e.Type)
		}
		if seen[e.Type] {
			return nil, fmt.Errorf("catalog %s: duplicate marker type %d", name, e.Type)
		}
		seen[e.Type] = true
		p, err := compilePattern(e.Type, e.Pattern)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", name, err)
		}
		c.patterns = append(c.patterns, p)
	}
	return c, nil
}

// Entry is the uncompiled form of a Pattern.
type Entry struct {
	Type    Type   `yaml:"type" json:"type"`
	Pattern string `yaml:"pattern" json:"pattern"`
}

func (c *PatternCatalog) Name() string        { return c.name }
func (c *PatternCatalog) Description() string { return c.description }
func (c *PatternCatalog) Policy() Policy      { return c.policy }

// Classify returns the type of the first pattern matching the normalized line.
func (c *PatternCatalog) Classify(line string) (Type, bool) {
	norm := Normalize(line)
	for _, p := range c.patterns {
		if _, ok := p.m.prefix(norm); ok {
			return p.Type, true
		}
	}
	return 0, false
}

// Split separates the marker prefix of a line from its text. Both halves are
// normalized; a line without a marker returns an empty marker.
func (c *PatternCatalog) Split(line string) (string, string) {
	norm := Normalize(line)
	for _, p := range c.patterns {
		if end, ok := p.m.prefix(norm); ok {
			return strings.TrimSpace(norm[:end]), strings.TrimSpace(norm[end:])
		}
	}
	return "", norm
}

// Types lists the catalog's marker types in priority order.
func (c *PatternCatalog) Types() []Type {
	types := make([]Type, len(c.patterns))
	for i, p := range c.patterns {
		types[i] = p.Type
	}
	return types
}
