package outline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxLines caps the number of lines accepted by a single parse.
const DefaultMaxLines = 200000

// Parser reconstructs document outlines with one marker catalog. It holds no
// mutable state and may be shared across goroutines.
type Parser struct {
	catalog  marker.Catalog
	log      *slog.Logger
	workers  int
	maxLines int
}

// Option configures a Parser.
type Option func(*Parser)

// WithWorkers parses up to n paragraphs concurrently.
func WithWorkers(n int) Option {
	return func(p *Parser) { p.workers = n }
}

// WithMaxLines sets the line cap. Zero or less disables it.
func WithMaxLines(n int) Option {
	return func(p *Parser) { p.maxLines = n }
}

// New returns a parser that classifies lines with catalog.
func New(catalog marker.Catalog, log *slog.Logger, opts ...Option) *Parser {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &Parser{
		catalog:  catalog,
		log:      log.With("catalog", catalog.Name()),
		workers:  1,
		maxLines: DefaultMaxLines,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Catalog returns the catalog the parser classifies with.
func (p *Parser) Catalog() marker.Catalog { return p.catalog }

// Levels builds the marker graph for one paragraph and resolves it. An empty
// map means no line carried a marker.
func (p *Parser) Levels(lines []string) (LevelMap, error) {
	g, err := BuildGraph(p.catalog, lines)
	if err != nil {
		p.log.Warn("duplicate marker, paragraph left flat", "error", err)
		return nil, err
	}
	levels, err := ResolveLevels(g)
	if err != nil {
		var cyc *CycleError
		if errors.As(err, &cyc) {
			p.log.Warn("marker graph has a cycle, paragraph left flat",
				"nodes", g.Len(),
				"edges", len(cyc.Edges),
				"graph", cyc.EdgeList(),
				"residual", fmt.Sprint(cyc.Nodes),
			)
		}
		return nil, err
	}
	return levels, nil
}

// BuildTree parses one paragraph. Structural failures fall back to a flat
// tree whose Error field names the cause, and a nil error is returned. A
// non-nil error means an internal invariant broke; the flat tree is still
// returned so callers keep one tree per paragraph.
func (p *Parser) BuildTree(blocks []doctree.Block) (*doctree.Tree, error) {
	blocks = cleanBlocks(blocks)
	levels, err := p.Levels(textLines(blocks))
	if err != nil {
		return flatTree(blocks, err.Error()), nil
	}
	if len(levels) == 0 {
		return flatTree(blocks, ""), nil
	}
	tree, err := buildTree(blocks, p.catalog, levels)
	if err != nil {
		p.log.Error("outline invariant violated", "error", err)
		return flatTree(blocks, err.Error()), err
	}
	return tree, nil
}

// ParseBlocks splits blocks into paragraphs and builds one tree per
// paragraph, in order. Invariant violations are joined into the returned
// error; the trees are returned regardless.
func (p *Parser) ParseBlocks(ctx context.Context, blocks []doctree.Block) ([]*doctree.Tree, error) {
	if err := p.checkSize(len(blocks)); err != nil {
		return nil, err
	}
	paragraphs := SplitBlocks(blocks)
	trees := make([]*doctree.Tree, len(paragraphs))
	errs := make([]error, len(paragraphs))

	build := func(i int) {
		tree, err := p.BuildTree(paragraphs[i])
		trees[i] = tree
		if err != nil {
			errs[i] = fmt.Errorf("paragraph %d: %w", i, err)
		}
	}

	if p.workers <= 1 || len(paragraphs) == 1 {
		for i := range paragraphs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			build(i)
		}
		return trees, errors.Join(errs...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i := range paragraphs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			build(i)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return trees, errors.Join(errs...)
}

// ParseText parses raw text, one line per block.
func (p *Parser) ParseText(ctx context.Context, content string) ([]*doctree.Tree, error) {
	return p.ParseBlocks(ctx, doctree.TextBlocks(strings.Split(content, "\n")))
}

// ParseDocument parses an extracted document.
func (p *Parser) ParseDocument(ctx context.Context, doc *doctree.Document) ([]*doctree.Tree, error) {
	return p.ParseBlocks(ctx, doc.Blocks)
}

// ParseFile reads a UTF-8 text file and parses it. A missing file surfaces
// the underlying fs error.
func (p *Parser) ParseFile(ctx context.Context, path string) ([]*doctree.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return p.ParseText(ctx, string(data))
}

// Analyze reports the level map of each paragraph without building trees.
func (p *Parser) Analyze(ctx context.Context, content string) ([]doctree.ParseResult, error) {
	paragraphs := SplitParagraphs(content)
	if err := p.checkSize(strings.Count(content, "\n") + 1); err != nil {
		return nil, err
	}
	results := make([]doctree.ParseResult, len(paragraphs))
	for i, para := range paragraphs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r := doctree.ParseResult{Content: para}
		lines := textLines(cleanBlocks(doctree.TextBlocks(strings.Split(para, "\n"))))
		levels, err := p.Levels(lines)
		switch {
		case err != nil:
			r.Error = err.Error()
		case len(levels) > 0:
			r.MarkerLevels = levels
		}
		results[i] = r
	}
	return results, nil
}

func (p *Parser) checkSize(lines int) error {
	if p.maxLines > 0 && lines > p.maxLines {
		return fmt.Errorf("%w: %d lines, limit %d", ErrTooManyLines, lines, p.maxLines)
	}
	return nil
}
