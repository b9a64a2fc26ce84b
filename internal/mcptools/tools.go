// Package mcptools exposes the outline parser as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dgallion1/docoutline/internal/chunker"
	"github.com/dgallion1/docoutline/internal/marker"
	"github.com/dgallion1/docoutline/internal/outline"
)

// ParseInput defines input for the outline_parse and outline_levels tools.
type ParseInput struct {
	Text    string `json:"text" jsonschema:"document text, one line per marker or content line"`
	Catalog string `json:"catalog,omitempty" jsonschema:"marker catalog name (general, fda, ich or a custom catalog)"`
}

// ChunksInput defines input for the outline_chunks tool.
type ChunksInput struct {
	Text      string `json:"text" jsonschema:"document text"`
	Catalog   string `json:"catalog,omitempty" jsonschema:"marker catalog name"`
	ChunkSize int    `json:"chunk_size,omitempty" jsonschema:"maximum characters per chunk (default from server configuration)"`
}

// Tools holds the shared state of the outline tools.
type Tools struct {
	catalogs *marker.Registry
	chunk    chunker.Config
	maxLines int
	log      *slog.Logger
}

// New returns the outline tools. A nil registry serves the built-in catalogs.
func New(catalogs *marker.Registry, chunk chunker.Config, maxLines int, log *slog.Logger) *Tools {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if catalogs == nil {
		catalogs = marker.NewRegistry()
	}
	if chunk.ChunkSize <= 0 {
		chunk.ChunkSize = chunker.DefaultConfig().ChunkSize
	}
	return &Tools{catalogs: catalogs, chunk: chunk, maxLines: maxLines, log: log}
}

// Register adds every outline tool to server.
func (t *Tools) Register(server *mcp.Server) {
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "outline_parse",
			Description: "Parse numbered regulatory or legal text into outline trees. Each appendix-delimited paragraph yields one tree of marker nodes with their content. Paragraphs whose numbering is inconsistent fall back to a flat node with an error reason.",
		},
		t.Parse,
	)
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "outline_chunks",
			Description: "Parse text into outline trees and flatten them into retrieval chunks. Each chunk carries its heading breadcrumb and stays within chunk_size characters.",
		},
		t.Chunks,
	)
	mcp.AddTool(server,
		&mcp.Tool{
			Name:        "outline_levels",
			Description: "Report the inferred nesting level of every marker type per paragraph, without building trees.",
		},
		t.Levels,
	)
}

func (t *Tools) parser(name string) (*marker.PatternCatalog, *outline.Parser, error) {
	cat, err := t.catalogs.Lookup(name)
	if err != nil {
		return nil, nil, err
	}
	return cat, outline.New(cat, t.log, outline.WithMaxLines(t.maxLines)), nil
}

// Parse handles outline_parse.
func (t *Tools) Parse(ctx context.Context, req *mcp.CallToolRequest, in ParseInput) (*mcp.CallToolResult, any, error) {
	if in.Text == "" {
		return nil, nil, errors.New("text is required")
	}
	_, p, err := t.parser(in.Catalog)
	if err != nil {
		return nil, nil, err
	}
	trees, err := p.ParseText(ctx, in.Text)
	if trees == nil && err != nil {
		return nil, nil, err
	}
	return jsonResult(map[string]any{"trees": trees, "errors": errorList(err)})
}

// Chunks handles outline_chunks.
func (t *Tools) Chunks(ctx context.Context, req *mcp.CallToolRequest, in ChunksInput) (*mcp.CallToolResult, any, error) {
	if in.Text == "" {
		return nil, nil, errors.New("text is required")
	}
	if in.ChunkSize < 0 {
		return nil, nil, fmt.Errorf("chunk_size must not be negative, got %d", in.ChunkSize)
	}
	cat, p, err := t.parser(in.Catalog)
	if err != nil {
		return nil, nil, err
	}
	trees, err := p.ParseText(ctx, in.Text)
	if trees == nil && err != nil {
		return nil, nil, err
	}
	cfg := t.chunk
	if in.ChunkSize > 0 {
		cfg.ChunkSize = in.ChunkSize
	}
	chunks := chunker.Flatten(trees, cfg.Fill(cat.Policy()))
	return jsonResult(map[string]any{"count": len(chunks), "chunks": chunks, "errors": errorList(err)})
}

// Levels handles outline_levels.
func (t *Tools) Levels(ctx context.Context, req *mcp.CallToolRequest, in ParseInput) (*mcp.CallToolResult, any, error) {
	_, p, err := t.parser(in.Catalog)
	if err != nil {
		return nil, nil, err
	}
	results, err := p.Analyze(ctx, in.Text)
	if err != nil {
		return nil, nil, err
	}
	return jsonResult(map[string]any{"results": results})
}

// jsonResult wraps v as a text result. Trees are recursive, so results are
// returned as JSON text rather than as structured output.
func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
	}, nil, nil
}

func errorList(err error) []string {
	out := []string{}
	if err == nil {
		return out
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return append(out, err.Error())
}
