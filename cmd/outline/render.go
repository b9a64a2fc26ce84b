package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	tableStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("81")).
			Italic(true)

	chunkBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	// Marker prefixes by nesting level; deeper levels reuse the last style.
	levelStyles = []lipgloss.Style{
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("160")),
		lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("208")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
	}
)

func levelStyle(level int) lipgloss.Style {
	if level < 1 {
		return dimStyle
	}
	return levelStyles[min(level, len(levelStyles))-1]
}

func renderTrees(w io.Writer, title string, trees []*doctree.Tree) {
	if title != "" {
		fmt.Fprintln(w, titleStyle.Render(title))
	}
	for i, t := range trees {
		if len(trees) > 1 {
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("── paragraph %d ──", i)))
		}
		if t.Error != "" {
			fmt.Fprintln(w, warnStyle.Render("flat: "+t.Error))
		}
		for _, n := range t.Output {
			renderNode(w, n, 0)
		}
	}
}

func renderNode(w io.Writer, n *doctree.Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch {
	case n.Table != nil:
		fmt.Fprintf(w, "%s%s\n", indent, tableStyle.Render(fmt.Sprintf("[table] %s (%d rows)", n.Table.Title, len(n.Table.Rows))))
	case n.Block != "":
		fmt.Fprintf(w, "%s%s\n", indent, levelStyle(n.Level).Render(n.Block))
	}
	if n.Content != "" {
		pad := indent
		if n.Block != "" {
			pad += "  "
		}
		for _, line := range strings.Split(n.Content, "\n") {
			fmt.Fprintf(w, "%s%s\n", pad, line)
		}
	}
	for _, c := range n.Children {
		renderNode(w, c, depth+1)
	}
}

func renderChunks(w io.Writer, chunks []doctree.Chunk) {
	for _, c := range chunks {
		header := fmt.Sprintf("#%v  ~%v tokens", c.Metadata["index"], c.Metadata["tokens"])
		if bc, ok := c.Metadata["breadcrumb"].([]string); ok && len(bc) > 0 {
			header += "  " + strings.Join(bc, " › ")
		}
		fmt.Fprintln(w, dimStyle.Render(header))
		fmt.Fprintln(w, chunkBoxStyle.Render(c.Content))
	}
	fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d chunks", len(chunks))))
}

func renderLevels(w io.Writer, cat marker.Catalog, results []doctree.ParseResult) {
	for i, r := range results {
		first, _, _ := strings.Cut(r.Content, "\n")
		fmt.Fprintf(w, "%s %s\n", titleStyle.Render(fmt.Sprintf("paragraph %d", i)), dimStyle.Render(first))
		if r.Error != "" {
			fmt.Fprintln(w, "  "+warnStyle.Render(r.Error))
			continue
		}
		types := make([]marker.Type, 0, len(r.MarkerLevels))
		for t := range r.MarkerLevels {
			types = append(types, t)
		}
		slices.SortFunc(types, func(a, b marker.Type) int {
			if r.MarkerLevels[a] != r.MarkerLevels[b] {
				return r.MarkerLevels[a] - r.MarkerLevels[b]
			}
			return int(a) - int(b)
		})
		for _, t := range types {
			level := r.MarkerLevels[t]
			fmt.Fprintf(w, "  %s type %d → level %d\n", strings.Repeat("  ", max(level-1, 0)), t, level)
		}
	}
	if len(results) == 0 {
		fmt.Fprintln(w, dimStyle.Render("no content ("+cat.Name()+")"))
	}
}

func renderCatalogs(w io.Writer, r *marker.Registry) {
	for _, name := range r.Names() {
		cat, err := r.Lookup(name)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "%s  %s\n", levelStyle(1).Render(cat.Name()), cat.Description())
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("  %d marker types", len(cat.Types()))))
	}
}
