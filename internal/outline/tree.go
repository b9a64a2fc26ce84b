package outline

import (
	"slices"
	"strings"

	"github.com/dgallion1/docoutline/internal/doctree"
	"github.com/dgallion1/docoutline/internal/marker"
)

type frame struct {
	node  *doctree.Node
	level int
}

// buildTree walks blocks with a stack of open ancestors rooted at level 0.
// Unmarked lines extend the content of the stack top; a marker line closes
// every open node at its level or deeper and opens a child of what remains.
func buildTree(blocks []doctree.Block, cat marker.Catalog, levels LevelMap) (*doctree.Tree, error) {
	root := &doctree.Node{Children: []*doctree.Node{}}
	stack := []frame{{node: root, level: 0}}
	seen := make(map[marker.Type]bool)

	for _, b := range blocks {
		top := stack[len(stack)-1].node
		if b.Table != nil {
			top.Children = append(top.Children, tableNode(b.Table))
			continue
		}

		t, ok := cat.Classify(b.Text)
		level, resolved := levels[t]
		if !ok || !resolved {
			appendContent(top, b.Text)
			continue
		}

		for len(stack) > 0 && stack[len(stack)-1].level >= level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			return nil, &InvariantError{Line: b.Text, Level: level}
		}

		mt := t
		n := &doctree.Node{
			Block:      b.Text,
			MarkerType: &mt,
			Level:      level,
			Children:   []*doctree.Node{},
		}
		parent := stack[len(stack)-1].node
		parent.Children = append(parent.Children, n)
		stack = append(stack, frame{node: n, level: level})
		seen[t] = true
	}

	tree := &doctree.Tree{MarkerTypes: sortedTypes(seen)}
	if root.Content != "" {
		tree.Output = []*doctree.Node{root}
	} else {
		tree.Output = root.Children
	}
	return tree, nil
}

// flatTree is the fallback for paragraphs without usable structure: one
// content node holding every line, with tables as its only children.
func flatTree(blocks []doctree.Block, reason string) *doctree.Tree {
	var lines []string
	children := []*doctree.Node{}
	for _, b := range blocks {
		if b.Table != nil {
			children = append(children, tableNode(b.Table))
			continue
		}
		lines = append(lines, b.Text)
	}
	return &doctree.Tree{
		MarkerTypes: []marker.Type{},
		Output: []*doctree.Node{{
			Content:  strings.Join(lines, "\n"),
			Children: children,
		}},
		Error: reason,
	}
}

func tableNode(t *doctree.Table) *doctree.Node {
	return &doctree.Node{Table: t, Children: []*doctree.Node{}}
}

func appendContent(n *doctree.Node, line string) {
	if n.Content == "" {
		n.Content = line
		return
	}
	n.Content += "\n" + line
}

func sortedTypes(seen map[marker.Type]bool) []marker.Type {
	out := make([]marker.Type, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// cleanBlocks trims text blocks and drops empty ones.
func cleanBlocks(blocks []doctree.Block) []doctree.Block {
	out := make([]doctree.Block, 0, len(blocks))
	for _, b := range blocks {
		if b.Table != nil {
			out = append(out, b)
			continue
		}
		if text := strings.TrimSpace(b.Text); text != "" {
			out = append(out, doctree.Block{Text: text})
		}
	}
	return out
}

func textLines(blocks []doctree.Block) []string {
	lines := make([]string, 0, len(blocks))
	for _, b := range blocks {
		if b.Table == nil {
			lines = append(lines, b.Text)
		}
	}
	return lines
}
