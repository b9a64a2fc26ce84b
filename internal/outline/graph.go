package outline

import (
	"fmt"
	"sort"

	"github.com/dgallion1/docoutline/internal/marker"
)

// LevelMap assigns every observed marker type a nesting level, starting at 1.
type LevelMap map[marker.Type]int

// Edge records that From was observed directly enclosing To.
type Edge struct {
	From marker.Type
	To   marker.Type
}

func (e Edge) String() string { return fmt.Sprintf("%d->%d", e.From, e.To) }

// Graph is the precedence graph of marker types within one paragraph.
type Graph struct {
	nodes    []marker.Type // first-seen order
	known    map[marker.Type]bool
	children map[marker.Type][]marker.Type
	edges    map[Edge]bool
}

func newGraph() *Graph {
	return &Graph{
		known:    make(map[marker.Type]bool),
		children: make(map[marker.Type][]marker.Type),
		edges:    make(map[Edge]bool),
	}
}

func (g *Graph) addNode(t marker.Type) {
	if !g.known[t] {
		g.known[t] = true
		g.nodes = append(g.nodes, t)
	}
}

func (g *Graph) addEdge(from, to marker.Type) {
	g.addNode(from)
	g.addNode(to)
	e := Edge{from, to}
	if g.edges[e] {
		return
	}
	g.edges[e] = true
	g.children[from] = append(g.children[from], to)
}

// Nodes returns marker types in first-seen order.
func (g *Graph) Nodes() []marker.Type {
	return append([]marker.Type(nil), g.nodes...)
}

// Children returns the types observed directly under t.
func (g *Graph) Children(t marker.Type) []marker.Type {
	return append([]marker.Type(nil), g.children[t]...)
}

// Edges returns all edges sorted by (From, To).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for e := range g.edges {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Len returns the number of marker types in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// BuildGraph classifies each line and records which marker type encloses
// which. A type that is already open closes everything above it and
// continues as a sibling; a new type nests under the current top. Since the
// top of the stack is always open, a repeated top type takes the sibling
// path and ErrDuplicateMarker only guards against recording a self-loop.
func BuildGraph(cat marker.Catalog, lines []string) (*Graph, error) {
	g := newGraph()
	var stack []marker.Type
	open := make(map[marker.Type]bool)

	for i, line := range lines {
		t, ok := cat.Classify(line)
		if !ok {
			continue
		}
		if open[t] {
			for stack[len(stack)-1] != t {
				delete(open, stack[len(stack)-1])
				stack = stack[:len(stack)-1]
			}
			continue
		}
		if len(stack) > 0 {
			top := stack[len(stack)-1]
			if top == t {
				return nil, fmt.Errorf("line %d %q: %w", i+1, line, ErrDuplicateMarker)
			}
			g.addEdge(top, t)
		} else {
			g.addNode(t)
		}
		stack = append(stack, t)
		open[t] = true
	}
	return g, nil
}

// ResolveLevels runs Kahn's algorithm over g. Types with no parent get level
// 1 and each child sits one below its deepest parent. A cycle yields a
// *CycleError and no levels.
func ResolveLevels(g *Graph) (LevelMap, error) {
	indegree := make(map[marker.Type]int, len(g.nodes))
	for _, n := range g.nodes {
		for _, c := range g.children[n] {
			indegree[c]++
		}
	}

	levels := make(LevelMap, len(g.nodes))
	var queue []marker.Type
	for _, n := range g.nodes {
		if indegree[n] == 0 {
			levels[n] = 1
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		for _, v := range g.children[u] {
			indegree[v]--
			if indegree[v] == 0 {
				levels[v] = levels[u] + 1
				queue = append(queue, v)
			}
		}
	}

	var residual []marker.Type
	for _, n := range g.nodes {
		if indegree[n] > 0 {
			residual = append(residual, n)
		}
	}
	if len(residual) > 0 {
		return nil, &CycleError{Nodes: residual, Edges: g.Edges()}
	}
	return levels, nil
}
