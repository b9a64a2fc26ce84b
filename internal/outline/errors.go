package outline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dgallion1/docoutline/internal/marker"
)

// ErrDuplicateMarker is returned when a marker type would be pushed directly
// on top of itself instead of continuing as a sibling.
var ErrDuplicateMarker = errors.New("duplicate marker at top of stack")

// ErrTooManyLines is returned before parsing when the input exceeds the
// configured line cap.
var ErrTooManyLines = errors.New("input exceeds line limit")

// CycleError reports marker types that never reached in-degree zero during
// level resolution.
type CycleError struct {
	Nodes []marker.Type // Types left with positive in-degree.
	Edges []Edge        // Full edge list, sorted.
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("marker graph has a cycle through types %v", e.Nodes)
}

// EdgeList renders the edges as "a->b" pairs for logging.
func (e *CycleError) EdgeList() string {
	parts := make([]string, len(e.Edges))
	for i, edge := range e.Edges {
		parts[i] = edge.String()
	}
	return strings.Join(parts, " ")
}

// InvariantError means the tree builder popped its synthetic root. Level
// resolution never assigns a level below 1, so this indicates a bug rather
// than bad input.
type InvariantError struct {
	Line  string
	Level int
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("outline stack emptied at %q (level %d)", e.Line, e.Level)
}

// Recoverable reports whether err is a paragraph-local structural failure
// that is handled by falling back to a flat paragraph.
func Recoverable(err error) bool {
	var cyc *CycleError
	return errors.Is(err, ErrDuplicateMarker) || errors.As(err, &cyc)
}
