package errors

import (
	"strconv"

	"cinder/pkg/source"
)

// Position represents a specific location in the source code.
// Line and Column are 1-based; StartPos and EndPos are 0-based byte offsets.
type Position struct {
	Line     int
	Column   int
	StartPos int
	EndPos   int
	Source   *source.SourceFile
}

// IsZero reports whether the position carries no location.
func (p Position) IsZero() bool {
	return p.Line == 0 && p.Column == 0
}

func (p Position) String() string {
	loc := strconv.Itoa(p.Line) + ":" + strconv.Itoa(p.Column)
	if p.Source != nil {
		return p.Source.DisplayPath() + ":" + loc
	}
	return loc
}
