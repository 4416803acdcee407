package graph

import "errors"

var (
	// ErrDuplicateID is returned by Insert when the id is already present.
	ErrDuplicateID = errors.New("graph: id already exists")

	// ErrDimensionMismatch is returned by Insert when the vector's length
	// does not match the dimension established by the first insertion.
	ErrDimensionMismatch = errors.New("graph: vector dimension mismatch")
)
