package store

import "errors"

var (
	// ErrAssignmentNotFound indicates no assignment is stored for the pipeline.
	ErrAssignmentNotFound = errors.New("assignment not found")

	// ErrVersionConflict indicates the stored assignment changed since it was read.
	ErrVersionConflict = errors.New("assignment version conflict")
)
