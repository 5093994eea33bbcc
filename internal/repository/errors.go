package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("record not found")

	// ErrClaimConflict is returned when an atomic claim update matched no
	// rows: the task was taken by another agent, left the pending state, or
	// the claiming agent already holds a running task.
	ErrClaimConflict = errors.New("claim conflict")

	// ErrTransitionConflict is returned when a compare-and-set status update
	// matched no rows because the persisted state changed underneath the
	// caller.
	ErrTransitionConflict = errors.New("state changed concurrently")

	// ErrSliceConflict is returned when two planners raced to slice the same
	// keyspace offset. The loser re-reads the allocation cursor and retries.
	ErrSliceConflict = errors.New("keyspace slice conflict")
)
