package registry

import "errors"

var (
	// ErrDuplicateTask means the id is already pending; the caller must pick
	// a new id or cancel the existing task first.
	ErrDuplicateTask = errors.New("task id already scheduled")

	// ErrPastTime means the trigger time is not strictly in the future.
	ErrPastTime = errors.New("trigger time is not in the future")

	// ErrNotFound means the task never existed or already resolved.
	// Not an error state to alarm on.
	ErrNotFound = errors.New("task not found")

	ErrEmptyID          = errors.New("task id is required")
	ErrEmptyDestination = errors.New("destination is required")
	ErrClosed           = errors.New("registry closed")
)
