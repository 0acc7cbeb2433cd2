package scheduler

import "errors"

var (
	// ErrRunInProgress is returned when a manual run overlaps a scheduled one
	ErrRunInProgress = errors.New("overdue detection already in progress")

	// ErrInvalidConfig is returned when the trigger configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
