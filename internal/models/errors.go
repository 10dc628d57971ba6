package models

import "errors"

// Sentinel errors shared by services and storage backends.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotFound indicates the requested job does not exist.
	ErrNotFound = errors.New("not found")

	// ErrJobExists indicates a job with the same URL is already stored.
	// Backends return it on unique-constraint conflicts so callers can
	// resolve the existing row instead of failing.
	ErrJobExists = errors.New("job already exists")

	// ErrInvalidTransition indicates a job status change that the
	// lifecycle does not allow (e.g. restarting a completed job).
	ErrInvalidTransition = errors.New("invalid job transition")
)
