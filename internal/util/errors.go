package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoInput indicates an input glob matched no files
	ErrNoInput = errors.New("no input files")

	// ErrTableNotReady indicates a table has no completed write (missing _SUCCESS marker)
	ErrTableNotReady = errors.New("table not ready")

	// ErrCorrupt indicates a stored file is corrupt or unreadable
	ErrCorrupt = errors.New("corrupt file")

	// ErrPermission indicates a permission error
	ErrPermission = errors.New("permission denied")
)
