package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrParse indicates a folder name or payload could not be parsed
	ErrParse = errors.New("parse error")

	// ErrScan indicates a filesystem scan failure
	ErrScan = errors.New("scan error")

	// ErrStorage indicates a metadata storage failure
	ErrStorage = errors.New("storage error")

	// ErrLock indicates a per-band lock could not be acquired in time
	ErrLock = errors.New("lock timeout")

	// ErrWrite indicates an atomic write could not complete
	ErrWrite = errors.New("write error")

	// ErrCorrupt indicates a metadata file and its backup are both unreadable
	ErrCorrupt = errors.New("corrupt metadata")

	// ErrValidation indicates a payload failed validation
	ErrValidation = errors.New("validation error")

	// ErrMigration indicates a schema migration failure
	ErrMigration = errors.New("migration error")

	// ErrNotFound indicates a required band or resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
