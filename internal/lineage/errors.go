package lineage

import "errors"

var (
	// ErrRootNotFound is returned when the start position is not in the start snapshot.
	ErrRootNotFound = errors.New("root cell not found")

	// ErrEmptyRoot is returned when the start cell holds an empty program.
	ErrEmptyRoot = errors.New("root program is empty")

	// ErrInvalidRange is returned when the end epoch precedes the start epoch.
	ErrInvalidRange = errors.New("end epoch before start epoch")

	// ErrUnknownMode is returned by ParseMode for unrecognised names.
	ErrUnknownMode = errors.New("unknown candidate mode")
)
