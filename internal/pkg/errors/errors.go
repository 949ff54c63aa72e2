package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input,
	// including malformed hierarchy view configuration.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTransientStore marks connection/timeout failures against either
	// store. Retry is the caller's decision, never automatic here.
	ErrTransientStore = errors.New("transient store failure")
	// ErrDanglingEdge marks an edge whose endpoint vertex is missing.
	// Reported by consistency checks; never cleaned up implicitly.
	ErrDanglingEdge = errors.New("dangling edge")
	// ErrRebuildFailed marks an aborted forest rebuild. The previously
	// published forest stays live.
	ErrRebuildFailed = errors.New("hierarchy rebuild failed")
)
