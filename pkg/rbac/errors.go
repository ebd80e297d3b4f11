package rbac

import "errors"

var (
	// ErrCorruptStore indicates an unreadable or malformed on-disk
	// document. The process must not run with unknown permission state.
	ErrCorruptStore = errors.New("corrupt permission store")

	// ErrInvalidLevel indicates a level outside the enumerated set
	ErrInvalidLevel = errors.New("invalid role level")

	// ErrAlreadyResolved indicates a decision on a request that has
	// already reached a terminal status
	ErrAlreadyResolved = errors.New("request already resolved")

	// ErrNoSuchRequest indicates a decision on a request that does not
	// exist in the store
	ErrNoSuchRequest = errors.New("no such request")
)
