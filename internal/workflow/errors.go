package workflow

import "errors"

var (
	// ErrNotFound marks an unknown request or conversation id.
	ErrNotFound = errors.New("not found")
	// ErrForbidden marks an actor without the role or relationship to act.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidState marks a transition that is not legal from the
	// current state, including responding twice.
	ErrInvalidState = errors.New("invalid state for action")
	// ErrConflict marks a duplicate open request for the same subject and
	// counterpart.
	ErrConflict = errors.New("open request already exists")
	// ErrInvalidArgument marks a request that is malformed before any
	// state is consulted.
	ErrInvalidArgument = errors.New("invalid argument")
)
