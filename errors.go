package smr

import "github.com/pingcap/errors"

var (
	// ErrTooFewHazardPointers means a thread holds more guards at once than its scheme was built for.
	ErrTooFewHazardPointers = errors.New("too little hazard pointers")
	// ErrNotAttached is returned when detaching something that isn't attached.
	ErrNotAttached = errors.New("thread is not attached")
	// ErrDetached is raised when a thread handle is used after Detach.
	ErrDetached = errors.New("thread handle used after detach")
	// ErrClosed is returned when attaching to a closed domain.
	ErrClosed = errors.New("reclamation domain is closed")
	// ErrThreadsAttached is returned when closing a domain that still has attached threads.
	ErrThreadsAttached = errors.New("reclamation domain still has attached threads")
	// ErrInvalidOptions wraps every option validation failure.
	ErrInvalidOptions = errors.New("invalid reclamation options")
)
