package Queues

import (
	smr "github.com/g-m-twostay/go-smr"
)

// Queue is a concurrent FIFO whose operations run on the caller's reclamation thread.
type Queue[T any] interface {
	Push(t smr.Thread, item T) error
	Pop(t smr.Thread) (T, error)
	Peek(t smr.Thread) (T, error)
	Empty(t smr.Thread) (bool, error)
	Size() uint
}

type EmptyQueueError struct {
}

func (e *EmptyQueueError) Error() string {
	return "Queue is Empty: cannot Pop."
}
