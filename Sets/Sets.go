package Sets

import (
	smr "github.com/g-m-twostay/go-smr"
)

// Set is a concurrent set whose operations run on the caller's reclamation thread. Every operation fails only when the thread can't get the guards it needs.
type Set[E any] interface {
	Put(t smr.Thread, e E) (bool, error)
	Has(t smr.Thread, e E) (bool, error)
	Remove(t smr.Thread, e E) (bool, error)
	Size() uint
	Range(t smr.Thread, f func(E) bool) error
}
