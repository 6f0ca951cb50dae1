// Package liveset holds the snapshot of published hazard addresses a scan tests retired nodes against. All indexes are built and queried by one goroutine.
package liveset

import (
	"strings"

	"github.com/pingcap/errors"
)

// Set is filled with Add, sealed once, then queried with Has.
type Set interface {
	Add(addr uintptr)
	// Seal must be called between the last Add and the first Has.
	Seal()
	Has(addr uintptr) bool
	Len() int
	// Reset empties the set for reuse by the next scan.
	Reset()
}

type Kind byte

const (
	Sorted Kind = iota
	BTree
	LLRB
	HashSet
	HashMap
)

var kindNames = [...]string{"sorted", "btree", "llrb", "hashset", "hashmap"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range kindNames {
		if n == s {
			*k = Kind(i)
			return nil
		}
	}
	return errors.Errorf("unknown liveset kind %q", s)
}

// New returns an empty set of kind k, sized for about hint addresses.
func New(k Kind, hint int) Set {
	switch k {
	case BTree:
		return newBTree()
	case LLRB:
		return newLLRB()
	case HashSet:
		return newHashSet()
	case HashMap:
		return newHashMap(hint)
	default:
		return newSorted(hint)
	}
}
