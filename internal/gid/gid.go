// Package gid identifies the calling goroutine and indexes per-goroutine state by that identity.
package gid

import (
	"github.com/alphadose/haxmap"
	"github.com/petermattis/goid"
)

// Current returns the calling goroutine's id. Ids are never reused within a process.
func Current() int64 {
	return goid.Get()
}

// Index maps goroutine ids to values. Lookups are lock-free; each key is written only by its own goroutine.
type Index[V any] struct {
	m *haxmap.Map[int64, V]
}

func NewIndex[V any](sizeHint uintptr) *Index[V] {
	if sizeHint == 0 {
		return &Index[V]{m: haxmap.New[int64, V]()}
	}
	return &Index[V]{m: haxmap.New[int64, V](sizeHint)}
}

// Get returns the calling goroutine's value.
func (x *Index[V]) Get() (V, bool) {
	return x.m.Get(Current())
}

// Set binds v to the calling goroutine.
func (x *Index[V]) Set(v V) {
	x.m.Set(Current(), v)
}

// Delete unbinds the calling goroutine.
func (x *Index[V]) Delete() {
	x.m.Del(Current())
}

func (x *Index[V]) Len() int {
	return int(x.m.Len())
}
