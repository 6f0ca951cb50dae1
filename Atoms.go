package smr

import "sync/atomic"

// AtomicUintptr is a hazard slot: an address published by one goroutine and read by any scanner.
type AtomicUintptr struct {
	v uintptr
}

func (u *AtomicUintptr) Load() uintptr {
	return atomic.LoadUintptr(&u.v)
}
func (u *AtomicUintptr) Store(v uintptr) {
	atomic.StoreUintptr(&u.v, v)
}

// PaddedUint64 is a counter alone on its cache line, so counters bumped by different goroutines don't share lines.
type PaddedUint64 struct {
	v uint64
	_ [56]byte
}

func (u *PaddedUint64) Load() uint64 {
	return atomic.LoadUint64(&u.v)
}
func (u *PaddedUint64) Add(d uint64) uint64 {
	return atomic.AddUint64(&u.v, d)
}
