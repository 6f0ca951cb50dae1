package HP

import (
	"unsafe"

	smr "github.com/g-m-twostay/go-smr"
)

// Guard is one hazard pointer. It belongs to the thread that allocated it and must not cross goroutines.
type Guard struct {
	hp    smr.AtomicUintptr
	owner *guardAllocator
	used  bool
}

// Publish stores p. The store is sequentially consistent, which is at least the release a scan needs.
func (g *Guard) Publish(p unsafe.Pointer) {
	g.hp.Store(uintptr(p))
}

func (g *Guard) Get() uintptr {
	return g.hp.Load()
}

func (g *Guard) Clear() {
	g.hp.Store(0)
}

// Release clears g and returns it to its thread. Releasing twice panics.
func (g *Guard) Release() {
	g.owner.release(g)
}

// GuardArray is a batch of guards allocated together.
type GuardArray []*Guard

func (a GuardArray) Release() {
	for i := len(a) - 1; i >= 0; i-- {
		a[i].Release()
	}
}

// guardAllocator is the per-thread stack of unused guards. Its capacity is fixed at construction.
type guardAllocator struct {
	arr   []Guard
	stack []*Guard
}

func newGuardAllocator(capacity int) *guardAllocator {
	a := &guardAllocator{arr: make([]Guard, capacity), stack: make([]*Guard, 0, capacity)}
	for i := range a.arr {
		a.arr[i].owner = a
	}
	a.makeFree()
	return a
}

func (a *guardAllocator) capacity() int {
	return len(a.arr)
}

func (a *guardAllocator) available() int {
	return len(a.stack)
}

func (a *guardAllocator) alloc() (*Guard, error) {
	top := len(a.stack) - 1
	if top < 0 {
		return nil, smr.ErrTooFewHazardPointers
	}
	g := a.stack[top]
	a.stack[top] = nil
	a.stack = a.stack[:top]
	g.used = true
	return g, nil
}

func (a *guardAllocator) allocN(n int) (GuardArray, error) {
	if n > len(a.stack) {
		return nil, smr.ErrTooFewHazardPointers
	}
	gs := make(GuardArray, n)
	for i := range gs {
		gs[i], _ = a.alloc()
	}
	return gs, nil
}

func (a *guardAllocator) release(g *Guard) {
	if !g.used {
		panic("HP: guard released twice")
	}
	g.Clear()
	g.used = false
	a.stack = append(a.stack, g)
}

// makeFree clears every guard and marks all of them unused. Guards handed out before are invalid afterward.
func (a *guardAllocator) makeFree() {
	a.stack = a.stack[:0]
	for i := len(a.arr) - 1; i >= 0; i-- {
		a.arr[i].Clear()
		a.arr[i].used = false
		a.stack = append(a.stack, &a.arr[i])
	}
}
