package PTB

import (
	"sync"
	"sync/atomic"
	"unsafe"

	smr "github.com/g-m-twostay/go-smr"
)

// Guard is a pass-the-buck hazard slot. Guards are owned by the collector's pool and lent to threads.
type Guard struct {
	hp    smr.AtomicUintptr
	next  *Guard // link in the pool's list of all guards, never changed after publication
	owner *ThreadGC
}

func (g *Guard) Publish(p unsafe.Pointer) {
	g.hp.Store(uintptr(p))
}

func (g *Guard) Get() uintptr {
	return g.hp.Load()
}

func (g *Guard) Clear() {
	g.hp.Store(0)
}

// Release clears g and returns it to the owning thread's cache. Releasing twice panics.
func (g *Guard) Release() {
	if g.owner == nil {
		panic("PTB: guard released twice")
	}
	g.Clear()
	t := g.owner
	g.owner = nil
	t.cache = append(t.cache, g)
}

// guardPool hands out guards, growing without bound. Every guard ever made stays on the all list so liberate can read it.
type guardPool struct {
	all  atomic.Pointer[Guard]
	made smr.PaddedUint64

	mu   sync.Mutex
	free []*Guard
}

// take moves n guards into dst, making new ones when the free list runs dry.
func (p *guardPool) take(dst []*Guard, n int) []*Guard {
	p.mu.Lock()
	k := min(n, len(p.free))
	dst = append(dst, p.free[len(p.free)-k:]...)
	clear(p.free[len(p.free)-k:])
	p.free = p.free[:len(p.free)-k]
	p.mu.Unlock()

	for ; k < n; k++ {
		dst = append(dst, p.make())
	}
	return dst
}

func (p *guardPool) make() *Guard {
	g := new(Guard)
	for {
		h := p.all.Load()
		g.next = h
		if p.all.CompareAndSwap(h, g) {
			break
		}
	}
	p.made.Add(1)
	return g
}

// giveBack returns cleared guards to the free list.
func (p *guardPool) giveBack(gs []*Guard) {
	for _, g := range gs {
		g.Clear()
		g.owner = nil
	}
	p.mu.Lock()
	p.free = append(p.free, gs...)
	p.mu.Unlock()
}

func (p *guardPool) forEachHazard(f func(uintptr)) {
	for g := p.all.Load(); g != nil; g = g.next {
		if addr := g.Get(); addr != 0 {
			f(addr)
		}
	}
}
