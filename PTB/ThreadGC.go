package PTB

import (
	smr "github.com/g-m-twostay/go-smr"
)

// ThreadGC is an attached thread: a cache of guards borrowed from the pool. It's used by one goroutine at a time and is dead after Detach.
type ThreadGC struct {
	gc    *GarbageCollector
	owner int64
	owned []*Guard // every guard borrowed, given back on detach
	cache []*Guard // the free ones among owned

	detaching bool // only Retire is allowed, for disposers run by the last liberate
}

func (t *ThreadGC) check() {
	if t.gc == nil || t.detaching {
		panic(smr.ErrDetached)
	}
}

// AllocGuard never fails; a thread out of cached guards borrows one more from the pool.
func (t *ThreadGC) AllocGuard() *Guard {
	t.check()
	if len(t.cache) == 0 {
		t.owned = t.gc.pool.take(t.owned, 1)
		t.cache = append(t.cache, t.owned[len(t.owned)-1])
	}
	g := t.cache[len(t.cache)-1]
	t.cache[len(t.cache)-1] = nil
	t.cache = t.cache[:len(t.cache)-1]
	g.owner = t
	return g
}

// Guard implements smr.Thread. The error is always nil.
func (t *ThreadGC) Guard() (smr.Guard, error) {
	return t.AllocGuard(), nil
}

// Retire buffers r. While detaching the liberate running is the caller's, so r waits for the next one or for Close.
func (t *ThreadGC) Retire(r smr.Retired) {
	if t.gc == nil {
		panic(smr.ErrDetached)
	}
	t.gc.retire(r)
}

// Scan liberates the collector's buffer unless another thread is already doing it.
func (t *ThreadGC) Scan() {
	t.check()
	t.gc.liberate()
}

// Detach gives every borrowed guard back, cleared, and liberates once.
func (t *ThreadGC) Detach() error {
	if t.gc == nil || t.detaching {
		return smr.ErrNotAttached
	}
	t.detaching = true
	t.gc.release(t)
	t.gc, t.detaching = nil, false
	return nil
}

// Borrowed is the number of guards this thread holds from the pool, in use or cached.
func (t *ThreadGC) Borrowed() int {
	return len(t.owned)
}
