package Sets

import (
	"cmp"
	"sync"
	"sync/atomic"
	"unsafe"

	smr "github.com/g-m-twostay/go-smr"
)

// mlink is an immutable successor link. A node is logically deleted once its link carries del; links are replaced, never modified, so comparing link pointers checks the target and the mark together.
type mlink[K cmp.Ordered] struct {
	to  *node[K]
	del bool
}

type node[K cmp.Ordered] struct {
	key  K
	next atomic.Pointer[mlink[K]]
}

// ListSet is Michael's lock-free ordered list. Removed nodes are retired and recycled after disposal.
// Each operation holds two guards: the predecessor and the current node.
type ListSet[K cmp.Ordered] struct {
	head   atomic.Pointer[mlink[K]]
	size   atomic.Int64
	nodes  sync.Pool
	poison K
}

func NewListSet[K cmp.Ordered]() *ListSet[K] {
	s := &ListSet[K]{}
	s.head.Store(&mlink[K]{})
	return s
}

// Poison sets the key disposed nodes are overwritten with, zero by default. A key no live node uses makes reads after disposal show up in Range. Call it before sharing the set.
func (s *ListSet[K]) Poison(key K) *ListSet[K] {
	s.poison = key
	return s
}

type position[K cmp.Ordered] struct {
	prev *atomic.Pointer[mlink[K]]
	link *mlink[K] // value of *prev seen by the walk
	cur  *node[K]  // nil at the end of the list
}

func (s *ListSet[K]) newNode(key K) *node[K] {
	n, _ := s.nodes.Get().(*node[K])
	if n == nil {
		n = new(node[K])
	}
	n.key = key
	return n
}

func (s *ListSet[K]) dispose(n *node[K]) {
	n.key = s.poison
	n.next.Store(nil)
	s.nodes.Put(n)
}

// walk goes down the list with gs[0] on the predecessor and gs[1] on the current node, unlinking and retiring marked nodes it meets. It stops at the first live node stop accepts, or at the end.
func (s *ListSet[K]) walk(t smr.Thread, gs []smr.Guard, stop func(*node[K]) bool) position[K] {
retry:
	for {
		prev := &s.head
		link := prev.Load()
		for {
			cur := link.to
			if cur == nil {
				return position[K]{prev, link, nil}
			}
			gs[1].Publish(unsafe.Pointer(cur))
			if prev.Load() != link {
				continue retry
			}
			next := cur.next.Load()
			if next.del {
				unlinked := &mlink[K]{to: next.to}
				if !prev.CompareAndSwap(link, unlinked) {
					continue retry
				}
				smr.Retire(t, cur, s.dispose)
				link = unlinked
				continue
			}
			if stop(cur) {
				return position[K]{prev, link, cur}
			}
			prev, link = &cur.next, next
			gs[0], gs[1] = gs[1], gs[0]
		}
	}
}

func (s *ListSet[K]) find(t smr.Thread, gs []smr.Guard, key K) (position[K], bool) {
	pos := s.walk(t, gs, func(n *node[K]) bool { return n.key >= key })
	return pos, pos.cur != nil && pos.cur.key == key
}

func (s *ListSet[K]) Put(t smr.Thread, key K) (bool, error) {
	gs, err := smr.Guards(t, 2)
	if err != nil {
		return false, err
	}
	defer smr.ReleaseAll(gs)

	n := s.newNode(key)
	for {
		pos, found := s.find(t, gs, key)
		if found {
			s.nodes.Put(n)
			return false, nil
		}
		n.next.Store(&mlink[K]{to: pos.cur})
		if pos.prev.CompareAndSwap(pos.link, &mlink[K]{to: n}) {
			s.size.Add(1)
			return true, nil
		}
	}
}

func (s *ListSet[K]) Has(t smr.Thread, key K) (bool, error) {
	gs, err := smr.Guards(t, 2)
	if err != nil {
		return false, err
	}
	defer smr.ReleaseAll(gs)
	_, found := s.find(t, gs, key)
	return found, nil
}

// Remove marks the node first, which is the linearization point, then tries to unlink it. If unlinking fails a later walk does it.
func (s *ListSet[K]) Remove(t smr.Thread, key K) (bool, error) {
	gs, err := smr.Guards(t, 2)
	if err != nil {
		return false, err
	}
	defer smr.ReleaseAll(gs)

	for {
		pos, found := s.find(t, gs, key)
		if !found {
			return false, nil
		}
		next := pos.cur.next.Load()
		if next.del || !pos.cur.next.CompareAndSwap(next, &mlink[K]{to: next.to, del: true}) {
			continue
		}
		s.size.Add(-1)
		if pos.prev.CompareAndSwap(pos.link, &mlink[K]{to: next.to}) {
			smr.Retire(t, pos.cur, s.dispose)
		} else {
			s.find(t, gs, key)
		}
		return true, nil
	}
}

// Range calls f in ascending order on the keys present, until f returns false. Keys added or removed meanwhile may or may not be seen.
func (s *ListSet[K]) Range(t smr.Thread, f func(K) bool) error {
	gs, err := smr.Guards(t, 2)
	if err != nil {
		return err
	}
	defer smr.ReleaseAll(gs)

	var last K
	started := false
	// a walk restarts from the head, so keys up to last are skipped
	s.walk(t, gs, func(n *node[K]) bool {
		if started && n.key <= last {
			return false
		}
		last, started = n.key, true
		return !f(n.key)
	})
	return nil
}

func (s *ListSet[K]) Size() uint {
	if n := s.size.Load(); n > 0 {
		return uint(n)
	}
	return 0
}
