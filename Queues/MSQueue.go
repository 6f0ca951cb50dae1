package Queues

import (
	"sync"
	"sync/atomic"
	"unsafe"

	smr "github.com/g-m-twostay/go-smr"
)

type node[T any] struct {
	v  T
	nx atomic.Pointer[node[T]]
}

// MSQueue is the Michael-Scott queue. Dequeued nodes are retired to the caller's thread and recycled once disposed, so a node address can come back while stale readers still hold it; the guards are what makes that safe.
type MSQueue[T any] struct {
	headPtr, tail atomic.Pointer[node[T]]
	size          atomic.Int64
	nodes         sync.Pool
}

func MakeMSQueue[T any]() *MSQueue[T] {
	c := &MSQueue[T]{}
	a := new(node[T])
	c.headPtr.Store(a)
	c.tail.Store(a)
	return c
}

func (c *MSQueue[T]) newNode(v T) *node[T] {
	n, _ := c.nodes.Get().(*node[T])
	if n == nil {
		n = new(node[T])
	}
	n.v = v
	n.nx.Store(nil)
	return n
}

func (c *MSQueue[T]) dispose(n *node[T]) {
	n.v = *new(T)
	c.nodes.Put(n)
}

// Push needs one guard.
func (c *MSQueue[T]) Push(t smr.Thread, item T) error {
	g, err := t.Guard()
	if err != nil {
		return err
	}
	defer g.Release()

	newNode := c.newNode(item)
	for {
		oldTail := smr.Protect(g, &c.tail)
		oldTailNext := oldTail.nx.Load()
		if oldTail != c.tail.Load() {
			continue
		}
		if oldTailNext != nil {
			c.tail.CompareAndSwap(oldTail, oldTailNext)
		} else if oldTail.nx.CompareAndSwap(nil, newNode) {
			c.tail.CompareAndSwap(oldTail, newNode)
			break
		}
	}
	c.size.Add(1)
	return nil
}

// first protects the dummy head in gs[0] and its successor in gs[1]. next is nil if the queue is empty.
func (c *MSQueue[T]) first(gs []smr.Guard) (head, next *node[T]) {
	for {
		head = smr.Protect(gs[0], &c.headPtr)
		next = head.nx.Load()
		gs[1].Publish(unsafe.Pointer(next))
		if c.headPtr.Load() == head {
			return
		}
	}
}

// Pop needs two guards. The popped node is retired to t.
func (c *MSQueue[T]) Pop(t smr.Thread) (T, error) {
	gs, err := smr.Guards(t, 2)
	if err != nil {
		return *new(T), err
	}
	defer smr.ReleaseAll(gs)

	for {
		oldHeadPtr, oldHead := c.first(gs)
		oldTail := c.tail.Load()
		if oldHead == nil {
			return *new(T), &EmptyQueueError{}
		}
		if oldTail == oldHeadPtr {
			c.tail.CompareAndSwap(oldTail, oldHead)
			continue
		}
		v := oldHead.v
		if c.headPtr.CompareAndSwap(oldHeadPtr, oldHead) {
			c.size.Add(-1)
			smr.Retire(t, oldHeadPtr, c.dispose)
			return v, nil
		}
	}
}

// Peek returns the oldest item without removing it. It needs two guards.
func (c *MSQueue[T]) Peek(t smr.Thread) (T, error) {
	gs, err := smr.Guards(t, 2)
	if err != nil {
		return *new(T), err
	}
	defer smr.ReleaseAll(gs)
	if _, next := c.first(gs); next != nil {
		return next.v, nil
	}
	return *new(T), &EmptyQueueError{}
}

func (c *MSQueue[T]) Empty(t smr.Thread) (bool, error) {
	g, err := t.Guard()
	if err != nil {
		return false, err
	}
	defer g.Release()
	return smr.Protect(g, &c.headPtr).nx.Load() == nil, nil
}

// Size is a hint: it's exact only when no operation is running.
func (c *MSQueue[T]) Size() uint {
	if n := c.size.Load(); n > 0 {
		return uint(n)
	}
	return 0
}

// Drain pops everything left, for shutting a queue down.
func (c *MSQueue[T]) Drain(t smr.Thread) (n int, err error) {
	for {
		if _, err = c.Pop(t); err != nil {
			if _, ok := err.(*EmptyQueueError); ok {
				err = nil
			}
			return
		}
		n++
	}
}
