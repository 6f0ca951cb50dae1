package PTB

import (
	"sync/atomic"

	smr "github.com/g-m-twostay/go-smr"
)

type retiredNode struct {
	r    smr.Retired
	next *retiredNode
}

// retiredBuffer is the collector-wide Treiber stack of retirements. Nodes are only ever pushed or taken all at once, so the stack has no ABA problem.
type retiredBuffer struct {
	head atomic.Pointer[retiredNode]
	size atomic.Int64
}

func (b *retiredBuffer) push(n *retiredNode) int64 {
	return b.pushChain(n, n, 1)
}

// pushChain links the chain first..last, n nodes long, on top of the stack and returns the new size.
func (b *retiredBuffer) pushChain(first, last *retiredNode, n int64) int64 {
	for {
		h := b.head.Load()
		last.next = h
		if b.head.CompareAndSwap(h, first) {
			return b.size.Add(n)
		}
	}
}

// takeAll empties the stack and returns what it held.
func (b *retiredBuffer) takeAll() (*retiredNode, int64) {
	h := b.head.Swap(nil)
	var n int64
	for p := h; p != nil; p = p.next {
		n++
	}
	b.size.Add(-n)
	return h, n
}

func (b *retiredBuffer) len() int64 {
	return b.size.Load()
}
