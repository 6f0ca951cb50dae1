package liveset

import "github.com/petar/GoLLRB/llrb"

type addrItem uintptr

func (a addrItem) Less(than llrb.Item) bool {
	return a < than.(addrItem)
}

type llrbTree struct {
	t *llrb.LLRB
}

func newLLRB() *llrbTree {
	return &llrbTree{t: llrb.New()}
}

func (s *llrbTree) Add(addr uintptr) {
	s.t.ReplaceOrInsert(addrItem(addr))
}

func (s *llrbTree) Seal() {}

func (s *llrbTree) Has(addr uintptr) bool {
	return s.t.Has(addrItem(addr))
}

func (s *llrbTree) Len() int {
	return s.t.Len()
}

func (s *llrbTree) Reset() {
	s.t = llrb.New()
}
