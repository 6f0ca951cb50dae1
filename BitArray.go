package smr

import (
	"math/bits"
)

// NewBitArray holds at least size bits, all down.
func NewBitArray(size int) BitArray {
	return BitArray{bits: make([]uint, (size+bits.UintSize-1)/bits.UintSize)}
}

type BitArray struct {
	bits []uint
}

func (u BitArray) Len() int {
	return len(u.bits) * bits.UintSize
}

func (u BitArray) Get(i int) bool {
	return (u.bits[i/bits.UintSize]>>(i%bits.UintSize))&1 == 1
}

func (u BitArray) Up(i int) {
	u.bits[i/bits.UintSize] |= 1 << (i % bits.UintSize)
}

func (u BitArray) Down(i int) {
	u.bits[i/bits.UintSize] &^= 1 << (i % bits.UintSize)
}

// Reset puts every bit down, growing the array if it holds fewer than size bits.
func (u *BitArray) Reset(size int) {
	if n := (size + bits.UintSize - 1) / bits.UintSize; n > len(u.bits) {
		u.bits = make([]uint, n)
	} else {
		clear(u.bits)
	}
}

// Count returns the number of bits up.
func (u BitArray) Count() (c int) {
	for _, w := range u.bits {
		c += bits.OnesCount(w)
	}
	return
}
