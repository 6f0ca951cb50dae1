package liveset

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var kinds = []Kind{Sorted, BTree, LLRB, HashSet, HashMap}

func TestSet_AddHas(t *testing.T) {
	for _, k := range kinds {
		t.Run(k.String(), func(t *testing.T) {
			s := New(k, 8)
			for i := uintptr(1); i <= 100; i++ {
				s.Add(i * 16)
			}
			s.Add(32) // duplicates are legal, two guards may publish the same node
			s.Seal()
			for i := uintptr(1); i <= 100; i++ {
				require.True(t, s.Has(i*16), "missing %d", i*16)
				require.False(t, s.Has(i*16+8))
			}
			require.False(t, s.Has(0))
			s.Reset()
			require.Equal(t, 0, s.Len())
			s.Seal()
			require.False(t, s.Has(16))
		})
	}
}

// Ordered kinds compare addresses unsigned, so the top half of the address space sorts after the bottom.
func TestSet_HighAddresses(t *testing.T) {
	for _, k := range []Kind{Sorted, BTree, LLRB} {
		t.Run(k.String(), func(t *testing.T) {
			s := New(k, 4)
			top := ^uintptr(0)
			for _, a := range []uintptr{top, 16, top >> 1, top - 15} {
				s.Add(a)
			}
			s.Seal()
			require.Equal(t, 4, s.Len())
			for _, a := range []uintptr{top, 16, top >> 1, top - 15} {
				require.True(t, s.Has(a))
			}
			require.False(t, s.Has(top-1))
			require.False(t, s.Has(top>>1+1))
		})
	}
}

func TestKind_UnmarshalText(t *testing.T) {
	var k Kind
	require.NoError(t, k.UnmarshalText([]byte(" BTree ")))
	require.Equal(t, BTree, k)
	require.Error(t, k.UnmarshalText([]byte("skiplist")))
}
