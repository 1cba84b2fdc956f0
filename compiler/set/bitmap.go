package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Bitmap is a set of block or instruction indexes.
	// The zero value is an empty set, Add grows it as needed.
	Bitmap []uint64
)

const word = 64

// Full returns a set of [0, n).
func Full(n int) Bitmap {
	s := make(Bitmap, (n+word-1)/word)

	for i := range s {
		s[i] = ^uint64(0)
	}

	if r := n % word; r != 0 {
		s[len(s)-1] = 1<<r - 1
	}

	return s
}

func (s *Bitmap) Add(x int) {
	w := x / word

	for w >= len(*s) {
		*s = append(*s, 0)
	}

	(*s)[w] |= 1 << (x % word)
}

func (s Bitmap) Remove(x int) {
	if w := x / word; w < len(s) {
		s[w] &^= 1 << (x % word)
	}
}

func (s Bitmap) Has(x int) bool {
	w := x / word

	return w < len(s) && s[w]>>(x%word)&1 == 1
}

// Len is the number of elements.
func (s Bitmap) Len() (n int) {
	for _, w := range s {
		n += bits.OnesCount64(w)
	}

	return n
}

// Each calls f for elements in increasing order until f returns false.
func (s Bitmap) Each(f func(x int) bool) {
	for w, v := range s {
		for ; v != 0; v &= v - 1 {
			if !f(w*word + bits.TrailingZeros64(v)) {
				return
			}
		}
	}
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Each(func(x int) bool {
		b = e.AppendInt(b, x)
		return true
	})

	return e.AppendBreak(b)
}
