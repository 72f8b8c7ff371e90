/*
 * Copyright 2022 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package bitvec implements a fixed-length bit vector used by the dataflow
// analyses of the DFG tier.
package bitvec

import (
	"math/bits"
	"strconv"
	"strings"

	"tlog.app/go/tlog/tlwire"
)

// Vector is a bit vector of a fixed length. All binary operations require
// both operands to have the same length.
type Vector struct {
	n int
	b []uint64
}

func New(n int) Vector {
	if n < 0 {
		panic("bitvec: negative length")
	}

	return Vector{n: n, b: make([]uint64, (n+63)/64)}
}

func (s Vector) Len() int { return s.n }

func (s Vector) Set(i int) {
	s.check(i)
	s.b[i/64] |= 1 << (i % 64)
}

func (s Vector) Clear(i int) {
	s.check(i)
	s.b[i/64] &^= 1 << (i % 64)
}

func (s Vector) IsSet(i int) bool {
	s.check(i)
	return s.b[i/64]&(1<<(i%64)) != 0
}

// Or sets s to s | x and reports whether any bit of s changed.
func (s Vector) Or(x Vector) (changed bool) {
	s.same(x)

	for i, w := range x.b {
		if v := s.b[i] | w; v != s.b[i] {
			s.b[i] = v
			changed = true
		}
	}

	return changed
}

func (s Vector) And(x Vector) {
	s.same(x)

	for i, w := range x.b {
		s.b[i] &= w
	}
}

func (s Vector) AndNot(x Vector) {
	s.same(x)

	for i, w := range x.b {
		s.b[i] &^= w
	}
}

// ClearFrom clears every bit at position k or above.
func (s Vector) ClearFrom(k int) {
	if k >= s.n {
		return
	}

	if k < 0 {
		k = 0
	}

	i := k / 64
	s.b[i] &= (1 << (k % 64)) - 1

	for i++; i < len(s.b); i++ {
		s.b[i] = 0
	}
}

// SetFrom sets every bit in [k, Len()).
func (s Vector) SetFrom(k int) {
	for i := k; i < s.n; i++ {
		s.Set(i)
	}
}

func (s Vector) CopyFrom(x Vector) {
	s.same(x)
	copy(s.b, x.b)
}

func (s Vector) Copy() Vector {
	r := New(s.n)
	copy(r.b, s.b)

	return r
}

func (s Vector) Equal(x Vector) bool {
	if s.n != x.n {
		return false
	}

	for i, w := range x.b {
		if s.b[i] != w {
			return false
		}
	}

	return true
}

// IsSubsetOf reports whether every bit set in s is also set in x.
func (s Vector) IsSubsetOf(x Vector) bool {
	s.same(x)

	for i, w := range s.b {
		if w&^x.b[i] != 0 {
			return false
		}
	}

	return true
}

func (s Vector) IsEmpty() bool {
	for _, w := range s.b {
		if w != 0 {
			return false
		}
	}

	return true
}

func (s Vector) Count() (r int) {
	for _, w := range s.b {
		r += bits.OnesCount64(w)
	}

	return r
}

func (s Vector) Reset() {
	for i := range s.b {
		s.b[i] = 0
	}
}

// Range calls f for every set bit in ascending order until f returns false.
func (s Vector) Range(f func(i int) bool) {
	for i, x := range s.b {
		for x != 0 {
			j := bits.TrailingZeros64(x)

			if !f(i*64 + j) {
				return
			}

			x &= x - 1
		}
	}
}

func (s Vector) String() string {
	var b strings.Builder

	b.WriteByte('{')

	s.Range(func(i int) bool {
		if b.Len() > 1 {
			b.WriteString(", ")
		}

		b.WriteString(strconv.Itoa(i))

		return true
	})

	b.WriteByte('}')

	return b.String()
}

func (s Vector) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)

		return true
	})

	return e.AppendBreak(b)
}

func (s Vector) check(i int) {
	if i < 0 || i >= s.n {
		panic("bitvec: index out of range: " + strconv.Itoa(i))
	}
}

func (s Vector) same(x Vector) {
	if s.n != x.n {
		panic("bitvec: length mismatch")
	}
}
