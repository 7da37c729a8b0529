// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package caps provides the capability vocabulary and a bounded capability
// set used by the privilege-lowering analysis.
package caps

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// MaxUniverseSize is the largest capability universe a Set can represent.
const MaxUniverseSize = 256

const wordCount = MaxUniverseSize / 64

var (
	// ErrInvalidUniverse is returned when a universe size is outside
	// 1..MaxUniverseSize.
	ErrInvalidUniverse = errors.New("invalid capability universe size")
	// ErrOutOfRange is returned when a capability index is not inside the
	// universe of the set it is added to.
	ErrOutOfRange = errors.New("capability index out of range")
)

// Capability is an index into a capability universe.
type Capability uint32

// Set is a fixed-size set of capabilities drawn from a universe of Size()
// capabilities.  Sets are values: assigning a Set copies it.
//
// The zero Set has a universe of size zero and contains nothing; use NewSet
// to obtain a usable set.
type Set struct {
	size  uint16
	words [wordCount]uint64
}

// ValidUniverse returns an error wrapping ErrInvalidUniverse if size cannot be
// used as the universe size of a Set.
func ValidUniverse(size int) error {
	if size < 1 || size > MaxUniverseSize {
		return fmt.Errorf("%w: %d (want 1..%d)", ErrInvalidUniverse, size, MaxUniverseSize)
	}
	return nil
}

// NewSet returns an empty set over a universe of the given size.
func NewSet(size int) (Set, error) {
	if err := ValidUniverse(size); err != nil {
		return Set{}, err
	}
	return Set{size: uint16(size)}, nil
}

// Of returns a set over a universe of the given size containing cs.  It
// panics if size is invalid or any capability is out of range, so it is meant
// for literals in tests and tables.
func Of(size int, cs ...Capability) Set {
	s, err := NewSet(size)
	if err != nil {
		panic(err)
	}
	for _, c := range cs {
		if err := s.Add(c); err != nil {
			panic(err)
		}
	}
	return s
}

// Size returns the size of the universe of s.
func (s Set) Size() int { return int(s.size) }

// Add inserts c into s.  If c is not inside the universe of s, s is left
// unchanged and an error wrapping ErrOutOfRange is returned.
func (s *Set) Add(c Capability) error {
	if uint64(c) >= uint64(s.size) {
		return fmt.Errorf("%w: %d (universe size %d)", ErrOutOfRange, c, s.size)
	}
	s.words[c/64] |= 1 << (c % 64)
	return nil
}

// Has reports whether c is in s.  Indices outside the universe are never
// members.
func (s Set) Has(c Capability) bool {
	if uint64(c) >= uint64(s.size) {
		return false
	}
	return s.words[c/64]&(1<<(c%64)) != 0
}

// Union returns the union of s and o.  Both sets must have the same universe
// size; mixing universes is a programming error and panics.
func (s Set) Union(o Set) Set {
	if s.size != o.size {
		panic(fmt.Sprintf("caps: union of sets with universe sizes %d and %d", s.size, o.size))
	}
	for i := range s.words {
		s.words[i] |= o.words[i]
	}
	return s
}

// Equal reports whether s and o have the same universe and members.
func (s Set) Equal(o Set) bool { return s == o }

// Len returns the number of capabilities in s.
func (s Set) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// IsEmpty reports whether s has no members.
func (s Set) IsEmpty() bool { return s.Len() == 0 }

// Capabilities returns the members of s in ascending order.
func (s Set) Capabilities() []Capability {
	out := make([]Capability, 0, s.Len())
	for i, w := range s.words {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			out = append(out, Capability(i*64+b))
			w &^= 1 << b
		}
	}
	return out
}

// Names returns the Linux names of the members of s in ascending order.
func (s Set) Names() []string {
	cs := s.Capabilities()
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = Name(c)
	}
	return names
}

// String formats s as "{3,5}".
func (s Set) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, c := range s.Capabilities() {
		if i != 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatUint(uint64(c), 10))
	}
	b.WriteByte('}')
	return b.String()
}
