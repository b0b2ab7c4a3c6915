package generics

import (
	"cmp"
	"maps"
	"slices"
)

// Set is a map[T]struct{}-backed unique set of items.
type Set[T comparable] map[T]struct{}

// NewSet returns a new Set with elements `es`.
func NewSet[T comparable](es ...T) Set[T] {
	s := make(Set[T], len(es))
	s.Add(es...)
	return s
}

// Add adds elements `es` to the Set.
func (s Set[T]) Add(es ...T) {
	for _, e := range es {
		s[e] = struct{}{}
	}
}

// Contains returns true if the Set contains `e`.
func (s Set[T]) Contains(e T) bool {
	_, ok := s[e]
	return ok
}

// Members returns the unique elements of the Set in indeterminate order.
func (s Set[T]) Members() []T {
	return slices.Collect(maps.Keys(s))
}

// Difference returns the elements from the Set that do not exist in `b`.
func (s Set[T]) Difference(b Set[T]) Set[T] {
	c := NewSet[T]()
	for v := range s {
		if !b.Contains(v) {
			c.Add(v)
		}
	}
	return c
}

// Sorted returns the members of s in ascending order.
func Sorted[T cmp.Ordered](s Set[T]) []T {
	return slices.Sorted(maps.Keys(s))
}
