// Package rangemap implements an ordered, non-overlapping mapping from
// half-open integer ranges to values. It backs the bus population table in
// package memory and the per-call error maps every memory component builds.
package rangemap

import "sort"

// Range is a half-open interval [Start, End).
type Range struct {
	Start, End uint64
}

// Len returns the number of addresses covered by r.
func (r Range) Len() uint64 { return r.End - r.Start }

// Empty reports whether r covers no addresses.
func (r Range) Empty() bool { return r.End <= r.Start }

// Contains reports whether addr falls within r.
func (r Range) Contains(addr uint64) bool { return addr >= r.Start && addr < r.End }

// Overlaps reports whether r and o share any address.
func (r Range) Overlaps(o Range) bool { return r.Start < o.End && o.Start < r.End }

// Intersect returns the overlapping sub-range of r and o. The result is
// empty if r and o do not overlap.
func Intersect(r, o Range) Range {
	start := r.Start
	if o.Start > start {
		start = o.Start
	}
	end := r.End
	if o.End < end {
		end = o.End
	}
	if end < start {
		end = start
	}
	return Range{Start: start, End: end}
}

type entry[V any] struct {
	r     Range
	value V
}

// Map is an ordered, non-overlapping map from Range to V, kept sorted by
// Range.Start. Insertion is O(n) and only ever happens at build time;
// Overlapping queries are O(log n + k) and dominate at run time.
type Map[V any] struct {
	entries []entry[V]
}

// Insert adds r -> value. It panics if r overlaps any range already present,
// since the memory model specifies bus populations and per-call error maps
// as non-overlapping (spec: "an attempt to register an overlapping range is
// a build-time error").
func (m *Map[V]) Insert(r Range, value V) {
	if r.Empty() {
		return
	}
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].r.Start >= r.Start })
	if i > 0 && m.entries[i-1].r.Overlaps(r) {
		panic("rangemap: overlapping insert")
	}
	if i < len(m.entries) && m.entries[i].r.Overlaps(r) {
		panic("rangemap: overlapping insert")
	}
	m.entries = append(m.entries, entry[V]{})
	copy(m.entries[i+1:], m.entries[i:])
	m.entries[i] = entry[V]{r: r, value: value}
}

// Overlapping calls fn for every (range, value) pair whose range overlaps
// query, in ascending address order.
func (m *Map[V]) Overlapping(query Range, fn func(r Range, value V)) {
	i := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].r.End > query.Start })
	for ; i < len(m.entries) && m.entries[i].r.Start < query.End; i++ {
		fn(m.entries[i].r, m.entries[i].value)
	}
}

// All calls fn for every (range, value) pair in ascending address order.
func (m *Map[V]) All(fn func(r Range, value V)) {
	for _, e := range m.entries {
		fn(e.r, e.value)
	}
}

// Len returns the number of ranges stored.
func (m *Map[V]) Len() int { return len(m.entries) }

// IsEmpty reports whether the map holds no ranges.
func (m *Map[V]) IsEmpty() bool { return len(m.entries) == 0 }
