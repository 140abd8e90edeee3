package memory

import (
	"github.com/lambdadelta-communism/multiemu/internal/rangemap"
)

// BusInfo describes one address space: its bit width (used to mask
// addresses before routing, capturing mirror-addressing behaviour of
// narrow-bus hardware) and the ordered, non-overlapping population of
// components registered on it.
type BusInfo struct {
	Width      uint8 // 1..=64
	Population rangemap.Map[ComponentID]
}

func maskAddress(addr uint64, width uint8) uint64 {
	if width >= 64 {
		return addr
	}
	return addr & ((uint64(1) << width) - 1)
}

// MemoryTranslationTable routes (address, buffer, address space) accesses
// to every component whose registered range overlaps the access, resolving
// redirects transitively and surfacing a combined error map if any
// sub-range ultimately fails.
//
// It is read-only after Machine.Build installs it: InsertBus/InsertComponent
// are only ever called during machine assembly, never concurrently with
// Read/Write/Preview.
type MemoryTranslationTable struct {
	busses   map[AddressSpaceID]*BusInfo
	resolver Resolver
}

// NewMemoryTranslationTable returns an empty table with no busses.
func NewMemoryTranslationTable() *MemoryTranslationTable {
	return &MemoryTranslationTable{busses: make(map[AddressSpaceID]*BusInfo)}
}

// InsertBus declares address space id with the given bit width. Calling it
// twice for the same id is a no-op, matching the original's
// entry().or_insert_with behaviour.
func (t *MemoryTranslationTable) InsertBus(id AddressSpaceID, width uint8) {
	if _, ok := t.busses[id]; ok {
		return
	}
	t.busses[id] = &BusInfo{Width: width}
}

// InsertComponent registers component on every given range within address
// space id. The bus must already exist via InsertBus. Overlapping ranges,
// either against each other or against an existing registration, panic.
func (t *MemoryTranslationTable) InsertComponent(id AddressSpaceID, component ComponentID, ranges []rangemap.Range) {
	bus, ok := t.busses[id]
	if !ok {
		panic("memory: bus must be initialized before inserting a component")
	}
	for _, r := range ranges {
		bus.Population.Insert(r, component)
	}
}

// SetResolver installs the component store used to look up memory
// capabilities by id. Must be called before any Read/Write/Preview.
func (t *MemoryTranslationTable) SetResolver(resolver Resolver) {
	t.resolver = resolver
}

// AddressSpaces returns the number of declared address spaces.
func (t *MemoryTranslationTable) AddressSpaces() int { return len(t.busses) }

type pendingAccess struct {
	address uint64
	lo, hi  int // sub-range of the caller's buffer, in bytes
}

type kind int

const (
	kindRead kind = iota
	kindWrite
	kindPreview
)

func (k kind) opName() string {
	switch k {
	case kindRead:
		return "read"
	case kindWrite:
		return "write"
	default:
		return "preview"
	}
}

func invoke(kind kind, c MemoryComponent, address uint64, buf []byte, space AddressSpaceID, errs *Records) {
	switch kind {
	case kindRead:
		c.ReadMemory(address, buf, space, errs)
	case kindWrite:
		c.WriteMemory(address, buf, space, errs)
	default:
		c.PreviewMemory(address, buf, space, errs)
	}
}

// dispatch implements the read/write/preview algorithm shared by the three
// public operations: bus-width masking, a bounded stack of pending
// sub-accesses, overlap resolution, redirect push-back with a self-redirect
// check, and error aggregation that aborts the whole operation on the first
// sub-access carrying a hard failure.
func (t *MemoryTranslationTable) dispatch(k kind, address uint64, buf []byte, space AddressSpaceID) *OperationError {
	checkAccessSize(buf)

	bus, ok := t.busses[space]
	if !ok {
		panic("memory: non-existent address space")
	}
	if t.resolver == nil {
		panic("memory: no component store installed")
	}

	address = maskAddress(address, bus.Width)

	stack := []pendingAccess{{address: address, lo: 0, hi: len(buf)}}

	// processed counts every pendingAccess popped off the stack, including
	// the initial one. It bounds the total number of redirect hops an
	// operation may take, whether they arise from a long redirect chain or
	// from a single access fanning out into many redirected sub-ranges, and
	// is what actually guarantees dispatch terminates.
	processed := 0

	for len(stack) > 0 {
		processed++
		if processed > MaxAccessSize {
			return &OperationError{Op: k.opName(), Overflow: true}
		}

		access := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		accessing := rangemap.Range{
			Start: access.address,
			End:   access.address + uint64(access.hi-access.lo),
		}

		var failures rangemap.Map[FailureTag]
		anyOverlap := false

		// Every component whose registered range overlaps accessing is
		// handed the *entire* pending sub-access buffer (buf[access.lo:
		// access.hi]), addressed at the start of its own overlap with
		// accessing — not a slice clipped down to that overlap. This
		// mirrors the original memory.rs, which never narrows the buffer
		// it passes to a component: a component that owns only part of the
		// requested range sees the rest of the buffer too, and is expected
		// to report the portion it doesn't own as Denied itself (see
		// StandardMemory's before/after range check). Narrowing the slice
		// here would make that self-reporting unreachable, since the
		// component would never see the out-of-range bytes at all.
		bus.Population.Overlapping(accessing, func(owned rangemap.Range, componentID ComponentID) {
			anyOverlap = true

			overlap := rangemap.Intersect(accessing, owned)

			component, ok := t.resolver.MemoryComponent(componentID)
			if !ok {
				panic("memory: registered component has no memory capability")
			}

			var errs Records
			invoke(k, component, overlap.Start, buf[access.lo:access.hi], space, &errs)

			// Records a component inserts into errs use the same global,
			// bus-address coordinates as accessing and owned — never
			// offsets into the buffer it was handed. That is what lets the
			// redirect push-back below translate a record's range r against
			// accessing.Start into a buffer sub-range (rec.Address, also
			// global, becomes the new access address as-is), and what lets
			// failures (keyed the same way as the FailOutOfBus entry
			// below) hold every record without mixing coordinate systems.
			errs.All(func(r rangemap.Range, rec Record) {
				switch rec.Tag {
				case RecordDenied:
					failures.Insert(r, FailDenied)
				case RecordImpossible:
					if k != kindPreview {
						panic("memory: component reported Impossible outside of preview")
					}
					failures.Insert(r, FailImpossible)
				case RecordRedirect:
					if owned.Contains(rec.Address) {
						panic("memory: component attempted to redirect to itself")
					}
					stack = append(stack, pendingAccess{
						address: rec.Address,
						lo:      access.lo + int(r.Start-accessing.Start),
						hi:      access.lo + int(r.End-accessing.Start),
					})
				}
			})
		})

		// A sub-access that overlaps no registered component at all (not
		// even partially) is reported as FailOutOfBus here, since there is
		// no component left to ask. A sub-access that overlaps at least one
		// component relies entirely on that component to self-report
		// whatever part of the range it doesn't own, matching the original
		// source, which has no equivalent bus-level gap detection.
		if !anyOverlap {
			failures.Insert(accessing, FailOutOfBus)
		}

		if !failures.IsEmpty() {
			return &OperationError{Op: k.opName(), Failures: failures}
		}
	}

	return nil
}

// Read fills buf (len in {1,2,4,8}) from address space, resolving any
// component redirects transparently. Contents of buf upon failure are
// component-specific.
func (t *MemoryTranslationTable) Read(address uint64, buf []byte, space AddressSpaceID) error {
	if err := t.dispatch(kindRead, address, buf, space); err != nil {
		return err
	}
	return nil
}

// Write delivers buf to every component owning the addressed range,
// resolving redirects transparently. A failure aborts the operation but
// components that did not themselves deny may still have observed a
// partial write; see StandardMemory's doc comment.
func (t *MemoryTranslationTable) Write(address uint64, buf []byte, space AddressSpaceID) error {
	if err := t.dispatch(kindWrite, address, buf, space); err != nil {
		return err
	}
	return nil
}

// Preview is a side-effect-free variant of Read. Components may refuse with
// Impossible when the true value cannot be produced without a state change.
func (t *MemoryTranslationTable) Preview(address uint64, buf []byte, space AddressSpaceID) error {
	if err := t.dispatch(kindPreview, address, buf, space); err != nil {
		return err
	}
	return nil
}
