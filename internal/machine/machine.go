// Package machine assembles a component.Store and a memory.MemoryTranslationTable
// into a single, immutable Machine. Builder is the only place topology is
// allowed to change; once Build returns, adding a bus, a component, or a
// memory region is a programmer error and panics.
package machine

import (
	"github.com/lambdadelta-communism/multiemu/internal/component"
	"github.com/lambdadelta-communism/multiemu/internal/memory"
	"github.com/lambdadelta-communism/multiemu/internal/rangemap"
	"github.com/lambdadelta-communism/multiemu/internal/rom"
)

// Machine is an assembled, ready-to-run emulated system: a component store
// and the memory translation table wired to it.
type Machine struct {
	MTT        *memory.MemoryTranslationTable
	Store      *component.Store
	RomManager rom.Manager
}

// MemoryRegion names one contiguous range a component occupies within an
// address space.
type MemoryRegion struct {
	Space memory.AddressSpaceID
	Range rangemap.Range
}

// pendingComponent accumulates what AddComponent's callback configures
// before Builder.Build resolves it all against the component store and the
// translation table.
type pendingComponent struct {
	name            string
	comp            component.Component
	regions         []MemoryRegion
	wantSchedulable bool
	wantDisplay     bool
}

// ComponentBuilder configures a single component being added to a Builder.
// Only SetComponent is mandatory; the rest register the component for
// additional participation (memory-mapped regions, scheduling, display) that
// the component's own type must actually support, since capability
// resolution at Build time is a plain Go type assertion.
type ComponentBuilder struct {
	pending *pendingComponent
}

// SetComponent supplies the concrete component implementation. It must be
// called exactly once per AddComponent callback.
func (cb *ComponentBuilder) SetComponent(c component.Component) {
	cb.pending.comp = c
}

// SetMemory registers the address-space ranges c occupies. c must
// implement memory.MemoryComponent; this is checked at Build time, not
// here, since SetComponent may be called after SetMemory within the same
// callback.
func (cb *ComponentBuilder) SetMemory(regions []MemoryRegion) {
	cb.pending.regions = regions
}

// SetSchedulable documents, for the reader assembling a machine, that this
// component is expected to implement component.Schedulable. Build verifies
// the assertion and panics if it doesn't hold; the scheduling frequency
// itself always comes from the component's own Frequency method, since
// capability resolution elsewhere in this package is a type assertion, not
// a value a builder call can override.
func (cb *ComponentBuilder) SetSchedulable() {
	cb.pending.wantSchedulable = true
}

// SetDisplay documents that this component is expected to implement
// component.Display; see SetSchedulable's doc comment for why Build, not
// this call, is where that's actually checked.
func (cb *ComponentBuilder) SetDisplay() {
	cb.pending.wantDisplay = true
}

// Builder assembles a Machine. It is single-use: call Build once, then
// discard it.
type Builder struct {
	romManager rom.Manager
	busWidths  map[memory.AddressSpaceID]uint8
	pending    []*pendingComponent
	built      bool
}

// NewBuilder starts a new machine assembly, backed by romManager for any
// component that needs to open ROM content.
func NewBuilder(romManager rom.Manager) *Builder {
	return &Builder{romManager: romManager, busWidths: make(map[memory.AddressSpaceID]uint8)}
}

// InsertBus declares address space id with the given bit width.
func (b *Builder) InsertBus(id memory.AddressSpaceID, widthBits uint8) *Builder {
	if b.built {
		panic("machine: cannot insert a bus after Build")
	}
	b.busWidths[id] = widthBits
	return b
}

// AddComponent registers a new component under name, configured by fn.
func (b *Builder) AddComponent(name string, fn func(*ComponentBuilder)) *Builder {
	if b.built {
		panic("machine: cannot add a component after Build")
	}
	p := &pendingComponent{name: name}
	fn(&ComponentBuilder{pending: p})
	if p.comp == nil {
		panic("machine: AddComponent callback for " + name + " never called SetComponent")
	}
	b.pending = append(b.pending, p)
	return b
}

// Build freezes the component store, installs every declared bus and
// memory region into a fresh MemoryTranslationTable, and returns the
// assembled Machine. Calling Build twice, or mutating the Builder
// afterward, panics.
func (b *Builder) Build() (*Machine, error) {
	if b.built {
		panic("machine: Build called more than once")
	}
	b.built = true

	store := component.NewStore()
	mtt := memory.NewMemoryTranslationTable()

	for id, width := range b.busWidths {
		mtt.InsertBus(id, width)
	}

	for _, p := range b.pending {
		id := store.Add(p.name, p.comp)
		for _, region := range p.regions {
			mtt.InsertComponent(region.Space, id, []rangemap.Range{region.Range})
		}

		rec, _ := store.Record(id)
		if len(p.regions) > 0 && !rec.HasMemory {
			panic("machine: component " + p.name + " was given SetMemory regions but does not implement memory.MemoryComponent")
		}
		if p.wantSchedulable && !rec.HasSchedulable {
			panic("machine: component " + p.name + " was declared SetSchedulable but does not implement component.Schedulable")
		}
		if p.wantDisplay && !rec.HasDisplay {
			panic("machine: component " + p.name + " was declared SetDisplay but does not implement component.Display")
		}
	}

	store.Freeze()
	mtt.SetResolver(store)

	return &Machine{MTT: mtt, Store: store, RomManager: b.romManager}, nil
}
