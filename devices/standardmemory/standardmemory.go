// Package standardmemory implements a plain, byte-addressable memory
// component: RAM when writable, ROM-like flat storage when not, backed by
// a chunked byte array so initialization and snapshotting can proceed in
// parallel per chunk.
package standardmemory

import (
	"fmt"
	"io"
	"math/rand"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"

	"github.com/lambdadelta-communism/multiemu/internal/memory"
	"github.com/lambdadelta-communism/multiemu/internal/rangemap"
	"github.com/lambdadelta-communism/multiemu/internal/rom"
)

// chunkSize is the granularity at which StandardMemory locks and
// initializes its backing storage. The RomFilled initializer also streams
// through a buffer of this size, mirroring the original's fixed 4 KiB ROM
// staging buffer.
const chunkSize = 4096

// InitialContentsKind selects how a freshly-built StandardMemory populates
// itself before the first access.
type InitialContentsKind int

const (
	// Zeroed leaves every byte at its Go zero value.
	Zeroed InitialContentsKind = iota
	// ValueFilled fills every byte with Fill.
	ValueFilled
	// ArrayFilled copies Data into memory starting at offset 0, and zeroes
	// whatever remains.
	ArrayFilled
	// RandomFilled fills memory with bytes drawn from math/rand.
	RandomFilled
	// RomFilled streams a ROM's contents into memory starting at Offset,
	// through the Config.RomManager the component was built with. This is
	// how RAM gets pre-loaded from a cartridge/ROM image at machine
	// assembly time, distinct from rommemory.RomMemory's always-backed,
	// read-only mapping.
	RomFilled
)

// InitialContents describes the fill strategy and its parameters.
type InitialContents struct {
	Kind InitialContentsKind
	Fill byte
	Data []byte
	// RomID and Offset are only meaningful when Kind == RomFilled: RomID
	// names the ROM to open (as Required — a configured RomFilled source
	// that is missing is a construction error, not a denial), and Offset
	// is the first local byte this component's contents are written to.
	RomID  rom.ID
	Offset uint64
}

// Config parameterizes a StandardMemory instance.
type Config struct {
	// Base is the address, within whichever bus this component is mapped
	// onto, that corresponds to local offset 0 — i.e. the start of the
	// assigned_range the machine builder registered this component under.
	// Every address ReadMemory/WriteMemory/PreviewMemory receives is
	// global; Base is subtracted before it is used as a chunk offset.
	Base uint64
	// Size is the number of bytes this component owns.
	Size uint64
	// Readable/Writable gate ReadMemory/WriteMemory entirely; a
	// non-writable StandardMemory behaves like ROM.
	Readable, Writable bool
	// MaxWordSize caps the size of a single access this component will
	// satisfy; see the doc comment on ReadMemory for the asymmetry this
	// component preserves relative to Write.
	MaxWordSize int
	Initial     InitialContents
	// RomManager resolves Initial.RomID when Initial.Kind == RomFilled. It
	// is unused, and may be left nil, for every other InitialContentsKind.
	RomManager rom.Manager
}

// StandardMemory is a chunked, lockable byte store. Each chunkSize-byte
// chunk has its own sync.Mutex: reads copy out of a chunk and writes copy
// into it, so both need exclusive per-chunk access and a sync.RWMutex would
// buy nothing the spec asks for.
type StandardMemory struct {
	cfg    Config
	chunks [][]byte
	locks  []sync.Mutex
}

// New builds a StandardMemory and fills it per cfg.Initial. Chunk fill
// fans out one goroutine per chunk via errgroup, standing in for the
// original's rayon par_iter fan-out.
func New(cfg Config) (*StandardMemory, error) {
	n := (cfg.Size + chunkSize - 1) / chunkSize
	m := &StandardMemory{
		cfg:    cfg,
		chunks: make([][]byte, n),
		locks:  make([]sync.Mutex, n),
	}
	for i := range m.chunks {
		m.chunks[i] = make([]byte, chunkSize)
	}

	if err := m.initialize(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *StandardMemory) initialize() error {
	switch m.cfg.Initial.Kind {
	case Zeroed:
		return nil
	case ValueFilled:
		fill := m.cfg.Initial.Fill
		g := new(errgroup.Group)
		for i := range m.chunks {
			chunk := m.chunks[i]
			g.Go(func() error {
				for j := range chunk {
					chunk[j] = fill
				}
				return nil
			})
		}
		return g.Wait()
	case RandomFilled:
		g := new(errgroup.Group)
		for i := range m.chunks {
			chunk := m.chunks[i]
			g.Go(func() error {
				if _, err := rand.Read(chunk); err != nil {
					return fmt.Errorf("standardmemory: random fill: %w", err)
				}
				return nil
			})
		}
		return g.Wait()
	case ArrayFilled:
		return m.writeLocked(0, m.cfg.Initial.Data)
	case RomFilled:
		return m.fillFromRom()
	default:
		return fmt.Errorf("standardmemory: unknown initial contents kind %d", m.cfg.Initial.Kind)
	}
}

// fillFromRom streams the configured ROM into memory starting at
// Initial.Offset, 4 KiB at a time, stopping at either the end of this
// component's storage or the end of the ROM — whichever comes first. It is
// grounded on the original's Rom initial-contents handling: open the ROM as
// Required, read through a fixed-size staging buffer, and write each chunk
// through the same internal path a direct write would use.
func (m *StandardMemory) fillFromRom() error {
	ic := m.cfg.Initial
	f, err := m.cfg.RomManager.Open(ic.RomID, rom.Required)
	if err != nil {
		return fmt.Errorf("standardmemory: opening rom: %w", err)
	}
	defer f.Close()

	if ic.Offset >= m.cfg.Size {
		return nil
	}
	internalSize := m.cfg.Size - ic.Offset

	var chunk [chunkSize]byte
	var totalRead uint64
	for totalRead < internalSize {
		remaining := internalSize - totalRead
		amountToRead := uint64(len(chunk))
		if remaining < amountToRead {
			amountToRead = remaining
		}
		n, rerr := f.Read(chunk[:amountToRead])
		if n > 0 {
			if werr := m.writeLocked(ic.Offset+totalRead, chunk[:n]); werr != nil {
				return werr
			}
			totalRead += uint64(n)
		}
		if rerr != nil {
			if rerr == io.EOF {
				break
			}
			return fmt.Errorf("standardmemory: reading rom: %w", rerr)
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// writeLocked copies data into memory starting at offset, taking each
// touched chunk's lock in turn. It is the shared path for both WriteMemory
// and the ArrayFilled initializer.
func (m *StandardMemory) writeLocked(offset uint64, data []byte) error {
	remaining := data
	for len(remaining) > 0 && offset < m.cfg.Size {
		chunkIdx := offset / chunkSize
		chunkOff := offset % chunkSize
		n := chunkSize - chunkOff
		if uint64(len(remaining)) < n {
			n = uint64(len(remaining))
		}
		m.locks[chunkIdx].Lock()
		copy(m.chunks[chunkIdx][chunkOff:chunkOff+n], remaining[:n])
		m.locks[chunkIdx].Unlock()
		remaining = remaining[n:]
		offset += n
	}
	return nil
}

func (m *StandardMemory) readLocked(offset uint64, buf []byte) {
	remaining := buf
	for len(remaining) > 0 {
		chunkIdx := offset / chunkSize
		chunkOff := offset % chunkSize
		n := chunkSize - chunkOff
		if uint64(len(remaining)) < n {
			n = uint64(len(remaining))
		}
		m.locks[chunkIdx].Lock()
		copy(remaining[:n], m.chunks[chunkIdx][chunkOff:chunkOff+n])
		m.locks[chunkIdx].Unlock()
		remaining = remaining[n:]
		offset += n
	}
}

// local translates a global bus address into an offset into this
// component's own chunks, per the translation table's address − range.start
// convention. It returns false if address lies before Base at all (the
// translation table never asks for this, since it only ever calls in for
// addresses that overlap the registered range, but out-of-range writes
// that start before Base and straddle into it are still possible).
func (m *StandardMemory) local(address uint64) (uint64, bool) {
	if address < m.cfg.Base {
		return 0, false
	}
	return address - m.cfg.Base, true
}

// outOfRange computes the portion of [address, address+n) that falls before
// this component's assigned range and the portion that falls after it,
// mirroring the original's invalid_before_range/invalid_after_range split.
// Either, both, or neither may be non-empty; a request entirely inside the
// assigned range yields two empty ranges.
func (m *StandardMemory) outOfRange(address uint64, n int) (before, after rangemap.Range) {
	before = rangemap.Range{Start: address, End: m.cfg.Base}
	after = rangemap.Range{Start: m.cfg.Base + m.cfg.Size, End: address + uint64(n)}
	return before, after
}

// ReadMemory denies out-of-range accesses, accesses over MaxWordSize (when
// set), and any access at all if the component was built non-readable.
//
// This check is asymmetric with WriteMemory on purpose: the original source
// this component is ported from only enforces MaxWordSize on the read path,
// leaving Write unbounded. That asymmetry is preserved here rather than
// "fixed", since nothing in the spec this component implements says which
// behavior is correct and changing it would be an undocumented behavior
// change for any caller relying on today's asymmetry.
//
// buf may run past the end of this component's assigned range — the
// translation table hands every overlapping component the full pending
// access, not just the part it owns. A request that spills outside the
// assigned range is denied on exactly the spilling sub-range(s), in global
// address coordinates, and leaves buf untouched entirely: like the
// original, this component either satisfies a request in full or reports
// every problem with it and does nothing.
func (m *StandardMemory) ReadMemory(address uint64, buf []byte, _ memory.AddressSpaceID, errs *memory.Records) {
	whole := rangemap.Range{Start: address, End: address + uint64(len(buf))}
	if !m.cfg.Readable {
		errs.Insert(whole, memory.Denied())
		return
	}
	if m.cfg.MaxWordSize > 0 && len(buf) > m.cfg.MaxWordSize {
		errs.Insert(whole, memory.Denied())
		return
	}
	before, after := m.outOfRange(address, len(buf))
	if !before.Empty() || !after.Empty() {
		if !before.Empty() {
			errs.Insert(before, memory.Denied())
		}
		if !after.Empty() {
			errs.Insert(after, memory.Denied())
		}
		return
	}
	local, _ := m.local(address)
	m.readLocked(local, buf)
}

// WriteMemory denies out-of-range accesses and any access at all if the
// component was built non-writable. Unlike ReadMemory it applies no
// MaxWordSize check; see ReadMemory's doc comment. The out-of-range split
// described there applies identically here.
//
// A write that is denied because it runs past the end of memory never
// partially lands: the range check happens before any chunk is touched.
// This component never attempts the kind of rollback a transactional store
// would; that remains undefined behavior inherited from the original
// design, not something this component adds on top of it.
func (m *StandardMemory) WriteMemory(address uint64, buf []byte, _ memory.AddressSpaceID, errs *memory.Records) {
	whole := rangemap.Range{Start: address, End: address + uint64(len(buf))}
	if !m.cfg.Writable {
		errs.Insert(whole, memory.Denied())
		return
	}
	before, after := m.outOfRange(address, len(buf))
	if !before.Empty() || !after.Empty() {
		if !before.Empty() {
			errs.Insert(before, memory.Denied())
		}
		if !after.Empty() {
			errs.Insert(after, memory.Denied())
		}
		return
	}
	local, _ := m.local(address)
	_ = m.writeLocked(local, buf)
}

// PreviewMemory behaves exactly like ReadMemory: plain memory has no
// access that produces a side effect, so there is nothing to report as
// Impossible.
func (m *StandardMemory) PreviewMemory(address uint64, buf []byte, space memory.AddressSpaceID, errs *memory.Records) {
	m.ReadMemory(address, buf, space, errs)
}

// Reset restores memory to its configured initial contents.
func (m *StandardMemory) Reset() {
	for i := range m.chunks {
		m.locks[i].Lock()
		clear(m.chunks[i])
		m.locks[i].Unlock()
	}
	if err := m.initialize(); err != nil {
		panic(err)
	}
}

type snapshot struct {
	Memory []byte `msgpack:"memory"`
}

// Snapshot encodes the full contents of memory as a single contiguous byte
// slice inside a msgpack-encodable struct, mirroring the original's
// {memory: []byte} rmpv::Value shape.
func (m *StandardMemory) Snapshot() (any, error) {
	buf := make([]byte, m.cfg.Size)
	m.readLocked(0, buf)
	data, err := msgpack.Marshal(snapshot{Memory: buf})
	if err != nil {
		return nil, fmt.Errorf("standardmemory: snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces memory's contents from a value produced by Snapshot.
func (m *StandardMemory) Restore(v any) error {
	data, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("standardmemory: restore: expected []byte, got %T", v)
	}
	var s snapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("standardmemory: restore: %w", err)
	}
	if uint64(len(s.Memory)) != m.cfg.Size {
		return fmt.Errorf("standardmemory: restore: size mismatch, snapshot has %d bytes, component has %d", len(s.Memory), m.cfg.Size)
	}
	return m.writeLocked(0, s.Memory)
}
