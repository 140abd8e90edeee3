// Package rommemory implements a read-only memory component backed by a
// rom.Manager-opened file handle, grounded on the original's rom.rs: a
// single mutex around the seek/read sequence, every write denied, and every
// over-MaxWordSize read denied outright rather than partially satisfied.
package rommemory

import (
	"fmt"
	"io"
	"sync"

	"github.com/lambdadelta-communism/multiemu/internal/memory"
	"github.com/lambdadelta-communism/multiemu/internal/rangemap"
	"github.com/lambdadelta-communism/multiemu/internal/rom"
)

// Config parameterizes a RomMemory instance.
type Config struct {
	ID          rom.ID
	Requirement rom.Requirement
	MaxWordSize int
	// Base is the address, within whichever bus this component is mapped
	// onto, that corresponds to file offset 0 — the start of the
	// assigned_range the machine builder registered this component under.
	Base uint64
}

// RomMemory serves reads directly out of a single open file handle. Every
// read seeks first, since the handle is shared across concurrent callers
// under one mutex; there is no chunk-level parallelism here because there
// is exactly one resource (the file handle) to guard, not many independent
// byte ranges.
type RomMemory struct {
	manager rom.Manager
	cfg     Config
	mu      sync.Mutex
	file    io.ReadSeekCloser
	size    int64
}

// New opens the ROM named by cfg.ID through manager. If the ROM is Optional
// and absent, the returned RomMemory denies every read.
func New(manager rom.Manager, cfg Config) (*RomMemory, error) {
	m := &RomMemory{manager: manager, cfg: cfg}
	if err := m.open(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *RomMemory) open() error {
	f, err := m.manager.Open(m.cfg.ID, m.cfg.Requirement)
	if err != nil {
		return fmt.Errorf("rommemory: %w", err)
	}
	var size int64
	if f != nil {
		size, err = f.Seek(0, io.SeekEnd)
		if err != nil {
			return fmt.Errorf("rommemory: could not determine rom size: %w", err)
		}
	}
	m.file, m.size = f, size
	return nil
}

// local translates a global bus address into a file offset, per the
// translation table's address − range.start convention.
func (m *RomMemory) local(address uint64) (int64, bool) {
	if address < m.cfg.Base {
		return 0, false
	}
	return int64(address - m.cfg.Base), true
}

func (m *RomMemory) inRange(address uint64, n int) bool {
	local, ok := m.local(address)
	return ok && m.file != nil && local+int64(n) <= m.size
}

// ReadMemory denies reads past the end of the ROM and reads over
// MaxWordSize (when set), and always denies if the ROM was Optional and
// never opened. Denied sub-ranges are reported in global bus-address
// coordinates, matching every other memory component's convention.
func (m *RomMemory) ReadMemory(address uint64, buf []byte, _ memory.AddressSpaceID, errs *memory.Records) {
	r := rangemap.Range{Start: address, End: address + uint64(len(buf))}
	if m.cfg.MaxWordSize > 0 && len(buf) > m.cfg.MaxWordSize {
		errs.Insert(r, memory.Denied())
		return
	}
	if !m.inRange(address, len(buf)) {
		errs.Insert(r, memory.Denied())
		return
	}

	local, _ := m.local(address)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.file.Seek(local, io.SeekStart); err != nil {
		errs.Insert(r, memory.Denied())
		return
	}
	if _, err := io.ReadFull(m.file, buf); err != nil {
		errs.Insert(r, memory.Denied())
	}
}

// WriteMemory always denies: ROM content is immutable.
func (m *RomMemory) WriteMemory(address uint64, buf []byte, _ memory.AddressSpaceID, errs *memory.Records) {
	errs.Insert(rangemap.Range{Start: address, End: address + uint64(len(buf))}, memory.Denied())
}

// PreviewMemory behaves exactly like ReadMemory: seeking and reading from a
// file produces no observable side effect a caller needs shielded from.
func (m *RomMemory) PreviewMemory(address uint64, buf []byte, space memory.AddressSpaceID, errs *memory.Records) {
	m.ReadMemory(address, buf, space, errs)
}

// Reset re-opens the ROM through the manager, matching the original's
// reset-reopens-the-file semantics. A failure here is a programmer error
// per the spec this component implements (a ROM that vanished between
// construction and reset is fatal, not a denial), so Reset panics rather
// than swallowing the error.
func (m *RomMemory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.file != nil {
		_ = m.file.Close()
	}
	if err := m.open(); err != nil {
		panic(err)
	}
}

// Close releases the underlying file handle.
func (m *RomMemory) Close() error {
	if m.file == nil {
		return nil
	}
	return m.file.Close()
}
