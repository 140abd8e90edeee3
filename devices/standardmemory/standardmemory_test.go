package standardmemory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/lambdadelta-communism/multiemu/internal/memory"
	"github.com/lambdadelta-communism/multiemu/internal/rangemap"
	"github.com/lambdadelta-communism/multiemu/internal/rom"
)

func newRAM(t *testing.T, size uint64) *StandardMemory {
	t.Helper()
	m, err := New(Config{Size: size, Readable: true, Writable: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m
}

func TestZeroedByDefault(t *testing.T) {
	m := newRAM(t, 16)
	buf := make([]byte, 4)
	var errs memory.Records
	m.ReadMemory(0, buf, 0, &errs)
	if !errs.IsEmpty() {
		t.Fatalf("unexpected denial: %v", errs)
	}
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("expected zeroed memory, got %v", buf)
		}
	}
}

func TestWriteThenRead(t *testing.T) {
	m := newRAM(t, 16)
	want := []byte{1, 2, 3, 4}
	var errs memory.Records
	m.WriteMemory(4, want, 0, &errs)
	if !errs.IsEmpty() {
		t.Fatalf("unexpected write denial: %v", errs)
	}

	got := make([]byte, 4)
	m.ReadMemory(4, got, 0, &errs)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestReadOnlyDeniesWrites(t *testing.T) {
	m, err := New(Config{Size: 16, Readable: true, Writable: false})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var errs memory.Records
	m.WriteMemory(0, []byte{1}, 0, &errs)
	if errs.IsEmpty() {
		t.Fatal("expected write denial on read-only memory")
	}
}

func TestOutOfRangeDenied(t *testing.T) {
	m := newRAM(t, 8)
	var errs memory.Records
	buf := make([]byte, 4)
	m.ReadMemory(6, buf, 0, &errs)
	if errs.IsEmpty() {
		t.Fatal("expected denial reading past the end of memory")
	}
}

func TestNonZeroBaseTranslatesGlobalAddress(t *testing.T) {
	m, err := New(Config{Base: 0x8000, Size: 16, Readable: true, Writable: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var errs memory.Records
	m.WriteMemory(0x8004, []byte{1, 2, 3, 4}, 0, &errs)
	if !errs.IsEmpty() {
		t.Fatalf("unexpected write denial: %v", errs)
	}

	got := make([]byte, 4)
	m.ReadMemory(0x8004, got, 0, &errs)
	for i, want := range []byte{1, 2, 3, 4} {
		if got[i] != want {
			t.Fatalf("got %v want [1 2 3 4]", got)
		}
	}

	// Below the base entirely: denied, never misread as a huge local offset.
	errs = memory.Records{}
	m.ReadMemory(0x10, got, 0, &errs)
	if errs.IsEmpty() {
		t.Fatal("expected denial reading below the assigned range's base")
	}

	// Past the end of the assigned range: denied.
	errs = memory.Records{}
	m.ReadMemory(0x8010, make([]byte, 1), 0, &errs)
	if errs.IsEmpty() {
		t.Fatal("expected denial reading past the end of the assigned range")
	}
}

func TestMaxWordSizeAsymmetry(t *testing.T) {
	m, err := New(Config{Size: 16, Readable: true, Writable: true, MaxWordSize: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var readErrs memory.Records
	m.ReadMemory(0, make([]byte, 4), 0, &readErrs)
	if readErrs.IsEmpty() {
		t.Fatal("expected read over MaxWordSize to be denied")
	}

	// Write enforces no MaxWordSize check: this asymmetry is preserved
	// intentionally, not a bug in this test.
	var writeErrs memory.Records
	m.WriteMemory(0, make([]byte, 4), 0, &writeErrs)
	if !writeErrs.IsEmpty() {
		t.Fatalf("expected write over MaxWordSize to still succeed, got %v", writeErrs)
	}
}

func TestArrayFilledInitialContents(t *testing.T) {
	m, err := New(Config{
		Size: 8, Readable: true, Writable: true,
		Initial: InitialContents{Kind: ArrayFilled, Data: []byte{9, 8, 7}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := make([]byte, 3)
	var errs memory.Records
	m.ReadMemory(0, got, 0, &errs)
	if got[0] != 9 || got[1] != 8 || got[2] != 7 {
		t.Fatalf("got %v", got)
	}
}

func TestValueFilledInitialContents(t *testing.T) {
	m, err := New(Config{
		Size: chunkSize * 2, Readable: true, Writable: true,
		Initial: InitialContents{Kind: ValueFilled, Fill: 0xaa},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got := make([]byte, chunkSize*2)
	var errs memory.Records
	m.ReadMemory(0, got, 0, &errs)
	for i, b := range got {
		if b != 0xaa {
			t.Fatalf("byte %d not filled: %x", i, b)
		}
	}
}

func TestRomFilledInitialContents(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()
	if err := os.WriteFile(filepath.Join(dir, id.String()+".bin"), []byte{0x60, 0x0a, 0xff, 0x00}, 0o644); err != nil {
		t.Fatalf("writing rom fixture: %v", err)
	}
	mgr, err := rom.NewDirManager(dir)
	if err != nil {
		t.Fatalf("NewDirManager: %v", err)
	}

	m, err := New(Config{
		Size: 16, Readable: true, Writable: true,
		RomManager: mgr,
		Initial:    InitialContents{Kind: RomFilled, RomID: id, Offset: 4},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := make([]byte, 8)
	var errs memory.Records
	m.ReadMemory(0, got, 0, &errs)
	if !errs.IsEmpty() {
		t.Fatalf("unexpected denial: %v", errs)
	}
	want := []byte{0, 0, 0, 0, 0x60, 0x0a, 0xff, 0x00}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestRomFilledStopsAtComponentSize(t *testing.T) {
	dir := t.TempDir()
	id := uuid.New()
	big := make([]byte, 64)
	for i := range big {
		big[i] = byte(i + 1)
	}
	if err := os.WriteFile(filepath.Join(dir, id.String()+".bin"), big, 0o644); err != nil {
		t.Fatalf("writing rom fixture: %v", err)
	}
	mgr, err := rom.NewDirManager(dir)
	if err != nil {
		t.Fatalf("NewDirManager: %v", err)
	}

	m, err := New(Config{
		Size: 8, Readable: true, Writable: true,
		RomManager: mgr,
		Initial:    InitialContents{Kind: RomFilled, RomID: id, Offset: 0},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got := make([]byte, 8)
	var errs memory.Records
	m.ReadMemory(0, got, 0, &errs)
	if !errs.IsEmpty() {
		t.Fatalf("unexpected denial: %v", errs)
	}
	for i, want := range big[:8] {
		if got[i] != want {
			t.Fatalf("got %v want first 8 bytes of rom %v", got, big[:8])
		}
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	m := newRAM(t, 16)
	var errs memory.Records
	m.WriteMemory(0, []byte{1, 2, 3, 4}, 0, &errs)

	snap, err := m.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	restored := newRAM(t, 16)
	if err := restored.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	got := make([]byte, 4)
	restored.ReadMemory(0, got, 0, &errs)
	if got[0] != 1 || got[1] != 2 || got[2] != 3 || got[3] != 4 {
		t.Fatalf("restored contents wrong: %v", got)
	}
}

// tableResolver maps ComponentID 0 to a single StandardMemory, enough to
// drive it through a real MemoryTranslationTable instead of calling
// ReadMemory directly.
type tableResolver struct{ m *StandardMemory }

func (r tableResolver) MemoryComponent(memory.ComponentID) (memory.MemoryComponent, bool) {
	return r.m, true
}

// TestPartialOverlapDeniesOnlyTheSpillingTail exercises a read that starts
// inside a component's assigned range and runs past its end through the
// real translation table, not StandardMemory.ReadMemory directly. Only the
// spilling tail should be reported as denied — not the whole access, and
// not as an out-of-bus failure, since part of the access genuinely is
// serviced by a registered component.
func TestPartialOverlapDeniesOnlyTheSpillingTail(t *testing.T) {
	m := newRAM(t, 16) // assigned_range = [0, 16)

	tbl := memory.NewMemoryTranslationTable()
	tbl.InsertBus(0, 32)
	tbl.SetResolver(tableResolver{m: m})
	tbl.InsertComponent(0, 0, []rangemap.Range{{Start: 0, End: 16}})

	buf := make([]byte, 8)
	err := tbl.Read(14, buf, 0)
	if err == nil {
		t.Fatal("expected an error reading past the end of the assigned range")
	}
	opErr, ok := err.(*memory.OperationError)
	if !ok {
		t.Fatalf("unexpected error type %T", err)
	}

	sawDenied, sawOutOfBus := false, false
	opErr.Failures.All(func(r rangemap.Range, tag memory.FailureTag) {
		switch tag {
		case memory.FailDenied:
			sawDenied = true
			if r.Start != 16 || r.End != 22 {
				t.Fatalf("expected the denied range to be exactly [16,22), got [%d,%d)", r.Start, r.End)
			}
		case memory.FailOutOfBus:
			sawOutOfBus = true
		}
	})
	if !sawDenied {
		t.Fatalf("expected a Denied failure for the spilling tail, got %v", opErr.Failures)
	}
	if sawOutOfBus {
		t.Fatalf("did not expect FailOutOfBus: the tail is within a registered component's own reporting, got %v", opErr.Failures)
	}
}

func TestResetReappliesInitialContents(t *testing.T) {
	m, err := New(Config{
		Size: 8, Readable: true, Writable: true,
		Initial: InitialContents{Kind: ValueFilled, Fill: 0x55},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var errs memory.Records
	m.WriteMemory(0, []byte{0, 0, 0, 0}, 0, &errs)
	m.Reset()

	got := make([]byte, 4)
	m.ReadMemory(0, got, 0, &errs)
	for _, b := range got {
		if b != 0x55 {
			t.Fatalf("expected Reset to restore fill value, got %v", got)
		}
	}
}
