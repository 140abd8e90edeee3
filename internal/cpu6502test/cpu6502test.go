// Package cpu6502test is not a 6502 emulator. It exists only to constrain
// the shape of the memory API: a handful of representative 6502 addressing
// modes, decoded by reading through a real MemoryTranslationTable, to prove
// the API shape works for an instruction decoder and not just for plain
// load/store access patterns.
package cpu6502test

import (
	"fmt"

	"github.com/lambdadelta-communism/multiemu/devices/standardmemory"
	"github.com/lambdadelta-communism/multiemu/internal/machine"
	"github.com/lambdadelta-communism/multiemu/internal/rangemap"
)

// AddressingMode names the handful of 6502 addressing modes this harness
// decodes. A full opcode matrix is out of scope; only enough modes to
// exercise immediate, zero-page, and implied operand shapes are included.
type AddressingMode int

const (
	Implied AddressingMode = iota
	Immediate
	ZeroPage
)

// Decoded is the result of decoding one instruction's operand.
type Decoded struct {
	Mode     AddressingMode
	Operand  uint8
	NextAddr uint16
}

// NewHarness builds a one-bus, 64KiB-addressable Machine with a single
// StandardMemory component spanning the whole space, suitable for writing
// a short byte sequence and decoding it back out through the memory API.
func NewHarness() (*machine.Machine, error) {
	b := machine.NewBuilder(nil)
	b.InsertBus(0, 16) // 64KiB address space, matching the 6502's 16-bit bus

	var buildErr error
	b.AddComponent("ram", func(cb *machine.ComponentBuilder) {
		mem, err := standardmemory.New(standardmemory.Config{
			Size: 1 << 16, Readable: true, Writable: true,
		})
		if err != nil {
			buildErr = err
			return
		}
		cb.SetComponent(mem)
		cb.SetMemory([]machine.MemoryRegion{{Space: 0, Range: rangemap.Range{Start: 0, End: 1 << 16}}})
	})
	if buildErr != nil {
		return nil, buildErr
	}

	return b.Build()
}

// Decode reads a single instruction starting at pc: opcode byte first, then
// zero operand bytes for Implied or one for Immediate and ZeroPage.
func Decode(m *machine.Machine, pc uint16, mode AddressingMode) (Decoded, error) {
	opcode := make([]byte, 1)
	if err := m.MTT.Read(uint64(pc), opcode, 0); err != nil {
		return Decoded{}, fmt.Errorf("cpu6502test: reading opcode at %#04x: %w", pc, err)
	}

	switch mode {
	case Implied:
		return Decoded{Mode: mode, NextAddr: pc + 1}, nil
	case Immediate, ZeroPage:
		operand := make([]byte, 1)
		if err := m.MTT.Read(uint64(pc)+1, operand, 0); err != nil {
			return Decoded{}, fmt.Errorf("cpu6502test: reading operand at %#04x: %w", pc+1, err)
		}
		return Decoded{Mode: mode, Operand: operand[0], NextAddr: pc + 2}, nil
	default:
		return Decoded{}, fmt.Errorf("cpu6502test: unsupported addressing mode %d", mode)
	}
}
