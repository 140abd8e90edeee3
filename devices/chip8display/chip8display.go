// Package chip8display implements the CHIP-8 64x32 monochrome display: an
// XOR-blitting sprite drawer with collision detection, behind a swappable
// backend so a software framebuffer and a GPU-backed one can share the same
// drawing logic.
package chip8display

import (
	"fmt"
	"image/color"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	displayWidth  = 64
	displayHeight = 32
)

// Kind selects which CHIP-8 display variant a Display emulates.
type Kind int

const (
	Chip8 Kind = iota
	Chip48
	SuperChip8
)

// Config is a Display's immutable configuration.
type Config struct {
	Kind Kind
}

// backend is the surface DrawSprite/ClearDisplay etc. are built on top of.
// softwareBackend and gpuBackend both satisfy it; Display itself never
// touches pixels directly.
type backend interface {
	DrawSprite(x, y int, sprite []byte) (collision bool)
	ClearDisplay()
	SaveScreenContents() []color.NRGBA
	LoadScreenContents(pixels []color.NRGBA)
	GetFramebuffer() []color.NRGBA
	CommitDisplay()
}

// Display is a CHIP-8-family display. It is built once with a fixed Config
// and backend, then driven by DrawSprite/ClearDisplay from the emulated
// CPU's instruction loop.
type Display struct {
	cfg      Config
	backend  backend
	modified atomic.Bool
}

// New constructs a Display. SuperChip8's 128x64 high-resolution mode is not
// implemented, matching the original source's own unimplemented branch for
// that mode; requesting it panics rather than silently behaving like Chip8.
func New(cfg Config, useGPU bool) *Display {
	if cfg.Kind == SuperChip8 {
		panic("chip8display: SuperChip8 high-resolution mode is not implemented")
	}
	var b backend
	if useGPU {
		b = newGPUBackend()
	} else {
		b = newSoftwareBackend()
	}
	return &Display{cfg: cfg, backend: b}
}

// DrawSprite XORs an 8-pixel-wide, len(sprite)-row-tall sprite onto the
// display at (x, y), returning whether any previously-set pixel was
// cleared (the CHIP-8 VF collision flag).
//
// x and y are taken modulo (63, 31), not (64, 32), before drawing begins:
// this reproduces a quirk in the original implementation this component is
// ported from rather than the "correct" CHIP-8 wrap. It is preserved
// deliberately, not a bug introduced here. Once wrapped, pixels that would
// still fall outside the 64x32 frame are clipped (not wrapped again).
func (d *Display) DrawSprite(x, y int, sprite []byte) bool {
	x %= displayWidth - 1
	y %= displayHeight - 1
	if x < 0 {
		x += displayWidth - 1
	}
	if y < 0 {
		y += displayHeight - 1
	}

	collision := d.backend.DrawSprite(x, y, sprite)
	d.modified.Store(true)
	return collision
}

// ClearDisplay blanks every pixel.
func (d *Display) ClearDisplay() {
	d.backend.ClearDisplay()
	d.modified.Store(true)
}

// SaveScreenContents returns a copy of the current framebuffer, for CHIP-48
// style save/restore instructions.
func (d *Display) SaveScreenContents() []color.NRGBA {
	return d.backend.SaveScreenContents()
}

// LoadScreenContents replaces the framebuffer wholesale.
func (d *Display) LoadScreenContents(pixels []color.NRGBA) {
	d.backend.LoadScreenContents(pixels)
	d.modified.Store(true)
}

// GetFramebuffer returns the current framebuffer contents for presentation.
// It satisfies component.Display.
func (d *Display) GetFramebuffer() any {
	return d.backend.GetFramebuffer()
}

// CommitDisplay flushes pending drawing to whatever the backend presents
// (a copied software buffer, or a staged GPU image), but only if something
// actually changed since the last commit. The swap-and-test on modified
// means a scheduler tick that found nothing to do skips the backend commit
// entirely.
func (d *Display) CommitDisplay() {
	if d.modified.Swap(false) {
		d.backend.CommitDisplay()
	}
}

// Reset blanks the display, matching power-on CHIP-8 state.
func (d *Display) Reset() {
	d.ClearDisplay()
}

// Frequency declares the fixed 60 Hz presentation rate a Display is driven
// at, decoupling CPU-rate sprite writes from the frame commit cadence.
func (d *Display) Frequency() big.Rat { return *big.NewRat(60, 1) }

// Run commits pending drawing to the backend, if anything changed since
// the last tick. periodNs is unused: a display tick has no notion of
// elapsed simulated time beyond "has the framebuffer changed".
func (d *Display) Run(periodNs uint64) {
	d.CommitDisplay()
}

type screenSnapshot struct {
	ScreenBuffer []color.NRGBA `msgpack:"screen_buffer"`
}

// Snapshot encodes the full 64x32 pixel matrix, matching the original's
// {screen_buffer: 64x32 matrix of sRGBA8} save-state shape.
func (d *Display) Snapshot() (any, error) {
	data, err := msgpack.Marshal(screenSnapshot{ScreenBuffer: d.backend.SaveScreenContents()})
	if err != nil {
		return nil, fmt.Errorf("chip8display: snapshot: %w", err)
	}
	return data, nil
}

// Restore replaces the framebuffer from a value produced by Snapshot.
func (d *Display) Restore(v any) error {
	data, ok := v.([]byte)
	if !ok {
		return fmt.Errorf("chip8display: restore: expected []byte, got %T", v)
	}
	var s screenSnapshot
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("chip8display: restore: %w", err)
	}
	if len(s.ScreenBuffer) != displayWidth*displayHeight {
		return fmt.Errorf("chip8display: restore: expected %d pixels, got %d", displayWidth*displayHeight, len(s.ScreenBuffer))
	}
	d.LoadScreenContents(s.ScreenBuffer)
	return nil
}

// softwareBackend is a mutex-guarded in-memory framebuffer.
type softwareBackend struct {
	mu     sync.Mutex
	pixels [displayWidth * displayHeight]color.NRGBA
	// committed is the buffer CommitDisplay publishes; GetFramebuffer reads
	// from here so a reader never observes a half-drawn frame.
	committed [displayWidth * displayHeight]color.NRGBA
}

func newSoftwareBackend() *softwareBackend {
	b := &softwareBackend{}
	for i := range b.pixels {
		b.pixels[i] = offColor
		b.committed[i] = offColor
	}
	return b
}

var (
	onColor  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	offColor = color.NRGBA{A: 0xff}
)

func (b *softwareBackend) DrawSprite(x, y int, sprite []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	collision := false
	for row, rowBits := range sprite {
		py := y + row
		if py >= displayHeight {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			px := x + bit
			if px >= displayWidth {
				continue
			}
			if rowBits&(0x80>>bit) == 0 {
				continue
			}
			idx := py*displayWidth + px
			wasOn := b.pixels[idx] == onColor
			if wasOn {
				collision = true
				b.pixels[idx] = offColor
			} else {
				b.pixels[idx] = onColor
			}
		}
	}
	return collision
}

func (b *softwareBackend) ClearDisplay() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.pixels {
		b.pixels[i] = offColor
	}
}

func (b *softwareBackend) SaveScreenContents() []color.NRGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]color.NRGBA, len(b.pixels))
	copy(out, b.pixels[:])
	return out
}

func (b *softwareBackend) LoadScreenContents(pixels []color.NRGBA) {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.pixels[:], pixels)
}

func (b *softwareBackend) GetFramebuffer() []color.NRGBA {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]color.NRGBA, len(b.committed))
	copy(out, b.committed[:])
	return out
}

func (b *softwareBackend) CommitDisplay() {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.committed[:], b.pixels[:])
}

// gpuBackend sketches the shape a GPU-accelerated backend would take: pixel
// operations write into a staging buffer on the CPU side, and CommitDisplay
// is where that buffer would be copied into a GPU-resident image/texture.
// Wiring an actual graphics API is out of scope; this type exists so
// Display's backend interface has two real implementations instead of one,
// matching the original's split between a software and a GPU renderer.
type gpuBackend struct {
	staging *softwareBackend
}

func newGPUBackend() *gpuBackend {
	return &gpuBackend{staging: newSoftwareBackend()}
}

func (g *gpuBackend) DrawSprite(x, y int, sprite []byte) bool { return g.staging.DrawSprite(x, y, sprite) }
func (g *gpuBackend) ClearDisplay()                            { g.staging.ClearDisplay() }
func (g *gpuBackend) SaveScreenContents() []color.NRGBA        { return g.staging.SaveScreenContents() }
func (g *gpuBackend) LoadScreenContents(p []color.NRGBA)       { g.staging.LoadScreenContents(p) }
func (g *gpuBackend) GetFramebuffer() []color.NRGBA            { return g.staging.GetFramebuffer() }

// CommitDisplay would copy the staging buffer into a GPU-resident image
// here; with no graphics backend wired in, it just commits the staging
// buffer like the software path.
func (g *gpuBackend) CommitDisplay() { g.staging.CommitDisplay() }
