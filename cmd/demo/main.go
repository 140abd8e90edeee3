// Command demo assembles a minimal CHIP-8-shaped machine (RAM + display),
// loads a ROM through a directory-backed rom.Manager, and runs it for a
// fixed duration. It stands in for the teacher's app.go/main.go startup
// sequence with the Wails/GUI shell stripped out, since windowing is
// treated as an external collaborator here.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lambdadelta-communism/multiemu/devices/chip8display"
	"github.com/lambdadelta-communism/multiemu/devices/standardmemory"
	"github.com/lambdadelta-communism/multiemu/internal/config"
	"github.com/lambdadelta-communism/multiemu/internal/machine"
	"github.com/lambdadelta-communism/multiemu/internal/rangemap"
	"github.com/lambdadelta-communism/multiemu/internal/rom"
	"github.com/lambdadelta-communism/multiemu/internal/scheduler"
)

func main() {
	settingsPath := flag.String("settings", "./settings.json", "path to the settings file")
	romID := flag.String("rom", "", "uuid of the rom to load from the rom directory")
	duration := flag.Duration("duration", 2*time.Second, "how long to run before exiting")
	flag.Parse()

	cfgManager := config.NewManager(*settingsPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("demo: loading settings: %v", err)
	}

	romManager, err := rom.NewDirManager(settings.RomsPath)
	if err != nil {
		log.Fatalf("demo: opening rom directory %s: %v", settings.RomsPath, err)
	}

	b := machine.NewBuilder(romManager)
	b.InsertBus(0, 16)

	b.AddComponent("ram", func(cb *machine.ComponentBuilder) {
		mem, err := standardmemory.New(standardmemory.Config{
			Size: 0x1000, Readable: true, Writable: true,
		})
		if err != nil {
			log.Fatalf("demo: building ram: %v", err)
		}
		cb.SetComponent(mem)
		cb.SetMemory([]machine.MemoryRegion{{Space: 0, Range: rangemap.Range{Start: 0, End: 0x1000}}})
	})

	b.AddComponent("display", func(cb *machine.ComponentBuilder) {
		display := chip8display.New(chip8display.Config{Kind: chip8display.Chip8}, false)
		cb.SetComponent(display)
		cb.SetDisplay()
		cb.SetSchedulable()
	})

	m, err := b.Build()
	if err != nil {
		log.Fatalf("demo: building machine: %v", err)
	}

	if *romID != "" {
		id, err := uuid.Parse(*romID)
		if err != nil {
			log.Fatalf("demo: invalid rom id %q: %v", *romID, err)
		}
		rc, err := romManager.Open(id, rom.Required)
		if err != nil {
			log.Fatalf("demo: loading rom %s: %v", id, err)
		}
		defer rc.Close()

		buf := make([]byte, 1)
		for offset := 0x200; ; offset++ {
			n, err := rc.Read(buf)
			if n > 0 {
				if werr := m.MTT.Write(uint64(offset), buf[:1], 0); werr != nil {
					log.Fatalf("demo: loading rom into memory at %#04x: %v", offset, werr)
				}
			}
			if err != nil {
				break
			}
		}
	}

	log.Printf("demo: clock speed configured at %d Hz, running for %s", settings.ClockSpeedHz, *duration)

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()
	scheduler.Run(ctx, m.Store)

	log.Println("demo: run complete")
}
