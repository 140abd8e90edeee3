// Package rom is the minimal external-collaborator surface the memory
// devices need from a ROM manager: an opaque identifier and a way to open
// the bytes it names. Discovering, cataloguing, and hashing ROM files is
// treated as an external concern (see the root spec's scope notes) and is
// not reimplemented here beyond the directory-backed Manager used by tests
// and the demo binary.
package rom

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ID opaquely names a ROM. It is minted by whatever catalogued the ROM, not
// by the component that opens it.
type ID = uuid.UUID

// Requirement describes how a device should react when the ROM it asks for
// is unavailable.
type Requirement int

const (
	// Optional means the caller can proceed with no backing data.
	Optional Requirement = iota
	// Required means the caller cannot function without the ROM; Open
	// returning an error for a Required request is fatal to construction.
	Required
)

// Manager opens ROM content by ID. Implementations may back this with a
// directory of files, an embedded archive, or a network fetch; components
// depend only on this interface.
type Manager interface {
	Open(id ID, req Requirement) (io.ReadSeekCloser, error)
}

// dirManager resolves each ID to a file named <dir>/<uuid>.bin, grounded on
// the directory-scan-and-read pattern of the teacher's ROM loader.
type dirManager struct {
	dir string
}

// NewDirManager returns a Manager that reads ROM content from dir, creating
// dir if it does not already exist.
func NewDirManager(dir string) (Manager, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("rom: could not create rom directory: %w", err)
		}
	}
	return &dirManager{dir: dir}, nil
}

func (m *dirManager) Open(id ID, req Requirement) (io.ReadSeekCloser, error) {
	path := filepath.Join(m.dir, id.String()+".bin")
	f, err := os.Open(path)
	if err != nil {
		if req == Optional {
			return nil, nil
		}
		return nil, fmt.Errorf("rom: required rom %s not found: %w", id, err)
	}
	return f, nil
}
