// Package scratch persists per-tile intermediate arrays to shared scratch
// storage. Artifacts are keyed by a name and tile index, written once by
// the worker that computed the tile and read back by the coordinator
// during assembly.
package scratch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"insaraps/internal/models"
)

// ErrMissingArtifact is returned when a requested tile artifact does not
// exist in scratch storage.
var ErrMissingArtifact = errors.New("missing scratch artifact")

// Store is a directory-backed scratch artifact store.
type Store struct {
	Dir string
}

// NewStore creates the scratch directory if needed and returns a store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create scratch directory: %v", err)
	}
	return &Store{Dir: dir}, nil
}

func (s *Store) path(name string, tile int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%d.bin", name, tile))
}

// Has reports whether an artifact exists for the given name and tile.
func (s *Store) Has(name string, tile int) bool {
	_, err := os.Stat(s.path(name, tile))
	return err == nil
}

// SaveCube persists a dense 3D array keyed by artifact name and tile index.
func (s *Store) SaveCube(name string, tile int, c *models.Cube) error {
	f, err := os.Create(s.path(name, tile))
	if err != nil {
		return fmt.Errorf("failed to create scratch artifact %s tile %d: %v", name, tile, err)
	}
	defer f.Close()

	dims := []int64{int64(c.Rows), int64(c.Cols), int64(c.Steps)}
	if err := binary.Write(f, binary.LittleEndian, dims); err != nil {
		return fmt.Errorf("failed to write scratch dimensions: %v", err)
	}
	if err := binary.Write(f, binary.LittleEndian, c.Data); err != nil {
		return fmt.Errorf("failed to write scratch data: %v", err)
	}
	return nil
}

// LoadCube reads back a persisted 3D array. A nonexistent artifact yields
// an error wrapping ErrMissingArtifact.
func (s *Store) LoadCube(name string, tile int) (*models.Cube, error) {
	f, err := os.Open(s.path(name, tile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s tile %d", ErrMissingArtifact, name, tile)
		}
		return nil, fmt.Errorf("failed to open scratch artifact %s tile %d: %v", name, tile, err)
	}
	defer f.Close()

	dims := make([]int64, 3)
	if err := binary.Read(f, binary.LittleEndian, dims); err != nil {
		return nil, fmt.Errorf("failed to read scratch dimensions: %v", err)
	}
	if dims[0] < 1 || dims[1] < 1 || dims[2] < 1 {
		return nil, fmt.Errorf("corrupt scratch artifact %s tile %d: dimensions %v", name, tile, dims)
	}

	c := models.NewCube(int(dims[0]), int(dims[1]), int(dims[2]))
	if err := binary.Read(f, binary.LittleEndian, c.Data); err != nil {
		return nil, fmt.Errorf("failed to read scratch data: %v", err)
	}
	return c, nil
}
