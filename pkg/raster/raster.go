// Package raster implements the interferogram storage layer. An
// interferogram file carries a small YAML header describing raster
// geometry, the epoch pair and metadata tags, followed by the phase
// values as little-endian float64s in row-major order.
package raster

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"insaraps/internal/models"
)

// Metadata tag names and values used by the correction pipeline.
const (
	// TagAPSError records the atmospheric correction status of an
	// interferogram.
	TagAPSError = "APS_ERROR"

	// APSRemoved is the TagAPSError value set once the atmospheric
	// phase screen has been subtracted.
	APSRemoved = "APS_REMOVED"
)

// magic identifies an interferogram file.
var magic = [4]byte{'I', 'F', 'G', '1'}

// dateFormat is the on-disk encoding of acquisition dates.
const dateFormat = "2006-01-02"

// Header is the serialized interferogram metadata.
type Header struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`

	// XSize and YSize are the ground pixel sizes in meters
	XSize float64 `yaml:"xSize"`
	YSize float64 `yaml:"ySize"`

	// Master and Slave are the acquisition dates of the epoch pair,
	// formatted as 2006-01-02
	Master string `yaml:"master"`
	Slave  string `yaml:"slave"`

	// Tags holds free-form metadata such as the correction status
	Tags map[string]string `yaml:"tags,omitempty"`
}

// Ifg is an open interferogram. Geometry and metadata queries need only a
// read-only handle; phase mutation and tagging require the interferogram
// to be reopened read-write.
type Ifg struct {
	Path string

	hdr      Header
	phase    *models.Grid
	master   time.Time
	slave    time.Time
	readonly bool
	open     bool
}

// Open reads an interferogram from disk. With readonly set, mutating
// calls (SetTag, WriteModifiedPhase) fail.
func Open(path string, readonly bool) (*Ifg, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open interferogram %s: %w", path, err)
	}
	defer f.Close()

	var m [4]byte
	if _, err := io.ReadFull(f, m[:]); err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %v", path, err)
	}
	if m != magic {
		return nil, fmt.Errorf("%s is not an interferogram file", path)
	}

	var hdrLen uint32
	if err := binary.Read(f, binary.LittleEndian, &hdrLen); err != nil {
		return nil, fmt.Errorf("failed to read header length of %s: %v", path, err)
	}
	hdrBytes := make([]byte, hdrLen)
	if _, err := io.ReadFull(f, hdrBytes); err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %v", path, err)
	}

	ifg := &Ifg{Path: path, readonly: readonly}
	if err := yaml.Unmarshal(hdrBytes, &ifg.hdr); err != nil {
		return nil, fmt.Errorf("failed to parse header of %s: %v", path, err)
	}
	if ifg.hdr.Rows <= 0 || ifg.hdr.Cols <= 0 {
		return nil, fmt.Errorf("invalid raster dimensions %dx%d in %s",
			ifg.hdr.Rows, ifg.hdr.Cols, path)
	}
	if ifg.master, err = time.Parse(dateFormat, ifg.hdr.Master); err != nil {
		return nil, fmt.Errorf("invalid master date in %s: %v", path, err)
	}
	if ifg.slave, err = time.Parse(dateFormat, ifg.hdr.Slave); err != nil {
		return nil, fmt.Errorf("invalid slave date in %s: %v", path, err)
	}

	ifg.phase = models.NewGrid(ifg.hdr.Rows, ifg.hdr.Cols)
	if err := binary.Read(f, binary.LittleEndian, ifg.phase.Data); err != nil {
		return nil, fmt.Errorf("failed to read phase data of %s: %v", path, err)
	}

	ifg.open = true
	return ifg, nil
}

// Write persists a new interferogram file with the given header and phase.
func Write(path string, hdr Header, phase *models.Grid) error {
	if phase.Rows != hdr.Rows || phase.Cols != hdr.Cols {
		return fmt.Errorf("phase shape %dx%d does not match header %dx%d",
			phase.Rows, phase.Cols, hdr.Rows, hdr.Cols)
	}

	hdrBytes, err := yaml.Marshal(&hdr)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %v", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create interferogram %s: %v", path, err)
	}
	defer f.Close()

	if _, err := f.Write(magic[:]); err != nil {
		return fmt.Errorf("failed to write magic: %v", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(hdrBytes))); err != nil {
		return fmt.Errorf("failed to write header length: %v", err)
	}
	if _, err := f.Write(hdrBytes); err != nil {
		return fmt.Errorf("failed to write header: %v", err)
	}
	if err := binary.Write(f, binary.LittleEndian, phase.Data); err != nil {
		return fmt.Errorf("failed to write phase data: %v", err)
	}

	return nil
}

// Rows returns the raster row count.
func (ifg *Ifg) Rows() int { return ifg.hdr.Rows }

// Cols returns the raster column count.
func (ifg *Ifg) Cols() int { return ifg.hdr.Cols }

// XSize returns the ground pixel width in meters.
func (ifg *Ifg) XSize() float64 { return ifg.hdr.XSize }

// YSize returns the ground pixel height in meters.
func (ifg *Ifg) YSize() float64 { return ifg.hdr.YSize }

// Master returns the master acquisition date.
func (ifg *Ifg) Master() time.Time { return ifg.master }

// Slave returns the slave acquisition date.
func (ifg *Ifg) Slave() time.Time { return ifg.slave }

// Phase returns the in-memory phase grid of the open interferogram.
func (ifg *Ifg) Phase() *models.Grid { return ifg.phase }

// Tag looks up a metadata tag by name.
func (ifg *Ifg) Tag(name string) (string, bool) {
	v, ok := ifg.hdr.Tags[name]
	return v, ok
}

// SetTag stores a metadata tag. The change is persisted by the next
// WriteModifiedPhase call.
func (ifg *Ifg) SetTag(name, value string) error {
	if !ifg.open {
		return fmt.Errorf("interferogram %s is closed", ifg.Path)
	}
	if ifg.readonly {
		return fmt.Errorf("interferogram %s is open read-only", ifg.Path)
	}
	if ifg.hdr.Tags == nil {
		ifg.hdr.Tags = make(map[string]string)
	}
	ifg.hdr.Tags[name] = value
	return nil
}

// WriteModifiedPhase persists the current phase grid and metadata back to
// the interferogram's file.
func (ifg *Ifg) WriteModifiedPhase() error {
	if !ifg.open {
		return fmt.Errorf("interferogram %s is closed", ifg.Path)
	}
	if ifg.readonly {
		return fmt.Errorf("interferogram %s is open read-only", ifg.Path)
	}
	return Write(ifg.Path, ifg.hdr, ifg.phase)
}

// Close releases the in-memory phase data.
func (ifg *Ifg) Close() error {
	ifg.phase = nil
	ifg.open = false
	return nil
}
