package aps

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	log "github.com/sirupsen/logrus"

	"insaraps/internal/models"
	"insaraps/pkg/config"
	"insaraps/pkg/epochs"
	"insaraps/pkg/inversion"
	"insaraps/pkg/raster"
	"insaraps/pkg/scratch"
	"insaraps/pkg/tiles"
	"insaraps/pkg/work"
)

func init() {
	log.SetLevel(log.WarnLevel)
}

// testConfig returns a configuration suited to small synthetic rasters:
// a mean temporal kernel over every valid epoch and a spatial cut-off
// far beyond the raster extent, so the corrected increments are exactly
// the temporally smoothed ones.
func testConfig(t *testing.T, workers, tileRows, tileCols int) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Processing.NumWorkers = workers
	cfg.Processing.TileRows = tileRows
	cfg.Processing.TileCols = tileCols
	cfg.Processing.ScratchDir = filepath.Join(t.TempDir(), "scratch")
	cfg.Temporal.Method = config.TemporalMean
	cfg.Temporal.MinEpochs = 1
	cfg.Spatial.Method = config.SpatialButterworth
	cfg.Spatial.CutoffKm = 1e6
	cfg.Spatial.Order = 1
	return cfg
}

// writeTestIfg persists a rows x cols interferogram with constant phase
// v, except for NaN at the listed pixel positions.
func writeTestIfg(t *testing.T, path, master, slave string, rows, cols int, v float64, nanAt [][2]int) {
	t.Helper()
	phase := models.NewGrid(rows, cols)
	for i := range phase.Data {
		phase.Data[i] = v
	}
	for _, rc := range nanAt {
		phase.Set(rc[0], rc[1], math.NaN())
	}
	hdr := raster.Header{
		Rows: rows, Cols: cols,
		XSize: 1000, YSize: 1000,
		Master: master, Slave: slave,
	}
	if err := raster.Write(path, hdr, phase); err != nil {
		t.Fatalf("Failed to write test interferogram %s: %v", path, err)
	}
}

// threeIfgNetwork writes a consistent three-interferogram network over
// epochs 2020-01-01, 2020-07-01 and 2021-01-01 with increments 1.0 and
// 2.0 per pixel, and pixel (1,1) NaN everywhere. It returns the paths
// in storage-key order.
func threeIfgNetwork(t *testing.T, dir string) []string {
	t.Helper()
	nan := [][2]int{{1, 1}}
	paths := []string{
		filepath.Join(dir, "20200101-20200701.ifg"),
		filepath.Join(dir, "20200101-20210101.ifg"),
		filepath.Join(dir, "20200701-20210101.ifg"),
	}
	writeTestIfg(t, paths[0], "2020-01-01", "2020-07-01", 4, 4, 1.0, nan)
	writeTestIfg(t, paths[1], "2020-01-01", "2021-01-01", 4, 4, 3.0, nan)
	writeTestIfg(t, paths[2], "2020-07-01", "2021-01-01", 4, 4, 2.0, nan)
	return paths
}

// TestPipelineEndToEnd runs the full correction over a small consistent
// network and checks the reconstructed phase values, the coverage mask
// and the correction tags.
func TestPipelineEndToEnd(t *testing.T) {
	dir := t.TempDir()
	paths := threeIfgNetwork(t, dir)

	cfg := testConfig(t, 2, 1, 2)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	status, err := p.Run(paths, work.NewGroup(cfg.Processing.NumWorkers))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status != StatusCorrected {
		t.Fatalf("Expected status corrected, got %v", status)
	}

	// The network inverts to increments [1, 2] at every valid pixel; the
	// mean temporal kernel smooths both to 1.5 and the huge spatial
	// cut-off passes the residual through, so the corrected increments
	// are [1.5, 1.5].
	want := map[string]float64{
		paths[0]: 1.5, // spans increment 0
		paths[1]: 3.0, // spans both increments
		paths[2]: 1.5, // spans increment 1
	}
	for path, wantPhase := range want {
		ifg, err := raster.Open(path, true)
		if err != nil {
			t.Fatalf("Failed to reopen %s: %v", path, err)
		}
		if tag, ok := ifg.Tag(raster.TagAPSError); !ok || tag != raster.APSRemoved {
			t.Errorf("%s: expected correction tag, got %q (present=%v)", path, tag, ok)
		}
		for r := 0; r < 4; r++ {
			for c := 0; c < 4; c++ {
				got := ifg.Phase().At(r, c)
				if r == 1 && c == 1 {
					if !math.IsNaN(got) {
						t.Errorf("%s: expected NaN preserved at (1,1), got %v", path, got)
					}
					continue
				}
				if math.Abs(got-wantPhase) > 1e-6 {
					t.Errorf("%s: pixel (%d,%d): expected %v, got %v", path, r, c, wantPhase, got)
				}
			}
		}
		ifg.Close()
	}
}

// TestPipelineIdempotent verifies a second run over already-corrected
// interferograms is a byte-identical no-op.
func TestPipelineIdempotent(t *testing.T) {
	dir := t.TempDir()
	paths := threeIfgNetwork(t, dir)

	cfg := testConfig(t, 2, 1, 2)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	if status, err := p.Run(paths, work.NewGroup(cfg.Processing.NumWorkers)); err != nil {
		t.Fatalf("First run failed: %v", err)
	} else if status != StatusCorrected {
		t.Fatalf("Expected first run to correct, got %v", status)
	}

	before := make(map[string][]byte)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to read %s: %v", path, err)
		}
		before[path] = data
	}

	status, err := p.Run(paths, work.NewGroup(cfg.Processing.NumWorkers))
	if err != nil {
		t.Fatalf("Second run failed: %v", err)
	}
	if status != StatusSkipped {
		t.Fatalf("Expected second run to skip, got %v", status)
	}

	for _, path := range paths {
		after, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("Failed to re-read %s: %v", path, err)
		}
		if string(after) != string(before[path]) {
			t.Errorf("%s changed across the skipped run", path)
		}
	}
}

// TestPipelineMSTMask verifies a pre-staged network usability mask is
// consumed by the tile solve: with an inconsistent closure
// interferogram masked out everywhere, the chain interferograms alone
// determine the increments.
func TestPipelineMSTMask(t *testing.T) {
	dir := t.TempDir()
	nan := [][2]int(nil)
	paths := []string{
		filepath.Join(dir, "20200101-20200701.ifg"),
		filepath.Join(dir, "20200101-20210101.ifg"),
		filepath.Join(dir, "20200701-20210101.ifg"),
	}
	writeTestIfg(t, paths[0], "2020-01-01", "2020-07-01", 4, 4, 1.0, nan)
	// Closure value 10.0 is wildly inconsistent with the chain.
	writeTestIfg(t, paths[1], "2020-01-01", "2021-01-01", 4, 4, 10.0, nan)
	writeTestIfg(t, paths[2], "2020-07-01", "2021-01-01", 4, 4, 2.0, nan)

	cfg := testConfig(t, 1, 1, 1)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	// Mask layers follow storage-key order: the closure interferogram
	// sorts second.
	store, err := scratch.NewStore(cfg.Processing.ScratchDir)
	if err != nil {
		t.Fatalf("Failed to open scratch store: %v", err)
	}
	mask := models.NewCube(4, 4, 3)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			mask.Set(r, c, 0, 1)
			mask.Set(r, c, 1, 0)
			mask.Set(r, c, 2, 1)
		}
	}
	if err := store.SaveCube("mst_mat", 0, mask); err != nil {
		t.Fatalf("Failed to stage mask: %v", err)
	}

	if _, err := p.Run(paths, work.NewGroup(1)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// Chain-only inversion gives increments [1, 2]; the mean kernel
	// smooths both to 1.5, so the corrected closure phase is exactly
	// their sum.
	ifg, err := raster.Open(paths[1], true)
	if err != nil {
		t.Fatalf("Failed to reopen closure interferogram: %v", err)
	}
	defer ifg.Close()
	if got := ifg.Phase().At(0, 0); math.Abs(got-3.0) > 1e-6 {
		t.Errorf("Expected masked closure reconstructed from the chain as 3.0, got %v", got)
	}
}

// TestPipelineShapeMismatch verifies differently sized rasters are
// rejected before any computation.
func TestPipelineShapeMismatch(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "20200101-20200701.ifg")
	b := filepath.Join(dir, "20200701-20210101.ifg")
	writeTestIfg(t, a, "2020-01-01", "2020-07-01", 4, 4, 1.0, nil)
	writeTestIfg(t, b, "2020-07-01", "2021-01-01", 3, 4, 2.0, nil)

	cfg := testConfig(t, 1, 1, 1)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if _, err := p.Run([]string{a, b}, work.NewGroup(1)); err == nil {
		t.Errorf("Expected error for mismatched raster shapes")
	}
}

// TestPipelineEmptyInput verifies an empty path list is rejected.
func TestPipelineEmptyInput(t *testing.T) {
	cfg := testConfig(t, 1, 1, 1)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if _, err := p.Run(nil, work.NewGroup(1)); err == nil {
		t.Errorf("Expected error for empty interferogram set")
	}
}

// TestAssembleShapeMismatch verifies a persisted tile cube whose step
// count disagrees with the broadcast value aborts assembly with the
// shape mismatch sentinel.
func TestAssembleShapeMismatch(t *testing.T) {
	cfg := testConfig(t, 1, 1, 1)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	tileSet, err := tiles.Partition(4, 4, 1, 1)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if err := p.store.SaveCube(artifactTimeSeries, 0, models.NewCube(4, 4, 3)); err != nil {
		t.Fatalf("Failed to stage tile result: %v", err)
	}

	if _, err := p.assemble(tileSet, 4, 4, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected shape mismatch sentinel for wrong step count, got %v", err)
	}
}

// TestAssembleTileExtentMismatch verifies a tile result whose raster
// extent disagrees with its tile is also a shape mismatch.
func TestAssembleTileExtentMismatch(t *testing.T) {
	cfg := testConfig(t, 1, 1, 1)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	tileSet, err := tiles.Partition(4, 4, 1, 1)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}
	if err := p.store.SaveCube(artifactTimeSeries, 0, models.NewCube(3, 4, 2)); err != nil {
		t.Fatalf("Failed to stage tile result: %v", err)
	}

	if _, err := p.assemble(tileSet, 4, 4, 2); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected shape mismatch sentinel for wrong tile extent, got %v", err)
	}
}

// TestAssembleMissingArtifact verifies assembly aborts with the missing
// artifact sentinel when a tile's result was never persisted.
func TestAssembleMissingArtifact(t *testing.T) {
	cfg := testConfig(t, 1, 1, 1)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	tileSet, err := tiles.Partition(4, 4, 1, 1)
	if err != nil {
		t.Fatalf("Partition failed: %v", err)
	}

	if _, err := p.assemble(tileSet, 4, 4, 2); !errors.Is(err, scratch.ErrMissingArtifact) {
		t.Errorf("Expected missing artifact sentinel, got %v", err)
	}
}

// TestReconstructSumsIncrements checks the reconstruction property
// directly: each valid pixel becomes the sum of the increments between
// its master and slave epochs.
func TestReconstructSumsIncrements(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "20200101-20210101.ifg")
	writeTestIfg(t, path, "2020-01-01", "2021-01-01", 2, 2, 0.0, [][2]int{{0, 1}})

	other := filepath.Join(dir, "20200101-20200701.ifg")
	writeTestIfg(t, other, "2020-01-01", "2020-07-01", 2, 2, 0.0, nil)

	cfg := testConfig(t, 1, 1, 1)
	p, err := NewPipeline(cfg, inversion.NewSVDSolver())
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	ifgs, err := openAll([]string{other, path})
	if err != nil {
		t.Fatalf("Failed to open interferograms: %v", err)
	}
	defer closeAll(ifgs)

	ep, err := epochs.Build(ifgs)
	if err != nil {
		t.Fatalf("Failed to build epochs: %v", err)
	}

	tsincr := models.NewCube(2, 2, 2)
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			tsincr.Set(r, c, 0, float64(r)+1)
			tsincr.Set(r, c, 1, float64(c)+10)
		}
	}

	if err := p.reconstruct(tsincr, ifgs, ep); err != nil {
		t.Fatalf("reconstruct failed: %v", err)
	}

	full, err := raster.Open(path, true)
	if err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	defer full.Close()
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			got := full.Phase().At(r, c)
			if r == 0 && c == 1 {
				if !math.IsNaN(got) {
					t.Errorf("Expected NaN preserved at (0,1), got %v", got)
				}
				continue
			}
			want := float64(r) + 1 + float64(c) + 10
			if math.Abs(got-want) > 1e-12 {
				t.Errorf("Pixel (%d,%d): expected %v, got %v", r, c, want, got)
			}
		}
	}
}
