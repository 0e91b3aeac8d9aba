package aps

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"insaraps/internal/models"
	"insaraps/pkg/epochs"
	"insaraps/pkg/inversion"
	"insaraps/pkg/raster"
	"insaraps/pkg/tiles"
	"insaraps/pkg/work"
)

// Scratch artifact names.
const (
	// artifactTimeSeries holds per-tile incremental time series cubes.
	artifactTimeSeries = "tsincr_aps"

	// artifactMSTMask holds optional per-tile minimum-spanning-tree
	// usability masks, one 0/1 layer per interferogram in storage-key
	// order.
	artifactMSTMask = "mst_mat"
)

// computeTileSeries runs the SVD time series solve over this worker's
// static tile subset, persisting each tile's cube to scratch storage.
// It returns the epoch step count, derived by the leader from its own
// tile results and broadcast to the whole group; the broadcast doubles
// as the barrier between tile writes and assembly reads.
func (p *Pipeline) computeTileSeries(w *work.Worker, ifgs []*raster.Ifg, ep *epochs.List, tileSet []tiles.Tile) (int, error) {
	mine := work.SplitTiles(tileSet, w.Rank(), w.Size())

	steps := -1
	for _, t := range mine {
		log.WithFields(log.Fields{
			"rank": w.Rank(),
			"tile": t.Index,
		}).Debug("Computing time series for tile")

		cube, err := p.solveTile(ifgs, ep, t)
		if err != nil {
			return 0, fmt.Errorf("time series solve failed for tile %d: %w", t.Index, err)
		}
		if err := p.store.SaveCube(artifactTimeSeries, t.Index, cube); err != nil {
			return 0, err
		}
		steps = cube.Steps
	}

	steps, err := w.BroadcastInt(steps)
	if err != nil {
		return 0, err
	}
	if steps < 1 {
		return 0, fmt.Errorf("leader derived no epoch step count from its tiles")
	}
	return steps, nil
}

// solveTile extracts the tile-local interferogram sub-rasters, loads the
// tile's minimum-spanning-tree mask from scratch when present, and
// invokes the network solver.
func (p *Pipeline) solveTile(ifgs []*raster.Ifg, ep *epochs.List, t tiles.Tile) (*models.Cube, error) {
	obs := make([]inversion.Observation, len(ifgs))
	for i, ifg := range ifgs {
		m, s, err := ep.PairIndices(ifg)
		if err != nil {
			return nil, err
		}

		part := models.NewGrid(t.Rows(), t.Cols())
		phase := ifg.Phase()
		for r := 0; r < t.Rows(); r++ {
			for c := 0; c < t.Cols(); c++ {
				part.Set(r, c, phase.At(t.RowStart+r, t.ColStart+c))
			}
		}
		obs[i] = inversion.Observation{Phase: part, MasterIdx: m, SlaveIdx: s}
	}

	var mst *models.Cube
	if p.store.Has(artifactMSTMask, t.Index) {
		var err error
		if mst, err = p.store.LoadCube(artifactMSTMask, t.Index); err != nil {
			return nil, err
		}
	}

	return p.solver.Solve(obs, ep.Spans, mst)
}

// assemble reads every tile's persisted time series and copies it into
// the full-resolution cube, iterating epoch-major then tile-minor so at
// most one epoch slice is duplicated per tile at a time. A missing tile
// artifact or a tile whose step count disagrees with the broadcast value
// aborts the run.
func (p *Pipeline) assemble(tileSet []tiles.Tile, rows, cols, steps int) (*models.Cube, error) {
	log.WithFields(log.Fields{
		"tiles": len(tileSet),
		"steps": steps,
	}).Info("Assembling time series from tiles")

	full := models.NewCube(rows, cols, steps)
	for k := 0; k < steps; k++ {
		for _, t := range tileSet {
			tc, err := p.store.LoadCube(artifactTimeSeries, t.Index)
			if err != nil {
				return nil, err
			}
			if tc.Steps != steps {
				return nil, fmt.Errorf("%w: tile %d has %d steps, expected %d",
					ErrShapeMismatch, t.Index, tc.Steps, steps)
			}
			if tc.Rows != t.Rows() || tc.Cols != t.Cols() {
				return nil, fmt.Errorf("%w: tile %d result is %dx%d, expected %dx%d",
					ErrShapeMismatch, t.Index, tc.Rows, tc.Cols, t.Rows(), t.Cols())
			}

			for r := 0; r < tc.Rows; r++ {
				for c := 0; c < tc.Cols; c++ {
					full.Set(t.RowStart+r, t.ColStart+c, k, tc.At(r, c, k))
				}
			}
		}
	}
	return full, nil
}
