// Package aps implements the atmospheric phase screen correction
// pipeline: a tile-distributed SVD time series estimate, a temporal
// split into low- and high-frequency parts, a spatial low-pass estimate
// of the atmospheric component, and reconstruction of corrected
// interferograms from the de-noised time series.
package aps

import (
	"errors"
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"insaraps/internal/models"
	"insaraps/pkg/config"
	"insaraps/pkg/covariance"
	"insaraps/pkg/epochs"
	"insaraps/pkg/filter"
	"insaraps/pkg/inversion"
	"insaraps/pkg/raster"
	"insaraps/pkg/scratch"
	"insaraps/pkg/tiles"
	"insaraps/pkg/work"
)

// ErrShapeMismatch is returned when a tile's persisted time series does
// not agree with the epoch count established for the run.
var ErrShapeMismatch = errors.New("tile result shape mismatch")

// Status is the outcome of a correction run.
type Status int

const (
	// StatusCorrected means the full pipeline ran and corrected rasters
	// were persisted.
	StatusCorrected Status = iota

	// StatusSkipped means every interferogram already carried the
	// correction tag and the run was a no-op.
	StatusSkipped
)

func (s Status) String() string {
	if s == StatusSkipped {
		return "skipped"
	}
	return "corrected"
}

// Pipeline runs the spatio-temporal filter correction over an
// interferogram set.
type Pipeline struct {
	cfg    *config.Config
	store  *scratch.Store
	solver inversion.Solver

	tMethod filter.TemporalMethod
	sMethod filter.SpatialMethod
	interp  filter.InterpMethod
}

// NewPipeline validates the configuration and prepares scratch storage.
func NewPipeline(cfg *config.Config, solver inversion.Solver) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &Pipeline{cfg: cfg, solver: solver}

	var err error
	if p.tMethod, err = filter.ParseTemporalMethod(cfg.Temporal.Method); err != nil {
		return nil, err
	}
	if p.sMethod, err = filter.ParseSpatialMethod(cfg.Spatial.Method); err != nil {
		return nil, err
	}
	if cfg.Spatial.NaNFill {
		if p.interp, err = filter.ParseInterpMethod(cfg.Spatial.InterpMethod); err != nil {
			return nil, err
		}
	}
	if p.store, err = scratch.NewStore(cfg.Processing.ScratchDir); err != nil {
		return nil, err
	}
	return p, nil
}

// Run executes the correction over the given interferogram files using
// the worker group. Tile-level time series computation runs on every
// worker over its static tile subset; assembly, filtering and
// persistence run on the coordinating leader while the others idle at
// the final collective point.
func (p *Pipeline) Run(ifgPaths []string, group *work.Group) (Status, error) {
	if len(ifgPaths) == 0 {
		return 0, fmt.Errorf("no interferograms to correct")
	}

	// Deterministic ordering by storage key.
	paths := append([]string(nil), ifgPaths...)
	sort.Strings(paths)

	var status Status
	err := group.Run(func(w *work.Worker) error {
		ifgs, err := openAll(paths)
		if err != nil {
			return err
		}
		defer closeAll(ifgs)

		// Idempotency gate, decided by the leader alone.
		done := false
		if w.IsLeader() {
			done = allCorrected(ifgs)
		}
		if done, err = w.BroadcastBool(done); err != nil {
			return err
		}
		if done {
			if w.IsLeader() {
				log.Info("All interferograms already corrected, skipping")
				status = StatusSkipped
			}
			return nil
		}

		rows, cols := ifgs[0].Rows(), ifgs[0].Cols()
		for _, ifg := range ifgs {
			if ifg.Rows() != rows || ifg.Cols() != cols {
				return fmt.Errorf("interferogram %s shape %dx%d does not match %dx%d",
					ifg.Path, ifg.Rows(), ifg.Cols(), rows, cols)
			}
		}

		ep, err := epochs.Build(ifgs)
		if err != nil {
			return err
		}

		tileSet, err := tiles.Partition(rows, cols, p.cfg.Processing.TileRows, p.cfg.Processing.TileCols)
		if err != nil {
			return err
		}

		steps, err := p.computeTileSeries(w, ifgs, ep, tileSet)
		if err != nil {
			return err
		}

		// Serial tail of the pipeline on the leader; the rest of the
		// group blocks until it completes.
		return w.RunOnOne(func() error {
			tsincr, err := p.assemble(tileSet, rows, cols, steps)
			if err != nil {
				return err
			}
			if err := p.correct(tsincr, ifgs, ep); err != nil {
				return err
			}
			status = StatusCorrected
			return nil
		})
	})
	if err != nil {
		return 0, err
	}
	return status, nil
}

// correct applies the temporal and spatial filters to the assembled
// increment cube and writes corrected interferograms. The cube is
// consumed in place.
func (p *Pipeline) correct(tsincr *models.Cube, ifgs []*raster.Ifg, ep *epochs.List) error {
	p.dumpCube("01_tsincr", tsincr)

	tsLP := filter.TemporalLowPass(tsincr, ep, p.tMethod, p.cfg.Temporal.CutoffYears, p.cfg.Temporal.MinEpochs)
	p.dumpCube("02_temporal_lowpass", tsLP)

	// High-frequency residual: the atmospheric candidate signal.
	tsHP := tsincr.Clone()
	tsHP.SubAssign(tsLP)

	rdist := covariance.RDist(tsincr.Rows, tsincr.Cols, ifgs[0].XSize(), ifgs[0].YSize())

	params := filter.SpatialParams{
		Method:   p.sMethod,
		CutoffKm: p.cfg.Spatial.CutoffKm,
		Order:    p.cfg.Spatial.Order,
		NaNFill:  p.cfg.Spatial.NaNFill,
		Interp:   p.interp,
		EstimateCutoff: func(g *models.Grid) (float64, error) {
			fit, err := covariance.FitExponential(g, rdist)
			if err != nil {
				return 0, err
			}
			return fit.Cutoff(), nil
		},
	}

	tsAPS, err := filter.SpatialLowPass(tsHP, rdist, params)
	if err != nil {
		return err
	}
	p.dumpCube("03_aps_estimate", tsAPS)

	// Subtract the atmospheric estimate from the original increments.
	tsincr.SubAssign(tsAPS)
	p.dumpCube("04_corrected_tsincr", tsincr)

	return p.reconstruct(tsincr, ifgs, ep)
}

// reconstruct converts the corrected incremental time series back into
// per-pair interferogram phase and persists it. Only pixels valid in the
// original phase are overwritten, preserving each interferogram's
// coverage mask; the correction tag is set before writing.
func (p *Pipeline) reconstruct(tsincr *models.Cube, ifgs []*raster.Ifg, ep *epochs.List) error {
	log.Info("Reconstructing interferometric observations from time series")

	for _, meta := range ifgs {
		m, s, err := ep.PairIndices(meta)
		if err != nil {
			return err
		}

		ifg, err := raster.Open(meta.Path, false)
		if err != nil {
			return err
		}

		phase := ifg.Phase()
		for r := 0; r < tsincr.Rows; r++ {
			for c := 0; c < tsincr.Cols; c++ {
				if math.IsNaN(phase.At(r, c)) {
					continue
				}
				px := tsincr.Pixel(r, c)
				var sum float64
				for k := m; k < s; k++ {
					sum += px[k]
				}
				phase.Set(r, c, sum)
			}
		}

		if err := ifg.SetTag(raster.TagAPSError, raster.APSRemoved); err != nil {
			ifg.Close()
			return err
		}
		if err := ifg.WriteModifiedPhase(); err != nil {
			ifg.Close()
			return err
		}
		if err := ifg.Close(); err != nil {
			return err
		}

		log.WithFields(log.Fields{
			"path": meta.Path,
		}).Debug("Saved corrected interferogram")
	}
	return nil
}

// allCorrected reports whether every interferogram already carries the
// correction tag. A partially tagged set is treated as uncorrected, with
// a warning, since the missing ones still need the full run.
func allCorrected(ifgs []*raster.Ifg) bool {
	corrected := 0
	for _, ifg := range ifgs {
		if v, ok := ifg.Tag(raster.TagAPSError); ok && v == raster.APSRemoved {
			corrected++
		}
	}
	if corrected > 0 && corrected < len(ifgs) {
		log.WithFields(log.Fields{
			"corrected": corrected,
			"total":     len(ifgs),
		}).Warn("Interferogram set is partially corrected, re-running correction")
	}
	return corrected == len(ifgs)
}

func openAll(paths []string) ([]*raster.Ifg, error) {
	ifgs := make([]*raster.Ifg, 0, len(paths))
	for _, path := range paths {
		ifg, err := raster.Open(path, true)
		if err != nil {
			closeAll(ifgs)
			return nil, err
		}
		ifgs = append(ifgs, ifg)
	}
	return ifgs, nil
}

func closeAll(ifgs []*raster.Ifg) {
	for _, ifg := range ifgs {
		ifg.Close()
	}
}
