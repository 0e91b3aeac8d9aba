package aps

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"

	"insaraps/internal/models"
)

// dumpCube saves every epoch slice of a cube as a grayscale image under
// the intermediary directory, one subdirectory per pipeline stage. The
// dumps only aid inspection of the filtering stages and are skipped
// unless enabled in the configuration.
func (p *Pipeline) dumpCube(stage string, c *models.Cube) {
	if !p.cfg.Output.SaveIntermediary {
		return
	}
	for k := 0; k < c.Steps; k++ {
		if err := p.dumpSlice(stage, c.Slice(k), k); err != nil {
			log.WithFields(log.Fields{
				"stage": stage,
				"step":  k,
				"error": err,
			}).Warn("Failed to save intermediary result")
		}
	}
}

// dumpSlice writes one phase grid as a JPEG, min-max normalized with NaN
// cells rendered black.
func (p *Pipeline) dumpSlice(stage string, g *models.Grid, index int) error {
	stageDir := filepath.Join(p.cfg.Output.IntermediaryDir, stage)
	if err := os.MkdirAll(stageDir, 0755); err != nil {
		return fmt.Errorf("failed to create intermediary directory: %v", err)
	}

	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range g.Data {
		if math.IsNaN(v) {
			continue
		}
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	scale := 0.0
	if hi > lo {
		scale = 1 / (hi - lo)
	}

	img := image.NewGray16(image.Rect(0, 0, g.Cols, g.Rows))
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Cols; c++ {
			v := g.At(r, c)
			if math.IsNaN(v) {
				continue
			}
			img.Set(c, r, color.Gray16{Y: uint16((v - lo) * scale * 65535.0)})
		}
	}

	filename := filepath.Join(stageDir, fmt.Sprintf("%03d.jpg", index))
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create image file: %v", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 90}); err != nil {
		return fmt.Errorf("failed to encode image: %v", err)
	}
	return nil
}
