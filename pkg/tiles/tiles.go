// Package tiles computes the rectangular partition of a raster extent
// used to distribute the time series computation across workers.
package tiles

import (
	"fmt"
)

// Tile is a rectangular sub-region of the raster, with half-open row and
// column ranges.
type Tile struct {
	Index    int
	RowStart int
	RowEnd   int
	ColStart int
	ColEnd   int
}

// Rows returns the tile height in pixels.
func (t Tile) Rows() int { return t.RowEnd - t.RowStart }

// Cols returns the tile width in pixels.
func (t Tile) Cols() int { return t.ColEnd - t.ColStart }

// Partition divides a rows x cols raster into an nRowTiles x nColTiles
// grid of tiles. The tiles cover the raster exactly once: no gaps, no
// overlap. Tile sizes differ by at most one pixel per axis.
func Partition(rows, cols, nRowTiles, nColTiles int) ([]Tile, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("invalid raster extent %dx%d", rows, cols)
	}
	if nRowTiles < 1 || nColTiles < 1 {
		return nil, fmt.Errorf("invalid tile grid %dx%d", nRowTiles, nColTiles)
	}
	if nRowTiles > rows {
		nRowTiles = rows
	}
	if nColTiles > cols {
		nColTiles = cols
	}

	rowCuts := cuts(rows, nRowTiles)
	colCuts := cuts(cols, nColTiles)

	out := make([]Tile, 0, nRowTiles*nColTiles)
	for i := 0; i < nRowTiles; i++ {
		for j := 0; j < nColTiles; j++ {
			out = append(out, Tile{
				Index:    len(out),
				RowStart: rowCuts[i],
				RowEnd:   rowCuts[i+1],
				ColStart: colCuts[j],
				ColEnd:   colCuts[j+1],
			})
		}
	}
	return out, nil
}

// cuts returns n+1 boundaries splitting the range [0, extent) into n
// near-equal parts, the remainder spread over the leading parts.
func cuts(extent, n int) []int {
	base := extent / n
	rem := extent % n
	bounds := make([]int, n+1)
	for i := 1; i <= n; i++ {
		bounds[i] = bounds[i-1] + base
		if i <= rem {
			bounds[i]++
		}
	}
	return bounds
}
