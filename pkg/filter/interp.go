package filter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/kdtree"

	"insaraps/internal/models"
	"insaraps/pkg/config"
)

// InterpMethod selects how NaN pixels are filled before spatial
// filtering.
type InterpMethod int

const (
	// InterpNearest copies the value of the nearest valid pixel.
	InterpNearest InterpMethod = iota

	// InterpIDW uses inverse-distance weighting over the nearest valid
	// neighbors.
	InterpIDW
)

// idwNeighbors is the neighbor count used by inverse-distance weighting.
const idwNeighbors = 8

// ParseInterpMethod maps a configuration string to an interpolation
// variant.
func ParseInterpMethod(s string) (InterpMethod, error) {
	switch s {
	case config.InterpNearest:
		return InterpNearest, nil
	case config.InterpIDW:
		return InterpIDW, nil
	}
	return 0, fmt.Errorf("invalid interpolation method %q", s)
}

// gridPoint is a valid pixel position in the KD-tree, carrying its index
// into the grid's backing array.
type gridPoint struct {
	x, y float64
	idx  int
}

// Compare implements the kdtree.Comparable interface
func (p gridPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(gridPoint)
	switch d {
	case 0:
		return p.x - q.x
	case 1:
		return p.y - q.y
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p gridPoint) Dims() int { return 2 }

// Distance returns the squared Euclidean distance between two points
func (p gridPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(gridPoint)
	dx := p.x - q.x
	dy := p.y - q.y
	return dx*dx + dy*dy
}

// gridPoints is a collection of gridPoint that satisfies kdtree.Interface
type gridPoints []gridPoint

func (p gridPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p gridPoints) Len() int                              { return len(p) }
func (p gridPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

// Pivot implements the kdtree.Interface method
func (p gridPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(pointPlane{gridPoints: p, Dim: d}, kdtree.MedianOfRandoms(pointPlane{gridPoints: p, Dim: d}, 100))
}

// pointPlane implements sort.Interface and kdtree.SortSlicer for gridPoints
type pointPlane struct {
	gridPoints
	kdtree.Dim
}

func (p pointPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.gridPoints[i].x < p.gridPoints[j].x
	case 1:
		return p.gridPoints[i].y < p.gridPoints[j].y
	default:
		panic("illegal dimension")
	}
}

func (p pointPlane) Slice(start, end int) kdtree.SortSlicer {
	return pointPlane{gridPoints: p.gridPoints[start:end], Dim: p.Dim}
}

func (p pointPlane) Swap(i, j int) {
	p.gridPoints[i], p.gridPoints[j] = p.gridPoints[j], p.gridPoints[i]
}

// ZeroFill replaces every NaN cell with zero, in place.
func ZeroFill(g *models.Grid) {
	for i, v := range g.Data {
		if math.IsNaN(v) {
			g.Data[i] = 0
		}
	}
}

// FillNaN interpolates NaN cells from valid neighboring pixels, in
// place. Cells that interpolation cannot resolve are zero-filled, so the
// grid holds no NaN afterwards.
func FillNaN(g *models.Grid, method InterpMethod) {
	points := make(gridPoints, 0, len(g.Data))
	for i, v := range g.Data {
		if !math.IsNaN(v) {
			points = append(points, gridPoint{
				x:   float64(i % g.Cols),
				y:   float64(i / g.Cols),
				idx: i,
			})
		}
	}
	if len(points) == 0 {
		ZeroFill(g)
		return
	}

	tree := kdtree.New(points, true)

	k := 1
	if method == InterpIDW {
		k = idwNeighbors
	}

	for i, v := range g.Data {
		if !math.IsNaN(v) {
			continue
		}
		q := gridPoint{x: float64(i % g.Cols), y: float64(i / g.Cols)}

		keeper := kdtree.NewNKeeper(k)
		tree.NearestSet(keeper, q)

		var wsum, vsum float64
		for _, item := range keeper.Heap {
			// Skip the sentinel value
			if item.Comparable == nil {
				continue
			}
			p := item.Comparable.(gridPoint)
			// item.Dist is the squared pixel distance, nonzero since
			// the query cell itself is invalid
			w := 1 / item.Dist
			wsum += w
			vsum += w * g.Data[p.idx]
		}
		if wsum > 0 {
			g.Data[i] = vsum / wsum
		} else {
			g.Data[i] = 0
		}
	}
}
