package plan

import "math"

// Shape is the outline of a scanned area.
type Shape string

const (
	ShapeSquare    Shape = "square"
	ShapeRectangle Shape = "rectangle"
	ShapeCircle    Shape = "circle"
)

// GridSpec describes a tiled scan around a centre point.
type GridSpec struct {
	CenterX, CenterY, CenterZ float64
	FOVWidthMM                float64
	FOVHeightMM               float64
	OverlapPercent            float64
	// Either ScanSizeMM (coverage) or NX/NY (tile counts) is used; NX/NY win
	// when both are positive.
	ScanSizeMM float64
	Shape      Shape
	NX, NY     int
	Serpentine bool
}

func (g GridSpec) steps() (float64, float64) {
	f := 1 - g.OverlapPercent/100
	return g.FOVWidthMM * f, g.FOVHeightMM * f
}

// tiles returns how many tiles of size fov spaced by step cover extent.
func tiles(extent, fov, step float64) int {
	if step <= 0 {
		return 1
	}
	n := int(math.Ceil((extent-fov)/step)) + 1
	if n < 1 {
		return 1
	}
	return n
}

// GridFOVs lays out FOVs row by row, reversing every other row when
// Serpentine is set so consecutive FOVs are neighbours.
func GridFOVs(g GridSpec) []FOV {
	stepX, stepY := g.steps()

	nx, ny := g.NX, g.NY
	width, height := g.ScanSizeMM, g.ScanSizeMM
	if g.Shape == ShapeRectangle {
		width = g.ScanSizeMM * 0.6
	}
	if nx <= 0 || ny <= 0 {
		nx = tiles(width, g.FOVWidthMM, stepX)
		ny = tiles(height, g.FOVHeightMM, stepY)
	}

	halfX := float64(nx-1) / 2
	halfY := float64(ny-1) / 2
	radius := g.ScanSizeMM / 2
	fovHalf := math.Max(g.FOVWidthMM, g.FOVHeightMM) / 2

	out := make([]FOV, 0, nx*ny)
	for i := 0; i < ny; i++ {
		y := g.CenterY + (float64(i)-halfY)*stepY
		row := make([]FOV, 0, nx)
		for j := 0; j < nx; j++ {
			x := g.CenterX + (float64(j)-halfX)*stepX
			if g.Shape == ShapeCircle && g.NX <= 0 && nx > 1 {
				// keep tiles whose nearest edge touches the circle
				dx := math.Max(math.Abs(x-g.CenterX)-fovHalf, 0)
				dy := math.Max(math.Abs(y-g.CenterY)-fovHalf, 0)
				if dx*dx+dy*dy > radius*radius {
					continue
				}
			}
			row = append(row, FOV{X: x, Y: y, Z: g.CenterZ})
		}
		if g.Serpentine && i%2 == 1 {
			for l, r := 0, len(row)-1; l < r; l, r = l+1, r-1 {
				row[l], row[r] = row[r], row[l]
			}
		}
		out = append(out, row...)
	}
	return out
}

// GridRegion builds a region from a grid specification.
func GridRegion(id string, g GridSpec) Region {
	return Region{
		ID:      id,
		CenterX: g.CenterX,
		CenterY: g.CenterY,
		CenterZ: g.CenterZ,
		FOVs:    GridFOVs(g),
	}
}

// SingleFOVRegion builds a region containing only its centre.
func SingleFOVRegion(id string, x, y, z float64) Region {
	return Region{ID: id, CenterX: x, CenterY: y, CenterZ: z, FOVs: []FOV{{X: x, Y: y, Z: z}}}
}
