package geometry

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// PixelGrid holds the lab-frame Cartesian position of every detector pixel.
// Positions is 3 x (Rows*Cols); column r*Cols+c is pixel (r, c).
type PixelGrid struct {
	Rows      int
	Cols      int
	Positions *mat.Dense
}

// NewPixelGrid builds a grid from three Rows x Cols component images.
func NewPixelGrid(x, y, z mat.Matrix) (*PixelGrid, error) {
	rows, cols := x.Dims()
	for i, m := range []mat.Matrix{y, z} {
		r, c := m.Dims()
		if r != rows || c != cols {
			return nil, fmt.Errorf("pixel component %d is %dx%d, want %dx%d", i+1, r, c, rows, cols)
		}
	}

	pos := mat.NewDense(3, rows*cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			col := r*cols + c
			pos.Set(0, col, x.At(r, c))
			pos.Set(1, col, y.At(r, c))
			pos.Set(2, col, z.At(r, c))
		}
	}
	return &PixelGrid{Rows: rows, Cols: cols, Positions: pos}, nil
}

// Len returns the number of pixels.
func (g *PixelGrid) Len() int {
	return g.Rows * g.Cols
}

// At returns the position of pixel (r, c).
func (g *PixelGrid) At(r, c int) Vec3 {
	col := r*g.Cols + c
	return Vec3{g.Positions.At(0, col), g.Positions.At(1, col), g.Positions.At(2, col)}
}

// Component returns one Cartesian component (0, 1 or 2) as a Rows x Cols image.
func (g *PixelGrid) Component(i int) *mat.Dense {
	return Image(g.Positions.RawRowView(i), g.Rows, g.Cols)
}

// Directions returns the per-column unit vectors of the grid. Zero-length
// columns are divided by 1 and stay zero instead of becoming NaN.
func (g *PixelGrid) Directions() *mat.Dense {
	return Normalized(g.Positions)
}

// Normalized returns a copy of m with every column scaled to unit L2 norm.
// Columns of norm 0 use norm 1.
func Normalized(m mat.Matrix) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.DenseCopyOf(m)
	col := make([]float64, rows)
	for c := 0; c < cols; c++ {
		mat.Col(col, c, out)
		n := floats.Norm(col, 2)
		if n == 0 {
			n = 1
		}
		floats.Scale(1/n, col)
		out.SetCol(c, col)
	}
	return out
}

// Image copies a flat row-major slice into a new rows x cols matrix.
func Image(data []float64, rows, cols int) *mat.Dense {
	buf := make([]float64, rows*cols)
	copy(buf, data)
	return mat.NewDense(rows, cols, buf)
}
