// Package mask holds boolean pixel masks and loads user supplied mask files.
// A true pixel is excluded from binning.
package mask

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Mask is a row-major boolean image.
type Mask struct {
	Rows int
	Cols int
	Data []bool
}

// New returns an all-false mask.
func New(rows, cols int) *Mask {
	return &Mask{Rows: rows, Cols: cols, Data: make([]bool, rows*cols)}
}

// At reports whether pixel (r, c) is masked.
func (m *Mask) At(r, c int) bool {
	return m.Data[r*m.Cols+c]
}

// Set marks pixel (r, c).
func (m *Mask) Set(r, c int, v bool) {
	m.Data[r*m.Cols+c] = v
}

// Count returns the number of masked pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Or returns the union of the given masks. Nil masks are skipped; the result
// is nil when every mask is nil.
func Or(masks ...*Mask) (*Mask, error) {
	var out *Mask
	for _, m := range masks {
		if m == nil {
			continue
		}
		if out == nil {
			out = New(m.Rows, m.Cols)
		}
		if m.Rows != out.Rows || m.Cols != out.Cols {
			return nil, fmt.Errorf("mask shape mismatch: %dx%d vs %dx%d", m.Rows, m.Cols, out.Rows, out.Cols)
		}
		for i, v := range m.Data {
			out.Data[i] = out.Data[i] || v
		}
	}
	return out, nil
}

// Weights returns a rows x cols matrix holding 0 for masked pixels and 1
// elsewhere. A nil mask keeps every pixel.
func (m *Mask) Weights(rows, cols int) (*mat.Dense, error) {
	w := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			w.Set(r, c, 1)
		}
	}
	if m == nil {
		return w, nil
	}
	if m.Rows != rows || m.Cols != cols {
		return nil, fmt.Errorf("mask is %dx%d, image is %dx%d", m.Rows, m.Cols, rows, cols)
	}
	for i, masked := range m.Data {
		if masked {
			w.Set(i/cols, i%cols, 0)
		}
	}
	return w, nil
}
