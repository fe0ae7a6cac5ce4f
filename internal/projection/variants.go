package projection

import (
	"fmt"
	"math"

	"sixs-binner/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// RealSpace returns the lab-frame y and z pixel positions, ignoring every
// rotation.
var RealSpace = Func{
	Name:   NameRealSpace,
	Labels: []string{"x", "y"},
	Fn: func(in Input) (Coordinates, error) {
		if in.Pixels == nil {
			return nil, fmt.Errorf("realspace: no pixel geometry")
		}
		return Coordinates{in.Pixels.Component(1), in.Pixels.Component(2)}, nil
	},
}

// Pixels returns the column and row index of every pixel.
var Pixels = Func{
	Name:   NamePixels,
	Labels: []string{"x", "y"},
	Fn: func(in Input) (Coordinates, error) {
		if in.Pixels == nil {
			return nil, fmt.Errorf("pixels: no pixel geometry")
		}
		rows, cols := in.Pixels.Rows, in.Pixels.Cols
		x := mat.NewDense(rows, cols, nil)
		y := mat.NewDense(rows, cols, nil)
		for r := 0; r < rows; r++ {
			for c := 0; c < cols; c++ {
				x.Set(r, c, float64(c))
				y.Set(r, c, float64(r))
			}
		}
		return Coordinates{x, y}, nil
	},
}

// HKL returns the momentum transfer in Miller-index coordinates.
var HKL = Func{
	Name:   NameHKL,
	Labels: []string{"H", "K", "L"},
	Fn: func(in Input) (Coordinates, error) {
		if err := in.Validate(); err != nil {
			return nil, err
		}
		return momentumTransfer(in, in.UB)
	},
}

// HK is HKL without L.
var HK = Then(NameHK, HKL, []string{"H", "K"}, func(c Coordinates) Coordinates {
	return c[:2]
})

// labUB stands in for the sample UB matrix so that the HKL transform yields
// the momentum transfer in the lab frame.
var labUB = geometry.Diagonal3(2*math.Pi, 2*math.Pi, 2*math.Pi)

// QxQyQz returns the lab-frame momentum transfer.
var QxQyQz = Func{
	Name:   NameQxQyQz,
	Labels: []string{"Qx", "Qy", "Qz"},
	Fn: func(in Input) (Coordinates, error) {
		in.UB = labUB
		if err := in.Validate(); err != nil {
			return nil, err
		}
		return momentumTransfer(in, labUB)
	},
}

// QparQper splits the lab-frame momentum transfer into its in-plane and
// out-of-plane parts.
var QparQper = Then(NameQparQper, QxQyQz, []string{"Qpar", "Qper"}, func(c Coordinates) Coordinates {
	return Coordinates{inPlane(c[0], c[1]), c[2]}
})

// inPlane returns sqrt(qx² + qy²) elementwise.
func inPlane(qx, qy *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(i, j int, x float64) float64 {
		y := qy.At(i, j)
		return math.Sqrt(x*x + y*y)
	}, qx)
	return &out
}

// momentumTransfer computes k·((R·UB)⁻¹·P·k̂f − (R·UB)⁻¹·k̂i) for every pixel,
// with k̂f the normalized pixel direction and k̂i the beam direction.
func momentumTransfer(in Input, ub mat.Matrix) (Coordinates, error) {
	var rub mat.Dense
	rub.Mul(in.R, ub)

	var rubInv mat.Dense
	if err := rubInv.Inverse(&rub); err != nil {
		return nil, fmt.Errorf("R·UB is not invertible: %w", err)
	}

	var rubInvP mat.Dense
	rubInvP.Mul(&rubInv, in.P)

	var final mat.Dense
	final.Mul(&rubInvP, in.Pixels.Directions())

	var incident mat.VecDense
	incident.MulVec(&rubInv, geometry.Beam.VecDense())

	rows, cols := in.Pixels.Rows, in.Pixels.Cols
	out := make(Coordinates, 3)
	for i := range out {
		row := final.RawRowView(i)
		ki := incident.AtVec(i)
		data := make([]float64, len(row))
		for j, v := range row {
			data[j] = (v - ki) * in.K
		}
		out[i] = mat.NewDense(rows, cols, data)
	}
	return out, nil
}
