package geometry

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RotationMatrix returns the 3x3 rotation of theta radians about the unit
// axis u (Rodrigues formula):
//
//	R = I·cosθ + (1−cosθ)·uuᵗ + sinθ·[u]ₓ
func RotationMatrix(theta float64, u Vec3) *mat.Dense {
	c := math.Cos(theta)
	s := math.Sin(theta)
	oneMinusC := 1 - c

	return mat.NewDense(3, 3, []float64{
		c + u[0]*u[0]*oneMinusC,
		u[0]*u[1]*oneMinusC - u[2]*s,
		u[0]*u[2]*oneMinusC + u[1]*s,

		u[0]*u[1]*oneMinusC + u[2]*s,
		c + u[1]*u[1]*oneMinusC,
		u[1]*u[2]*oneMinusC - u[0]*s,

		u[0]*u[2]*oneMinusC - u[1]*s,
		u[1]*u[2]*oneMinusC + u[0]*s,
		c + u[2]*u[2]*oneMinusC,
	})
}

// Compose folds the per-stage rotations left to right:
// R(θ₁,u₁)·R(θ₂,u₂)·…·R(θₙ,uₙ). The order must follow the mechanical
// nesting from the reference stage outward. An empty chain is the identity.
func Compose(thetas []float64, axes []Vec3) (*mat.Dense, error) {
	if len(thetas) != len(axes) {
		return nil, fmt.Errorf("rotation chain mismatch: %d angles for %d axes", len(thetas), len(axes))
	}

	acc := Identity3()
	for i := range axes {
		var next mat.Dense
		next.Mul(acc, RotationMatrix(thetas[i], axes[i]))
		acc = &next
	}
	return acc, nil
}

// Radians converts a slice of angles in degrees to radians.
func Radians(degrees []float64) []float64 {
	out := make([]float64, len(degrees))
	for i, d := range degrees {
		out[i] = d * math.Pi / 180
	}
	return out
}
