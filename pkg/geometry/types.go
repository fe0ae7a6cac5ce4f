// Package geometry provides the vector and rotation types shared by the
// diffractometer model, the projections and the frame processor.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Vec3 is a Cartesian 3-vector in the laboratory frame.
type Vec3 [3]float64

// Beam is the incident beam direction (x axis convention).
var Beam = Vec3{1, 0, 0}

// NewVec3 creates a new Vec3.
func NewVec3(x, y, z float64) Vec3 {
	return Vec3{x, y, z}
}

// Scale returns the vector scaled by a factor.
func (v Vec3) Scale(factor float64) Vec3 {
	return Vec3{v[0] * factor, v[1] * factor, v[2] * factor}
}

// Dot returns the scalar product.
func (v Vec3) Dot(other Vec3) float64 {
	return v[0]*other[0] + v[1]*other[1] + v[2]*other[2]
}

// Norm returns the Euclidean length.
func (v Vec3) Norm() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalized returns the unit vector along v. The zero vector is returned
// unchanged.
func (v Vec3) Normalized() Vec3 {
	n := v.Norm()
	if n == 0 {
		return v
	}
	return v.Scale(1 / n)
}

// VecDense returns v as a gonum column vector.
func (v Vec3) VecDense() *mat.VecDense {
	return mat.NewVecDense(3, []float64{v[0], v[1], v[2]})
}

// Identity3 returns a new 3x3 identity matrix.
func Identity3() *mat.Dense {
	return Diagonal3(1, 1, 1)
}

// Diagonal3 returns a new 3x3 matrix with the given diagonal.
func Diagonal3(a, b, c float64) *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		a, 0, 0,
		0, b, 0,
		0, 0, c,
	})
}

// IsRotation reports whether m is orthogonal within tol (m·mᵗ = I).
func IsRotation(m mat.Matrix, tol float64) bool {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return false
	}
	var p mat.Dense
	p.Mul(m, m.T())
	return mat.EqualApprox(&p, Identity3(), tol)
}
