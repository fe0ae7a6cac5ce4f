package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var testAxes = []Vec3{
	{1, 0, 0},
	{0, 1, 0},
	{0, 0, 1},
	{0, -1, 0},
	NewVec3(1, 1, 1).Normalized(),
	NewVec3(-0.3, 0.2, 0.9).Normalized(),
}

func TestRotationMatrixZeroIsIdentity(t *testing.T) {
	for _, u := range testAxes {
		R := RotationMatrix(0, u)
		assert.True(t, mat.EqualApprox(R, Identity3(), 1e-15), "axis %v", u)
	}
}

func TestRotationMatrixIsOrthonormal(t *testing.T) {
	for _, u := range testAxes {
		for _, theta := range []float64{-math.Pi, -1.3, 0.1, math.Pi / 6, 2.5, 7} {
			R := RotationMatrix(theta, u)
			if !IsRotation(R, 1e-12) {
				t.Fatalf("R(%g, %v) is not orthogonal", theta, u)
			}
			assert.InDelta(t, 1.0, mat.Det(R), 1e-12)
		}
	}
}

func TestRotationMatrixQuarterTurn(t *testing.T) {
	tests := []struct {
		name string
		axis Vec3
		in   Vec3
		want Vec3
	}{
		{"z turns x into y", Vec3{0, 0, 1}, Vec3{1, 0, 0}, Vec3{0, 1, 0}},
		{"x turns y into z", Vec3{1, 0, 0}, Vec3{0, 1, 0}, Vec3{0, 0, 1}},
		{"-y turns x into z", Vec3{0, -1, 0}, Vec3{1, 0, 0}, Vec3{0, 0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out mat.VecDense
			out.MulVec(RotationMatrix(math.Pi/2, tt.axis), tt.in.VecDense())
			for i := 0; i < 3; i++ {
				assert.InDelta(t, tt.want[i], out.AtVec(i), 1e-12)
			}
		})
	}
}

func TestComposeSameAxisIsAdditive(t *testing.T) {
	angles := [][2]float64{{0.1, 0.2}, {-1, 2.5}, {math.Pi, math.Pi / 3}, {0, -0.7}}
	for _, u := range testAxes {
		for _, a := range angles {
			got, err := Compose([]float64{a[0], a[1]}, []Vec3{u, u})
			require.NoError(t, err)
			want := RotationMatrix(a[0]+a[1], u)
			assert.True(t, mat.EqualApprox(got, want, 1e-12), "axis %v angles %v", u, a)
		}
	}
}

func TestComposeOrder(t *testing.T) {
	z := Vec3{0, 0, 1}
	y := Vec3{0, -1, 0}
	got, err := Compose([]float64{0.4, 1.1}, []Vec3{z, y})
	require.NoError(t, err)

	var want mat.Dense
	want.Mul(RotationMatrix(0.4, z), RotationMatrix(1.1, y))
	assert.True(t, mat.EqualApprox(got, &want, 1e-14))

	var swapped mat.Dense
	swapped.Mul(RotationMatrix(1.1, y), RotationMatrix(0.4, z))
	assert.False(t, mat.EqualApprox(got, &swapped, 1e-6), "composition must not commute here")
}

func TestComposeEdgeCases(t *testing.T) {
	got, err := Compose(nil, nil)
	require.NoError(t, err)
	assert.True(t, mat.Equal(got, Identity3()))

	_, err = Compose([]float64{1}, nil)
	assert.Error(t, err)
}

func TestRadians(t *testing.T) {
	got := Radians([]float64{0, 90, 180, -45})
	want := []float64{0, math.Pi / 2, math.Pi, -math.Pi / 4}
	assert.InDeltaSlice(t, want, got, 1e-15)
}
