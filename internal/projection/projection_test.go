package projection

import (
	"math"
	"sync"
	"testing"

	"sixs-binner/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// testGrid builds a 3x4 detector 500 mm downstream, centred on the beam at
// pixel (1, 1), with a zero-length vector at pixel (2, 3).
func testGrid(t *testing.T) *geometry.PixelGrid {
	t.Helper()
	rows, cols := 3, 4
	x := mat.NewDense(rows, cols, nil)
	y := mat.NewDense(rows, cols, nil)
	z := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			x.Set(r, c, 500)
			y.Set(r, c, -float64(c-1)*0.13)
			z.Set(r, c, float64(r-1)*0.13)
		}
	}
	x.Set(2, 3, 0)
	y.Set(2, 3, 0)
	z.Set(2, 3, 0)
	g, err := geometry.NewPixelGrid(x, y, z)
	require.NoError(t, err)
	return g
}

func identityInput(t *testing.T, wavelength float64) Input {
	return Input{
		Pixels: testGrid(t),
		K:      2 * math.Pi / wavelength,
		UB:     geometry.Identity3(),
		R:      geometry.Identity3(),
		P:      geometry.Identity3(),
	}
}

func TestAxisLabels(t *testing.T) {
	tests := []struct {
		p    Projection
		want []string
	}{
		{RealSpace, []string{"x", "y"}},
		{Pixels, []string{"x", "y"}},
		{HKL, []string{"H", "K", "L"}},
		{HK, []string{"H", "K"}},
		{QxQyQz, []string{"Qx", "Qy", "Qz"}},
		{QparQper, []string{"Qpar", "Qper"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.p.AxisLabels())
	}
}

func TestOutputShapes(t *testing.T) {
	in := identityInput(t, 1.5)
	for _, name := range Names() {
		t.Run(name, func(t *testing.T) {
			p, err := ByName(name)
			require.NoError(t, err)
			out, err := p.Project(in)
			require.NoError(t, err)
			require.Len(t, out, len(p.AxisLabels()))
			for _, c := range out {
				r, cc := c.Dims()
				assert.Equal(t, 3, r)
				assert.Equal(t, 4, cc)
			}
		})
	}
}

func TestHKLBeamPixelIsZero(t *testing.T) {
	for _, wl := range []float64{0.5, 1.0, 1.54} {
		out, err := HKL.Project(identityInput(t, wl))
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			assert.InDelta(t, 0, out[i].At(1, 1), 1e-12, "wavelength %g axis %d", wl, i)
		}
	}
}

func TestZeroLengthPixelIsFinite(t *testing.T) {
	for _, p := range []Projection{HKL, QxQyQz, QparQper} {
		out, err := p.Project(identityInput(t, 1))
		require.NoError(t, err)
		for _, c := range out {
			v := c.At(2, 3)
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
		}
	}
}

func TestHKLMatchesDirectComputation(t *testing.T) {
	in := identityInput(t, 1.2)
	in.R = geometry.RotationMatrix(0.3, geometry.Vec3{0, 0, 1})
	in.P = geometry.RotationMatrix(-0.2, geometry.Vec3{0, -1, 0})
	in.UB = mat.NewDense(3, 3, []float64{
		1.1, 0.1, 0,
		0, 0.9, 0.05,
		0, 0, 1.3,
	})

	out, err := HKL.Project(in)
	require.NoError(t, err)

	var rub, inv mat.Dense
	rub.Mul(in.R, in.UB)
	require.NoError(t, inv.Inverse(&rub))

	pixel := in.Pixels.At(0, 2)
	var kf mat.VecDense
	kf.MulVec(in.P, pixel.Normalized().VecDense())
	q := mat.NewVecDense(3, nil)
	q.SubVec(&kf, geometry.Beam.VecDense())
	var hkl mat.VecDense
	hkl.MulVec(&inv, q)
	hkl.ScaleVec(in.K, &hkl)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, hkl.AtVec(i), out[i].At(0, 2), 1e-12)
	}
}

func TestHKDropsL(t *testing.T) {
	in := identityInput(t, 1)
	in.R = geometry.RotationMatrix(0.4, geometry.Vec3{0, 0, 1})
	hkl, err := HKL.Project(in)
	require.NoError(t, err)
	hk, err := HK.Project(in)
	require.NoError(t, err)
	require.Len(t, hk, 2)
	assert.True(t, mat.Equal(hkl[0], hk[0]))
	assert.True(t, mat.Equal(hkl[1], hk[1]))
}

func TestQxQyQzIgnoresUB(t *testing.T) {
	in := identityInput(t, 1)
	in.R = geometry.RotationMatrix(0.25, geometry.Vec3{0, -1, 0})
	a, err := QxQyQz.Project(in)
	require.NoError(t, err)

	in.UB = mat.NewDense(3, 3, []float64{3, 1, 0, 0, 2, 0, 1, 0, 5})
	b, err := QxQyQz.Project(in)
	require.NoError(t, err)
	for i := range a {
		assert.True(t, mat.EqualApprox(a[i], b[i], 1e-15))
	}

	// With R = I the result is the HKL of UB = diag(2π).
	in.R = geometry.Identity3()
	in.UB = geometry.Diagonal3(2*math.Pi, 2*math.Pi, 2*math.Pi)
	h, err := HKL.Project(in)
	require.NoError(t, err)
	q, err := QxQyQz.Project(in)
	require.NoError(t, err)
	for i := range h {
		assert.True(t, mat.EqualApprox(h[i], q[i], 1e-15))
	}
}

func TestQparQper(t *testing.T) {
	in := identityInput(t, 0.8)
	in.P = geometry.RotationMatrix(0.35, geometry.Vec3{0, -1, 0})
	in.R = geometry.RotationMatrix(-0.6, geometry.Vec3{0, 0, 1})

	q, err := QxQyQz.Project(in)
	require.NoError(t, err)
	pp, err := QparQper.Project(in)
	require.NoError(t, err)

	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			qx, qy, qz := q[0].At(r, c), q[1].At(r, c), q[2].At(r, c)
			qpar := pp[0].At(r, c)
			assert.GreaterOrEqual(t, qpar, 0.0)
			assert.InDelta(t, qx*qx+qy*qy, qpar*qpar, 1e-12*(1+qx*qx+qy*qy))
			assert.Equal(t, qz, pp[1].At(r, c))
		}
	}
}

func TestRealSpaceAndPixels(t *testing.T) {
	in := identityInput(t, 1)
	in.R = geometry.RotationMatrix(1, geometry.Vec3{0, 0, 1})

	rs, err := RealSpace.Project(in)
	require.NoError(t, err)
	assert.True(t, mat.Equal(in.Pixels.Component(1), rs[0]))
	assert.True(t, mat.Equal(in.Pixels.Component(2), rs[1]))

	px, err := Pixels.Project(in)
	require.NoError(t, err)
	assert.Equal(t, 3.0, px[0].At(2, 3))
	assert.Equal(t, 2.0, px[1].At(2, 3))
	assert.Equal(t, 0.0, px[0].At(2, 0))
}

func TestSingularInput(t *testing.T) {
	in := identityInput(t, 1)
	in.UB = mat.NewDense(3, 3, nil)
	_, err := HKL.Project(in)
	assert.Error(t, err)

	in = identityInput(t, 1)
	in.P = nil
	_, err = HKL.Project(in)
	assert.Error(t, err)
}

func TestByName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"hkl", NameHKL},
		{"HKLProjection", NameHKL},
		{" QparQper ", NameQparQper},
		{"qxqyqzprojection", NameQxQyQz},
		{"RealSpace", NameRealSpace},
	}
	for _, tt := range tests {
		p, err := ByName(tt.name)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, p.(Func).Name)
	}

	_, err := ByName("polar")
	assert.Error(t, err)
}

func TestConcurrentUse(t *testing.T) {
	in := identityInput(t, 1)
	in.R = geometry.RotationMatrix(0.2, geometry.Vec3{0, 0, 1})
	want, err := HKL.Project(in)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := HKL.Project(in)
			if err != nil {
				errs <- err
				return
			}
			for j := range got {
				if !mat.Equal(got[j], want[j]) {
					errs <- assert.AnError
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatal(err)
	}
}
