package main

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sixs-binner/internal/config"
	"sixs-binner/internal/detector"
	"sixs-binner/internal/diffractometer"
	"sixs-binner/internal/frame"
	"sixs-binner/internal/projection"
	"sixs-binner/internal/scan"
	"sixs-binner/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func init() {
	detector.Register(&detector.Model{Name: "cmdtest", Rows: 4, Cols: 5, PixelSizeMM: 0.1})
}

const testConfig = `
input:
  type: FlyScanUHV
  nexusfile: scan_{scanno}
  sdd: 500
  centralpixel: [2, 1]
  target_weight: 2
projection:
  type: hkl
dispatcher:
  workers: 2
`

// writeScan stores a ZAXIS scan of points points, of which only images
// are recorded.
func writeScan(t *testing.T, dir string, scanNo, points, images int) {
	t.Helper()
	mu := make([]float64, points)
	delta := make([]float64, points)
	for i := range delta {
		delta[i] = float64(i)
	}
	frames := make([]*mat.Dense, images)
	for i := range frames {
		frames[i] = mat.NewDense(4, 5, nil)
		frames[i].Set(1, 2, 100)
	}
	sc := &scan.MemoryScan{
		Meta: scan.Metadata{
			Diffractometer: diffractometer.ZAxis,
			Detector:       "cmdtest",
			UB:             geometry.Identity3(),
			Wavelength:     1.0,
		},
		Points: points,
		Scalars: map[string][]float64{
			"UHV_MU": mu, "UHV_OMEGA": mu, "UHV_DELTA": delta, "UHV_GAMMA": mu,
		},
		Images: map[string][]*mat.Dense{"xpad_image": frames},
	}
	require.NoError(t, scan.WriteDir(filepath.Join(dir, scan.Filename("scan_{scanno}", scanNo)), sc))
}

func setup(t *testing.T) (string, string) {
	t.Helper()
	return setupWith(t, testConfig)
}

func setupWith(t *testing.T, body string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sixs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return dir, path
}

func execute(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestProcess(t *testing.T) {
	dir, cfg := setup(t)
	writeScan(t, dir, 1, 3, 3)
	writeScan(t, dir, 2, 2, 2)

	out, err := execute("process", "--config", cfg, "1-2")
	require.NoError(t, err)
	assert.Contains(t, out, "5 points processed")
	for _, label := range []string{"H", "K", "L"} {
		assert.Contains(t, out, label)
	}
}

func TestProcessFailures(t *testing.T) {
	dir, cfg := setup(t)
	writeScan(t, dir, 1, 3, 2)

	_, err := execute("process", "--config", cfg, "1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 jobs failed")

	_, err = execute("process", "--config", cfg, "--fail-fast", "1")
	assert.Contains(t, err.Error(), "point 2")

	_, err = execute("process", "--config", cfg, "1", "9")
	assert.True(t, errors.Is(err, config.ErrConfig), "got %v", err)
}

func TestProcessInputTypeMismatch(t *testing.T) {
	// SBSMedH records the MED axes; the scan comes from the ZAXIS diffractometer.
	dir, cfg := setupWith(t, strings.Replace(testConfig, "type: FlyScanUHV", "type: SBSMedH", 1))
	writeScan(t, dir, 1, 3, 3)

	out, err := execute("process", "--config", cfg, "1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfig), "got %v", err)
	assert.Contains(t, err.Error(), "SBSMedH")
	assert.NotContains(t, out, "points processed")
}

func TestJobs(t *testing.T) {
	dir, cfg := setup(t)
	writeScan(t, dir, 4, 5, 5)

	out, err := execute("jobs", "--config", cfg, "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Scans 4-4")
	assert.Contains(t, out, "3 jobs")
}

func TestGeometry(t *testing.T) {
	out, err := execute("geometry", diffractometer.ZAxis)
	require.NoError(t, err)
	assert.Contains(t, out, "sample:   mu(0,0,1) -> omega(0,-1,0)")
	assert.Contains(t, out, "detector: mu(0,0,1) -> delta(0,-1,0) -> gamma(0,0,1)")

	_, err = execute("geometry", "E4CV")
	assert.True(t, errors.Is(err, diffractometer.ErrUnsupportedGeometry))
}

func TestSummaryIgnoresMaskedPixels(t *testing.T) {
	sum := NewSummary([]string{"x"})
	assert.Equal(t, 0, sum.Points)

	weights := mat.NewDense(1, 3, []float64{1, 0, 1})
	coords := mat.NewDense(1, 3, []float64{2, -50, 4})
	sum.Add(&frame.Result{Weights: weights, Coordinates: projection.Coordinates{coords}})

	assert.Equal(t, 1, sum.Points)
	assert.Equal(t, 2.0, sum.Min[0])
	assert.Equal(t, 4.0, sum.Max[0])
}
