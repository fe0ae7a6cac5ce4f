package scan

import (
	"errors"
	"path/filepath"
	"testing"

	"sixs-binner/internal/diffractometer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func uhvScan() *MemoryScan {
	images := make([]*mat.Dense, 3)
	for i := range images {
		images[i] = mat.NewDense(2, 3, []float64{0, 1, 2, 3, 4, float64(100 * i)})
	}
	return &MemoryScan{
		Meta: Metadata{
			Diffractometer: diffractometer.ZAxis,
			Detector:       "imxpads140",
			UB:             mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
			Wavelength:     0.62,
		},
		Points: 3,
		Scalars: map[string][]float64{
			"UHV_MU":    {0.1, 0.2, 0.3},
			"UHV_OMEGA": {10, 11, 12},
			"UHV_DELTA": {20, 21, 22},
			"UHV_GAMMA": {30, 31, 32},
		},
		Images: map[string][]*mat.Dense{"xpad_image": images},
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "/data/scan_00042.nxs", Filename("/data/scan_{scanno}.nxs", 42))
	assert.Equal(t, "scan_123456", Filename("scan_{scanno}", 123456))
	assert.Equal(t, "fixed.nxs", Filename("fixed.nxs", 7))
}

func TestReadFrame(t *testing.T) {
	store := NewMemoryStore()
	store.Add(5, uhvScan())

	k, err := diffractometer.Resolve(diffractometer.ZAxis)
	require.NoError(t, err)
	inst, err := LookupInstrument(FlyScanUHV)
	require.NoError(t, err)

	r, err := store.Open(5)
	require.NoError(t, err)
	defer r.Close()

	f, err := inst.ReadFrame(r, k, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, f.Index)
	assert.Equal(t, []float64{0.3, 12}, f.SampleValues)
	assert.Equal(t, []float64{0.3, 22, 32}, f.DetectorValues)
	assert.Equal(t, 200.0, f.Image.At(1, 2))

	_, err = inst.ReadFrame(r, k, 3)
	assert.Error(t, err)
}

func TestReadFrameMissingChannel(t *testing.T) {
	store := NewMemoryStore()
	store.Add(1, uhvScan())
	r, err := store.Open(1)
	require.NoError(t, err)
	defer r.Close()

	// SBSMedH expects a pitch stage the UHV scan does not record.
	k, err := diffractometer.Resolve(diffractometer.SoleilSixsMed)
	require.NoError(t, err)
	inst, err := LookupInstrument(SBSMedH)
	require.NoError(t, err)
	_, err = inst.ReadFrame(r, k, 0)
	assert.Error(t, err)

	// FlyScanUHV2 has no mapping for pitch at all.
	inst, err = LookupInstrument(FlyScanUHV2)
	require.NoError(t, err)
	_, err = inst.ReadFrame(r, k, 0)
	assert.Error(t, err)
}

func TestLookupInstrument(t *testing.T) {
	assert.Equal(t, []string{FlyScanUHV, FlyScanUHV2, SBSMedH}, InstrumentNames())
	_, err := LookupInstrument("CristalSpec")
	assert.Error(t, err)
}

func TestInstrumentCovers(t *testing.T) {
	tests := []struct {
		instrument string
		geometry   string
		ok         bool
	}{
		{FlyScanUHV, diffractometer.ZAxis, true},
		{FlyScanUHV2, diffractometer.ZAxis, true},
		{SBSMedH, diffractometer.SoleilSixsMed, true},
		{SBSMedH, diffractometer.ZAxis, false},
		{FlyScanUHV, diffractometer.SoleilSixsMed, false},
	}
	for _, tt := range tests {
		t.Run(tt.instrument+"/"+tt.geometry, func(t *testing.T) {
			inst, err := LookupInstrument(tt.instrument)
			require.NoError(t, err)
			k, err := diffractometer.Resolve(tt.geometry)
			require.NoError(t, err)

			err = inst.Covers(k)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMemoryStoreHandles(t *testing.T) {
	store := NewMemoryStore()
	store.Add(1, uhvScan())

	_, err := store.Open(2)
	assert.True(t, errors.Is(err, ErrNotFound))

	n, err := PointCount(store, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, store.OpenHandles())
	assert.Equal(t, 1, store.Opened())

	r, err := store.Open(1)
	require.NoError(t, err)
	assert.Equal(t, 1, store.OpenHandles())
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 0, store.OpenHandles())

	_, err = r.Scalar("UHV_MU", 0)
	assert.Error(t, err)
}

func TestDirStoreRoundTrip(t *testing.T) {
	root := t.TempDir()
	store := DirStore{Template: filepath.Join(root, "scan_{scanno}")}
	require.NoError(t, WriteDir(store.Path(12), uhvScan()))

	r, err := store.Open(12)
	require.NoError(t, err)
	defer r.Close()

	meta, err := r.Metadata()
	require.NoError(t, err)
	assert.Equal(t, diffractometer.ZAxis, meta.Diffractometer)
	assert.Equal(t, "imxpads140", meta.Detector)
	assert.Equal(t, 0.62, meta.Wavelength)
	assert.True(t, mat.Equal(meta.UB, mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})))

	n, err := r.PointCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	v, err := r.Scalar("UHV_DELTA", 1)
	require.NoError(t, err)
	assert.Equal(t, 21.0, v)

	img, err := r.Image("xpad_image", 2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(uhvScan().Images["xpad_image"][2], img))

	_, err = r.Image("xpad_image", 3)
	assert.Error(t, err)

	_, err = store.Open(13)
	assert.True(t, errors.Is(err, ErrNotFound))
}
