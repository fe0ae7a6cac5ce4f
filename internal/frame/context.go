package frame

import (
	"fmt"

	"sixs-binner/internal/detector"
	"sixs-binner/internal/diffractometer"
	"sixs-binner/internal/mask"
	"sixs-binner/internal/scan"
	"sixs-binner/pkg/geometry"
)

// Setup is the static detector placement chosen by the user.
type Setup struct {
	Detector     string // overrides the detector recorded in the scan when set
	CentralPixel detector.CentralPixel
	SDD          float64 // sample to detector distance (mm)
}

// Context is everything about a scan file that does not change from point
// to point.
type Context struct {
	Diffractometer *diffractometer.Diffractometer
	Sample         *diffractometer.Sample
	Source         diffractometer.Source
	Detector       *detector.Model
	Pixels         *geometry.PixelGrid
	BadPixels      *mask.Mask
}

// NewContext reads the scan metadata and computes the pixel geometry.
func NewContext(r scan.Reader, setup Setup) (*Context, error) {
	meta, err := r.Metadata()
	if err != nil {
		return nil, fmt.Errorf("failed to read scan metadata: %w", err)
	}

	d, err := diffractometer.New(meta.Diffractometer, meta.UB)
	if err != nil {
		return nil, err
	}
	src, err := diffractometer.NewSource(meta.Wavelength)
	if err != nil {
		return nil, err
	}

	name := setup.Detector
	if name == "" {
		name = meta.Detector
	}
	if name == "" {
		name = detector.Default
	}
	model, err := detector.Get(name)
	if err != nil {
		return nil, err
	}
	pixels, err := model.Pixels(setup.CentralPixel, setup.SDD)
	if err != nil {
		return nil, err
	}

	return &Context{
		Diffractometer: d,
		Sample:         diffractometer.DefaultSample(),
		Source:         src,
		Detector:       model,
		Pixels:         pixels,
		BadPixels:      model.Mask(),
	}, nil
}
