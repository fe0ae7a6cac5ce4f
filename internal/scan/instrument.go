package scan

import (
	"fmt"
	"sort"

	"sixs-binner/internal/diffractometer"

	"gonum.org/v1/gonum/mat"
)

// Instrument maps the logical names used by a diffractometer type (the axis
// names and "image") to the channels recorded by one acquisition setup.
type Instrument struct {
	Name     string
	Channels map[string]string
}

// ImageChannel is the logical name of the detector images.
const ImageChannel = "image"

// Channel returns the physical channel of a logical name.
func (i *Instrument) Channel(logical string) (string, error) {
	if ch, ok := i.Channels[logical]; ok {
		return ch, nil
	}
	return "", fmt.Errorf("instrument %s has no channel for %q", i.Name, logical)
}

// Covers checks that every stage of both kinematic chains, and the image,
// has a channel.
func (i *Instrument) Covers(k *diffractometer.Kinematics) error {
	names := append([]string{ImageChannel}, k.SampleNames()...)
	names = append(names, k.DetectorNames()...)
	for _, n := range names {
		if _, err := i.Channel(n); err != nil {
			return fmt.Errorf("%w (diffractometer %s)", err, k.Name)
		}
	}
	return nil
}

// Frame is what one scan point contributes: the detector image and the axis
// values, in degrees, ordered like the kinematic chains.
type Frame struct {
	Index          int
	Image          *mat.Dense
	SampleValues   []float64
	DetectorValues []float64
}

// ReadFrame reads point index of the scan behind r.
func (i *Instrument) ReadFrame(r Reader, k *diffractometer.Kinematics, index int) (*Frame, error) {
	ch, err := i.Channel(ImageChannel)
	if err != nil {
		return nil, err
	}
	img, err := r.Image(ch, index)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ch, err)
	}

	sample, err := i.values(r, k.SampleNames(), index)
	if err != nil {
		return nil, err
	}
	detector, err := i.values(r, k.DetectorNames(), index)
	if err != nil {
		return nil, err
	}

	return &Frame{Index: index, Image: img, SampleValues: sample, DetectorValues: detector}, nil
}

func (i *Instrument) values(r Reader, axes []string, index int) ([]float64, error) {
	out := make([]float64, len(axes))
	for n, axis := range axes {
		ch, err := i.Channel(axis)
		if err != nil {
			return nil, err
		}
		v, err := r.Scalar(ch, index)
		if err != nil {
			return nil, fmt.Errorf("read %s (%s): %w", ch, axis, err)
		}
		out[n] = v
	}
	return out, nil
}

// Built-in acquisition setups.
const (
	FlyScanUHV  = "FlyScanUHV"
	FlyScanUHV2 = "FlyScanUHV2"
	SBSMedH     = "SBSMedH"
)

var instruments = map[string]*Instrument{
	FlyScanUHV: {
		Name: FlyScanUHV,
		Channels: map[string]string{
			ImageChannel: "xpad_image",
			"mu":         "UHV_MU",
			"omega":      "UHV_OMEGA",
			"delta":      "UHV_DELTA",
			"gamma":      "UHV_GAMMA",
		},
	},
	FlyScanUHV2: {
		Name: FlyScanUHV2,
		Channels: map[string]string{
			ImageChannel: "xpad_image",
			"mu":         "mu",
			"omega":      "omega",
			"delta":      "delta",
			"gamma":      "gamma",
		},
	},
	SBSMedH: {
		Name: SBSMedH,
		Channels: map[string]string{
			ImageChannel: "data_03",
			"pitch":      "data_22",
			"mu":         "data_18",
			"gamma":      "data_20",
			"delta":      "data_19",
		},
	},
}

// LookupInstrument returns a built-in acquisition setup.
func LookupInstrument(name string) (*Instrument, error) {
	if i, ok := instruments[name]; ok {
		return i, nil
	}
	return nil, fmt.Errorf("unknown input type %q (known: %v)", name, InstrumentNames())
}

// InstrumentNames lists the built-in acquisition setups.
func InstrumentNames() []string {
	names := make([]string, 0, len(instruments))
	for n := range instruments {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
