// Package diffractometer models the rotation stages of the SIXS
// diffractometers and resolves the ordered axis chains carrying the sample
// and the detector.
package diffractometer

import (
	"fmt"
	"math"
	"sync"

	"sixs-binner/pkg/geometry"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/mat"
)

// Kinematics is the resolved topology of one diffractometer type. It only
// depends on the type, never on axis values, and is read-only once built.
type Kinematics struct {
	Name     string
	Graph    *Graph
	Sample   []AxisNode // root -> sample mount
	Detector []AxisNode // root -> detector mount
}

// SampleAxes returns the rotation axes of the sample chain, in order.
func (k *Kinematics) SampleAxes() []geometry.Vec3 {
	return lo.Map(k.Sample, func(a AxisNode, _ int) geometry.Vec3 { return a.Axis })
}

// DetectorAxes returns the rotation axes of the detector chain, in order.
func (k *Kinematics) DetectorAxes() []geometry.Vec3 {
	return lo.Map(k.Detector, func(a AxisNode, _ int) geometry.Vec3 { return a.Axis })
}

// SampleNames returns the names of the sample chain stages.
func (k *Kinematics) SampleNames() []string {
	return lo.Map(k.Sample, func(a AxisNode, _ int) string { return a.Name })
}

// DetectorNames returns the names of the detector chain stages.
func (k *Kinematics) DetectorNames() []string {
	return lo.Map(k.Detector, func(a AxisNode, _ int) string { return a.Name })
}

// WithSample returns the diffractometer graph joined with the sample's
// orientation-offset graph, the offset root mounted on the sample stage.
func (k *Kinematics) WithSample(s *Sample) (*Graph, error) {
	merged, err := k.Graph.Merge(s.Graph)
	if err != nil {
		return nil, err
	}
	mount := k.Sample[len(k.Sample)-1].Name
	if err := merged.Mount(mount, s.Root); err != nil {
		return nil, err
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Kinematics)
)

func forget(name string) {
	cacheMu.Lock()
	delete(cache, name)
	cacheMu.Unlock()
}

// Resolve returns the kinematics of a registered diffractometer type. The
// result is computed once per type and shared by every caller.
func Resolve(name string) (*Kinematics, error) {
	cacheMu.RLock()
	k, ok := cache[name]
	cacheMu.RUnlock()
	if ok {
		return k, nil
	}

	def, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	k, err = resolve(def)
	if err != nil {
		return nil, err
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached, ok := cache[name]; ok {
		return cached, nil
	}
	cache[name] = k
	return k, nil
}

func resolve(def *Definition) (*Kinematics, error) {
	g, err := def.Graph()
	if err != nil {
		return nil, err
	}
	sample, err := g.ResolveChain(def.Root, def.SampleMount)
	if err != nil {
		return nil, fmt.Errorf("%s sample chain: %w", def.Name, err)
	}
	detector, err := g.ResolveChain(def.Root, def.DetectorMount)
	if err != nil {
		return nil, fmt.Errorf("%s detector chain: %w", def.Name, err)
	}
	return &Kinematics{Name: def.Name, Graph: g, Sample: sample, Detector: detector}, nil
}

// Diffractometer is the instrument description read once per scan file.
type Diffractometer struct {
	Name       string
	UB         *mat.Dense
	Kinematics *Kinematics
}

// New returns the diffractometer of the given type with its UB matrix.
func New(name string, ub mat.Matrix) (*Diffractometer, error) {
	if ub == nil {
		return nil, fmt.Errorf("%s: UB matrix is required", name)
	}
	if r, c := ub.Dims(); r != 3 || c != 3 {
		return nil, fmt.Errorf("%s: UB matrix is %dx%d, want 3x3", name, r, c)
	}
	k, err := Resolve(name)
	if err != nil {
		return nil, err
	}
	return &Diffractometer{Name: name, UB: mat.DenseCopyOf(ub), Kinematics: k}, nil
}

// Source is the incident beam.
type Source struct {
	Wavelength float64
}

// NewSource validates the wavelength.
func NewSource(wavelength float64) (Source, error) {
	if !(wavelength > 0) || math.IsInf(wavelength, 0) {
		return Source{}, fmt.Errorf("wavelength must be a positive number, got %g", wavelength)
	}
	return Source{Wavelength: wavelength}, nil
}

// K returns the wavevector magnitude 2π/λ.
func (s Source) K() float64 {
	return 2 * math.Pi / s.Wavelength
}

// Sample holds the lattice constants and orientation offsets of the sample.
// The transforms read the UB matrix from the scan file instead.
type Sample struct {
	A, B, C            float64
	Alpha, Beta, Gamma float64 // degrees
	Ux, Uy, Uz         float64 // degrees
	Root               string
	Graph              *Graph
}

// NewSample returns a sample with the given lattice constants (lengths in
// Å, angles in degrees) and its ux -> uy -> uz offset stages at zero.
func NewSample(a, b, c, alpha, beta, gamma float64) (*Sample, error) {
	for _, l := range []float64{a, b, c} {
		if !(l > 0) || math.IsInf(l, 0) {
			return nil, fmt.Errorf("lattice length must be positive and finite, got %g", l)
		}
	}
	for _, ang := range []float64{alpha, beta, gamma} {
		if !(ang > 0 && ang < 180) {
			return nil, fmt.Errorf("lattice angle must be in (0, 180) degrees, got %g", ang)
		}
	}

	g := NewGraph()
	for _, axis := range []AxisNode{
		{Name: "ux", Axis: geometry.Vec3{1, 0, 0}},
		{Name: "uy", Axis: geometry.Vec3{0, 1, 0}},
		{Name: "uz", Axis: geometry.Vec3{0, 0, 1}},
	} {
		if err := g.AddAxis(axis); err != nil {
			return nil, err
		}
	}
	if err := g.Mount("ux", "uy"); err != nil {
		return nil, err
	}
	if err := g.Mount("uy", "uz"); err != nil {
		return nil, err
	}

	return &Sample{
		A: a, B: b, C: c,
		Alpha: alpha, Beta: beta, Gamma: gamma,
		Root:  "ux",
		Graph: g,
	}, nil
}

// DefaultSample returns the placeholder cubic sample (1.54 Å, 90°).
func DefaultSample() *Sample {
	s, err := NewSample(1.54, 1.54, 1.54, 90, 90, 90)
	if err != nil {
		panic(err)
	}
	return s
}
