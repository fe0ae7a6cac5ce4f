// Package projection converts detector pixel positions into the coordinate
// space a scan is binned in.
//
// Every projection is a pure function of its Input: no state is kept between
// calls, so a single value can be shared by all frames and goroutines.
package projection

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"sixs-binner/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// Input is everything a projection needs for one frame.
type Input struct {
	Pixels *geometry.PixelGrid
	K      float64    // wavevector magnitude 2π/λ
	UB     *mat.Dense // reciprocal lattice to lab frame
	R      *mat.Dense // sample rotation
	P      *mat.Dense // detector rotation
}

// Validate checks the shapes of the input.
func (in Input) Validate() error {
	if in.Pixels == nil || in.Pixels.Positions == nil {
		return errors.New("projection input has no pixel geometry")
	}
	for _, m := range []struct {
		name string
		m    *mat.Dense
	}{{"UB", in.UB}, {"R", in.R}, {"P", in.P}} {
		if m.m == nil {
			return fmt.Errorf("projection input has no %s matrix", m.name)
		}
		if r, c := m.m.Dims(); r != 3 || c != 3 {
			return fmt.Errorf("%s matrix is %dx%d, want 3x3", m.name, r, c)
		}
	}
	return nil
}

// Coordinates holds one Rows x Cols image per output axis.
type Coordinates []*mat.Dense

// Projection maps a frame's pixels to output coordinates.
type Projection interface {
	Project(in Input) (Coordinates, error)
	AxisLabels() []string
}

// Func adapts a plain function into a Projection.
type Func struct {
	Name   string
	Labels []string
	Fn     func(Input) (Coordinates, error)
}

func (f Func) Project(in Input) (Coordinates, error) {
	return f.Fn(in)
}

func (f Func) AxisLabels() []string {
	return append([]string(nil), f.Labels...)
}

func (f Func) String() string {
	return f.Name
}

// Then derives a projection by post-processing the output of base.
func Then(name string, base Projection, labels []string, post func(Coordinates) Coordinates) Func {
	return Func{
		Name:   name,
		Labels: labels,
		Fn: func(in Input) (Coordinates, error) {
			c, err := base.Project(in)
			if err != nil {
				return nil, err
			}
			return post(c), nil
		},
	}
}

// Names of the built-in projections.
const (
	NameRealSpace = "realspace"
	NamePixels    = "pixels"
	NameHKL       = "hkl"
	NameHK        = "hk"
	NameQxQyQz    = "qxqyqz"
	NameQparQper  = "qparqper"
)

var registry = map[string]Projection{
	NameRealSpace: RealSpace,
	NamePixels:    Pixels,
	NameHKL:       HKL,
	NameHK:        HK,
	NameQxQyQz:    QxQyQz,
	NameQparQper:  QparQper,
}

var aliases = map[string]string{
	"hklprojection":      NameHKL,
	"hkprojection":       NameHK,
	"qxqyqzprojection":   NameQxQyQz,
	"qparqperprojection": NameQparQper,
}

// ByName returns a built-in projection. Matching ignores case and accepts
// the "...projection" suffixed names.
func ByName(name string) (Projection, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[key]; ok {
		key = alias
	}
	if p, ok := registry[key]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown projection %q (known: %s)", name, strings.Join(Names(), ", "))
}

// Names lists the built-in projection names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
