// Package detector provides the static pixel geometry and bad-pixel masks
// of the area detectors mounted on the SIXS diffractometers.
package detector

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"sixs-binner/internal/mask"
	"sixs-binner/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

// Model describes a flat pixel array detector. Tiled sensors set Module to
// the chip size in pixels; the pixels on either side of an internal chip
// border are BorderFactor times wider than the others.
type Model struct {
	Name         string
	Rows         int      // slow axis
	Cols         int      // fast axis
	PixelSizeMM  float64  // square pixels
	Module       [2]int   // rows, cols per chip; zero for a single chip
	BorderFactor float64  // width of border pixels in pixel sizes
	Dead         [][2]int // (row, col) of known bad pixels
}

// Validate checks the model dimensions.
func (m *Model) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("detector name is required")
	}
	if m.Rows <= 0 || m.Cols <= 0 {
		return fmt.Errorf("%s: detector dimensions must be positive", m.Name)
	}
	if m.PixelSizeMM <= 0 {
		return fmt.Errorf("%s: pixel size must be positive", m.Name)
	}
	if m.Module[0] < 0 || m.Module[1] < 0 {
		return fmt.Errorf("%s: module size must not be negative", m.Name)
	}
	if (m.Module[0] > 0 || m.Module[1] > 0) && m.BorderFactor <= 0 {
		return fmt.Errorf("%s: border factor must be positive", m.Name)
	}
	return nil
}

// pixelCentres returns the centre of each of n pixels along one axis,
// measured from the outer edge of the first pixel.
func (m *Model) pixelCentres(n, module int) []float64 {
	sizes := make([]float64, n)
	for i := range sizes {
		sizes[i] = m.PixelSizeMM
	}
	if module > 0 {
		for edge := module; edge < n; edge += module {
			sizes[edge-1] = m.BorderFactor * m.PixelSizeMM
			sizes[edge] = m.BorderFactor * m.PixelSizeMM
		}
	}

	centres := make([]float64, n)
	var pos float64
	for i, size := range sizes {
		centres[i] = pos + size/2
		pos += size
	}
	return centres
}

// CentralPixel is the (x, y) = (column, row) index of the direct beam.
type CentralPixel [2]int

// Pixels returns the lab-frame position of every pixel in millimetres for a
// detector at sdd millimetres from the sample, centred on the given pixel.
// The detector plane is normal to the beam (x); columns run along -y and
// rows along +z.
func (m *Model) Pixels(center CentralPixel, sdd float64) (*geometry.PixelGrid, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	cx, cy := center[0], center[1]
	if cx < 0 || cx >= m.Cols || cy < 0 || cy >= m.Rows {
		return nil, fmt.Errorf("%s: central pixel (%d, %d) outside %dx%d detector", m.Name, cx, cy, m.Cols, m.Rows)
	}
	if sdd <= 0 {
		return nil, fmt.Errorf("%s: sample-detector distance must be positive, got %g", m.Name, sdd)
	}

	rowPos := m.pixelCentres(m.Rows, m.Module[0])
	colPos := m.pixelCentres(m.Cols, m.Module[1])

	x := mat.NewDense(m.Rows, m.Cols, nil)
	y := mat.NewDense(m.Rows, m.Cols, nil)
	z := mat.NewDense(m.Rows, m.Cols, nil)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			x.Set(r, c, sdd)
			y.Set(r, c, -(colPos[c] - colPos[cx]))
			z.Set(r, c, rowPos[r]-rowPos[cy])
		}
	}
	return geometry.NewPixelGrid(x, y, z)
}

// Mask returns the bad-pixel mask of the detector. Dead pixels outside the
// array are ignored.
func (m *Model) Mask() *mask.Mask {
	out := mask.New(m.Rows, m.Cols)
	for _, p := range m.Dead {
		if p[0] >= 0 && p[0] < m.Rows && p[1] >= 0 && p[1] < m.Cols {
			out.Set(p[0], p[1], true)
		}
	}
	return out
}

// Registry of known detector models
var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Model)
)

// Register adds a detector model to the registry.
func Register(m *Model) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(m.Name)] = m
}

// Get returns a detector model by name (case-insensitive).
func Get(name string) (*Model, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if m, ok := registry[strings.ToLower(name)]; ok {
		return m, nil
	}
	return nil, fmt.Errorf("unknown detector %q", name)
}

// List returns all registered detector names.
func List() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for _, m := range registry {
		names = append(names, m.Name)
	}
	sort.Strings(names)
	return names
}

// Default is the detector recorded by the SIXS flyscans.
const Default = "imxpads140"

func init() {
	// Register built-in detectors
	Register(&Model{Name: "imxpads140", Rows: 240, Cols: 560, PixelSizeMM: 0.130, Module: [2]int{120, 80}, BorderFactor: 2.5})
	Register(&Model{Name: "imxpads70", Rows: 120, Cols: 560, PixelSizeMM: 0.130, Module: [2]int{120, 80}, BorderFactor: 2.5})
	Register(&Model{Name: "maxipix", Rows: 516, Cols: 516, PixelSizeMM: 0.055})
}
