package diffractometer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Supported diffractometer names, as recorded in the scan files.
const (
	ZAxis         = "ZAXIS"
	SoleilSixsMed = "SOLEIL SIXS MED1+2"
)

// ErrUnsupportedGeometry is returned for diffractometer names with no
// registered topology.
var ErrUnsupportedGeometry = errors.New("unsupported diffractometer geometry")

// Definition describes the mechanical topology of one diffractometer type.
type Definition struct {
	Name          string
	Axes          []AxisNode
	Edges         [][2]string // parent, child
	Root          string
	SampleMount   string
	DetectorMount string
}

// Graph builds the kinematic graph of the definition.
func (d *Definition) Graph() (*Graph, error) {
	g := NewGraph()
	for _, a := range d.Axes {
		if err := g.AddAxis(a); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	for _, e := range d.Edges {
		if err := g.Mount(e[0], e[1]); err != nil {
			return nil, fmt.Errorf("%s: %w", d.Name, err)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", d.Name, err)
	}
	return g, nil
}

// Registry of known diffractometer topologies
var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Definition)
)

// Register adds a diffractometer definition to the registry.
func Register(def *Definition) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[def.Name] = def
	forget(def.Name)
}

// Lookup returns the definition registered under name.
func Lookup(name string) (*Definition, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if def, ok := registry[name]; ok {
		return def, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedGeometry, name)
}

// Names returns all registered diffractometer names, sorted.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuildGraph returns the kinematic graph of a registered diffractometer.
func BuildGraph(name string) (*Graph, error) {
	def, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return def.Graph()
}

// ZAxisDefinition is the SIXS UHV z-axis diffractometer: mu carries the
// omega sample stage and the delta/gamma detector arm.
func ZAxisDefinition() *Definition {
	return &Definition{
		Name: ZAxis,
		Axes: []AxisNode{
			{Name: "mu", Axis: [3]float64{0, 0, 1}},
			{Name: "omega", Axis: [3]float64{0, -1, 0}},
			{Name: "delta", Axis: [3]float64{0, -1, 0}},
			{Name: "gamma", Axis: [3]float64{0, 0, 1}},
		},
		Edges: [][2]string{
			{"mu", "omega"},
			{"mu", "delta"},
			{"delta", "gamma"},
		},
		Root:          "mu",
		SampleMount:   "omega",
		DetectorMount: "gamma",
	}
}

// SixsMedDefinition is the SIXS MED1+2 diffractometer: pitch carries the mu
// sample stage and the gamma/delta detector arm.
func SixsMedDefinition() *Definition {
	return &Definition{
		Name: SoleilSixsMed,
		Axes: []AxisNode{
			{Name: "pitch", Axis: [3]float64{0, -1, 0}},
			{Name: "mu", Axis: [3]float64{0, 0, 1}},
			{Name: "gamma", Axis: [3]float64{0, 0, 1}},
			{Name: "delta", Axis: [3]float64{0, -1, 0}},
		},
		Edges: [][2]string{
			{"pitch", "mu"},
			{"pitch", "gamma"},
			{"gamma", "delta"},
		},
		Root:          "pitch",
		SampleMount:   "mu",
		DetectorMount: "delta",
	}
}

func init() {
	// Register built-in diffractometers
	Register(ZAxisDefinition())
	Register(SixsMedDefinition())
}
