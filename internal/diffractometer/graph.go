package diffractometer

import (
	"fmt"

	"sixs-binner/pkg/geometry"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// AxisNode is a rotation stage: its name and unit rotation axis.
type AxisNode struct {
	Name string
	Axis geometry.Vec3
}

// node adapts an AxisNode to gonum's graph.Node.
type node struct {
	id int64
	AxisNode
}

func (n node) ID() int64 { return n.id }

// Graph is the mechanical stacking of rotation stages. An edge goes from a
// parent stage to the stage mounted on it.
type Graph struct {
	g     *simple.DirectedGraph
	names map[string]int64
}

// NewGraph creates an empty kinematic graph.
func NewGraph() *Graph {
	return &Graph{
		g:     simple.NewDirectedGraph(),
		names: make(map[string]int64),
	}
}

// AddAxis adds a stage. Names must be unique within the graph.
func (k *Graph) AddAxis(a AxisNode) error {
	if a.Name == "" {
		return fmt.Errorf("axis name is required")
	}
	if _, ok := k.names[a.Name]; ok {
		return fmt.Errorf("duplicate axis %q", a.Name)
	}
	id := int64(len(k.names))
	k.g.AddNode(node{id: id, AxisNode: a})
	k.names[a.Name] = id
	return nil
}

// Mount records that child is carried by parent.
func (k *Graph) Mount(parent, child string) error {
	from, ok := k.names[parent]
	if !ok {
		return fmt.Errorf("unknown axis %q", parent)
	}
	to, ok := k.names[child]
	if !ok {
		return fmt.Errorf("unknown axis %q", child)
	}
	if from == to {
		return fmt.Errorf("axis %q cannot carry itself", parent)
	}
	k.g.SetEdge(k.g.NewEdge(k.g.Node(from), k.g.Node(to)))
	return nil
}

// Len returns the number of stages.
func (k *Graph) Len() int {
	return len(k.names)
}

// Parent returns the stage carrying name, if any.
func (k *Graph) Parent(name string) (string, bool) {
	id, ok := k.names[name]
	if !ok {
		return "", false
	}
	parents := graph.NodesOf(k.g.To(id))
	if len(parents) == 0 {
		return "", false
	}
	return parents[0].(node).Name, true
}

// Validate checks that the stages form a forest: no cycles and at most one
// parent per stage.
func (k *Graph) Validate() error {
	if _, err := topo.Sort(k.g); err != nil {
		return fmt.Errorf("kinematic graph has a cycle: %w", err)
	}
	for name, id := range k.names {
		if n := k.g.To(id).Len(); n > 1 {
			return fmt.Errorf("axis %q is carried by %d stages", name, n)
		}
	}
	return nil
}

// ResolveChain returns the ordered stages from root to target, both
// included. With unit edge weights this is the shortest path, and on a tree
// it is the unique ancestor path of target.
func (k *Graph) ResolveChain(root, target string) ([]AxisNode, error) {
	from, ok := k.names[root]
	if !ok {
		return nil, fmt.Errorf("unknown root axis %q", root)
	}
	to, ok := k.names[target]
	if !ok {
		return nil, fmt.Errorf("unknown target axis %q", target)
	}

	shortest := path.DijkstraFrom(k.g.Node(from), k.g)
	nodes, _ := shortest.To(to)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("axis %q is not reachable from %q", target, root)
	}

	chain := make([]AxisNode, len(nodes))
	for i, n := range nodes {
		chain[i] = n.(node).AxisNode
	}
	return chain, nil
}

// Merge returns a new graph holding the stages and edges of both graphs.
// Stage names must not collide.
func (k *Graph) Merge(other *Graph) (*Graph, error) {
	out := NewGraph()
	for _, src := range []*Graph{k, other} {
		for _, n := range graph.NodesOf(src.g.Nodes()) {
			if err := out.AddAxis(n.(node).AxisNode); err != nil {
				return nil, err
			}
		}
	}
	for _, src := range []*Graph{k, other} {
		for _, e := range graph.EdgesOf(src.g.Edges()) {
			if err := out.Mount(e.From().(node).Name, e.To().(node).Name); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}
