// Package graph implements the graph builder & features subsystem:
// a transaction graph from debit/credit pairs, an entity-ownership graph
// with iterative indirect-ownership multiplication, per-node and per-edge
// feature computation, cyclical temporal encodings, and configurable
// elementwise normalization.
package graph

import "time"

// Node is one account or entity vertex. As in the design notes of
// SPEC_FULL.md (section 9), adjacency is addressed by node ID rather than by
// pointer: a graph may contain cycles (an ownership loop, a clearing
// account debited and credited in the same run), and ID-keyed adjacency
// keeps traversal and serialization uniform regardless of whether the
// underlying structure happens to be cyclic.
type Node struct {
	ID       string
	Kind     string // "account", "entity", ...
	Features map[string]float64
}

// Edge is one directed relationship: a transaction (debit account -> credit
// account) or an ownership stake (owner -> owned). Weight carries the
// amount for transaction edges or the ownership percentage (0-100) for
// ownership edges.
type Edge struct {
	ID        string
	From      string
	To        string
	Kind      string // "transaction", "ownership", "ownership_indirect"
	Weight    float64
	Timestamp time.Time
	Features  map[string]float64
}

// Graph is a directed multigraph over string-keyed nodes, with forward and
// reverse adjacency maintained as edge-index lists (never node pointers, see
// Node's doc comment).
type Graph struct {
	Nodes map[string]*Node
	Edges []*Edge

	forward map[string][]int // node ID -> indices into Edges, outgoing
	reverse map[string][]int // node ID -> indices into Edges, incoming
}

// New constructs an empty graph.
func New() *Graph {
	return &Graph{
		Nodes:   make(map[string]*Node),
		forward: make(map[string][]int),
		reverse: make(map[string][]int),
	}
}

// EnsureNode returns the node for id, creating it with the given kind if it
// does not already exist.
func (g *Graph) EnsureNode(id, kind string) *Node {
	if n, ok := g.Nodes[id]; ok {
		return n
	}
	n := &Node{ID: id, Kind: kind, Features: make(map[string]float64)}
	g.Nodes[id] = n
	return n
}

// AddEdge appends a directed edge and indexes it in both adjacency
// directions.
func (g *Graph) AddEdge(e *Edge) {
	if e.Features == nil {
		e.Features = make(map[string]float64)
	}
	idx := len(g.Edges)
	g.Edges = append(g.Edges, e)
	g.forward[e.From] = append(g.forward[e.From], idx)
	g.reverse[e.To] = append(g.reverse[e.To], idx)
}

// Out returns the outgoing edges of node id.
func (g *Graph) Out(id string) []*Edge {
	idxs := g.forward[id]
	out := make([]*Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = g.Edges[idx]
	}
	return out
}

// In returns the incoming edges of node id.
func (g *Graph) In(id string) []*Edge {
	idxs := g.reverse[id]
	out := make([]*Edge, len(idxs))
	for i, idx := range idxs {
		out[i] = g.Edges[idx]
	}
	return out
}

// Neighbors returns the distinct node IDs reachable by a single outgoing or
// incoming edge, used by the local clustering coefficient computation.
func (g *Graph) Neighbors(id string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range g.Out(id) {
		if !seen[e.To] {
			seen[e.To] = true
			out = append(out, e.To)
		}
	}
	for _, e := range g.In(id) {
		if !seen[e.From] {
			seen[e.From] = true
			out = append(out, e.From)
		}
	}
	return out
}
