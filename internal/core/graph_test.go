package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddNodeAddEdge(t *testing.T) {
	g := New[string, int]()
	a := g.AddNode("a")
	b := g.AddNode("b")
	e := g.AddEdge(a, b, 7)

	require.Equal(t, 7, *g.Edge(e))
	require.Equal(t, a, g.From(e))
	require.Equal(t, b, g.To(e))
	require.Equal(t, []EdgeID{e}, g.OutEdges(a))
	require.Equal(t, []EdgeID{e}, g.InEdges(b))
}

func TestRemoveEdge(t *testing.T) {
	g := New[string, int]()
	a := g.AddNode("a")
	b := g.AddNode("b")
	e := g.AddEdge(a, b, 1)
	g.RemoveEdge(e)

	require.Empty(t, g.OutEdges(a))
	require.Empty(t, g.InEdges(b))
	require.Zero(t, g.EdgeCount())
	require.Empty(t, g.Edges())
}

func TestCloneIndependence(t *testing.T) {
	g := New[int, int]()
	a := g.AddNode(1)
	b := g.AddNode(2)
	e := g.AddEdge(a, b, 10)

	clone := g.Clone()
	*clone.Edge(e) = 99
	*clone.Node(a) = 42

	require.Equal(t, 10, *g.Edge(e), "mutating clone edge must not leak into original")
	require.Equal(t, 1, *g.Node(a), "mutating clone node must not leak into original")
}

func TestNodesEdgesDeterministicOrder(t *testing.T) {
	g := New[int, int]()
	var ids []NodeID
	for i := 0; i < 5; i++ {
		ids = append(ids, g.AddNode(i))
	}
	var edges []EdgeID
	for i := 0; i < len(ids)-1; i++ {
		edges = append(edges, g.AddEdge(ids[i], ids[i+1], i))
	}

	require.Equal(t, ids, g.Nodes())
	require.Equal(t, edges, g.Edges())
}
