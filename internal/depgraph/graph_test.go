package depgraph

import (
	"bytes"
	"testing"

	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

func mustAdd(t *testing.T, g *Graph, parent string, reqType reqs.RequirementKind, reqStr, version string) {
	t.Helper()
	req := reqs.MustParse(reqStr)
	if err := g.AddDependency(parent, reqType, req, pep440.MustParse(version), "", false); err != nil {
		t.Fatalf("AddDependency: %v", err)
	}
}

func buildChainGraph(t *testing.T) *Graph {
	g := New()
	mustAdd(t, g, Root, reqs.KindTopLevel, "a", "1.0")
	mustAdd(t, g, "a==1.0", reqs.KindInstall, "b", "2.0")
	mustAdd(t, g, "b==2.0", reqs.KindInstall, "c", "3.0")
	return g
}

func TestAddDependencyUnknownParent(t *testing.T) {
	g := New()
	req := reqs.MustParse("a")
	if err := g.AddDependency("missing==1.0", reqs.KindInstall, req, pep440.MustParse("1.0"), "", false); err == nil {
		t.Error("expected error for unknown parent")
	}
}

func TestGetInstallDependenciesOrder(t *testing.T) {
	g := buildChainGraph(t)
	deps := g.GetInstallDependencies()
	if len(deps) != 3 {
		t.Fatalf("got %d deps, want 3", len(deps))
	}
	got := []string{deps[0].Key, deps[1].Key, deps[2].Key}
	want := []string{"a==1.0", "b==2.0", "c==3.0"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("deps[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestGetNodesByName(t *testing.T) {
	g := buildChainGraph(t)
	nodes := g.GetNodesByName("A")
	if len(nodes) != 1 || nodes[0].Key != "a==1.0" {
		t.Errorf("GetNodesByName(A) = %v", nodes)
	}
	if root := g.GetNodesByName(""); len(root) != 1 || root[0].Key != Root {
		t.Errorf("GetNodesByName(\"\") = %v", root)
	}
}

func TestBuildTopologyOrdering(t *testing.T) {
	g := buildChainGraph(t)
	topo := g.BuildTopology()
	if len(topo["a==1.0"]) != 1 || topo["a==1.0"][0] != "b==2.0" {
		t.Errorf("topo[a==1.0] = %v", topo["a==1.0"])
	}
	if len(topo["c==3.0"]) != 0 {
		t.Errorf("topo[c==3.0] = %v, want none", topo["c==3.0"])
	}
}

// TestSerializeRoundTrip is P3: serializing and re-parsing a graph
// produces an equivalent graph (same nodes, same edges).
func TestSerializeRoundTrip(t *testing.T) {
	g := buildChainGraph(t)
	var buf bytes.Buffer
	if err := g.Serialize(&buf); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	g2, err := FromReader(&buf)
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}

	deps1 := g.GetInstallDependencies()
	deps2 := g2.GetInstallDependencies()
	if len(deps1) != len(deps2) {
		t.Fatalf("deps count mismatch: %d vs %d", len(deps1), len(deps2))
	}
	for i := range deps1 {
		if deps1[i].Key != deps2[i].Key {
			t.Errorf("deps[%d]: %q vs %q", i, deps1[i].Key, deps2[i].Key)
		}
	}
}

// buildBranchingGraph gives "a" two children, "b" and "d", each with
// their own descendant, so a DFS pre-order walk only matches a live
// bootstrap run's discovery order if each child's whole subtree is
// replayed before its sibling: a, b, c, d, e.
func buildBranchingGraph(t *testing.T) *Graph {
	g := New()
	mustAdd(t, g, Root, reqs.KindTopLevel, "a", "1.0")
	mustAdd(t, g, "a==1.0", reqs.KindInstall, "b", "2.0")
	mustAdd(t, g, "b==2.0", reqs.KindInstall, "c", "3.0")
	mustAdd(t, g, "a==1.0", reqs.KindInstall, "d", "4.0")
	mustAdd(t, g, "d==4.0", reqs.KindInstall, "e", "5.0")
	return g
}

// TestSerializeRoundTripPreservesOrder is P3: deserializing then
// reserializing a graph reproduces the original discovery order, so
// the JSON output is byte-identical to the input (modulo the decoder
// discarding whitespace, which Serialize itself reproduces exactly).
func TestSerializeRoundTripPreservesOrder(t *testing.T) {
	g := buildBranchingGraph(t)
	var original bytes.Buffer
	if err := g.Serialize(&original); err != nil {
		t.Fatalf("Serialize: %v", err)
	}

	g2, err := FromReader(bytes.NewReader(original.Bytes()))
	if err != nil {
		t.Fatalf("FromReader: %v", err)
	}

	var replayed bytes.Buffer
	if err := g2.Serialize(&replayed); err != nil {
		t.Fatalf("Serialize (round 2): %v", err)
	}

	if original.String() != replayed.String() {
		t.Errorf("reserialized graph does not match original:\n--- original ---\n%s\n--- replayed ---\n%s", original.String(), replayed.String())
	}
}

func TestGetOutgoingAndIncomingEdges(t *testing.T) {
	g := buildChainGraph(t)
	a := g.GetNodesByName("a")[0]
	edges := a.GetOutgoingEdges("b", reqs.KindInstall)
	if len(edges) != 1 || edges[0].Dest.Key != "b==2.0" {
		t.Errorf("GetOutgoingEdges = %v", edges)
	}
	b := g.GetNodesByName("b")[0]
	incoming := b.GetIncomingInstallEdges()
	if len(incoming) != 1 || incoming[0].Dest.Key != "a==1.0" {
		t.Errorf("GetIncomingInstallEdges = %v", incoming)
	}
}
