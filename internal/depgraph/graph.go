// Package depgraph is the persistent dependency graph a bootstrap run
// builds up as it resolves packages: a directed multigraph rooted at a
// synthetic sentinel node, serialized to JSON in the node-visit order it
// was discovered so re-reading a graph file reproduces the same
// traversal.
package depgraph

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
)

// Root is the sentinel key for the graph's root node.
const Root = ""

// Node is one resolved (package, version) pair in the graph.
type Node struct {
	Key               string
	CanonicalizedName string
	Version           pep440.Version
	DownloadURL       string
	PreBuilt          bool

	Parents  []*Edge
	Children []*Edge
}

// Edge connects a node to one of its dependencies (or, read from the
// child's side, one of its dependents), labeled with the requirement
// that produced it and the kind of requirement it was.
type Edge struct {
	ReqType reqs.RequirementKind
	Req     reqs.Requirement
	Dest    *Node
}

func nodeKey(name string, version pep440.Version) string {
	return name + "==" + version.String()
}

func newNode(name string, version pep440.Version, downloadURL string, preBuilt bool) *Node {
	return &Node{
		Key:               nodeKey(name, version),
		CanonicalizedName: name,
		Version:           version,
		DownloadURL:       downloadURL,
		PreBuilt:          preBuilt,
	}
}

func newRootNode() *Node {
	n := newNode(reqs.Canonicalize(Root), pep440.MustParse("0"), "", false)
	n.Key = Root
	return n
}

func (n *Node) addChild(child *Node, req reqs.Requirement, reqType reqs.RequirementKind) {
	n.Children = append(n.Children, &Edge{ReqType: reqType, Req: req, Dest: child})
	child.Parents = append(child.Parents, &Edge{ReqType: reqType, Req: req, Dest: n})
}

// GetIncomingInstallEdges returns the parent-side edges of n that are
// install-time (as opposed to build-time) requirements.
func (n *Node) GetIncomingInstallEdges() []*Edge {
	var out []*Edge
	for _, e := range n.Parents {
		if e.ReqType == reqs.KindInstall || e.ReqType == reqs.KindTopLevel {
			out = append(out, e)
		}
	}
	return out
}

// GetOutgoingEdges returns n's child edges matching reqName and reqType.
func (n *Node) GetOutgoingEdges(reqName string, reqType reqs.RequirementKind) []*Edge {
	canon := reqs.Canonicalize(reqName)
	var out []*Edge
	for _, e := range n.Children {
		if reqs.Canonicalize(e.Req.Name) == canon && e.ReqType == reqType {
			out = append(out, e)
		}
	}
	return out
}

// Graph is the dependency graph for a single bootstrap run.
type Graph struct {
	nodes map[string]*Node
	order []string // insertion order, for stable serialization
}

// New returns an empty graph containing only the root sentinel node.
func New() *Graph {
	g := &Graph{nodes: make(map[string]*Node)}
	root := newRootNode()
	g.nodes[Root] = root
	g.order = append(g.order, Root)
	return g
}

func (g *Graph) getOrCreateNode(name string, version pep440.Version, downloadURL string, preBuilt bool) *Node {
	n := newNode(name, version, downloadURL, preBuilt)
	if existing, ok := g.nodes[n.Key]; ok {
		return existing
	}
	g.nodes[n.Key] = n
	g.order = append(g.order, n.Key)
	return n
}

// AddDependency records that parentKey depends on req, resolved to
// (reqVersion, downloadURL, preBuilt), via a reqType edge. parentKey is
// Root for a top-level requirement.
func (g *Graph) AddDependency(parentKey string, reqType reqs.RequirementKind, req reqs.Requirement, reqVersion pep440.Version, downloadURL string, preBuilt bool) error {
	node := g.getOrCreateNode(req.CanonicalName(), reqVersion, downloadURL, preBuilt)

	parent, ok := g.nodes[parentKey]
	if !ok {
		return errors.Errorf("trying to add %s to parent %s but %s does not exist", node.Key, parentKey, parentKey)
	}
	parent.addChild(node, req, reqType)
	return nil
}

// GetRootNode returns the sentinel root node.
func (g *Graph) GetRootNode() *Node { return g.nodes[Root] }

// GetAllNodes returns every node in the graph, in discovery order.
func (g *Graph) GetAllNodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, k := range g.order {
		out = append(out, g.nodes[k])
	}
	return out
}

// GetNodesByName returns every node for reqName, or just the root node if
// reqName is empty.
func (g *Graph) GetNodesByName(reqName string) []*Node {
	if reqName == "" {
		return []*Node{g.GetRootNode()}
	}
	canon := reqs.Canonicalize(reqName)
	var out []*Node
	for _, n := range g.GetAllNodes() {
		if n.CanonicalizedName == canon {
			out = append(out, n)
		}
	}
	return out
}

// GetInstallDependencies performs a depth-first walk of install/top-level
// edges reachable from root, returning each distinct destination node
// once, in visit order.
func (g *Graph) GetInstallDependencies() []*Node {
	visited := map[string]bool{}
	var out []*Node
	var walk func(edges []*Edge)
	walk = func(edges []*Edge) {
		for _, e := range edges {
			if e.ReqType != reqs.KindInstall && e.ReqType != reqs.KindTopLevel {
				continue
			}
			if !visited[e.Dest.Key] {
				out = append(out, e.Dest)
				visited[e.Dest.Key] = true
			}
			walk(e.Dest.Children)
		}
	}
	walk(g.GetRootNode().Children)
	return out
}

// GetInstallDependencyVersions groups GetInstallDependencies by canonical
// name.
func (g *Graph) GetInstallDependencyVersions() map[string][]*Node {
	out := map[string][]*Node{}
	for _, n := range g.GetInstallDependencies() {
		out[n.CanonicalizedName] = append(out[n.CanonicalizedName], n)
	}
	return out
}

// BuildTopology returns a Kahn's-algorithm-ready adjacency map: for every
// node key reachable via install dependencies, the set of node keys that
// must be built first (its install-time children). Callers drive their
// own worker pool or sequential loop off of this; the graph itself
// enforces no concurrency model.
func (g *Graph) BuildTopology() map[string][]string {
	topo := map[string][]string{}
	for _, n := range g.GetInstallDependencies() {
		var deps []string
		for _, e := range n.Children {
			if e.ReqType == reqs.KindInstall || e.ReqType == reqs.KindTopLevel {
				deps = append(deps, e.Dest.Key)
			}
		}
		sort.Strings(deps)
		topo[n.Key] = deps
	}
	return topo
}

// --- JSON serialization ---

type edgeDict struct {
	Key     string `json:"key"`
	ReqType string `json:"req_type"`
	Req     string `json:"req"`
}

type nodeDict struct {
	DownloadURL       string     `json:"download_url"`
	CanonicalizedName string     `json:"canonicalized_name"`
	Version           string     `json:"version"`
	PreBuilt          bool       `json:"pre_built"`
	Edges             []edgeDict `json:"edges"`
}

func (n *Node) toDict() nodeDict {
	edges := make([]edgeDict, len(n.Children))
	for i, e := range n.Children {
		edges[i] = edgeDict{Key: e.Dest.Key, ReqType: string(e.ReqType), Req: e.Req.String()}
	}
	return nodeDict{
		DownloadURL:       n.DownloadURL,
		CanonicalizedName: n.CanonicalizedName,
		Version:           n.Version.String(),
		PreBuilt:          n.PreBuilt,
		Edges:             edges,
	}
}

// Serialize writes the graph as indented JSON keyed by node key, in
// discovery order, to w.
func (g *Graph) Serialize(w io.Writer) error {
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, key := range g.order {
		enc, err := json.MarshalIndent(g.nodes[key].toDict(), "  ", "  ")
		if err != nil {
			return errors.Wrapf(err, "encoding node %s", key)
		}
		buf.WriteString("  ")
		keyJSON, _ := json.Marshal(key)
		buf.Write(keyJSON)
		buf.WriteString(": ")
		buf.Write(enc)
		if i < len(g.order)-1 {
			buf.WriteString(",")
		}
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// FromReader parses a previously-serialized graph, replaying
// AddDependency calls in the same depth-first order the original
// serializer discovered them in (so the resulting graph's order matches
// load order, not the arbitrary map order of the JSON itself).
func FromReader(r io.Reader) (*Graph, error) {
	var raw map[string]nodeDict
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding dependency graph")
	}
	return fromRaw(raw)
}

// fromRaw replays each node's edges in forward depth-first order: a
// child's entire subtree is added before its next sibling, matching the
// order a live bootstrap run discovers nodes in (Bootstrap recurses
// fully into one dependency before starting the next). A node already
// visited (reached again via a different parent) only gets the new edge
// added; its own edges are not replayed a second time.
func fromRaw(raw map[string]nodeDict) (*Graph, error) {
	g := New()
	visited := map[string]bool{}

	var visit func(key string) error
	visit = func(key string) error {
		if visited[key] {
			return nil
		}
		visited[key] = true

		nd, ok := raw[key]
		if !ok {
			return errors.Errorf("dependency graph missing node %q", key)
		}
		for _, edge := range nd.Edges {
			destDict, ok := raw[edge.Key]
			if !ok {
				return errors.Errorf("dependency graph edge references missing node %q", edge.Key)
			}
			req, err := reqs.Parse(edge.Req)
			if err != nil {
				return errors.Wrapf(err, "parsing requirement %q", edge.Req)
			}
			reqVersion, err := pep440.Parse(destDict.Version)
			if err != nil {
				return errors.Wrapf(err, "parsing version %q", destDict.Version)
			}
			if err := g.AddDependency(key, reqs.RequirementKind(edge.ReqType), req, reqVersion, destDict.DownloadURL, destDict.PreBuilt); err != nil {
				return err
			}
			if err := visit(edge.Key); err != nil {
				return err
			}
		}
		return nil
	}

	if err := visit(Root); err != nil {
		return nil, err
	}
	return g, nil
}
