// Package writer turns a finished dependency graph into the two
// artifacts a bootstrap run hands to the rest of the toolchain: a pip
// compatible constraints file pinning every install dependency to a
// single version, and a build-order list recording the settlement
// order packages were added to the graph in.
package writer

import (
	"fmt"
	"io"
	"sort"

	"github.com/fromager-go/fromager/internal/depgraph"
	"github.com/fromager-go/fromager/internal/flog"
	"github.com/fromager-go/fromager/internal/pep440"
)

// WriteConstraintsFile renders a pip-compatible constraints file to
// output, pinning every name graph.GetInstallDependencyVersions()
// reports to a single version.
//
// Most names have only one version among the graph's install
// dependencies and are pinned directly. Where more than one version
// was built, it looks for a version every parent requirement can
// accept: each candidate version is checked against every distinct
// parent that depends on the name, and if one version is acceptable
// to every parent it is selected and annotated with a "# NOTE"
// comment recording the versions it was chosen from. This resolution
// is iterative: selecting a version for one name can make a
// previously-ambiguous name resolvable on a later pass, because a
// parent whose own version is now pinned stops contributing edges for
// versions other than the one it was pinned to.
//
// Names where no single version satisfies every parent are emitted
// under a "# ERROR" comment listing every version that was built, and
// WriteConstraintsFile returns false so the caller can treat the
// output as advisory rather than usable as-is.
func WriteConstraintsFile(graph *depgraph.Graph, output io.Writer, logger *flog.Logger) (bool, error) {
	conflicts := graph.GetInstallDependencyVersions()
	ok := true

	resolved := map[string]pep440.Version{}

	type nameNodes struct {
		name  string
		nodes []*depgraph.Node
	}
	var unresolved []nameNodes
	names := make([]string, 0, len(conflicts))
	for name := range conflicts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		unresolved = append(unresolved, nameNodes{name: name, nodes: conflicts[name]})
	}

	multipleVersions := map[string][]*depgraph.Node{}
	filtered := unresolved[:0]
	for _, nn := range unresolved {
		if len(nn.nodes) == 0 {
			return false, fmt.Errorf("no versions of %s supported", nn.name)
		}
		if len(nn.nodes) == 1 {
			resolved[nn.name] = nn.nodes[0].Version
			continue
		}
		multipleVersions[nn.name] = nn.nodes
		filtered = append(filtered, nn)
	}
	unresolved = filtered

	resolvedSomething := true
	for len(unresolved) > 0 && resolvedSomething {
		resolvedSomething = false
		remaining := unresolved[:0:0]

		for _, nn := range unresolved {
			settledThisRound := false

			usableVersions := map[string][]pep440.Version{}
			var usableVersionOrder []pep440.Version
			userCounter := 0

			depVersions := make([]pep440.Version, len(nn.nodes))
			for i, n := range nn.nodes {
				depVersions[i] = n.Version
			}

			for _, node := range nn.nodes {
				for _, parentEdge := range node.GetIncomingInstallEdges() {
					parentName := parentEdge.Dest.CanonicalizedName
					if pv, ok := resolved[parentName]; ok && pv.Compare(parentEdge.Dest.Version) != 0 {
						continue
					}
					matched := false
					for _, v := range depVersions {
						if parentEdge.Req.Specifier.Contains(v, true) {
							key := v.String()
							if _, seen := usableVersions[key]; !seen {
								usableVersionOrder = append(usableVersionOrder, v)
							}
							usableVersions[key] = append(usableVersions[key], parentEdge.Dest.Version)
							matched = true
						}
					}
					if matched {
						userCounter++
					}
				}
			}

			sort.Slice(usableVersionOrder, func(i, j int) bool {
				return usableVersionOrder[i].Compare(usableVersionOrder[j]) > 0
			})
			for _, v := range usableVersionOrder {
				users := usableVersions[v.String()]
				if len(users) != userCounter {
					if logger != nil {
						logger.Debugf("writer", "%s: version %s is usable by %d of %d consumers, skipping it", nn.name, v, len(users), userCounter)
					}
					continue
				}
				resolved[nn.name] = v
				resolvedSomething = true
				settledThisRound = true
				break
			}

			if !settledThisRound {
				remaining = append(remaining, nn)
			}
		}
		unresolved = remaining
	}

	resolvedNames := make([]string, 0, len(resolved))
	for name := range resolved {
		resolvedNames = append(resolvedNames, name)
	}
	sort.Strings(resolvedNames)
	for _, name := range resolvedNames {
		version := resolved[name]
		if nodes, ok := multipleVersions[name]; ok {
			sorted := append([]*depgraph.Node(nil), nodes...)
			sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version.Compare(sorted[j].Version) < 0 })
			versionStrs := make([]string, len(sorted))
			for i, n := range sorted {
				versionStrs[i] = n.Version.String()
			}
			fmt.Fprintf(output, "# NOTE: fromager selected %s==%s from: %v\n", name, version, versionStrs)
		}
		fmt.Fprintf(output, "%s==%s\n", name, version)
	}

	conflictingDeps := make([]string, 0, len(unresolved))
	for _, nn := range unresolved {
		ok = false
		if logger != nil {
			logger.Errorf("writer", "%s: no single version meets all requirements", nn.name)
		}
		fmt.Fprintf(output, "# ERROR: no single version of %s met all requirements\n", nn.name)
		conflictingDeps = append(conflictingDeps, nn.name)
		sorted := append([]*depgraph.Node(nil), nn.nodes...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version.Compare(sorted[j].Version) < 0 })
		for _, n := range sorted {
			fmt.Fprintf(output, "%s==%s\n", nn.name, n.Version)
		}
	}

	for _, name := range conflictingDeps {
		if logger == nil {
			continue
		}
		logger.Errorf("writer", "finding why %s was being used", name)
		for _, node := range graph.GetNodesByName(name) {
			logWhy(logger, node)
		}
	}

	return ok, nil
}

// logWhy logs the chain of install-time parents leading to node, one
// line per edge, the same trail a human reading a constraints-file
// conflict would need to track down which top-level requirement
// pulled in the conflicting version.
func logWhy(logger *flog.Logger, node *depgraph.Node) {
	chain := []string{fmt.Sprintf("%s==%s", node.CanonicalizedName, node.Version)}
	seen := map[string]bool{node.Key: true}
	curr := node
	for {
		edges := curr.GetIncomingInstallEdges()
		if len(edges) == 0 {
			break
		}
		edge := edges[0]
		if seen[edge.Dest.Key] {
			break
		}
		seen[edge.Dest.Key] = true
		chain = append(chain, fmt.Sprintf("%s (via %s)", edge.Dest.Key, edge.Req))
		curr = edge.Dest
		if curr.Key == depgraph.Root {
			break
		}
	}
	logger.Errorf("writer", "why: %v", chain)
}
