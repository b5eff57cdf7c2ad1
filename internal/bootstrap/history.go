package bootstrap

import (
	"context"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/pep440"
	"github.com/fromager-go/fromager/internal/reqs"
	"github.com/fromager-go/fromager/internal/resolver"
)

// resolveFromGraph reproduces a previous bootstrap's resolution for
// req instead of hitting a live index, the way a second bootstrap run
// against the same top-level requirements with -p/--previous-bootstrap-file
// stays on the same dependency versions it picked last time unless a
// top-level requirement forces an upgrade.
//
// Top-level requirements are never looked up here: they were already
// resolved and recorded on the root node before any Bootstrap call, so
// a TOP_LEVEL req must already have a matching edge there.
func (e *Engine) resolveFromGraph(ctx context.Context, req reqs.Requirement, reqType reqs.RequirementKind, preBuilt bool) (string, pep440.Version, bool, error) {
	var parentReq *reqs.Requirement
	if len(e.why) > 0 {
		parentReq = &e.why[len(e.why)-1].Req
	}

	if reqType == reqs.KindTopLevel {
		for _, edge := range e.Graph.GetRootNode().GetOutgoingEdges(req.Name, reqs.KindTopLevel) {
			if edge.Req.Equal(req) {
				return edge.Dest.DownloadURL, edge.Dest.Version, true, nil
			}
		}
		return "", pep440.Version{}, false, errors.Errorf("%s: %s appears as a top-level requirement but its resolution does not exist in the root node of the graph", req.Name, req)
	}

	if e.PrevGraph == nil {
		return "", pep440.Version{}, false, nil
	}

	seenVersion := map[string]bool{}

	var fromTopLevel []resolver.VersionSourceItem
	for _, edge := range e.Graph.GetRootNode().GetOutgoingEdges(req.Name, reqs.KindTopLevel) {
		fromTopLevel = append(fromTopLevel, resolver.VersionSourceItem{URL: edge.Dest.DownloadURL, Version: edge.Dest.Version})
		seenVersion[edge.Dest.Version.String()] = true
	}
	if url, version, ok, err := e.resolveFromVersionSource(ctx, fromTopLevel, req); err != nil {
		return "", pep440.Version{}, false, err
	} else if ok {
		return url, version, true, nil
	}

	parentName := ""
	if parentReq != nil {
		parentName = parentReq.Name
	}

	var fromHistory []resolver.VersionSourceItem
	for _, parentNode := range e.PrevGraph.GetNodesByName(parentName) {
		for _, edge := range parentNode.GetOutgoingEdges(req.Name, reqType) {
			if edge.Dest.PreBuilt != preBuilt {
				continue
			}
			if seenVersion[edge.Dest.Version.String()] {
				continue
			}
			fromHistory = append(fromHistory, resolver.VersionSourceItem{URL: edge.Dest.DownloadURL, Version: edge.Dest.Version})
			seenVersion[edge.Dest.Version.String()] = true
		}
	}
	url, version, ok, err := e.resolveFromVersionSource(ctx, fromHistory, req)
	if err != nil {
		return "", pep440.Version{}, false, err
	}
	return url, version, ok, nil
}

func (e *Engine) resolveFromVersionSource(ctx context.Context, items []resolver.VersionSourceItem, req reqs.Requirement) (string, pep440.Version, bool, error) {
	if len(items) == 0 {
		return "", pep440.Version{}, false, nil
	}
	provider := resolver.NewGenericProvider(func(ctx context.Context, identifier string, requirements []reqs.Requirement, incompatibilities []*resolver.Candidate) ([]resolver.VersionSourceItem, error) {
		return items, nil
	}, e.Constraints)
	c, err := resolver.ResolveFromProvider(ctx, provider, req)
	if err != nil || c == nil {
		if e.Logger != nil {
			e.Logger.Debugf("bootstrap", "%s: could not resolve %s from history: %v", req.Name, req, err)
		}
		return "", pep440.Version{}, false, nil
	}
	return c.URL, c.Version, true, nil
}
