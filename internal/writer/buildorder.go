package writer

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/fromager-go/fromager/internal/reqs"
)

// BuildOrderEntry is one settled package in a build-order file: a
// record of the requirement that led to it, the version resolved, and
// where its source came from, in the order a bootstrap run finished
// building (or decided not to build, in the pre-built case) it.
type BuildOrderEntry struct {
	Req           string `json:"req"`
	Constraint    string `json:"constraint"`
	Dist          string `json:"dist"`
	Version       string `json:"version"`
	PreBuilt      bool   `json:"prebuilt"`
	SourceURL     string `json:"source_url"`
	SourceURLType string `json:"source_url_type"`
}

// BuildOrder accumulates BuildOrderEntry values in settlement order,
// deduplicating by (name, version) the way a bootstrap run must avoid
// queueing the same resolved package twice even if several
// requirements led to it.
type BuildOrder struct {
	mu      sync.Mutex
	seen    map[string]bool
	entries []BuildOrderEntry
}

// NewBuildOrder returns an empty BuildOrder.
func NewBuildOrder() *BuildOrder {
	return &BuildOrder{seen: map[string]bool{}}
}

// Add appends an entry for (req, version) unless that (canonical
// name, version) pair has already been recorded, in which case it is
// a no-op. It reports whether the entry was newly added.
func (b *BuildOrder) Add(req reqs.Requirement, version, sourceURL, sourceURLType string, preBuilt bool, constraint *reqs.Requirement) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	name := req.CanonicalName()
	key := name + "==" + version
	if b.seen[key] {
		return false
	}
	b.seen[key] = true

	constraintStr := ""
	if constraint != nil {
		constraintStr = constraint.String()
	}
	b.entries = append(b.entries, BuildOrderEntry{
		Req:           req.String(),
		Constraint:    constraintStr,
		Dist:          name,
		Version:       version,
		PreBuilt:      preBuilt,
		SourceURL:     sourceURL,
		SourceURLType: sourceURLType,
	})
	return true
}

// Entries returns a copy of the entries recorded so far, in
// settlement order.
func (b *BuildOrder) Entries() []BuildOrderEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]BuildOrderEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

// WriteTo serializes the accumulated entries as indented JSON, the
// on-disk format a build-order.json file takes. It is safe to call
// after every Add, the way a bootstrap run persists its build order
// incrementally so a crash mid-run leaves a readable partial file.
func (b *BuildOrder) WriteTo(w io.Writer) error {
	b.mu.Lock()
	entries := make([]BuildOrderEntry, len(b.entries))
	copy(entries, b.entries)
	b.mu.Unlock()

	if entries == nil {
		entries = []BuildOrderEntry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return errors.Wrap(err, "encoding build order")
	}
	return nil
}
