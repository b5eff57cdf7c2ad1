package resolver

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/fromager-go/fromager/internal/pep440"
)

// CandidateCache is an on-disk cache of simple-index lookups, one bucket
// per source (sdist server URL), keyed by project name, so that repeated
// bootstrap runs against the same index don't re-fetch and re-parse the
// same index page. Entries are timestamped on write and ignored on read
// once older than the configured TTL, the same bound
// source_cache_bolt.go's epoch field places on its bolt-backed source
// cache.
type CandidateCache struct {
	db  *bolt.DB
	ttl time.Duration
}

// cacheEntry is the JSON-serialized form of one cached lookup.
type cacheEntry struct {
	StoredAt   int64             `json:"stored_at"`
	Candidates []cachedCandidate `json:"candidates"`
}

// cachedCandidate mirrors Candidate's exported fields plus the PEP 658
// metadata URL; Candidate itself keeps that field unexported since it is
// populated lazily, so the cache carries its own mirror struct rather
// than reaching into Candidate's internals.
type cachedCandidate struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	URL         string   `json:"url"`
	Extras      []string `json:"extras,omitempty"`
	IsSdist     bool     `json:"is_sdist"`
	BuildTag    string   `json:"build_tag,omitempty"`
	MetadataURL string   `json:"metadata_url,omitempty"`
}

// OpenCandidateCache opens (creating if necessary) a bolt-backed cache
// file under cacheDir. Entries older than ttl are treated as a miss; a
// ttl of zero disables expiry.
func OpenCandidateCache(cacheDir string, ttl time.Duration) (*CandidateCache, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create candidate cache directory: %s", cacheDir)
	}
	path := filepath.Join(cacheDir, "candidates.db")
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open candidate cache file %q", path)
	}
	return &CandidateCache{db: db, ttl: ttl}, nil
}

// Close releases the underlying database file.
func (c *CandidateCache) Close() error {
	return errors.Wrap(c.db.Close(), "error closing candidate cache")
}

// Get returns the cached, unfiltered candidate list for project under
// sourceName (normally the sdist server URL), and whether a live entry
// was found.
func (c *CandidateCache) Get(sourceName, project string) ([]*Candidate, bool) {
	var out []*Candidate
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(sourceName))
		if bucket == nil {
			return nil
		}
		raw := bucket.Get([]byte(project))
		if raw == nil {
			return nil
		}
		var entry cacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil
		}
		if c.ttl > 0 && time.Since(time.Unix(entry.StoredAt, 0)) > c.ttl {
			return nil
		}
		for _, cc := range entry.Candidates {
			v, err := pep440.Parse(cc.Version)
			if err != nil {
				continue
			}
			candidate := NewCandidate(cc.Name, v, cc.URL, cc.Extras, cc.IsSdist, cc.BuildTag)
			if cc.MetadataURL != "" {
				candidate.WithMetadataURL(cc.MetadataURL)
			}
			out = append(out, candidate)
		}
		found = true
		return nil
	})
	return out, found
}

// Put stores project's unfiltered candidate list under sourceName,
// stamped with the current time.
func (c *CandidateCache) Put(sourceName, project string, candidates []*Candidate) error {
	entry := cacheEntry{StoredAt: time.Now().Unix()}
	for _, candidate := range candidates {
		entry.Candidates = append(entry.Candidates, cachedCandidate{
			Name:        candidate.Name,
			Version:     candidate.Version.String(),
			URL:         candidate.URL,
			Extras:      candidate.Extras,
			IsSdist:     candidate.IsSdist,
			BuildTag:    candidate.BuildTag,
			MetadataURL: candidate.metadataURL,
		})
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(sourceName))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(project), raw)
	})
}
