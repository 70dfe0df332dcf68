package release

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/fleetver/fleetver/internal/log"
)

// ChangelogEntry is one record of a published changelog document: a
// version label and its ordered change descriptions.
type ChangelogEntry struct {
	Version string   `json:"version"`
	Changes []string `json:"changes"`
}

// Changelog fetches an external changelog document and restricts it to
// entries matching real, currently listed release tags. Like HashLookup
// it forces a fresh release fetch first rather than trusting the TTL.
type Changelog struct {
	cache  *Cache
	client *http.Client
	logger log.Logger
}

// NewChangelog creates a changelog filter over the given cache.
func NewChangelog(cache *Cache, client *http.Client, logger log.Logger) *Changelog {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Changelog{cache: cache, client: client, logger: logger}
}

// Fetch downloads the changelog document at url and returns the entries
// whose version matches a cached release tag, in document order.
//
// A non-success HTTP status is an expected condition (the changelog may
// not be published yet for a new release train) and yields an empty
// slice, not an error. Network failures and unparseable bodies return a
// *FetchError.
func (c *Changelog) Fetch(ctx context.Context, url string) ([]ChangelogEntry, error) {
	snap, err := c.cache.Refresh(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{Op: "changelog", Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{Op: "changelog", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("changelog document unavailable", "url", url, "status", resp.StatusCode)
		return []ChangelogEntry{}, nil
	}

	var entries []ChangelogEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, &FetchError{Op: "changelog", Err: err}
	}

	known := make(map[string]struct{}, len(snap.Releases))
	for _, r := range snap.Releases {
		known[r.TagName] = struct{}{}
	}

	filtered := make([]ChangelogEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := known[e.Version]; ok {
			filtered = append(filtered, e)
		}
	}

	c.logger.Debug("filtered changelog against release tags",
		"total", len(entries), "kept", len(filtered))
	return filtered, nil
}
