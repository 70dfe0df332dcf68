// Package release implements the release-metadata core of fleetver: a
// time-bounded snapshot cache over the upstream releases API, successor
// resolution against the upstream-provided tag order, asset integrity-hash
// lookup, and changelog filtering against known release tags.
//
// The upstream list order is the ordering source of truth. Snapshots are
// never re-sorted and never deduplicated; when upstream repeats a tag, the
// first occurrence is authoritative. This mirrors the update protocol the
// device fleet already speaks and is a documented limitation, not a bug to
// fix here.
package release

import (
	"context"
	"time"
)

// Asset is a downloadable artifact attached to a release, or the
// companion hash file published next to one.
type Asset struct {
	Name        string
	DownloadURL string
}

// Release is a single published release as reported by upstream.
type Release struct {
	TagName string
	Assets  []Asset
}

// Snapshot is the cached copy of the upstream release listing. Releases
// keep the exact upstream order (newest first); FetchedAt drives TTL
// decisions in the cache. A snapshot is replaced wholesale on refresh
// and never mutated in place.
type Snapshot struct {
	Releases  []Release
	FetchedAt time.Time
}

// Tags returns the release tags in snapshot order.
func (s *Snapshot) Tags() []string {
	tags := make([]string, 0, len(s.Releases))
	for _, r := range s.Releases {
		tags = append(tags, r.TagName)
	}
	return tags
}

// Find returns the release with the given tag. The first occurrence
// wins when upstream data repeats a tag.
func (s *Snapshot) Find(tag string) (*Release, bool) {
	for i := range s.Releases {
		if s.Releases[i].TagName == tag {
			return &s.Releases[i], true
		}
	}
	return nil, false
}

// Fetcher retrieves the current release listing from upstream.
// Implementations must preserve the upstream-provided order.
type Fetcher interface {
	FetchReleases(ctx context.Context) ([]Release, error)
}
