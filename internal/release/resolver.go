package release

import (
	"context"

	"github.com/fleetver/fleetver/internal/log"
	"github.com/fleetver/fleetver/internal/version"
)

// Resolver answers "what comes after version X" against the cached
// release listing.
type Resolver struct {
	cache  *Cache
	logger log.Logger
}

// NewResolver creates a resolver over the given cache.
func NewResolver(cache *Cache, logger log.Logger) *Resolver {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &Resolver{cache: cache, logger: logger}
}

// NextVersion returns the tag of the release immediately after current
// in the upstream ordering (newest first, so the entry one position
// before it).
//
// Errors: *version.LengthError or *version.ParseError when current is
// not a well-formed version (distinct from absence), ErrNotFound when
// current is absent from the listing or already the newest, and
// *FetchError when a cold cache cannot be filled.
func (r *Resolver) NextVersion(ctx context.Context, current string) (string, error) {
	if _, err := version.Parse(current); err != nil {
		return "", err
	}

	snap, err := r.cache.Snapshot(ctx)
	if err != nil {
		return "", err
	}

	tags := snap.Tags()
	for i, tag := range tags {
		if tag != current {
			continue
		}
		if i == 0 {
			r.logger.Debug("no update available, already newest", "version", current)
			return "", ErrNotFound
		}
		return tags[i-1], nil
	}

	r.logger.Warn("version not present in release listing", "version", current)
	return "", ErrNotFound
}

// Latest returns the newest release tag, or ErrNotFound when the
// listing is empty.
func (r *Resolver) Latest(ctx context.Context) (string, error) {
	snap, err := r.cache.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	if len(snap.Releases) == 0 {
		return "", ErrNotFound
	}
	return snap.Releases[0].TagName, nil
}
