package release

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/fleetver/fleetver/internal/log"
)

// DefaultHashSuffix is the conventional suffix of an asset's companion
// hash file, e.g. "update.tar.gz.md5" next to "update.tar.gz".
const DefaultHashSuffix = ".md5"

// md5Pattern matches the canonical textual form of an MD5 digest.
var md5Pattern = regexp.MustCompile(`^[0-9a-fA-F]{32}$`)

// maxHashFileSize caps the hash file download; a digest file is a few
// dozen bytes at most.
const maxHashFileSize = 4 * 1024

// HashLookup retrieves integrity hashes published alongside release
// assets. Every lookup forces a fresh upstream fetch of the release
// listing, never trusting TTL freshness. Call sites that can tolerate
// staleness should read the cache directly instead.
type HashLookup struct {
	cache  *Cache
	client *http.Client
	logger log.Logger
}

// NewHashLookup creates a lookup over the given cache. client downloads
// the hash files themselves and should carry the document timeout.
func NewHashLookup(cache *Cache, client *http.Client, logger log.Logger) *HashLookup {
	if logger == nil {
		logger = log.NewNoop()
	}
	return &HashLookup{cache: cache, client: client, logger: logger}
}

// AssetHash returns the MD5 digest published for assetName in the given
// release. An empty suffix takes DefaultHashSuffix. Returns ErrNotFound
// when the release or hash asset is absent, or when the file's content
// is not exactly 32 hex characters; a *FetchError when the release
// listing or the hash file cannot be fetched.
func (h *HashLookup) AssetHash(ctx context.Context, ver, assetName, suffix string) (string, error) {
	if suffix == "" {
		suffix = DefaultHashSuffix
	}

	snap, err := h.cache.Refresh(ctx)
	if err != nil {
		return "", err
	}

	rel, ok := snap.Find(ver)
	if !ok {
		h.logger.Warn("release not found for hash lookup", "version", ver)
		return "", ErrNotFound
	}

	hashName := assetName + suffix
	for _, asset := range rel.Assets {
		if asset.Name != hashName {
			continue
		}
		return h.fetchHash(ctx, asset, ver)
	}

	h.logger.Warn("hash file not published for asset", "version", ver, "asset", hashName)
	return "", ErrNotFound
}

func (h *HashLookup) fetchHash(ctx context.Context, asset Asset, ver string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		return "", &FetchError{Op: "asset hash", Err: err}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", &FetchError{Op: "asset hash", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &FetchError{Op: "asset hash", Err: &statusError{resp.StatusCode}}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHashFileSize))
	if err != nil {
		return "", &FetchError{Op: "asset hash", Err: err}
	}

	hash := strings.TrimSpace(string(body))
	if !md5Pattern.MatchString(hash) {
		h.logger.Warn("hash file content is not a valid MD5 digest",
			"version", ver, "asset", asset.Name, "length", len(hash))
		return "", ErrNotFound
	}
	return hash, nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.code)
}
