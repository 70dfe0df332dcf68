package release

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func changelogServer(t *testing.T, body string, status int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChangelogFiltersToKnownTags(t *testing.T) {
	doc := `[
		{"version": "v2.0.0", "changes": ["Unreleased work"]},
		{"version": "v1.0.2", "changes": ["Fixed bug X", "Added feature Y"]},
		{"version": "v1.0.1", "changes": ["Improved performance"]},
		{"version": "v0.0.1", "changes": ["Rolled off the window"]},
		{"version": "v1.0.0", "changes": ["Initial release"]}
	]`
	srv := changelogServer(t, doc, http.StatusOK)
	cl := NewChangelog(staticCache(testReleases()), srv.Client(), nil)

	entries, err := cl.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}

	want := []string{"v1.0.2", "v1.0.1", "v1.0.0"}
	if len(entries) != len(want) {
		t.Fatalf("Fetch() kept %d entries, want %d", len(entries), len(want))
	}
	for i, w := range want {
		if entries[i].Version != w {
			t.Errorf("entry %d = %q, want %q (document order must be preserved)", i, entries[i].Version, w)
		}
	}
	if len(entries[0].Changes) != 2 || entries[0].Changes[0] != "Fixed bug X" {
		t.Errorf("entry changes not preserved: %v", entries[0].Changes)
	}
}

func TestChangelogNonSuccessStatusYieldsEmpty(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		srv := changelogServer(t, "nope", status)
		cl := NewChangelog(staticCache(testReleases()), srv.Client(), nil)

		entries, err := cl.Fetch(context.Background(), srv.URL)
		if err != nil {
			t.Errorf("Fetch() status %d error = %v, want nil", status, err)
		}
		if entries == nil || len(entries) != 0 {
			t.Errorf("Fetch() status %d = %v, want empty slice", status, entries)
		}
	}
}

func TestChangelogMalformedDocument(t *testing.T) {
	srv := changelogServer(t, `{"not": "an array"`, http.StatusOK)
	cl := NewChangelog(staticCache(testReleases()), srv.Client(), nil)

	_, err := cl.Fetch(context.Background(), srv.URL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("Fetch(malformed) error = %v, want *FetchError", err)
	}
}

func TestChangelogRefreshFailurePropagates(t *testing.T) {
	srv := changelogServer(t, "[]", http.StatusOK)
	c := NewCache(fetcherFunc(func(ctx context.Context) ([]Release, error) {
		return nil, errors.New("upstream down")
	}), DefaultTTL)
	cl := NewChangelog(c, srv.Client(), nil)

	_, err := cl.Fetch(context.Background(), srv.URL)
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Errorf("Fetch() with failing listing error = %v, want *FetchError", err)
	}
}
