package release

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// DefaultAPITimeout bounds a single releases API call.
const DefaultAPITimeout = 5 * time.Second

// GitHubFetcher fetches the release listing for one owner/repository
// pair from the GitHub releases API. With a token it makes
// authenticated requests, which raises the API rate limit considerably;
// without one it falls back to anonymous access.
type GitHubFetcher struct {
	client  *github.Client
	owner   string
	repo    string
	timeout time.Duration
}

// NewGitHubFetcher creates a fetcher for the given repository. token
// may be empty for anonymous access. A zero timeout takes
// DefaultAPITimeout.
func NewGitHubFetcher(owner, repo, token string, timeout time.Duration) *GitHubFetcher {
	var httpClient *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		httpClient = oauth2.NewClient(context.Background(), ts)
	}
	if timeout == 0 {
		timeout = DefaultAPITimeout
	}
	return &GitHubFetcher{
		client:  github.NewClient(httpClient),
		owner:   owner,
		repo:    repo,
		timeout: timeout,
	}
}

// FetchReleases returns the repository's releases in API order (newest
// first). Releases without a tag name are skipped, matching what the
// device update protocol can address.
func (f *GitHubFetcher) FetchReleases(ctx context.Context) ([]Release, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	opts := &github.ListOptions{PerPage: 100}
	upstream, _, err := f.client.Repositories.ListReleases(ctx, f.owner, f.repo, opts)
	if err != nil {
		return nil, err
	}

	releases := make([]Release, 0, len(upstream))
	for _, r := range upstream {
		tag := r.GetTagName()
		if tag == "" {
			continue
		}
		rel := Release{TagName: tag}
		for _, a := range r.Assets {
			rel.Assets = append(rel.Assets, Asset{
				Name:        a.GetName(),
				DownloadURL: a.GetBrowserDownloadURL(),
			})
		}
		releases = append(releases, rel)
	}
	return releases, nil
}
