// Package server is the HTTP layer of fleetver. It translates the
// release core's results into the JSON envelope the device fleet
// expects and carries the operational middleware: per-client rate
// limiting, security headers, response compression, request logging.
package server

import (
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"

	"github.com/fleetver/fleetver/internal/log"
	"github.com/fleetver/fleetver/internal/release"
	"github.com/fleetver/fleetver/internal/report"
)

// Options wires a Server.
type Options struct {
	Resolver  *release.Resolver
	Hashes    *release.HashLookup
	Changelog *release.Changelog
	Cache     *release.Cache

	// Sink receives error reports; nil disables the /report route.
	Sink report.Sink

	// ChangelogURL is the external changelog document location.
	ChangelogURL string

	// HashSuffix overrides the companion hash file suffix. Empty means
	// release.DefaultHashSuffix.
	HashSuffix string

	// RateRPS and RateBurst configure the per-client token bucket.
	RateRPS   float64
	RateBurst int

	Logger log.Logger
	Now    func() time.Time
}

// Server serves the fleet update API.
type Server struct {
	resolver  *release.Resolver
	hashes    *release.HashLookup
	changelog *release.Changelog
	cache     *release.Cache
	sink      report.Sink

	changelogURL string
	hashSuffix   string

	limiter *rateLimiter
	logger  log.Logger
	now     func() time.Time
}

// New creates a Server from the given options.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNoop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		resolver:     opts.Resolver,
		hashes:       opts.Hashes,
		changelog:    opts.Changelog,
		cache:        opts.Cache,
		sink:         opts.Sink,
		changelogURL: opts.ChangelogURL,
		hashSuffix:   opts.HashSuffix,
		limiter:      newRateLimiter(opts.RateRPS, opts.RateBurst, now),
		logger:       logger,
		now:          now,
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/versions/next", s.handleNextVersion)
	mux.HandleFunc("GET /api/v1/versions/latest", s.handleLatest)
	mux.HandleFunc("GET /api/v1/versions/validate", s.handleValidate)
	mux.HandleFunc("GET /api/v1/releases/{version}/assets/{asset}/hash", s.handleAssetHash)
	mux.HandleFunc("GET /api/v1/changelog", s.handleChangelog)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if s.sink != nil {
		mux.HandleFunc("POST /report", s.handleReport)
	}

	var h http.Handler = mux
	h = securityHeaders(h)
	h = s.rateLimit(h)
	h = gzhttp.GzipHandler(h)
	h = s.logRequests(h)
	return h
}
