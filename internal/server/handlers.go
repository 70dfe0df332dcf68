package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fleetver/fleetver/internal/release"
	"github.com/fleetver/fleetver/internal/report"
	"github.com/fleetver/fleetver/internal/version"
)

func (s *Server) handleNextVersion(w http.ResponseWriter, r *http.Request) {
	current := r.URL.Query().Get("current")

	next, err := s.resolver.NextVersion(r.Context(), current)
	if err != nil {
		s.writeError(w, err, "no update available for "+current)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "success",
		"next_version": next,
	})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	latest, err := s.resolver.Latest(r.Context())
	if err != nil {
		s.writeError(w, err, "no releases published")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "success",
		"latest_version": latest,
	})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	v := r.URL.Query().Get("version")

	ok, err := version.IsValid(v)
	if err != nil {
		// Oversized input is a client error, not a false verdict.
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"version": v,
		"valid":   ok,
	})
}

func (s *Server) handleAssetHash(w http.ResponseWriter, r *http.Request) {
	ver := r.PathValue("version")
	asset := r.PathValue("asset")

	hash, err := s.hashes.AssetHash(r.Context(), ver, asset, s.hashSuffix)
	if err != nil {
		s.writeError(w, err, "no usable hash for "+asset)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"version": ver,
		"asset":   asset,
		"hash":    hash,
	})
}

func (s *Server) handleChangelog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.changelog.Fetch(r.Context(), s.changelogURL)
	if err != nil {
		s.writeError(w, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"changelog": entries,
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "malformed form data",
		})
		return
	}
	if len(r.PostForm) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": "no form data received",
		})
		return
	}

	now := s.now()
	rep := report.Parse(r.PostForm, now)
	doc, err := rep.Document()
	if err != nil {
		s.logger.Error("failed to render error report", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "failed to render report",
		})
		return
	}

	filename := report.Filename(now)
	if err := s.sink.SendDocument(r.Context(), filename, doc); err != nil {
		s.logger.Error("failed to forward error report", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "notification sink error",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"message":  "error report forwarded",
		"filename": filename,
	})
}

// writeError maps the core's error taxonomy onto HTTP statuses:
// validation errors are the caller's fault (400), absence is 404 at
// the protocol level, upstream failures are 502.
func (s *Server) writeError(w http.ResponseWriter, err error, notFoundMsg string) {
	var lengthErr *version.LengthError
	var parseErr *version.ParseError
	var fetchErr *release.FetchError

	switch {
	case errors.As(err, &lengthErr), errors.As(err, &parseErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status":  "error",
			"message": err.Error(),
		})
	case errors.Is(err, release.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{
			"status":  "not_found",
			"message": notFoundMsg,
		})
	case errors.As(err, &fetchErr):
		s.logger.Error("upstream fetch failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status":  "error",
			"message": "upstream release data unavailable",
		})
	default:
		s.logger.Error("unexpected handler error", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"status":  "error",
			"message": "internal error",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
