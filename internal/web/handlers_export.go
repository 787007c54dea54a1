package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/JonMunkholm/studydata/internal/core"
	"github.com/JonMunkholm/studydata/internal/logging"
)

// DownloadFilename is the attachment name of exported spreadsheets.
const DownloadFilename = "study_entries.xlsx"

// busyRetryAfter is the Retry-After value, in seconds, sent with 409 responses.
const busyRetryAfter = "5"

// handleExport publishes a fresh snapshot and streams it to the caller.
//
// The export runs detached from the request context: once the lock is taken
// the snapshot is finished and audited even if the client goes away.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	ctx := context.WithoutCancel(WithRequestMetadata(r.Context(), r))

	if _, err := s.service.Export(ctx, actor); err != nil {
		if errors.Is(err, core.ErrExportBusy) {
			w.Header().Set("Retry-After", busyRetryAfter)
		}
		s.respondError(w, r, err, 0)
		return
	}

	s.serveExport(w, r)
}

// handleLatestExport streams the currently published snapshot without
// running a new export.
func (s *Server) handleLatestExport(w http.ResponseWriter, r *http.Request) {
	s.serveExport(w, r)
}

func (s *Server) serveExport(w http.ResponseWriter, r *http.Request) {
	f, info, err := s.service.Exporter().Open()
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer f.Close()

	logging.FromContext(r.Context()).Debug("serving export", "path", f.Name(), "size", info.Size())

	w.Header().Set("Content-Type", core.XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+DownloadFilename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, DownloadFilename, info.ModTime(), f)
}

// handleHealth reports whether the store is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Ping(r.Context()); err != nil {
		writeJSONStatus(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  core.MapError(err).Message,
		})
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}
