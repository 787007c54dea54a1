package web

// errors.go provides unified error response handling for the web layer.
//
// Every handler error goes through respondError, which maps it with
// core.MapError, logs the technical error with the request ID and writes the
// user message as JSON for API routes or as an HTML page otherwise.

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/studydata/internal/core"
	"github.com/JonMunkholm/studydata/internal/web/templates"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
// Error is the one-line form from core.FormatUserError.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrExportBusy):
		return http.StatusConflict
	case errors.Is(err, core.ErrDuplicateEntry):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidEntry), errors.Is(err, core.ErrInvalidInstruction):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrEntryNotFound), errors.Is(err, core.ErrNoExport),
		errors.Is(err, core.ErrInstructionNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrForbidden), errors.Is(err, core.ErrStaffOnly):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError handles error responses with user-friendly messages.
// A zero statusCode derives the status from err.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	if statusCode == 0 {
		statusCode = statusFor(err)
	}
	userMsg := core.MapError(err)

	// Unmapped errors are always logged at error level.
	level := slog.LevelError
	if statusCode < http.StatusInternalServerError && core.IsUserFacing(err) {
		level = slog.LevelWarn
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if wantsJSON(r) {
		respondErrorJSON(w, core.FormatUserError(err), userMsg, statusCode)
	} else {
		respondErrorHTML(w, r, userMsg, statusCode)
	}
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, summary string, msg core.UserMessage, statusCode int) {
	writeJSONStatus(w, statusCode, ErrorResponse{
		Error:   summary,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML renders the error page.
func respondErrorHTML(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	if err := templates.ErrorPage(msg.Message, msg.Action, msg.Code).Render(r.Context(), w); err != nil {
		slog.Error("render error page", "error", err)
	}
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}

func splitHostPort(addr string) (string, string, error) {
	return net.SplitHostPort(addr)
}
