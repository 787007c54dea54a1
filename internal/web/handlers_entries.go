package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/studydata/internal/core"
	"github.com/JonMunkholm/studydata/internal/web/templates"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 64 << 10

// entryRequest is the JSON body of create and update requests.
// The examination date travels as YYYY-MM-DD.
type entryRequest struct {
	PIZ                string  `json:"piz"`
	ExaminationDate    string  `json:"examinationDate"`
	LiverAmbulanceLink bool    `json:"liverAmbulanceLink"`
	FibroscanLSMKPa    float64 `json:"fibroscanLsmKpa"`
	FibroscanCAPDbm    float64 `json:"fibroscanCapDbm"`
}

func (req entryRequest) toInput() (core.EntryInput, error) {
	in := core.EntryInput{
		PIZ:                req.PIZ,
		LiverAmbulanceLink: req.LiverAmbulanceLink,
		FibroscanLSMKPa:    req.FibroscanLSMKPa,
		FibroscanCAPDbm:    req.FibroscanCAPDbm,
	}
	if req.ExaminationDate != "" {
		d, err := core.ParseDate(req.ExaminationDate)
		if err != nil {
			return core.EntryInput{}, fmt.Errorf("%w: examinationDate: must be YYYY-MM-DD", core.ErrInvalidEntry)
		}
		in.ExaminationDate = d
	}
	return in, nil
}

func decodeEntryRequest(w http.ResponseWriter, r *http.Request) (core.EntryInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	var req entryRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return core.EntryInput{}, fmt.Errorf("%w: %v", core.ErrInvalidEntry, err)
	}
	return req.toInput()
}

// parseEntryFilter reads piz, start_date, end_date, page and pageSize query
// parameters.
// Unparseable dates are ignored.
func parseEntryFilter(r *http.Request) (core.EntryFilter, int, int) {
	q := r.URL.Query()
	page := parseIntParam(r, "page", 1)
	pageSize := parseIntParam(r, "pageSize", core.DefaultPageSize)
	if pageSize > 500 {
		pageSize = 500
	}

	filter := core.EntryFilter{
		PIZ:    q.Get("piz"),
		Limit:  pageSize,
		Offset: (page - 1) * pageSize,
	}
	if t, err := core.ParseDate(q.Get("start_date")); err == nil {
		filter.StartDate = t
	}
	if t, err := core.ParseDate(q.Get("end_date")); err == nil {
		filter.EndDate = t
	}
	return filter, page, pageSize
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parseID reads the {id} URL parameter. A malformed id is reported as
// notFound.
func parseID(r *http.Request, notFound error) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, notFound
	}
	return id, nil
}

// handleEntriesPage renders the entry list.
func (s *Server) handleEntriesPage(w http.ResponseWriter, r *http.Request) {
	filter, page, pageSize := parseEntryFilter(r)

	result, err := s.service.ListEntries(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	totalPages := int((result.Total + int64(pageSize) - 1) / int64(pageSize))
	if totalPages < 1 {
		totalPages = 1
	}

	q := r.URL.Query()
	params := templates.EntriesViewParams{
		Entries:    result.Entries,
		TotalCount: result.Total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
		Filter: templates.EntriesFilter{
			PIZ:       q.Get("piz"),
			StartDate: dateParam(filter.StartDate),
			EndDate:   dateParam(filter.EndDate),
		},
		Username: actorFrom(r).Username,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.EntriesPage(params).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

func dateParam(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(core.DateLayout)
}

// handleListEntries returns one page of entries as JSON.
func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	filter, _, _ := parseEntryFilter(r)

	result, err := s.service.ListEntries(r.Context(), filter)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, result)
}

// handleCreateEntry creates an entry owned by the caller.
func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	in, err := decodeEntryRequest(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	entry, err := s.service.CreateEntry(ctx, actorFrom(r), in)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/entries/%d", entry.ID))
	writeJSONStatus(w, http.StatusCreated, entry)
}

// handleGetEntry returns a single entry.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, core.ErrEntryNotFound)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	entry, err := s.service.GetEntry(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, entry)
}

// handleUpdateEntry replaces the editable fields of an entry.
func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, core.ErrEntryNotFound)
	if err != nil {
		s.respondError(w, r, err, http.StatusNotFound)
		return
	}

	in, err := decodeEntryRequest(w, r)
	if err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	entry, err := s.service.UpdateEntry(ctx, actorFrom(r), id, in)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, entry)
}
