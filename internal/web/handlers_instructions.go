package web

import (
	"fmt"
	"mime"
	"net/http"

	"github.com/JonMunkholm/studydata/internal/core"
	"github.com/JonMunkholm/studydata/internal/logging"
	"github.com/JonMunkholm/studydata/internal/web/templates"
)

const (
	// multipartOverhead is allowed on top of the file limit for the title
	// field and part headers.
	multipartOverhead = 64 << 10

	// multipartMemory is kept in memory before parts spill to disk.
	multipartMemory = 1 << 20
)

// handleInstructionsPage renders the instruction list with the upload form
// for staff.
func (s *Server) handleInstructionsPage(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.Instructions().List(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	actor := actorFrom(r)
	params := templates.InstructionsViewParams{
		Instructions: list,
		Username:     actor.Username,
		CanUpload:    actor.Staff,
		MaxUploadMB:  s.service.Instructions().MaxBytes() >> 20,
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.InstructionsPage(params).Render(r.Context(), w); err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
	}
}

// handleInstructionsForm handles the upload form and redirects back to the list.
func (s *Server) handleInstructionsForm(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uploadInstruction(w, r); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	http.Redirect(w, r, "/instructions", http.StatusSeeOther)
}

// handleListInstructions returns every instruction as JSON, newest first.
func (s *Server) handleListInstructions(w http.ResponseWriter, r *http.Request) {
	list, err := s.service.Instructions().List(r.Context())
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, list)
}

// handleUploadInstruction stores a multipart upload with title and pdf fields.
func (s *Server) handleUploadInstruction(w http.ResponseWriter, r *http.Request) {
	ins, err := s.uploadInstruction(w, r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/instructions/%d/download", ins.ID))
	writeJSONStatus(w, http.StatusCreated, ins)
}

func (s *Server) uploadInstruction(w http.ResponseWriter, r *http.Request) (core.Instruction, error) {
	actor := actorFrom(r)
	// Reject before reading the body.
	if !actor.Staff {
		return core.Instruction{}, core.ErrStaffOnly
	}

	lib := s.service.Instructions()
	limit := lib.MaxBytes() + multipartOverhead
	if r.ContentLength > limit {
		return core.Instruction{}, fmt.Errorf("%w: %w", core.ErrInvalidInstruction, &http.MaxBytesError{Limit: limit})
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return core.Instruction{}, fmt.Errorf("%w: %w", core.ErrInvalidInstruction, err)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("pdf")
	if err != nil {
		return core.Instruction{}, fmt.Errorf("%w: pdf: file is required", core.ErrInvalidInstruction)
	}
	defer file.Close()

	ctx := WithRequestMetadata(r.Context(), r)
	return lib.Upload(ctx, actor, r.FormValue("title"), header.Filename, file)
}

// handleDownloadInstruction streams an instruction PDF under its uploaded name.
func (s *Server) handleDownloadInstruction(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r, core.ErrInstructionNotFound)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	f, ins, err := s.service.Instructions().Open(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	logging.FromContext(r.Context()).Debug("serving instruction", "id", ins.ID, "size", info.Size())

	w.Header().Set("Content-Type", core.InstructionContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": ins.FileName}))
	http.ServeContent(w, r, ins.FileName, info.ModTime(), f)
}
