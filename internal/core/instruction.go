package core

// instruction.go keeps the study instruction PDFs staff upload for the
// examiners.
//
// A file is written to a temp file in the instruction directory and renamed
// to a generated name, so a failed upload never leaves a partial PDF behind a
// stored name. Metadata is inserted after the rename; if the insert fails the
// file is removed again.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxInstructionTitleLength matches the width of the title column.
const MaxInstructionTitleLength = 255

// InstructionContentType is served with instruction downloads.
const InstructionContentType = "application/pdf"

// pdfMagic starts every PDF document.
var pdfMagic = []byte("%PDF-")

// InstructionLibrary stores uploaded instruction files and their metadata.
type InstructionLibrary struct {
	dir      string
	store    InstructionStore
	audit    AuditSink
	maxBytes int64
	logger   *slog.Logger
	now      func() time.Time
	newName  func() string
}

// NewInstructionLibrary creates a library writing files to dir. Uploads
// larger than maxBytes are rejected.
func NewInstructionLibrary(dir string, store InstructionStore, audit AuditSink, maxBytes int64) *InstructionLibrary {
	return &InstructionLibrary{
		dir:      dir,
		store:    store,
		audit:    audit,
		maxBytes: maxBytes,
		logger:   slog.Default().With("component", "instructions"),
		now:      time.Now,
		newName:  func() string { return uuid.NewString() + ".pdf" },
	}
}

// Dir returns the directory instruction files are stored in.
func (l *InstructionLibrary) Dir() string {
	return l.dir
}

// MaxBytes returns the upload size limit.
func (l *InstructionLibrary) MaxBytes() int64 {
	return l.maxBytes
}

// Upload stores content as a new instruction. Only staff may upload, and
// only PDF files are accepted. The upload is audited as instruction_upload.
func (l *InstructionLibrary) Upload(ctx context.Context, actor Actor, title, fileName string, content io.Reader) (Instruction, error) {
	if !actor.Staff {
		return Instruction{}, ErrStaffOnly
	}

	title = strings.TrimSpace(title)
	// Some browsers send the client's full path.
	fileName = filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	if err := validateInstruction(title, fileName); err != nil {
		return Instruction{}, err
	}

	if err := os.MkdirAll(l.dir, 0o750); err != nil {
		return Instruction{}, fmt.Errorf("create instruction directory: %w", err)
	}

	stored := l.newName()
	size, err := l.writeFile(stored, content)
	if err != nil {
		return Instruction{}, err
	}

	created, err := l.store.CreateInstruction(ctx, Instruction{
		Title:      title,
		FileName:   fileName,
		StoredName: stored,
		SizeBytes:  size,
		UploadedAt: l.now().UTC(),
		UploadedBy: actor.Username,
	})
	if err != nil {
		if rmErr := os.Remove(filepath.Join(l.dir, stored)); rmErr != nil {
			l.logger.ErrorContext(ctx, "remove orphaned instruction file", "file", stored, "error", rmErr)
		}
		return Instruction{}, fmt.Errorf("store instruction: %w", err)
	}

	details := fmt.Sprintf("instruction_id=%d", created.ID)
	if _, err := l.audit.Record(ctx, ActionInstructionUpload, actor.Username, details); err != nil {
		l.logger.WarnContext(ctx, "audit write failed", "action", string(ActionInstructionUpload), "error", err)
	}
	return created, nil
}

func validateInstruction(title, fileName string) error {
	var problems []string
	switch {
	case title == "":
		problems = append(problems, "title: required field is empty")
	case utf8.RuneCountInString(title) > MaxInstructionTitleLength:
		problems = append(problems, fmt.Sprintf("title: must be at most %d characters", MaxInstructionTitleLength))
	}
	if ext := filepath.Ext(fileName); !strings.EqualFold(ext, ".pdf") || len(fileName) == len(ext) {
		problems = append(problems, "pdf: only PDF files are allowed")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidInstruction, strings.Join(problems, "; "))
	}
	return nil
}

// writeFile copies content to dir/stored through a temp file and returns
// the number of bytes written.
func (l *InstructionLibrary) writeFile(stored string, content io.Reader) (size int64, err error) {
	tmp, err := os.CreateTemp(l.dir, ".upload-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	size, err = io.Copy(tmp, io.LimitReader(content, l.maxBytes+1))
	if err != nil {
		return 0, fmt.Errorf("write instruction: %w", err)
	}
	if size > l.maxBytes {
		return 0, fmt.Errorf("%w: pdf: file exceeds %d bytes", ErrInvalidInstruction, l.maxBytes)
	}

	head := make([]byte, len(pdfMagic))
	if n, _ := tmp.ReadAt(head, 0); n < len(head) || !bytes.Equal(head, pdfMagic) {
		return 0, fmt.Errorf("%w: pdf: file is not a PDF document", ErrInvalidInstruction)
	}

	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync instruction: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close instruction: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(l.dir, stored)); err != nil {
		return 0, fmt.Errorf("publish instruction: %w", err)
	}
	return size, nil
}

// List returns every instruction, newest first.
func (l *InstructionLibrary) List(ctx context.Context) ([]Instruction, error) {
	list, err := l.store.ListInstructions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list instructions: %w", err)
	}
	return list, nil
}

// Open returns the file of instruction id. The caller closes it.
// A missing file is reported as ErrInstructionNotFound.
func (l *InstructionLibrary) Open(ctx context.Context, id int64) (*os.File, Instruction, error) {
	ins, err := l.store.GetInstruction(ctx, id)
	if err != nil {
		return nil, Instruction{}, fmt.Errorf("get instruction %d: %w", id, err)
	}
	if ins.StoredName == "" || filepath.Base(ins.StoredName) != ins.StoredName {
		return nil, Instruction{}, fmt.Errorf("%w: instruction %d has no valid file", ErrInstructionNotFound, id)
	}

	f, err := os.Open(filepath.Join(l.dir, ins.StoredName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, Instruction{}, fmt.Errorf("%w: file of instruction %d is missing", ErrInstructionNotFound, id)
	}
	if err != nil {
		return nil, Instruction{}, fmt.Errorf("open instruction %d: %w", id, err)
	}
	return f, ins, nil
}
