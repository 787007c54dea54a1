package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionEntryCreate  AuditAction = "entry_create"
	ActionEntryUpdate  AuditAction = "entry_update"
	ActionExport       AuditAction = "export"
	ActionExportFailed AuditAction = "export_failed"

	ActionInstructionUpload AuditAction = "instruction_upload"
)

// AuditEvent is one immutable line of the audit trail.
type AuditEvent struct {
	ID        string      `json:"id"`
	Action    AuditAction `json:"action"`
	Actor     string      `json:"actor"`
	Details   string      `json:"details,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`
}

// AuditFilter contains filtering options for querying audit events.
type AuditFilter struct {
	Action    AuditAction
	Actor     string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
	Offset    int
}

// AuditSink receives audit events. The exporter and the entry service only
// depend on this, so tests can capture events without a database.
type AuditSink interface {
	Record(ctx context.Context, action AuditAction, actor, details string) (*AuditEvent, error)
}

// AuditService appends events to the audit store and mirrors each one to
// the audit logger.
type AuditService struct {
	store  AuditStore
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditService creates an audit service. A nil logger falls back to slog.Default().
func NewAuditService(store AuditStore, logger *slog.Logger) *AuditService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Record appends an event and writes the matching audit log line.
//
// The log line is written even when the store append fails, so the file
// trail stays complete during a database outage; the store error is returned.
func (a *AuditService) Record(ctx context.Context, action AuditAction, actor, details string) (*AuditEvent, error) {
	ev := AuditEvent{
		ID:        uuid.NewString(),
		Action:    action,
		Actor:     actor,
		Details:   details,
		CreatedAt: a.now().UTC(),
	}

	storeErr := a.store.AppendAuditEvent(ctx, ev)

	attrs := []any{
		"event_id", ev.ID,
		"action", string(ev.Action),
		"user", ev.Actor,
		"details", ev.Details,
	}
	if ip := GetIPAddressFromContext(ctx); ip != "" {
		attrs = append(attrs, "ip", ip)
	}
	if storeErr != nil {
		attrs = append(attrs, "store_error", storeErr.Error())
	}
	a.logger.InfoContext(ctx, "audit", attrs...)

	if storeErr != nil {
		return nil, fmt.Errorf("append audit event %s: %w", action, storeErr)
	}
	return &ev, nil
}

// List returns audit events matching filter, newest first.
func (a *AuditService) List(ctx context.Context, filter AuditFilter) ([]AuditEvent, error) {
	filter.Limit = pageLimit(filter.Limit)
	return a.store.ListAuditEvents(ctx, filter)
}

// Count returns the number of audit events matching filter.
func (a *AuditService) Count(ctx context.Context, filter AuditFilter) (int64, error) {
	return a.store.CountAuditEvents(ctx, filter)
}
