package web

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/studydata/internal/config"
	"github.com/JonMunkholm/studydata/internal/core"
	"github.com/JonMunkholm/studydata/internal/database/sqlite"
)

type testEnv struct {
	server *Server
	store  *sqlite.Store
	out    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := sqlite.Open(filepath.Join(dir, "study.db"))
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(store.Close)

	cfg := &config.Config{
		Server: config.ServerConfig{RequestTimeout: 10 * time.Second},
		Rate:   config.RateLimitConfig{Enabled: false},
		Security: config.SecurityConfig{
			RequireAPIKey: true,
			APIKeys:       []string{"alice:alice-key", "bob:bob-key", "admin:admin-key:staff"},
		},
	}

	reg := prometheus.NewRegistry()
	metrics := core.NewMetrics(reg)
	audit := core.NewAuditService(store, nil)
	out := filepath.Join(dir, "instance", "study_export.xlsx")
	exporter := core.NewExporter(out, core.NewSnapshotWriter(store), audit, metrics)
	instructions := core.NewInstructionLibrary(filepath.Join(dir, "media", "instructions"), store, audit, 1<<20)
	svc := core.NewService(store, audit, exporter, instructions)

	return &testEnv{server: NewServer(svc, cfg, reg), store: store, out: out}
}

func (e *testEnv) do(t *testing.T, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

func entryBody(piz, date string) map[string]any {
	return map[string]any{
		"piz":                piz,
		"examinationDate":    date,
		"liverAmbulanceLink": true,
		"fibroscanLsmKpa":    8.5,
		"fibroscanCapDbm":    240,
	}
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestEntriesAPI(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/entries", "alice-key", entryBody("PIZ001", "2024-01-01"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created core.Entry
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	if created.CreatedBy != "alice" {
		t.Errorf("CreatedBy = %q, want alice", created.CreatedBy)
	}
	if loc := rec.Header().Get("Location"); loc == "" {
		t.Error("missing Location header")
	}

	rec = env.do(t, http.MethodPost, "/api/entries", "bob-key", entryBody("PIZ001", "2024-01-01"))
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "ENT001" {
		t.Errorf("duplicate code = %q, want ENT001", code)
	}

	rec = env.do(t, http.MethodPost, "/api/entries", "alice-key", entryBody("", "01.01.2024"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want 400", rec.Code)
	}

	path := "/api/entries/" + itoa(created.ID)
	update := entryBody("PIZ001", "2024-01-01")
	update["fibroscanLsmKpa"] = 9.5

	rec = env.do(t, http.MethodPut, path, "bob-key", update)
	if rec.Code != http.StatusForbidden {
		t.Errorf("update by other user status = %d, want 403", rec.Code)
	}
	rec = env.do(t, http.MethodPut, path, "admin-key", update)
	if rec.Code != http.StatusOK {
		t.Errorf("update by staff status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, path, "bob-key", nil)
	var got core.Entry
	json.NewDecoder(rec.Body).Decode(&got)
	if got.FibroscanLSMKPa != 9.5 || got.UpdatedBy != "admin" {
		t.Errorf("entry after update = %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/entries/9999", "bob-key", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing entry status = %d, want 404", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/entries?piz=piz", "bob-key", nil)
	var page core.EntryPage
	json.NewDecoder(rec.Body).Decode(&page)
	if page.Total != 1 || len(page.Entries) != 1 {
		t.Errorf("list = %+v", page)
	}

	rec = env.do(t, http.MethodPost, "/api/entries", "alice-key", entryBody("PIZ002", "2024-03-01"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("create second status = %d, body = %s", rec.Code, rec.Body.String())
	}

	dateFilters := []struct {
		query string
		want  []string
	}{
		{"start_date=2024-02-01", []string{"PIZ002"}},
		{"end_date=2024-02-01", []string{"PIZ001"}},
		{"start_date=2024-01-01&end_date=2024-03-01", []string{"PIZ002", "PIZ001"}},
		{"start_date=not-a-date", []string{"PIZ002", "PIZ001"}},
	}
	for _, tt := range dateFilters {
		rec = env.do(t, http.MethodGet, "/api/entries?"+tt.query, "bob-key", nil)
		var filtered core.EntryPage
		if err := json.NewDecoder(rec.Body).Decode(&filtered); err != nil {
			t.Fatalf("%s: decode: %v", tt.query, err)
		}
		if int(filtered.Total) != len(tt.want) || len(filtered.Entries) != len(tt.want) {
			t.Errorf("%s: total = %d, entries = %d, want %d", tt.query, filtered.Total, len(filtered.Entries), len(tt.want))
			continue
		}
		for i, piz := range tt.want {
			if filtered.Entries[i].PIZ != piz {
				t.Errorf("%s: entries[%d] = %s, want %s", tt.query, i, filtered.Entries[i].PIZ, piz)
			}
		}
	}
}

func TestEntriesAPIDomainRules(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		modify func(map[string]any)
	}{
		{"lsm out of range", func(b map[string]any) { b["fibroscanLsmKpa"] = 500 }},
		{"cap out of range", func(b map[string]any) { b["fibroscanCapDbm"] = 9000 }},
		{"negative lsm", func(b map[string]any) { b["fibroscanLsmKpa"] = -1 }},
		{"examination far ahead", func(b map[string]any) { b["examinationDate"] = "2099-01-01" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := entryBody("PIZ001", "2024-01-01")
			tt.modify(body)
			rec := env.do(t, http.MethodPost, "/api/entries", "alice-key", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", rec.Code, rec.Body.String())
			}
			if code := decodeError(t, rec).Code; code != "ENT003" {
				t.Errorf("code = %q, want ENT003", code)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/entries", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key status = %d, want 401", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/export", "wrong", nil); rec.Code != http.StatusForbidden {
		t.Errorf("wrong key status = %d, want 403", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", rec.Code)
	}
}

func TestExportDownload(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/entries", "alice-key", entryBody("PIZ001", "2024-01-01"))

	rec := env.do(t, http.MethodGet, "/api/export", "alice-key", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != core.XLSXContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="study_entries.xlsx"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(core.SheetName)
	if err != nil {
		t.Fatalf("GetRows() error = %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "PIZ001" || rows[1][2] != "yes" {
		t.Errorf("rows = %v", rows)
	}

	events, err := env.store.ListAuditEvents(context.Background(), core.AuditFilter{Action: core.ActionExport, Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Actor != "alice" || events[0].Details != env.out {
		t.Errorf("audit events = %+v", events)
	}

	rec = env.do(t, http.MethodGet, "/api/export/latest", "bob-key", nil)
	if rec.Code != http.StatusOK || rec.Body.Len() == 0 {
		t.Errorf("latest status = %d, size = %d", rec.Code, rec.Body.Len())
	}
}

func TestExportBusy(t *testing.T) {
	env := newTestEnv(t)

	lock, err := core.AcquireExportLock(env.out)
	if err != nil {
		t.Fatalf("AcquireExportLock() error = %v", err)
	}
	defer lock.Release()

	rec := env.do(t, http.MethodPost, "/api/export", "alice-key", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("busy status = %d, want 409", rec.Code)
	}
	if ra := rec.Header().Get("Retry-After"); ra == "" {
		t.Error("missing Retry-After header")
	}
	resp := decodeError(t, rec)
	if resp.Code != "EXP001" || resp.Message != "Export in progress, try again later" {
		t.Errorf("error response = %+v", resp)
	}
	if !strings.Contains(resp.Error, "(Code: EXP001)") {
		t.Errorf("error summary = %q, want code in text", resp.Error)
	}

	n, _ := env.store.CountAuditEvents(context.Background(), core.AuditFilter{})
	if n != 0 {
		t.Errorf("audit events = %d, want 0", n)
	}
}

func TestLatestExportMissing(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/api/export/latest", "alice-key", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if code := decodeError(t, rec).Code; code != "EXP003" {
		t.Errorf("code = %q, want EXP003", code)
	}
}

func TestAuditLogEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/entries", "alice-key", entryBody("PIZ001", "2024-01-01"))
	env.do(t, http.MethodPost, "/api/export", "bob-key", nil)

	rec := env.do(t, http.MethodGet, "/api/audit-log?action=export", "alice-key", nil)
	var resp AuditLogResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.TotalCount != 1 || len(resp.Events) != 1 || resp.Events[0].Actor != "bob" {
		t.Errorf("audit log = %+v", resp)
	}

	rec = env.do(t, http.MethodGet, "/api/audit-log/export", "alice-key", nil)
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Errorf("Content-Type = %q", ct)
	}
	records, err := csv.NewReader(rec.Body).ReadAll()
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("csv rows = %d, want header + 2", len(records))
	}
	if records[1][2] != "export" || records[2][2] != "entry_create" {
		t.Errorf("csv actions = %q, %q", records[1][2], records[2][2])
	}
}

func TestEntriesPage(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/entries", "alice-key", entryBody("<PIZ>", "2024-01-01"))

	rec := env.do(t, http.MethodGet, "/entries", "alice-key", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "&lt;PIZ&gt;") {
		t.Error("PIZ not escaped in page")
	}
	if !strings.Contains(body, "Fibroscan LSM kPa") {
		t.Error("page missing column header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, http.MethodPost, "/api/export", "alice-key", nil)

	rec := env.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `studydata_exports_total{outcome="success"} 1`) {
		t.Errorf("metrics output missing export counter:\n%s", rec.Body.String())
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrExportBusy, http.StatusConflict},
		{core.ErrDuplicateEntry, http.StatusConflict},
		{core.ErrInvalidEntry, http.StatusBadRequest},
		{core.ErrEntryNotFound, http.StatusNotFound},
		{core.ErrNoExport, http.StatusNotFound},
		{core.ErrForbidden, http.StatusForbidden},
		{core.ErrInvalidInstruction, http.StatusBadRequest},
		{core.ErrInstructionNotFound, http.StatusNotFound},
		{core.ErrStaffOnly, http.StatusForbidden},
		{fmt.Errorf("%w: %w", core.ErrInvalidInstruction, &http.MaxBytesError{Limit: 1}), http.StatusRequestEntityTooLarge},
		{core.ErrExportFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()

	if !rl.allow("1.2.3.4") || !rl.allow("1.2.3.4") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.allow("1.2.3.4") {
		t.Error("third request should be limited")
	}
	if !rl.allow("5.6.7.8") {
		t.Error("other IP should be allowed")
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
