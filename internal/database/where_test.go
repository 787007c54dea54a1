package database

import (
	"testing"
	"time"
)

func TestNewWhereBuilder(t *testing.T) {
	wb := NewWhereBuilder()

	if wb == nil {
		t.Fatal("NewWhereBuilder returned nil")
	}
	if wb.argIndex != 1 {
		t.Errorf("expected argIndex to be 1, got %d", wb.argIndex)
	}
	if len(wb.conditions) != 0 {
		t.Errorf("expected empty conditions, got %d", len(wb.conditions))
	}
}

func TestWhereBuilder_Build_Empty(t *testing.T) {
	whereClause, args := NewWhereBuilder().Build()

	if whereClause != "" {
		t.Errorf("expected empty string for no conditions, got %q", whereClause)
	}
	if args != nil {
		t.Errorf("expected nil args for no conditions, got %v", args)
	}
}

func TestWhereBuilder_Add(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("action", "export")
	wb.Add("actor", "")
	wb.Add("actor", "alice")

	whereClause, args := wb.Build()

	expected := " WHERE action = $1 AND actor = $2"
	if whereClause != expected {
		t.Errorf("expected %q, got %q", expected, whereClause)
	}
	if len(args) != 2 || args[0] != "export" || args[1] != "alice" {
		t.Errorf("unexpected args %v", args)
	}
}

func TestWhereBuilder_AddContains(t *testing.T) {
	tests := []struct {
		name       string
		dialect    Dialect
		value      string
		wantClause string
		wantArg    string
	}{
		{"empty skipped", Postgres, "", "", ""},
		{"postgres", Postgres, "piz", " WHERE piz ILIKE $1", "%piz%"},
		{"sqlite", SQLite, "piz", ` WHERE piz LIKE ?1 ESCAPE '\'`, "%piz%"},
		{"wildcards escaped", Postgres, "50%_x", " WHERE piz ILIKE $1", `%50\%\_x%`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilderFor(tt.dialect)
			wb.AddContains("piz", tt.value)

			clause, args := wb.Build()
			if clause != tt.wantClause {
				t.Errorf("clause = %q, want %q", clause, tt.wantClause)
			}
			if tt.wantArg != "" && (len(args) != 1 || args[0] != tt.wantArg) {
				t.Errorf("args = %v, want [%q]", args, tt.wantArg)
			}
		})
	}
}

func TestWhereBuilder_AddTimestampRange(t *testing.T) {
	wb := NewWhereBuilder()
	wb.AddTimestampRange("created_at", "2024-01-01", "2024-12-31")

	whereClause, args := wb.Build()

	expected := " WHERE created_at >= $1 AND created_at <= $2"
	if whereClause != expected {
		t.Errorf("expected %q, got %q", expected, whereClause)
	}
	if len(args) != 2 || args[0] != "2024-01-01" || args[1] != "2024-12-31" {
		t.Errorf("expected args ['2024-01-01', '2024-12-31'], got %v", args)
	}
}

func TestWhereBuilder_AddFromUntil(t *testing.T) {
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	wb := NewWhereBuilderFor(SQLite)
	wb.AddFrom("examination_date", time.Time{}, "ignored")
	wb.AddFrom("examination_date", day, "2024-01-01")
	wb.AddUntil("examination_date", day, "2024-01-01")

	clause, args := wb.Build()
	expected := " WHERE examination_date >= ?1 AND examination_date <= ?2"
	if clause != expected {
		t.Errorf("expected %q, got %q", expected, clause)
	}
	if len(args) != 2 {
		t.Errorf("expected 2 args, got %v", args)
	}
}

func TestWhereBuilder_NextArgIndex(t *testing.T) {
	wb := NewWhereBuilder()

	if wb.NextArgIndex() != 1 {
		t.Errorf("expected initial NextArgIndex to be 1, got %d", wb.NextArgIndex())
	}

	wb.Add("col1", "val1")
	if wb.NextArgIndex() != 2 {
		t.Errorf("expected NextArgIndex after 1 add to be 2, got %d", wb.NextArgIndex())
	}

	wb.AddTimestampRange("created_at", "start", "end")
	if wb.NextArgIndex() != 4 {
		t.Errorf("expected NextArgIndex after timestamp range to be 4, got %d", wb.NextArgIndex())
	}
}

func TestWhereBuilder_LimitOffset(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("action", "export")
	_, args := wb.Build()

	clause, args := wb.LimitOffset(args, 50, 100)
	if clause != " LIMIT $2 OFFSET $3" {
		t.Errorf("clause = %q", clause)
	}
	if len(args) != 3 || args[1] != 50 || args[2] != 100 {
		t.Errorf("args = %v", args)
	}

	sq := NewWhereBuilderFor(SQLite)
	clause, _ = sq.LimitOffset(nil, 10, 0)
	if clause != " LIMIT ?1 OFFSET ?2" {
		t.Errorf("sqlite clause = %q", clause)
	}
}
