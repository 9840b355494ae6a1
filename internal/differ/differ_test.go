package differ

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/dbsmedya/goreconcile/internal/sqlutil"
)

// ============================================================================
// Test Helpers
// ============================================================================

func newTestDiffer(t *testing.T) (*Differ, sqlmock.Sqlmock, sqlmock.Sqlmock) {
	t.Helper()
	sourceDB, sourceMock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create source mock: %v", err)
	}
	targetDB, targetMock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create target mock: %v", err)
	}
	t.Cleanup(func() {
		sourceDB.Close()
		targetDB.Close()
	})

	d, err := NewDiffer(sourceDB, targetDB, sqlutil.DialectMySQL, sqlutil.DialectMySQL, nil)
	if err != nil {
		t.Fatalf("NewDiffer failed: %v", err)
	}
	return d, sourceMock, targetMock
}

func keyRows(ids ...int64) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range ids {
		rows.AddRow(id)
	}
	return rows
}

func dataRow(id int64, name string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name"}).AddRow(id, name)
}

const (
	keysQuery = "SELECT `id` FROM `orders`"
	rowQuery  = "SELECT * FROM `orders` WHERE `id` = ?"
)

// ============================================================================
// ReconcileTable Tests
// ============================================================================

func TestReconcileTable_MissingExtraModified(t *testing.T) {
	d, sourceMock, targetMock := newTestDiffer(t)

	// Source has {1, 2}, target has {2, 3}; row 2 matches on both sides.
	sourceMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).WillReturnRows(keyRows(1, 2))
	targetMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).WillReturnRows(keyRows(2, 3))

	sourceMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(1)).
		WillReturnRows(dataRow(1, "A"))
	targetMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(3)).
		WillReturnRows(dataRow(3, "C"))
	sourceMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(2)).
		WillReturnRows(dataRow(2, "B"))
	targetMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(2)).
		WillReturnRows(dataRow(2, "B"))

	discrepancies, err := d.ReconcileTable(context.Background(), "orders", []string{"id"}, nil)
	if err != nil {
		t.Fatalf("ReconcileTable failed: %v", err)
	}

	if len(discrepancies) != 2 {
		t.Fatalf("Expected 2 discrepancies, got %d: %+v", len(discrepancies), discrepancies)
	}

	byKind := make(map[Kind]Discrepancy)
	for _, disc := range discrepancies {
		byKind[disc.Kind] = disc
	}

	missing, ok := byKind[KindMissing]
	if !ok {
		t.Fatal("Expected a MISSING discrepancy")
	}
	if missing.Key.Canonical() != "1" {
		t.Errorf("Expected MISSING key 1, got %s", missing.Key.Canonical())
	}
	if missing.SourceRow == nil || missing.TargetRow != nil {
		t.Error("MISSING must carry a source row and no target row")
	}

	extra, ok := byKind[KindExtra]
	if !ok {
		t.Fatal("Expected an EXTRA discrepancy")
	}
	if extra.Key.Canonical() != "3" {
		t.Errorf("Expected EXTRA key 3, got %s", extra.Key.Canonical())
	}
	if extra.TargetRow == nil || extra.SourceRow != nil {
		t.Error("EXTRA must carry a target row and no source row")
	}

	if _, ok := byKind[KindModified]; ok {
		t.Error("Matching common row must not produce MODIFIED")
	}
}

func TestReconcileTable_ModifiedColumns(t *testing.T) {
	d, sourceMock, targetMock := newTestDiffer(t)

	sourceMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).WillReturnRows(keyRows(1))
	targetMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).WillReturnRows(keyRows(1))

	sourceMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow(1, "Alice", "active"))
	targetMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow(1, "Bob", "active"))

	discrepancies, err := d.ReconcileTable(context.Background(), "orders", []string{"id"}, nil)
	if err != nil {
		t.Fatalf("ReconcileTable failed: %v", err)
	}

	if len(discrepancies) != 1 {
		t.Fatalf("Expected 1 discrepancy, got %d", len(discrepancies))
	}
	disc := discrepancies[0]
	if disc.Kind != KindModified {
		t.Fatalf("Expected MODIFIED, got %s", disc.Kind)
	}
	if len(disc.ModifiedColumns) != 1 || disc.ModifiedColumns[0] != "name" {
		t.Errorf("Expected modified columns [name], got %v", disc.ModifiedColumns)
	}
}

func TestReconcileTable_IdenticalTables(t *testing.T) {
	d, sourceMock, targetMock := newTestDiffer(t)

	sourceMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).WillReturnRows(keyRows(1))
	targetMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).WillReturnRows(keyRows(1))
	sourceMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(1)).
		WillReturnRows(dataRow(1, "A"))
	targetMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(1)).
		WillReturnRows(dataRow(1, "A"))

	discrepancies, err := d.ReconcileTable(context.Background(), "orders", []string{"id"}, nil)
	if err != nil {
		t.Fatalf("ReconcileTable failed: %v", err)
	}
	if len(discrepancies) != 0 {
		t.Errorf("Expected no discrepancies, got %+v", discrepancies)
	}
}

func TestReconcileTable_KeyFetchErrorAbortsWhole(t *testing.T) {
	d, sourceMock, _ := newTestDiffer(t)

	sourceMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).
		WillReturnError(errors.New("connection lost"))

	discrepancies, err := d.ReconcileTable(context.Background(), "orders", []string{"id"}, nil)
	if err == nil {
		t.Fatal("Expected error")
	}
	if discrepancies != nil {
		t.Error("No partial discrepancy list may be returned on failure")
	}
}

func TestReconcileTable_RowFetchErrorAbortsWhole(t *testing.T) {
	d, sourceMock, targetMock := newTestDiffer(t)

	sourceMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).WillReturnRows(keyRows(1))
	targetMock.ExpectQuery(regexp.QuoteMeta(keysQuery)).WillReturnRows(keyRows())
	sourceMock.ExpectQuery(regexp.QuoteMeta(rowQuery)).WithArgs(int64(1)).
		WillReturnError(errors.New("read timeout"))

	discrepancies, err := d.ReconcileTable(context.Background(), "orders", []string{"id"}, nil)
	if err == nil {
		t.Fatal("Expected error")
	}
	if discrepancies != nil {
		t.Error("No partial discrepancy list may be returned on failure")
	}
}

func TestReconcileTable_NoPrimaryKeys(t *testing.T) {
	d, _, _ := newTestDiffer(t)
	if _, err := d.ReconcileTable(context.Background(), "orders", nil, nil); err == nil {
		t.Error("Expected error for empty primary key list")
	}
}

// ============================================================================
// Comparison Policy Tests
// ============================================================================

func TestValuesEqual_Policy(t *testing.T) {
	d, _, _ := newTestDiffer(t)

	tests := []struct {
		name  string
		a, b  interface{}
		equal bool
	}{
		{"both null", nil, nil, true},
		{"one null", nil, "x", false},
		{"other null", 1, nil, false},
		{"within tolerance", 1.0000000001, 1.0000000002, true},
		{"outside tolerance", 1.0, 1.1, false},
		{"int vs float equal", int64(3), 3.0, true},
		{"numeric bytes vs int", []byte("42"), int64(42), true},
		{"trimmed text equal", "  hello ", "hello", true},
		{"case preserved", "Hello", "hello", false},
		{"text not equal", "a", "b", false},
		{"bool equal", true, true, true},
		{"bool not equal", true, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.valuesEqual(tt.a, tt.b); got != tt.equal {
				t.Errorf("valuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.equal)
			}
		})
	}
}

func TestValuesEqual_CustomTolerance(t *testing.T) {
	d, _, _ := newTestDiffer(t)
	d.SetTolerance(0.5)

	if !d.valuesEqual(1.0, 1.4) {
		t.Error("Expected 1.0 and 1.4 equal under tolerance 0.5")
	}
	if d.valuesEqual(1.0, 1.6) {
		t.Error("Expected 1.0 and 1.6 not equal under tolerance 0.5")
	}
}

func TestCompareRows_ExcludesPrimaryKeys(t *testing.T) {
	d, _, _ := newTestDiffer(t)

	source := map[string]interface{}{"id": int64(1), "name": "A"}
	target := map[string]interface{}{"id": int64(99), "name": "A"}

	modified := d.compareRows(source, target, []string{"id"}, nil)
	if len(modified) != 0 {
		t.Errorf("Primary key columns must be excluded from comparison, got %v", modified)
	}
}

func TestCompareRows_RestrictedColumns(t *testing.T) {
	d, _, _ := newTestDiffer(t)

	source := map[string]interface{}{"id": int64(1), "name": "A", "note": "x"}
	target := map[string]interface{}{"id": int64(1), "name": "B", "note": "y"}

	modified := d.compareRows(source, target, []string{"id"}, []string{"note"})
	if len(modified) != 1 || modified[0] != "note" {
		t.Errorf("Expected only [note] compared, got %v", modified)
	}
}
