package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db")+"?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func getColumns(t *testing.T, db *sql.DB, table string) map[string]bool {
	t.Helper()
	rows, err := db.Query("PRAGMA table_info(" + table + ")")
	if err != nil {
		t.Fatalf("table_info(%s): %v", table, err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			t.Fatalf("scan table_info: %v", err)
		}
		cols[name] = true
	}
	return cols
}

func TestInitSchema_Fresh(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema failed: %v", err)
	}

	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		t.Fatalf("getSchemaVersion: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("schema version = %d, want %d", version, SchemaVersion)
	}

	tests := []struct {
		table string
		cols  []string
	}{
		{"snapshots", []string{"epoch", "linked", "width", "height", "cell_count"}},
		{"cells", []string{"epoch", "x", "y", "program", "origin_x", "origin_y"}},
		{"runs", []string{"id", "start_epoch", "end_epoch", "root_x", "root_y", "mode", "node_count"}},
		{"lineage_nodes", []string{"run_id", "node_id", "parent_id", "epoch", "program", "status"}},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			cols := getColumns(t, db, tt.table)
			for _, c := range tt.cols {
				if !cols[c] {
					t.Errorf("%s.%s missing", tt.table, c)
				}
			}
		})
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := InitSchema(ctx, db); err != nil {
			t.Fatalf("InitSchema pass %d: %v", i, err)
		}
	}

	var rows int
	if err := db.QueryRow(`SELECT COUNT(*) FROM schema_version`).Scan(&rows); err != nil {
		t.Fatalf("count schema_version: %v", err)
	}
	if rows != 1 {
		t.Errorf("schema_version rows = %d, want 1", rows)
	}
}

func TestInitSchema_RejectsNewerVersion(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, SchemaVersion+1); err != nil {
		t.Fatalf("bump version: %v", err)
	}

	err := InitSchema(ctx, db)
	if err == nil || !strings.Contains(err.Error(), "newer") {
		t.Errorf("InitSchema error = %v, want newer-version error", err)
	}
}

func TestValidateIntegrity_ForeignKeys(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if err := ValidateIntegrity(ctx, db); err != nil {
		t.Fatalf("fresh db failed integrity: %v", err)
	}

	// Insert an orphan cell with enforcement off.
	if _, err := db.Exec(`PRAGMA foreign_keys = OFF`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO cells (epoch, x, y, program) VALUES (9, 0, 0, '+')`); err != nil {
		t.Fatalf("insert orphan: %v", err)
	}

	err := ValidateIntegrity(ctx, db)
	if err == nil || !strings.Contains(err.Error(), "foreign_key_check") {
		t.Errorf("ValidateIntegrity error = %v, want foreign_key_check failure", err)
	}
}

func TestResetSchema(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := InitSchema(ctx, db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO snapshots (epoch, width, height, cell_count, imported_at) VALUES (1, 1, 1, 0, 'now')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := ResetSchema(ctx, db); err != nil {
		t.Fatalf("ResetSchema: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM snapshots`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("snapshots after reset = %d, want 0", n)
	}
}
