package sqlite

import (
	"log/slog"
	"testing"

	"github.com/myrjola/liftguard/internal/testhelpers"
)

func TestDatabase_migrateTo(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		schemas []string
		queries []string
		wantErr bool
	}{
		{
			name:    "empty schema",
			schemas: []string{""},
			queries: []string{"SELECT * FROM sqlite_schema"},
		},
		{
			name:    "create table",
			schemas: []string{"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)"},
			queries: []string{"INSERT INTO test (name) VALUES ('test')", "SELECT * FROM test"},
		},
		{
			name:    "drop table",
			schemas: []string{"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)", ""},
			queries: []string{"INSERT INTO test (name) VALUES ('test')"},
			wantErr: true,
		},
		{
			name: "add column",
			schemas: []string{
				"CREATE TABLE test (id INTEGER PRIMARY KEY)",
				"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)",
			},
			queries: []string{"INSERT INTO test (name) VALUES ('test')"},
		},
		{
			name: "remove column",
			schemas: []string{
				"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)",
				"CREATE TABLE test (id INTEGER PRIMARY KEY)",
			},
			queries: []string{"INSERT INTO test (name) VALUES ('test')"},
			wantErr: true,
		},
		{
			name: "drop index",
			schemas: []string{
				"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT); CREATE INDEX test_name ON test (name)",
				"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)",
			},
			queries: []string{"DROP INDEX test_name"},
			wantErr: true,
		},
		{
			name: "change index",
			schemas: []string{
				"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT); CREATE INDEX test_name ON test (name)",
				"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT); CREATE INDEX test_name ON test (id, name)",
			},
			queries: []string{"DROP INDEX test_name"},
		},
		{
			name: "index survives a table rebuild",
			schemas: []string{
				"CREATE TABLE test (id INTEGER PRIMARY KEY); CREATE INDEX test_id ON test (id)",
				"CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT); CREATE INDEX test_id ON test (id)",
			},
			queries: []string{"DROP INDEX test_id"},
		},
		{
			name: "create trigger",
			schemas: []string{`CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT);
				CREATE TRIGGER test_trigger AFTER INSERT ON test BEGIN SELECT RAISE (FAIL, 'fail'); END;`},
			queries: []string{"INSERT INTO test (name) VALUES ('test')"},
			wantErr: true,
		},
		{
			name: "change trigger",
			schemas: []string{
				`CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT);
				CREATE TRIGGER test_trigger AFTER INSERT ON test BEGIN SELECT RAISE (FAIL, 'fail'); END;`,
				`CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT);
				CREATE TRIGGER test_trigger AFTER INSERT ON test BEGIN SELECT 1; END;`,
			},
			queries: []string{"INSERT INTO test (name) VALUES ('test')"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()
			logger := testhelpers.NewLogger(testhelpers.NewWriter(t))
			db, err := connect(ctx, ":memory:", logger)
			if err != nil {
				t.Fatalf("connect() error = %v", err)
			}
			t.Cleanup(func() {
				if err = db.Close(); err != nil {
					t.Errorf("Close() error = %v", err)
				}
			})

			for _, schema := range tt.schemas {
				logger.LogAttrs(ctx, slog.LevelInfo, "migrating", slog.String("schema", schema))
				if err = db.migrateTo(ctx, schema); err != nil {
					t.Fatalf("migrateTo() error = %v", err)
				}
			}

			for _, query := range tt.queries {
				_, err = db.ReadWrite.ExecContext(ctx, query)
				if tt.wantErr && err == nil {
					t.Errorf("query %q succeeded, want error", query)
				}
				if !tt.wantErr && err != nil {
					t.Errorf("query %q error = %v", query, err)
				}
			}
		})
	}
}

func TestDatabase_migrateTo_keepsRows(t *testing.T) {
	ctx := t.Context()
	db, err := connect(ctx, ":memory:", testhelpers.NewLogger(testhelpers.NewWriter(t)))
	if err != nil {
		t.Fatalf("connect() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = db.migrateTo(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("migrateTo() error = %v", err)
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "INSERT INTO test (id, name) VALUES (1, 'squat')"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err = db.migrateTo(ctx, "CREATE TABLE test (id INTEGER PRIMARY KEY, name TEXT, notes TEXT)"); err != nil {
		t.Fatalf("migrateTo() error = %v", err)
	}

	var name string
	if err = db.ReadOnly.QueryRowContext(ctx, "SELECT name FROM test WHERE id = 1").Scan(&name); err != nil {
		t.Fatalf("select: %v", err)
	}
	if name != "squat" {
		t.Errorf("name = %q after migration, want squat", name)
	}
}

func TestNewDatabase(t *testing.T) {
	ctx := t.Context()
	// The optimizer goroutine may outlive the test, so its logs must not go to t.Log.
	db, err := NewDatabase(ctx, ":memory:", testhelpers.NewDiscardLogger())
	if err != nil {
		t.Fatalf("NewDatabase() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	// Migrating to the same schema again must be a no-op.
	if err = db.migrateTo(ctx, schemaDefinition); err != nil {
		t.Fatalf("migrateTo() second run error = %v", err)
	}
	var tables int
	err = db.ReadOnly.QueryRowContext(ctx,
		"SELECT count(*) FROM sqlite_schema WHERE type = 'table' AND name IN ('exercise_sessions', 'session_sets')").
		Scan(&tables)
	if err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 2 {
		t.Errorf("got %d history tables, want 2", tables)
	}
}
