package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/myrjola/liftguard/internal/errors"
)

// migrateTo makes the live schema match schema declaratively.
//
// The target schema is created in a scratch in-memory database that is attached as schemaTarget and diffed against
// the live schema. Removed tables are dropped, new tables created and changed tables rebuilt with the generalized
// ALTER TABLE procedure from https://www.sqlite.org/lang_altertable.html#otheralter, copying the columns both versions
// share. Indexes and triggers are then synchronized. Everything except the foreign key toggle runs in one transaction.
func (db *Database) migrateTo(ctx context.Context, schema string) (err error) {
	start := time.Now()

	detach, err := db.attachTargetSchema(ctx, schema)
	if err != nil {
		return errors.Wrap(err, "attach target schema")
	}
	defer detach()

	// Foreign keys can only be toggled outside a transaction. The read-write pool has a single connection, so the
	// pragma applies to the transaction below.
	if _, err = db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return errors.Wrap(err, "disable foreign keys")
	}
	defer func() {
		if _, fkErr := db.ReadWrite.ExecContext(ctx, "PRAGMA foreign_keys = ON"); fkErr != nil {
			err = errors.Join(err, errors.Wrap(fkErr, "re-enable foreign keys"))
		}
	}()

	tx, err := db.ReadWrite.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer db.Rollback(ctx, tx)

	m := migrator{tx: tx, logger: db.logger}
	if err = m.migrateTables(ctx); err != nil {
		return errors.Wrap(err, "migrate tables")
	}
	for _, typ := range []string{"trigger", "index"} {
		if err = m.syncObjects(ctx, typ); err != nil {
			return errors.Wrap(err, "sync "+typ+"s")
		}
	}

	var violations []string
	if violations, err = m.queryColumn(ctx, "SELECT \"table\" FROM pragma_foreign_key_check"); err != nil {
		return errors.Wrap(err, "foreign key check")
	}
	if len(violations) > 0 {
		return errors.New("migration violates foreign keys",
			slog.String("tables", strings.Join(violations, ",")))
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}

	db.logger.LogAttrs(ctx, slog.LevelInfo, "migrated database", slog.Duration("duration", time.Since(start)))
	return nil
}

// attachTargetSchema creates schema in a scratch database and attaches it to the read-write connection. The returned
// function detaches it again.
func (db *Database) attachTargetSchema(ctx context.Context, schema string) (func(), error) {
	dsn := "file:" + rand.Text() + "?mode=memory&cache=shared"
	target, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open target database")
	}
	// The attached database keeps the shared cache alive after this handle closes.
	defer func() {
		if closeErr := target.Close(); closeErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to close target database",
				errors.SlogError(closeErr))
		}
	}()

	if _, err = target.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "create target schema")
	}
	if _, err = db.ReadWrite.ExecContext(ctx, "ATTACH DATABASE ? AS schemaTarget", dsn); err != nil {
		return nil, errors.Wrap(err, "attach")
	}
	return func() {
		if _, detachErr := db.ReadWrite.ExecContext(ctx, "DETACH DATABASE schemaTarget"); detachErr != nil {
			db.logger.LogAttrs(ctx, slog.LevelError, "failed to detach target database",
				errors.SlogError(detachErr))
		}
	}, nil
}

type migrator struct {
	tx     *sql.Tx
	logger *slog.Logger
}

// Internal tables of SQLite and Litestream are never touched.
const userObjects = "name NOT LIKE 'sqlite_%' AND name NOT LIKE '_litestream_%'"

// removedQuery selects the names of objects of a type present only in the live schema.
const removedQuery = `SELECT name FROM main.sqlite_schema
WHERE type = :type AND ` + userObjects + `
  AND name NOT IN (SELECT name FROM schemaTarget.sqlite_schema WHERE type = :type)`

// addedQuery selects the SQL of objects of a type present only in the target schema.
const addedQuery = `SELECT sql FROM schemaTarget.sqlite_schema
WHERE type = :type AND sql IS NOT NULL AND ` + userObjects + `
  AND name NOT IN (SELECT name FROM main.sqlite_schema WHERE type = :type)`

// changedQuery selects objects of a type whose SQL differs. Table renames add double quotes around the name, so they
// are ignored in the comparison.
const changedQuery = `SELECT live.name, target.sql
FROM main.sqlite_schema AS live
JOIN schemaTarget.sqlite_schema AS target ON live.name = target.name AND live.type = target.type
WHERE live.type = :type AND live.name NOT LIKE 'sqlite_%' AND live.name NOT LIKE '_litestream_%'
  AND REPLACE(live.sql, '"', '') <> REPLACE(target.sql, '"', '')`

func (m migrator) migrateTables(ctx context.Context) error {
	typ := sql.Named("type", "table")

	removed, err := m.queryColumn(ctx, removedQuery, typ)
	if err != nil {
		return errors.Wrap(err, "query removed tables")
	}
	for _, name := range removed {
		if err = m.exec(ctx, "dropping table", "DROP TABLE "+quote(name)); err != nil {
			return err
		}
	}

	added, err := m.queryColumn(ctx, addedQuery, typ)
	if err != nil {
		return errors.Wrap(err, "query added tables")
	}
	for _, create := range added {
		if err = m.exec(ctx, "creating table", create); err != nil {
			return err
		}
	}

	changed, err := m.queryPairs(ctx, changedQuery, typ)
	if err != nil {
		return errors.Wrap(err, "query changed tables")
	}
	for _, c := range changed {
		if err = m.rebuildTable(ctx, c.name, c.sql); err != nil {
			return errors.Wrap(err, "rebuild table", slog.String("table", c.name))
		}
	}
	return nil
}

// rebuildTable creates the new definition under a temporary name, copies the shared columns and swaps the tables.
func (m migrator) rebuildTable(ctx context.Context, name, newSQL string) error {
	temp := name + "_migration_temp"
	if err := m.exec(ctx, "creating table under temporary name", strings.Replace(newSQL, name, temp, 1)); err != nil {
		return err
	}

	shared, err := m.queryColumn(ctx, `SELECT '"' || target.name || '"'
FROM pragma_table_info(:table) AS live
JOIN pragma_table_info(:table, 'schemaTarget') AS target ON target.name = live.name`, sql.Named("table", name))
	if err != nil {
		return errors.Wrap(err, "query shared columns")
	}
	columns := strings.Join(shared, ", ")

	steps := []struct{ msg, query string }{
		{"copying rows", fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quote(temp), columns, columns, quote(name))},
		{"dropping old table", "DROP TABLE " + quote(name)},
		{"renaming new table", fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(temp), quote(name))},
	}
	for _, step := range steps {
		if err = m.exec(ctx, step.msg, step.query); err != nil {
			return err
		}
	}
	return nil
}

// syncObjects drops, creates and recreates indexes or triggers so they match the target schema.
func (m migrator) syncObjects(ctx context.Context, typ string) error {
	param := sql.Named("type", typ)
	drop := "DROP " + strings.ToUpper(typ) + " IF EXISTS "

	removed, err := m.queryColumn(ctx, removedQuery, param)
	if err != nil {
		return errors.Wrap(err, "query removed")
	}
	for _, name := range removed {
		if err = m.exec(ctx, "dropping "+typ, drop+quote(name)); err != nil {
			return err
		}
	}

	added, err := m.queryColumn(ctx, addedQuery, param)
	if err != nil {
		return errors.Wrap(err, "query added")
	}
	for _, create := range added {
		if err = m.exec(ctx, "creating "+typ, create); err != nil {
			return err
		}
	}

	changed, err := m.queryPairs(ctx, changedQuery, param)
	if err != nil {
		return errors.Wrap(err, "query changed")
	}
	for _, c := range changed {
		if err = m.exec(ctx, "dropping changed "+typ, drop+quote(c.name)); err != nil {
			return err
		}
		if err = m.exec(ctx, "recreating "+typ, c.sql); err != nil {
			return err
		}
	}
	return nil
}

func (m migrator) exec(ctx context.Context, msg, query string) error {
	m.logger.LogAttrs(ctx, slog.LevelInfo, msg, slog.String("query", query))
	if _, err := m.tx.ExecContext(ctx, query); err != nil {
		return errors.Wrap(err, msg, slog.String("query", query))
	}
	return nil
}

func (m migrator) queryColumn(ctx context.Context, query string, args ...any) (_ []string, err error) {
	rows, err := m.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()
	var out []string
	for rows.Next() {
		var s string
		if err = rows.Scan(&s); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		out = append(out, s)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

type namedSQL struct {
	name string
	sql  string
}

func (m migrator) queryPairs(ctx context.Context, query string, args ...any) (_ []namedSQL, err error) {
	rows, err := m.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query")
	}
	defer func() {
		err = errors.Join(err, rows.Close())
	}()
	var out []namedSQL
	for rows.Next() {
		var p namedSQL
		if err = rows.Scan(&p.name, &p.sql); err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		out = append(out, p)
	}
	return out, errors.Wrap(rows.Err(), "rows")
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}
