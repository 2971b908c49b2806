// Package sqlite connects to the SQLite database holding the workout history and keeps its schema in sync with
// schema.sql.
package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "embed"

	"github.com/mattn/go-sqlite3"
	"github.com/myrjola/liftguard/internal/errors"
)

//go:embed schema.sql
var schemaDefinition string

// Database holds separate pools for writes and reads. Writes go through a single connection so that SQLite never
// reports SQLITE_BUSY to the application.
type Database struct {
	ReadWrite *sql.DB
	ReadOnly  *sql.DB
	logger    *slog.Logger
}

// NewDatabase connects to url, migrates the schema and starts the hourly optimizer, which stops with ctx.
//
// The url is the path to the database file or ":memory:" for a private in-memory database.
func NewDatabase(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	db, err := connect(ctx, url, logger)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	if err = db.migrateTo(ctx, schemaDefinition); err != nil {
		return nil, errors.Join(errors.Wrap(err, "migrate schema"), db.Close())
	}

	go db.runOptimizer(ctx, time.Hour)

	return db, nil
}

//nolint:gochecknoglobals // the driver may only be registered once per process.
var registerDriver sync.Once

const optimizedDriver = "sqlite3optimized"

func registerOptimizedDriver() {
	sql.Register(optimizedDriver, &sqlite3.SQLiteDriver{
		Extensions: nil,
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// Temporary indices in memory and memory-mapped pages reduce syscalls.
			if _, err := conn.Exec("PRAGMA temp_store = memory; PRAGMA mmap_size = 30000000000;", nil); err != nil {
				return errors.Wrap(err, "exec optimization pragmas")
			}
			return nil
		},
	})
}

const maxReadConns = 10

func connect(ctx context.Context, url string, logger *slog.Logger) (*Database, error) {
	// In-memory databases need shared cache so that both pools see the same data. A random name keeps parallel tests
	// apart. See https://www.sqlite.org/inmemorydb.html.
	memoryParams := ""
	if strings.Contains(url, ":memory:") {
		url = rand.Text()
		memoryParams = "&mode=memory&cache=shared"
	}
	// Parameters prefixed with '_' are documented at https://pkg.go.dev/github.com/mattn/go-sqlite3#SQLiteDriver.Open.
	common := strings.Join([]string{
		"_loc=auto",
		"_defer_foreign_keys=1",
		"_journal_mode=wal",
		"_busy_timeout=5000",
		"_synchronous=normal",
		"_foreign_keys=on",
	}, "&")

	readWriteDSN := "file:" + url + "?_txlock=immediate&" + common + memoryParams
	readDSN := "file:" + url + "?_txlock=deferred&_query_only=true&" + common + memoryParams
	if memoryParams == "" {
		readWriteDSN += "&mode=rwc"
		readDSN += "&mode=ro"
	}

	registerDriver.Do(registerOptimizedDriver)

	readWrite, err := sql.Open(optimizedDriver, readWriteDSN)
	if err != nil {
		return nil, errors.Wrap(err, "open read-write database")
	}
	readWrite.SetMaxOpenConns(1)
	readWrite.SetMaxIdleConns(1)
	readWrite.SetConnMaxLifetime(time.Hour)
	readWrite.SetConnMaxIdleTime(time.Hour)

	// sql.DB is lazy, the ping creates the database file before the read-only pool opens it.
	if err = readWrite.PingContext(ctx); err != nil {
		return nil, errors.Join(errors.Wrap(err, "ping read-write database"), readWrite.Close())
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "opened database", slog.String("dsn", readWriteDSN))

	readOnly, err := sql.Open(optimizedDriver, readDSN)
	if err != nil {
		return nil, errors.Join(errors.Wrap(err, "open read-only database"), readWrite.Close())
	}
	readOnly.SetMaxOpenConns(maxReadConns)
	readOnly.SetMaxIdleConns(maxReadConns)
	readOnly.SetConnMaxLifetime(time.Hour)
	readOnly.SetConnMaxIdleTime(time.Hour)

	return &Database{
		ReadWrite: readWrite,
		ReadOnly:  readOnly,
		logger:    logger,
	}, nil
}

// Close closes both pools.
func (db *Database) Close() error {
	return errors.Join(db.ReadOnly.Close(), db.ReadWrite.Close())
}

// Rollback rolls back tx unless it was already committed. Meant to be deferred right after BeginTx.
func (db *Database) Rollback(ctx context.Context, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		db.logger.LogAttrs(ctx, slog.LevelError, "failed to roll back transaction",
			errors.SlogError(errors.Wrap(err, "rollback")))
	}
}
