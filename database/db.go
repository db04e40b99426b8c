package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"
)

//go:embed schema/*.sql schema/postgres/*.sql
var schemaFS embed.FS

// InitDB opens the store for the given dialect and applies pending migrations.
func InitDB(ctx context.Context, dialect Dialect, dsn string) (*sql.DB, error) {
	db, err := sql.Open(dialect.DriverName(), dialect.DSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if _, err := Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("database initialized", "driver", dialect.Name())
	return db, nil
}

// Migrate applies embedded schema files that have not run yet and returns
// the versions it applied.
func Migrate(ctx context.Context, db *sql.DB, dialect Dialect) ([]int, error) {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.QueryContext(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	files, err := migrationFiles(dialect.SchemaDir())
	if err != nil {
		return nil, err
	}

	var ran []int
	for _, m := range files {
		if applied[m.version] {
			continue
		}
		body, err := schemaFS.ReadFile(m.path)
		if err != nil {
			return ran, fmt.Errorf("failed to read %s: %w", m.path, err)
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return ran, fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx, string(body)); err != nil {
			tx.Rollback()
			return ran, fmt.Errorf("failed to apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			dialect.Rebind("INSERT INTO _migrations (version, name, applied_at) VALUES (?, ?, ?)"),
			m.version, m.name, time.Now().UTC(),
		); err != nil {
			tx.Rollback()
			return ran, fmt.Errorf("failed to record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return ran, fmt.Errorf("failed to commit migration %s: %w", m.name, err)
		}
		slog.Info("applied migration", "version", m.version, "name", m.name)
		ran = append(ran, m.version)
	}
	return ran, nil
}

type migration struct {
	version int
	name    string
	path    string
}

// migrationFiles lists board_NNN.sql files in dir ordered by version.
func migrationFiles(dir string) ([]migration, error) {
	entries, err := fs.ReadDir(schemaFS, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list schema directory %s: %w", dir, err)
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		var v int
		if _, err := fmt.Sscanf(e.Name(), "board_%03d.sql", &v); err != nil {
			return nil, fmt.Errorf("malformed migration file name %s", e.Name())
		}
		out = append(out, migration{version: v, name: e.Name(), path: path.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Recorder receives one activity event per committed mutation.
type Recorder interface {
	Record(ev ActivityEvent)
}

type discardRecorder struct{}

func (discardRecorder) Record(ActivityEvent) {}

// DataService handles all board, task and reporting operations
type DataService struct {
	db       *sql.DB
	dialect  Dialect
	conn     querier
	recorder Recorder
	now      func() time.Time
}

func NewDataService(db *sql.DB, dialect Dialect) *DataService {
	return &DataService{
		db:       db,
		dialect:  dialect,
		conn:     &dbConn{db: db, dialect: dialect},
		recorder: discardRecorder{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetRecorder installs the sink that receives activity events after commit.
func (s *DataService) SetRecorder(r Recorder) {
	if r == nil {
		r = discardRecorder{}
	}
	s.recorder = r
}

// Ping reports whether the store is reachable.
func (s *DataService) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// querier is satisfied by both the pooled connection and a transaction so
// helpers can run either way.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type dbConn struct {
	db      *sql.DB
	dialect Dialect
}

func (c *dbConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, c.dialect.Rebind(query), args...)
}

func (c *dbConn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, c.dialect.Rebind(query), args...)
}

func (c *dbConn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, c.dialect.Rebind(query), args...)
}

// Tx is a transaction that rebinds placeholders for its dialect.
type Tx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.tx.ExecContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.tx.QueryContext(ctx, t.dialect.Rebind(query), args...)
}

func (t *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), args...)
}

// WithTx runs fn inside a transaction. Any error from fn rolls back.
func (s *DataService) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", "transaction", 0, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return storageErr("commit", "transaction", 0, err)
	}
	return nil
}
