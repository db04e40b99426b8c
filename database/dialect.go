package database

import (
	"context"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// Dialect hides the differences between the supported SQL backends.
type Dialect interface {
	// Name is the value accepted by ParseDialect.
	Name() string
	// DriverName is the database/sql driver to open.
	DriverName() string
	// DSN decorates a user supplied data source name with required options.
	DSN(raw string) string
	// Rebind converts ? placeholders to the backend's native form.
	Rebind(query string) string
	// SchemaDir is the embedded directory holding this backend's migrations.
	SchemaDir() string
	// ForUpdate is the row locking suffix for SELECTs inside a transaction.
	ForUpdate() string
	// LockLane serializes writers of one (board, lane) pair for the rest of the transaction.
	LockLane(ctx context.Context, tx *Tx, boardID int64, lane string) error
}

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// ParseDialect returns the dialect for a DB_DRIVER value.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DialectSQLite, "sqlite3":
		return SQLite(), nil
	case DialectPostgres, "postgresql", "pgx":
		return Postgres(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", name)
	}
}

type sqliteDialect struct{}

// SQLite returns the dialect for mattn/go-sqlite3.
func SQLite() Dialect { return sqliteDialect{} }

func (sqliteDialect) Name() string       { return DialectSQLite }
func (sqliteDialect) DriverName() string { return "sqlite3" }
func (sqliteDialect) SchemaDir() string  { return "schema" }
func (sqliteDialect) ForUpdate() string  { return "" }

func (sqliteDialect) Rebind(query string) string { return query }

// DSN enables foreign keys and WAL, and makes every transaction BEGIN
// IMMEDIATE so the write lock is taken before lane rows are read.
func (sqliteDialect) DSN(raw string) string {
	if raw == "" {
		raw = "./planarc.db"
	}
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
		"_txlock=immediate",
		"_journal_mode=WAL",
	}
	var keep []string
	for _, p := range params {
		key := p[:strings.Index(p, "=")+1]
		if !strings.Contains(raw, key) {
			keep = append(keep, p)
		}
	}
	if len(keep) == 0 {
		return raw
	}
	sep := "?"
	if strings.Contains(raw, "?") {
		sep = "&"
	}
	return raw + sep + strings.Join(keep, "&")
}

// The IMMEDIATE transaction already holds the database write lock.
func (sqliteDialect) LockLane(context.Context, *Tx, int64, string) error { return nil }

type postgresDialect struct{}

// Postgres returns the dialect for jackc/pgx through database/sql.
func Postgres() Dialect { return postgresDialect{} }

func (postgresDialect) Name() string          { return DialectPostgres }
func (postgresDialect) DriverName() string    { return "pgx" }
func (postgresDialect) SchemaDir() string     { return "schema/postgres" }
func (postgresDialect) ForUpdate() string     { return " FOR UPDATE" }
func (postgresDialect) DSN(raw string) string { return raw }

func (postgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	inQuote := false
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			b.WriteByte(c)
		case c == '?' && !inQuote:
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func (postgresDialect) LockLane(ctx context.Context, tx *Tx, boardID int64, lane string) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(?)", laneLockKey(boardID, lane))
	if err != nil {
		return fmt.Errorf("failed to lock lane %q: %w", lane, err)
	}
	return nil
}

// laneLockKey folds the full board id and the lane name into one bigint
// advisory lock key. Distinct pairs may still collide, which only makes two
// unrelated lanes wait on each other.
func laneLockKey(boardID int64, lane string) int64 {
	h := fnv.New64a()
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(boardID))
	h.Write(id[:])
	h.Write([]byte(lane))
	return int64(h.Sum64())
}
