package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/danmuck/magicctl/internal/config"
	"github.com/go-sql-driver/mysql"
)

var (
	ErrNotFound          = errors.New("store: not found")
	ErrInvalidIdentifier = errors.New("store: invalid identifier")
	ErrUnsupported       = errors.New("store: unsupported by dialect")
)

// Dialect selects the few statements that differ between engines.
type Dialect int

const (
	MySQL Dialect = iota
	SQLite
)

func (d Dialect) String() string {
	if d == SQLite {
		return "sqlite"
	}
	return "mysql"
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is one database handle.
type Store struct {
	db      *sql.DB
	dialect Dialect
	name    string
}

func New(db *sql.DB, dialect Dialect, name string) *Store {
	return &Store{db: db, dialect: dialect, name: name}
}

// Open opens and pings a MySQL database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", parsed.Addr, err)
	}
	return New(db, MySQL, parsed.DBName), nil
}

// DSN builds a go-sql-driver DSN for dbname on host.
func DSN(cfg config.Database, host, dbname string) (string, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = host
	mc.DBName = dbname
	if strings.TrimSpace(cfg.Params) != "" {
		values, err := url.ParseQuery(cfg.Params)
		if err != nil {
			return "", fmt.Errorf("parse params: %w", err)
		}
		mc.Params = make(map[string]string, len(values))
		for key := range values {
			mc.Params[key] = values.Get(key)
		}
	}
	return mc.FormatDSN(), nil
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Name is the database this handle points at, empty for server-level handles.
func (s *Store) Name() string {
	return s.name
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// TableExists reports whether table exists in the current database.
func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	if !validIdent(table) {
		return false, fmt.Errorf("%w: %q", ErrInvalidIdentifier, table)
	}
	var query string
	switch s.dialect {
	case SQLite:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
	default:
		query = "SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, table).Scan(&n); err != nil {
		return false, fmt.Errorf("table exists %s: %w", table, err)
	}
	return n > 0, nil
}

// ColumnExists reports whether table has column.
func (s *Store) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	if !validIdent(table) || !validIdent(column) {
		return false, fmt.Errorf("%w: %q.%q", ErrInvalidIdentifier, table, column)
	}
	var query string
	switch s.dialect {
	case SQLite:
		query = "SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?"
	default:
		query = "SELECT COUNT(*) FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ? AND COLUMN_NAME = ?"
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, table, column).Scan(&n); err != nil {
		return false, fmt.Errorf("column exists %s.%s: %w", table, column, err)
	}
	return n > 0, nil
}

// Update sets columns on rows matching where and returns the affected count.
func (s *Store) Update(ctx context.Context, table string, set, where map[string]any) (int64, error) {
	return update(ctx, s.db, table, set, where)
}

// Delete removes rows matching where and returns the affected count.
func (s *Store) Delete(ctx context.Context, table string, where map[string]any) (int64, error) {
	return deleteRows(ctx, s.db, table, where)
}

// Insert adds one row.
func (s *Store) Insert(ctx context.Context, table string, row map[string]any) error {
	return insert(ctx, s.db, table, row)
}

func update(ctx context.Context, ex execer, table string, set, where map[string]any) (int64, error) {
	if len(set) == 0 {
		return 0, nil
	}
	setSQL, setArgs, err := assignments(set, ", ")
	if err != nil {
		return 0, err
	}
	whereSQL, whereArgs, err := conditions(where)
	if err != nil {
		return 0, err
	}
	tbl, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}
	query := "UPDATE " + tbl + " SET " + setSQL + whereSQL
	res, err := ex.ExecContext(ctx, query, append(setArgs, whereArgs...)...)
	if err != nil {
		return 0, fmt.Errorf("update %s: %w", table, err)
	}
	return rowsAffected(res), nil
}

func deleteRows(ctx context.Context, ex execer, table string, where map[string]any) (int64, error) {
	whereSQL, args, err := conditions(where)
	if err != nil {
		return 0, err
	}
	tbl, err := quoteIdent(table)
	if err != nil {
		return 0, err
	}
	res, err := ex.ExecContext(ctx, "DELETE FROM "+tbl+whereSQL, args...)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return rowsAffected(res), nil
}

func insert(ctx context.Context, ex execer, table string, row map[string]any) error {
	if len(row) == 0 {
		return fmt.Errorf("insert into %s: no columns", table)
	}
	tbl, err := quoteIdent(table)
	if err != nil {
		return err
	}
	cols := sortedKeys(row)
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		q, err := quoteIdent(col)
		if err != nil {
			return err
		}
		quoted[i] = q
		marks[i] = "?"
		args[i] = row[col]
	}
	query := "INSERT INTO " + tbl + " (" + strings.Join(quoted, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	if _, err := ex.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert into %s: %w", table, err)
	}
	return nil
}

// conditions renders an AND of equality tests. An empty map matches nothing.
func conditions(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, fmt.Errorf("%w: empty where clause", ErrInvalidIdentifier)
	}
	clause, args, err := assignments(where, " AND ")
	if err != nil {
		return "", nil, err
	}
	return " WHERE " + clause, args, nil
}

func assignments(values map[string]any, sep string) (string, []any, error) {
	cols := sortedKeys(values)
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, col := range cols {
		q, err := quoteIdent(col)
		if err != nil {
			return "", nil, err
		}
		parts[i] = q + " = ?"
		args[i] = values[col]
	}
	return strings.Join(parts, sep), args, nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}

func sortedKeys(values map[string]any) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func quoteIdent(name string) (string, error) {
	if !validIdent(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, name)
	}
	return "`" + name + "`", nil
}

// validIdent accepts unqualified identifiers made of letters, digits, underscore
// and dollar.
func validIdent(name string) bool {
	if name == "" || len(name) > 128 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '$':
		default:
			return false
		}
	}
	return true
}
