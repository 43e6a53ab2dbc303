package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"

	"obras/internal/derive"
	"obras/internal/lifecycle"
)

// Sentinel errors returned (wrapped) by the store.
var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid input")
	ErrConflict = errors.New("conflict")
	ErrInUse    = errors.New("still referenced")
)

// errOrderTaken signals that a concurrent creator took the order number first.
var errOrderTaken = errors.New("order number already taken")

const timeLayout = "2006-01-02T15:04:05.000Z"

// Store wraps access to the SQLite database and exposes high level helpers.
type Store struct {
	db              *sql.DB
	logger          *slog.Logger
	clock           lifecycle.Clock
	retryMaxElapsed time.Duration
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the wall clock used for start, completion and seeding dates.
func WithClock(c lifecycle.Clock) Option {
	return func(s *Store) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithRetryMaxElapsed bounds how long busy or order-number conflicts are retried.
func WithRetryMaxElapsed(d time.Duration) Option {
	return func(s *Store) { s.retryMaxElapsed = d }
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open initializes a new SQLite store and runs the required migrations.
func Open(dbPath string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("empty database path")
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=ON", dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// A single connection serializes every transaction.
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	s := &Store{
		db:              conn,
		logger:          logger,
		clock:           lifecycle.SystemClock{},
		retryMaxElapsed: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the database resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// withTx runs fn inside a transaction. fn must only use tx: the pool has a
// single connection and reaching for s.db would block.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// retry repeats op with exponential backoff while it fails with a busy database
// or a lost order-number race.
func (s *Store) retry(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = s.retryMaxElapsed

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryable(err) {
			s.logger.Debug("retrying store operation", slog.String("error", err.Error()))
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func isRetryable(err error) bool {
	if errors.Is(err, errOrderTaken) {
		return true
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// isForeignKeyViolation also matches failures raised while a trigger runs
// inside a cascading action, which SQLite reports as a trigger constraint.
func isForeignKeyViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	if se.ExtendedCode == sqlite3.ErrConstraintForeignKey {
		return true
	}
	return se.Code == sqlite3.ErrConstraint && strings.Contains(se.Error(), "FOREIGN KEY")
}

func isCheckViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintCheck
}

// wrapDBError adds operation context and maps driver errors onto the store's
// sentinels. A foreign key failure on insert or update means a referenced row
// is missing.
func wrapDBError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case isForeignKeyViolation(err):
		return fmt.Errorf("%s: referenced record does not exist: %w", op, ErrNotFound)
	case isCheckViolation(err):
		return fmt.Errorf("%s: %w", op, ErrInvalid)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// wrapDeleteError is wrapDBError for deletes, where a foreign key failure means
// dependent rows still point at the record.
func wrapDeleteError(op string, err error) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%s: %w", op, ErrInUse)
	}
	return wrapDBError(op, err)
}

// requireAffected turns a zero-row mutation into ErrNotFound.
func requireAffected(res sql.Result, what string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

// parseTime reads a stored text timestamp. Unparseable values are absent.
func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t, ok := derive.ParseDate(ns.String, time.UTC)
	if !ok {
		return nil
	}
	t = t.UTC()
	return &t
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullInt64(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

// trimmed returns nil for nil or blank strings.
func trimmed(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

// likeEscape is the ESCAPE character paired with escapeLike.
const likeEscape = `\`

// escapeLike quotes LIKE wildcards so v matches literally. Use with
// ESCAPE '\'.
func escapeLike(v string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(v)
}

// likeContains is the argument for a substring LIKE match on v.
func likeContains(v string) string {
	return "%" + escapeLike(v) + "%"
}

func anyOrNil[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

// setClause accumulates column assignments for partial updates. Column names
// are always literals from this package.
type setClause struct {
	cols []string
	args []any
}

func (c *setClause) add(col string, v any) {
	c.cols = append(c.cols, col+" = ?")
	c.args = append(c.args, v)
}

func (c *setClause) empty() bool { return len(c.cols) == 0 }

func (c *setClause) sql() string { return strings.Join(c.cols, ", ") }
