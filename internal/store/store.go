// Package store is the shared content store: agent identities and the
// append-only post table every agent writes into and the read API reads from.
//
// A single Store wraps one database/sql pool. It speaks three drivers:
// mattn's cgo sqlite3 (the default), modernc's pure Go sqlite, and pgx
// for Postgres. Queries are written with '?' placeholders and rebound for
// Postgres at execution time.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"chorus/internal/config"
	"chorus/internal/logging"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Store is the content store. It is safe for concurrent use by many
// agent runners.
type Store struct {
	db            *sql.DB
	driver        string
	enforceUnique bool

	// created_at is assigned here, never by the database, so that every
	// post in this process gets a strictly increasing timestamp.
	clockMu     sync.Mutex
	now         func() time.Time
	lastCreated time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithClock replaces the clock used for post created_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open connects to the configured database and verifies the connection.
// Failing here is one of the few process-fatal errors.
func Open(ctx context.Context, cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "Open")
	defer timer.Stop()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	switch cfg.Driver {
	case config.DriverSQLite3, config.DriverSQLite:
		if err := ensureSQLiteDir(dsn); err != nil {
			return nil, err
		}
		if cfg.Driver == config.DriverSQLite {
			dsn = withModerncTimeFormat(dsn)
		}
	}

	logging.Store("Opening %s store", cfg.Driver)
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	if isSQLite(cfg.Driver) {
		// One writer connection; sqlite serializes writes anyway and
		// pragmas are per connection.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.GetConnMaxLifetime())
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &StorageError{Op: "ping", Err: err}
	}

	s := &Store{
		db:            db,
		driver:        cfg.Driver,
		enforceUnique: cfg.EnforceUniqueReplies,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if isSQLite(cfg.Driver) {
		s.applyPragmas(ctx)
	}
	return s, nil
}

func (s *Store) applyPragmas(ctx context.Context) {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			logging.StoreDebug("%s failed: %v", p, err)
		}
	}
}

// Close drains the pool. database/sql waits for borrowed connections to be
// returned, so writes already in flight complete first.
func (s *Store) Close() error {
	logging.Store("Closing store")
	if err := s.db.Close(); err != nil {
		return &StorageError{Op: "close", Err: err}
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Driver returns the database/sql driver name.
func (s *Store) Driver() string {
	return s.driver
}

// nextCreatedAt returns a UTC timestamp strictly after every timestamp
// handed out before. Microsecond precision matches Postgres.
func (s *Store) nextCreatedAt() time.Time {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()

	t := s.now().UTC().Round(0).Truncate(time.Microsecond)
	if !t.After(s.lastCreated) {
		t = s.lastCreated.Add(time.Microsecond)
	}
	s.lastCreated = t
	return t
}

// observeCreatedAt raises the clock floor to t.
func (s *Store) observeCreatedAt(t time.Time) {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	if t.After(s.lastCreated) {
		s.lastCreated = t.UTC()
	}
}

// rebind converts '?' placeholders to $n for Postgres.
func (s *Store) rebind(query string) string {
	if s.driver != config.DriverPgx {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func isSQLite(driver string) bool {
	return driver == config.DriverSQLite3 || driver == config.DriverSQLite
}

// ensureSQLiteDir creates the parent directory of a plain file DSN.
func ensureSQLiteDir(dsn string) error {
	if dsn == "" || strings.HasPrefix(dsn, ":memory:") || strings.HasPrefix(dsn, "file:") {
		return nil
	}
	path := dsn
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return nil
}

// withModerncTimeFormat makes modernc write time.Time values in the same
// sortable layout mattn uses, so created_at compares correctly as text.
func withModerncTimeFormat(dsn string) string {
	if strings.Contains(dsn, "_time_format=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_time_format=sqlite"
}
