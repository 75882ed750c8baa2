package config

import (
	"fmt"
	"net"
	"net/url"
	"time"
)

// Supported database/sql driver names.
const (
	DriverSQLite3 = "sqlite3" // github.com/mattn/go-sqlite3 (cgo)
	DriverSQLite  = "sqlite"  // modernc.org/sqlite (pure Go)
	DriverPgx     = "pgx"     // github.com/jackc/pgx/v5/stdlib
)

// DatabaseConfig configures the shared content store pool.
type DatabaseConfig struct {
	Driver          string `yaml:"driver"`
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`

	// EnforceUniqueReplies adds a unique index on (author_handle, reply_target_id)
	// so that two racing reply cycles cannot both land.
	EnforceUniqueReplies bool `yaml:"enforce_unique_replies"`
}

// Validate checks the driver name and DSN.
func (d DatabaseConfig) Validate() error {
	switch d.Driver {
	case DriverSQLite3, DriverSQLite, DriverPgx:
	default:
		return fmt.Errorf("invalid database driver %q (valid: %s, %s, %s)", d.Driver, DriverSQLite3, DriverSQLite, DriverPgx)
	}
	if d.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	return nil
}

// GetConnMaxLifetime returns the connection lifetime as a duration.
func (d DatabaseConfig) GetConnMaxLifetime() time.Duration {
	return parseDuration(d.ConnMaxLifetime, 30*time.Minute)
}

// postgresDSN builds a pgx URL from discrete settings. TLS is required
// but not verified, matching the hosted database the bots were built for.
func postgresDSN(user, password, host, port, database string) string {
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     net.JoinHostPort(host, port),
		Path:     "/" + database,
		RawQuery: "sslmode=require",
	}
	if user != "" {
		if password != "" {
			u.User = url.UserPassword(user, password)
		} else {
			u.User = url.User(user)
		}
	}
	return u.String()
}
