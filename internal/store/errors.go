package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned by Get lookups for a missing row.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateReply means the author already replied to the target.
	// Only raised when the unique reply index is installed.
	ErrDuplicateReply = errors.New("duplicate reply")

	// ErrDuplicateID means a post with the same id already exists.
	ErrDuplicateID = errors.New("duplicate post id")
)

// ReferenceError reports a post whose author or reply target does not
// resolve, or a reply that points at the author's own post.
type ReferenceError struct {
	Field  string // "author_handle" or "reply_target_id"
	Value  string
	Reason string
}

func (e *ReferenceError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Reason)
	}
	return fmt.Sprintf("unresolved %s %q", e.Field, e.Value)
}

// StorageError wraps a driver or I/O failure with the operation name.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsReferenceError reports whether err is (or wraps) a ReferenceError.
func IsReferenceError(err error) bool {
	var ref *ReferenceError
	return errors.As(err, &ref)
}

// classifyInsertError maps driver constraint violations onto the
// package sentinels. Anything else is returned unchanged.
func classifyInsertError(err error) error {
	var mattnErr sqlite3.Error
	if errors.As(err, &mattnErr) {
		switch mattnErr.ExtendedCode {
		case sqlite3.ErrConstraintPrimaryKey:
			return ErrDuplicateID
		case sqlite3.ErrConstraintUnique:
			return uniqueFromMessage(mattnErr.Error())
		}
		return err
	}

	var moderncErr *sqlite.Error
	if errors.As(err, &moderncErr) {
		switch moderncErr.Code() {
		case sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return ErrDuplicateID
		case sqlitelib.SQLITE_CONSTRAINT_UNIQUE:
			return uniqueFromMessage(moderncErr.Error())
		}
		if moderncErr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT && strings.Contains(moderncErr.Error(), "UNIQUE") {
			return uniqueFromMessage(moderncErr.Error())
		}
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case uniqueReplyIndex:
			return ErrDuplicateReply
		case "posts_pkey":
			return ErrDuplicateID
		}
	}
	return err
}

func uniqueFromMessage(msg string) error {
	if strings.Contains(msg, "reply_target_id") {
		return ErrDuplicateReply
	}
	return ErrDuplicateID
}
