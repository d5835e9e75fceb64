package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Error kinds. Every failure returned by the store matches exactly one of
// them with errors.Is.
var (
	// ErrOpen is returned when the database file cannot be opened at all.
	ErrOpen = errors.New("failed to open database")
	// ErrBlocked means a schema upgrade could not take the write lock because
	// another session holds it. Close the other session and retry.
	ErrBlocked = errors.New("database upgrade blocked by another open session")
	// ErrTerminated means the connection was closed underneath the store. The
	// next operation reopens it.
	ErrTerminated = errors.New("database connection terminated")
	// ErrVersion means the stored schema is newer than the requested version.
	ErrVersion = errors.New("stored schema version is newer than requested")

	ErrConstraint = errors.New("failed to add: key already exists")
	ErrLookup     = errors.New("failed to look up record")
	ErrRead       = errors.New("failed to read records")
	ErrWrite      = errors.New("failed to write records")
	ErrValidation = errors.New("record failed validation")
)

// Error qualifies a store failure with the operation and collection it came
// from.
type Error struct {
	Op         string
	Collection string
	Key        string
	Index      string
	Kind       error
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Collection != "" {
		fmt.Fprintf(&b, " %s", e.Collection)
	}
	if e.Index != "" {
		fmt.Fprintf(&b, " index %s", e.Index)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key %q", e.Key)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// connectionKinds are the kinds an open attempt can fail with; they survive
// re-qualification by the operation that triggered the open.
var connectionKinds = []error{ErrBlocked, ErrVersion, ErrTerminated, ErrOpen}

func connectionKind(err error) error {
	for _, kind := range connectionKinds {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return ErrOpen
}

func sqliteCode(err error) int {
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		return serr.Code() & 0xff
	}
	return 0
}

func isConstraint(err error) bool {
	return sqliteCode(err) == sqlite3.SQLITE_CONSTRAINT
}

func isBusy(err error) bool {
	code := sqliteCode(err)
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// isClosed reports whether err means the *sql.DB or its connection is gone.
// database/sql does not export its "closed" error, so the message is matched.
func isClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) {
		return true
	}
	return strings.Contains(err.Error(), "sql: database is closed")
}
