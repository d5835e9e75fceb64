package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// State is the lifecycle state of the shared connection.
type State int

const (
	StateUnopened State = iota
	StateOpening
	StateOpen
	StateBlocked
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Config locates the database file and the schema version to open it at.
type Config struct {
	DataDir     string
	Name        string
	Version     int
	BusyTimeout time.Duration
}

// Path is the database file location.
func (c Config) Path() string {
	return filepath.Join(c.DataDir, c.Name+".db")
}

func (c Config) dsn() string {
	busy := c.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		c.Path(), busy.Milliseconds())
}

type Option func(*Database)

// WithJournal appends every committed write to j.
func WithJournal(j *Journal) Option {
	return func(db *Database) { db.journal = j }
}

// WithMetrics records per-operation counters and latencies in m.
func WithMetrics(m *Metrics) Option {
	return func(db *Database) { db.metrics = m }
}

// WithValidator replaces the default record validator.
func WithValidator(v *validator.Validate) Option {
	return func(db *Database) { db.validate = v }
}

// pendingOpen is the single in-flight open attempt every concurrent caller
// waits on.
type pendingOpen struct {
	done chan struct{}
	conn *sql.DB
	err  error
}

// Database is the process-wide handle on one versioned store. It opens the
// underlying file on first use and reopens it after Reset.
type Database struct {
	cfg      Config
	schema   *Schema
	logger   *zap.SugaredLogger
	journal  *Journal
	metrics  *Metrics
	validate *validator.Validate

	mu      sync.Mutex
	state   State
	conn    *sql.DB
	pending *pendingOpen
	lastErr error
}

// NewDatabase prepares a store for schema. Nothing is opened until the first
// operation. A zero cfg.Version opens at the schema's latest version.
func NewDatabase(cfg Config, schema *Schema, logger *zap.SugaredLogger, opts ...Option) (*Database, error) {
	if schema == nil {
		return nil, fmt.Errorf("schema cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Name == "" {
		return nil, fmt.Errorf("database name cannot be empty")
	}
	if cfg.Version == 0 {
		cfg.Version = schema.LatestVersion()
	}
	if cfg.Version < 1 {
		return nil, fmt.Errorf("invalid schema version %d", cfg.Version)
	}
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}

	db := &Database{
		cfg:      cfg,
		schema:   schema,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

func (db *Database) Config() Config { return db.cfg }

func (db *Database) Schema() *Schema { return db.schema }

// State reports the current connection state.
func (db *Database) State() State {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.state
}

// LastOpenError is the result of the most recent open attempt.
func (db *Database) LastOpenError() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.lastErr
}

// Open forces the connection open. Operations call it implicitly.
func (db *Database) Open(ctx context.Context) error {
	_, err := db.connection(ctx)
	return err
}

// connection returns the shared connection, opening it if needed. Callers
// arriving while an open is in flight wait for that attempt instead of
// starting their own.
func (db *Database) connection(ctx context.Context) (*sql.DB, error) {
	db.mu.Lock()
	if db.state == StateOpen && db.conn != nil {
		conn := db.conn
		db.mu.Unlock()
		return conn, nil
	}
	p := db.pending
	if p == nil {
		p = &pendingOpen{done: make(chan struct{})}
		db.pending = p
		db.state = StateOpening
		go db.openAsync(p)
	}
	db.mu.Unlock()

	select {
	case <-p.done:
		return p.conn, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// openAsync runs detached from any caller's context: a caller giving up must
// not cancel the attempt the others are waiting on.
func (db *Database) openAsync(p *pendingOpen) {
	conn, err := db.open(context.Background())

	db.mu.Lock()
	p.conn, p.err = conn, err
	db.pending = nil
	switch {
	case err == nil:
		db.conn = conn
		db.state = StateOpen
	case errors.Is(err, ErrBlocked):
		db.state = StateBlocked
	default:
		db.state = StateUnopened
	}
	db.lastErr = err
	db.mu.Unlock()
	close(p.done)
}

func (db *Database) open(ctx context.Context) (*sql.DB, error) {
	path := db.cfg.Path()
	conn, err := sql.Open("sqlite", db.cfg.dsn())
	if err != nil {
		return nil, &Error{Op: "open", Kind: ErrOpen, Err: err}
	}
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, &Error{Op: "open", Kind: ErrOpen, Err: fmt.Errorf("failed to open %s: %w", path, err)}
	}

	stored, err := readVersion(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, &Error{Op: "open", Kind: ErrOpen, Err: err}
	}
	if stored > db.cfg.Version {
		conn.Close()
		return nil, &Error{Op: "open", Kind: ErrVersion,
			Err: fmt.Errorf("%s is at version %d, requested %d", path, stored, db.cfg.Version)}
	}
	if stored < db.cfg.Version {
		if err := db.upgrade(ctx, conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	db.logger.Infow("Opened database", "path", path, "version", db.cfg.Version)
	return conn, nil
}

// upgrade takes the write lock up front so a concurrent session surfaces as
// ErrBlocked rather than a half-applied upgrade. The stored version is read
// again under the lock since another session may have upgraded meanwhile.
func (db *Database) upgrade(ctx context.Context, conn *sql.DB) error {
	c, err := conn.Conn(ctx)
	if err != nil {
		return &Error{Op: "upgrade", Kind: ErrOpen, Err: err}
	}
	defer c.Close()

	if _, err := c.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		if isBusy(err) {
			db.logger.Warnw("Schema upgrade blocked by another session", "path", db.cfg.Path())
			return &Error{Op: "upgrade", Kind: ErrBlocked, Err: err}
		}
		return &Error{Op: "upgrade", Kind: ErrOpen, Err: err}
	}

	stored, err := readVersion(ctx, c)
	if err == nil && stored < db.cfg.Version {
		var stats UpgradeStats
		stats, err = db.schema.Upgrade(ctx, c, stored, db.cfg.Version, db.logger)
		if err == nil {
			db.logger.Infow("Upgraded schema",
				"from", stored, "to", db.cfg.Version,
				"collectionsCreated", stats.CollectionsCreated,
				"indexesCreated", stats.IndexesCreated,
				"skipped", stats.Skipped)
		}
	}
	if err != nil {
		c.ExecContext(ctx, "ROLLBACK")
		if isBusy(err) {
			return &Error{Op: "upgrade", Kind: ErrBlocked, Err: err}
		}
		return &Error{Op: "upgrade", Kind: ErrOpen, Err: err}
	}
	if _, err := c.ExecContext(ctx, "COMMIT"); err != nil {
		c.ExecContext(ctx, "ROLLBACK")
		if isBusy(err) {
			return &Error{Op: "upgrade", Kind: ErrBlocked, Err: err}
		}
		return &Error{Op: "upgrade", Kind: ErrOpen, Err: err}
	}
	return nil
}

// Reset forgets the memoized connection so the next operation reopens the
// file.
func (db *Database) Reset() {
	db.mu.Lock()
	conn := db.conn
	db.mu.Unlock()
	if conn != nil {
		db.reset(conn)
	}
}

// reset forgets conn after an operation found it closed. A connection that
// has already been replaced by a reopen is left alone, so a late failure
// from the old one cannot tear down the new one.
func (db *Database) reset(conn *sql.DB) {
	db.mu.Lock()
	if db.conn != conn {
		db.mu.Unlock()
		return
	}
	db.conn = nil
	if db.state == StateOpen {
		db.state = StateTerminated
	}
	db.mu.Unlock()

	conn.Close()
	db.logger.Infow("Database connection reset", "path", db.cfg.Path())
}

// Close releases the connection. An open still in flight is waited for and
// then closed. The Database can still be reopened by a later operation.
func (db *Database) Close() error {
	db.mu.Lock()
	p := db.pending
	db.mu.Unlock()
	if p != nil {
		<-p.done
	}

	db.mu.Lock()
	conn := db.conn
	db.conn = nil
	db.state = StateUnopened
	db.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	if db.journal != nil {
		if jerr := db.journal.Close(); err == nil {
			err = jerr
		}
	}
	return err
}

// call describes one logical operation for error qualification, logging,
// metrics and the journal.
type call struct {
	op         string
	collection string
	key        string
	index      string
	kind       error
	write      bool
}

// Scope runs store operations. *Database gives each operation its own
// transaction; *Tx runs them inside a shared one.
type Scope interface {
	exec(ctx context.Context, c call, fn func(context.Context, execer) error) error
}

func (db *Database) exec(ctx context.Context, c call, fn func(context.Context, execer) error) (err error) {
	start := time.Now()
	defer func() { db.observe(c, start, err) }()

	conn, err := db.connection(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return db.fail(nil, c, c.kind, err)
		}
		return db.fail(nil, c, connectionKind(err), err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return db.fail(conn, c, c.kind, err)
	}
	written := c.write
	if err := fn(ctx, tx); errors.Is(err, errUnchanged) {
		written = false
	} else if err != nil {
		tx.Rollback()
		return db.fail(conn, c, c.kind, err)
	}
	if err := tx.Commit(); err != nil {
		return db.fail(conn, c, c.kind, err)
	}
	if written {
		db.record(c)
	}
	return nil
}

// fail qualifies err with the call, maps engine-level causes onto their
// kinds and resets conn, the connection the call ran on, when it has gone
// away. conn is nil when the call never got a connection.
func (db *Database) fail(conn *sql.DB, c call, kind error, err error) error {
	var ke *kindError
	if errors.As(err, &ke) {
		kind, err = ke.kind, ke.err
	}
	switch {
	case isConstraint(err):
		kind = ErrConstraint
	case isClosed(err):
		kind = ErrTerminated
		if conn != nil {
			db.reset(conn)
		}
	}
	db.logger.Errorw("Store operation failed",
		"op", c.op,
		"collection", c.collection,
		"key", c.key,
		"index", c.index,
		"error", err)
	return &Error{Op: c.op, Collection: c.collection, Key: c.key, Index: c.index, Kind: kind, Err: err}
}

// errUnchanged is returned by a write body that found nothing to write. The
// transaction still commits but nothing is journaled.
var errUnchanged = errors.New("unchanged")

// kindError lets an operation body pick the kind its failure is reported as.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

func (db *Database) observe(c call, start time.Time, err error) {
	if db.metrics == nil {
		return
	}
	db.metrics.observe(c.op, c.collection, err, time.Since(start))
}

func (db *Database) record(c call) {
	if db.journal == nil {
		return
	}
	if err := db.journal.AddEntry(c.op, c.collection, c.key); err != nil {
		db.logger.Warnw("Failed to write journal entry", "op", c.op, "collection", c.collection, "error", err)
	}
}

// Tx is a transaction spanning any number of collections. Operations passed
// a *Tx commit or roll back together.
type Tx struct {
	db      *Database
	conn    *sql.DB
	tx      *sql.Tx
	pending []call
}

// RunInTransaction runs fn in one transaction and commits if it returns nil.
// fn must issue its operations through tx; operations on db itself would
// wait for the connection tx is holding.
func (db *Database) RunInTransaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	c := call{op: "transaction", kind: ErrWrite}
	start := time.Now()
	defer func() { db.observe(c, start, err) }()

	conn, err := db.connection(ctx)
	if err != nil {
		return db.fail(nil, c, connectionKind(err), err)
	}
	sqlTx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return db.fail(conn, c, ErrWrite, err)
	}

	tx := &Tx{db: db, conn: conn, tx: sqlTx}
	if err := fn(tx); err != nil {
		sqlTx.Rollback()
		if isClosed(err) {
			db.reset(conn)
		}
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return db.fail(conn, c, ErrWrite, err)
	}
	for _, pc := range tx.pending {
		db.record(pc)
	}
	return nil
}

func (tx *Tx) exec(ctx context.Context, c call, fn func(context.Context, execer) error) (err error) {
	start := time.Now()
	defer func() { tx.db.observe(c, start, err) }()

	err = fn(ctx, tx.tx)
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return tx.db.fail(tx.conn, c, c.kind, err)
	}
	if c.write {
		tx.pending = append(tx.pending, c)
	}
	return nil
}
