// Package gsqlite is a [gstore.Store] backed by SQLite.
//
// The SQLite driver is chosen at build time:
// github.com/mattn/go-sqlite3 in cgo builds,
// and modernc.org/sqlite with the purego tag or without cgo.
package gsqlite

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime/trace"
	"strings"
	"sync/atomic"

	"github.com/gordian-engine/gledger/gstore"
)

// Store is a versioned key-value store in a SQLite database.
type Store struct {
	// The string "purego" or "cgo" depending on build tags.
	BuildType string

	// SQLite allows one writer at a time,
	// so writes go through a single-connection pool
	// and reads through a separate pool.
	ro, rw *sql.DB

	latest atomic.Pointer[head]
	closed atomic.Bool
}

// head is the latest committed version and its root hash.
type head struct {
	version  uint64
	rootHash []byte
}

var _ gstore.Store = (*Store)(nil)

// NewOnDiskStore opens or creates the database at dbPath.
func NewOnDiskStore(ctx context.Context, dbPath string) (*Store, error) {
	dbPath = filepath.Clean(dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %q: %w", dbPath, err)
		}

		// The startup pragmas fail without an existing file.
		// O_EXCL so that we never truncate a file created concurrently.
		f, err := os.OpenFile(dbPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return nil, fmt.Errorf("failed to create empty database file: %w", err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("failed to close new empty database file: %w", err)
		}
	}

	uri := "file:" + dbPath + "?mode=rw"
	rw, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		return nil, fmt.Errorf("error opening read-write database: %w", err)
	}

	// A single connection makes concurrent writers block instead of failing.
	rw.SetMaxOpenConns(1)

	// Persistent, and only relevant on disk.
	if _, err := rw.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("failed to set journal_mode=WAL: %w", err)
	}

	ro, err := sql.Open(sqliteDriverType, "file:"+dbPath+"?mode=ro")
	if err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("error opening read-only database: %w", err)
	}

	return newStore(ctx, ro, rw)
}

var inMemNameCounter atomic.Uint32

// NewInMemStore returns a store in a fresh in-memory database.
func NewInMemStore(ctx context.Context) (*Store, error) {
	// A unique name lets both pools share one in-memory database.
	dbName := fmt.Sprintf("gledger%d", inMemNameCounter.Add(1))
	uri := "file:" + dbName + "?mode=memory&cache=shared"

	// Immediate transactions take the write lock up front.
	rw, err := sql.Open(sqliteDriverType, uri+"&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("error opening read-write database: %w", err)
	}
	rw.SetMaxOpenConns(1)

	ro, err := sql.Open(sqliteDriverType, uri)
	if err != nil {
		_ = rw.Close()
		return nil, fmt.Errorf("error opening read-only database: %w", err)
	}

	// The pragma below is per connection, so keep exactly one.
	ro.SetMaxOpenConns(1)
	ro.SetMaxIdleConns(1)

	// Shared-cache readers otherwise fail with "table is locked" during a commit.
	// Uncommitted rows are never visible to a snapshot,
	// because every read is bounded by an already committed version.
	if _, err := ro.ExecContext(ctx, `PRAGMA read_uncommitted = true`); err != nil {
		_ = ro.Close()
		_ = rw.Close()
		return nil, fmt.Errorf("failed to set read_uncommitted: %w", err)
	}

	return newStore(ctx, ro, rw)
}

func newStore(ctx context.Context, ro, rw *sql.DB) (*Store, error) {
	s := &Store{
		BuildType: sqliteBuildType,
		ro:        ro,
		rw:        rw,
	}

	if err := s.open(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) open(ctx context.Context) error {
	if err := pragmasRW(ctx, s.rw); err != nil {
		return err
	}
	if err := migrate(ctx, s.rw); err != nil {
		return err
	}

	h := &head{
		version:  gstore.UninitializedVersion,
		rootHash: gstore.EmptyRootHash,
	}
	var v int64
	var rootHash []byte
	err := s.rw.QueryRowContext(
		ctx, `SELECT version, root_hash FROM versions ORDER BY version DESC LIMIT 1`,
	).Scan(&v, &rootHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// Uninitialized.
	case err != nil:
		return fmt.Errorf("failed to load latest version: %w", err)
	default:
		h.version = uint64(v)
		h.rootHash = rootHash
	}
	s.latest.Store(h)
	return nil
}

func pragmasRW(ctx context.Context, db *sql.DB) error {
	defer trace.StartRegion(ctx, "pragmasRW").End()

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON;`); err != nil {
		return fmt.Errorf("failed to set foreign keys on: %w", err)
	}

	// Recommended when opening a long-lived connection.
	if _, err := db.ExecContext(ctx, `PRAGMA optimize(0x10002);`); err != nil {
		return fmt.Errorf("failed to run startup PRAGMA optimize: %w", err)
	}
	return nil
}

// Close closes both connection pools.
// Snapshots obtained from s return errors after Close.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	errRO := s.ro.Close()
	if errRO != nil {
		errRO = fmt.Errorf("error closing read-only database: %w", errRO)
	}
	errRW := s.rw.Close()
	if errRW != nil {
		errRW = fmt.Errorf("error closing read-write database: %w", errRW)
	}
	return errors.Join(errRO, errRW)
}

func (s *Store) LatestVersion() uint64 {
	return s.latest.Load().version
}

func (s *Store) RootHash() []byte {
	return bytes.Clone(s.latest.Load().rootHash)
}

func (s *Store) LatestSnapshot() gstore.Snapshot {
	h := s.latest.Load()
	return &snapshot{s: s, version: h.version, rootHash: h.rootHash}
}

func (s *Store) Snapshot(ctx context.Context, version uint64) (gstore.Snapshot, error) {
	defer trace.StartRegion(ctx, "Snapshot").End()

	latest := s.latest.Load().version
	if latest == gstore.UninitializedVersion || version > latest {
		return nil, gstore.VersionNotFoundError{Want: version, Latest: latest}
	}

	if s.closed.Load() {
		return nil, gstore.ErrStoreClosed
	}

	var rootHash []byte
	if err := s.ro.QueryRowContext(
		ctx, `SELECT root_hash FROM versions WHERE version = ?`, int64(version),
	).Scan(&rootHash); err != nil {
		return nil, fmt.Errorf("failed to load root hash for version %d: %w", version, err)
	}

	return &snapshot{s: s, version: version, rootHash: rootHash}, nil
}

func (s *Store) Commit(ctx context.Context, changes []gstore.Change) (uint64, []byte, error) {
	defer trace.StartRegion(ctx, "Commit").End()

	if s.closed.Load() {
		return 0, nil, gstore.ErrStoreClosed
	}

	normalized, err := gstore.NormalizeChanges(changes)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid change set: %w", err)
	}

	prev := s.latest.Load()
	next := gstore.NextVersion(prev.version)
	if next > math.MaxInt64 {
		return 0, nil, fmt.Errorf("version %d exceeds the sqlite integer range", next)
	}

	tx, err := s.rw.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// The real root hash is filled in once the entries are written.
	if _, err := tx.ExecContext(
		ctx, `INSERT INTO versions(version, root_hash) VALUES (?, x'')`, int64(next),
	); err != nil {
		if isPrimaryKeyConstraintError(err) {
			return 0, nil, fmt.Errorf(
				"version %d was already committed by another writer: %w", next, err,
			)
		}
		return 0, nil, fmt.Errorf("failed to insert version %d: %w", next, err)
	}

	if err := insertChanges(ctx, tx, next, normalized); err != nil {
		return 0, nil, err
	}

	entries, err := scanLive(ctx, tx, nil, next)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to read back version %d: %w", next, err)
	}
	rootHash, err := gstore.HashEntries(entries)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to hash version %d: %w", next, err)
	}

	if _, err := tx.ExecContext(
		ctx, `UPDATE versions SET root_hash = ? WHERE version = ?`, rootHash, int64(next),
	); err != nil {
		return 0, nil, fmt.Errorf("failed to set root hash for version %d: %w", next, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("failed to commit version %d: %w", next, err)
	}

	s.latest.Store(&head{version: next, rootHash: rootHash})
	return next, bytes.Clone(rootHash), nil
}

func insertChanges(ctx context.Context, tx *sql.Tx, version uint64, changes []gstore.Change) error {
	if len(changes) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(
		ctx, `INSERT INTO entries(key, version, deleted, value) VALUES (?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range changes {
		var deleted int
		var value any
		if c.Delete {
			deleted = 1
		} else {
			// A non-nil slice so that an empty value is not stored as NULL.
			value = append([]byte{}, c.Value...)
		}
		if _, err := stmt.ExecContext(ctx, c.Key, int64(version), deleted, value); err != nil {
			return fmt.Errorf("failed to write key %x: %w", c.Key, err)
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// scanLive returns the live entries at version whose keys start with prefix.
func scanLive(ctx context.Context, q querier, prefix []byte, version uint64) ([]gstore.Entry, error) {
	var where []string
	var args []any

	// Keys are always bound as blobs, which SQLite compares with memcmp.
	if len(prefix) > 0 {
		where = append(where, `e.key >= ?`)
		args = append(args, prefix)
		if end := gstore.PrefixEnd(prefix); end != nil {
			where = append(where, `e.key < ?`)
			args = append(args, end)
		}
	}
	where = append(where, `e.version = (
    SELECT MAX(i.version) FROM entries i WHERE i.key = e.key AND i.version <= ?
  )`, `e.deleted = 0`)
	args = append(args, int64(version))

	rows, err := q.QueryContext(
		ctx,
		`SELECT e.key, e.value FROM entries e WHERE `+
			strings.Join(where, " AND ")+
			` ORDER BY e.key`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []gstore.Entry
	for rows.Next() {
		var e gstore.Entry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		if e.Value == nil {
			e.Value = []byte{}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}
	return out, nil
}
