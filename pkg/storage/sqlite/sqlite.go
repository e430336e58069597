// Package sqlite provides a storage backend on top of a single
// key/value table in an SQLite database.
package sqlite

import (
	"database/sql"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/the-maldridge/nbrew/pkg/storage"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS kv (
	k BLOB PRIMARY KEY,
	v BLOB NOT NULL
)`

type sqliteStore struct {
	db *sql.DB

	l hclog.Logger
}

func init() {
	storage.RegisterCallback(newFactory)
}

func newFactory() {
	storage.RegisterFactory("sqlite", newSQLiteStore)
}

func newSQLiteStore(l hclog.Logger) (storage.Storage, error) {
	p := os.Getenv("NBREW_SQLITE_PATH")
	if p == "" {
		l.Error("NBREW_SQLITE_PATH must be set")
		return nil, errors.New("required variable unset")
	}
	return open(l, p)
}

func open(l hclog.Logger, p string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't open database")
	}
	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't enable WAL mode")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "couldn't create schema")
	}

	return &sqliteStore{db: db, l: l.Named("sqlite")}, nil
}

func (s *sqliteStore) Get(k []byte) ([]byte, error) {
	var v []byte
	err := s.db.QueryRow("SELECT v FROM kv WHERE k = ?", k).Scan(&v)
	switch err {
	case nil:
		return v, nil
	case sql.ErrNoRows:
		return nil, nil
	default:
		return nil, err
	}
}

func (s *sqliteStore) Put(k, v []byte) error {
	_, err := s.db.Exec("INSERT INTO kv (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v", k, v)
	return err
}

func (s *sqliteStore) Del(k []byte) error {
	_, err := s.db.Exec("DELETE FROM kv WHERE k = ?", k)
	return err
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
