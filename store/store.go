// Package store persists solved qualifiers in a SQLite database, for
// sessions in which users inspect the results of a run and pin
// qualifiers that the next run should respect.
//
// The database has three tables. decls and levels hold the solution of
// the last saved run and are replaced wholesale by SaveAssignment.
// overrides is owned by the user: rows are only ever added, by AddOverride
// or by external tools, and read back by LoadOverrides.
package store

import (
	"database/sql"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	"honnef.co/go/cconv/c/ast"
	"honnef.co/go/cconv/constraints"
	"honnef.co/go/cconv/program"
)

const schema = `
CREATE TABLE IF NOT EXISTS decls (
	id      TEXT PRIMARY KEY,
	pos     TEXT NOT NULL UNIQUE,
	file    TEXT NOT NULL,
	name    TEXT NOT NULL,
	kind    TEXT NOT NULL,
	type    TEXT NOT NULL,
	bounds  TEXT NOT NULL DEFAULT '',
	changed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS levels (
	decl      TEXT NOT NULL REFERENCES decls(id),
	level     INTEGER NOT NULL,
	qualifier TEXT NOT NULL,
	reason    TEXT NOT NULL DEFAULT '',
	pos       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (decl, level)
);
CREATE TABLE IF NOT EXISTS overrides (
	pos       TEXT NOT NULL,
	level     INTEGER NOT NULL DEFAULT 0,
	qualifier TEXT NOT NULL,
	reason    TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS decls_file ON decls(file);
`

type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	// A single connection keeps in-memory databases alive across calls.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA synchronous = NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "configuring %s", path)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "creating schema in %s", path)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// SaveAssignment replaces the stored solution with the solution of info.
func (s *Store) SaveAssignment(info *program.Info) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM levels`); err != nil {
		return errors.Wrap(err, "clearing levels")
	}
	if _, err = tx.Exec(`DELETE FROM decls`); err != nil {
		return errors.Wrap(err, "clearing declarations")
	}
	declStmt, err := tx.Prepare(`INSERT INTO decls (id, pos, file, name, kind, type, bounds, changed) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	defer declStmt.Close()
	levelStmt, err := tx.Prepare(`INSERT INTO levels (decl, level, qualifier, reason, pos) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "preparing insert")
	}
	defer levelStmt.Close()

	for _, e := range info.Entries() {
		id := program.DeclID(e.Decl).String()
		if _, err = declStmt.Exec(id, e.Decl.Pos.String(), e.Decl.File, e.Decl.Name, e.Decl.Kind.String(), e.Type, e.Bounds, e.Changed); err != nil {
			return errors.Wrapf(err, "saving %s", e.Decl.Pos)
		}
		for i, l := range e.Levels {
			var pos string
			if l.Pos.IsValid() {
				pos = l.Pos.String()
			}
			if _, err = levelStmt.Exec(id, i, l.Q.String(), l.Reason, pos); err != nil {
				return errors.Wrapf(err, "saving %s", e.Decl.Pos)
			}
		}
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Level is the stored state of one pointer level.
type Level struct {
	Q      constraints.Qualifier
	Reason string
	Pos    string
}

// Record is the stored state of one declaration.
type Record struct {
	ID      string
	Pos     ast.Pos
	Name    string
	Kind    string
	Type    string
	Bounds  string
	Changed bool
	Levels  []Level
}

// Lookup returns the stored state of the declaration at pos.
func (s *Store) Lookup(pos ast.Pos) (Record, bool, error) {
	r := Record{Pos: pos}
	err := s.db.QueryRow(`SELECT id, name, kind, type, bounds, changed FROM decls WHERE pos = ?`, pos.String()).
		Scan(&r.ID, &r.Name, &r.Kind, &r.Type, &r.Bounds, &r.Changed)
	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "looking up %s", pos)
	}

	rows, err := s.db.Query(`SELECT qualifier, reason, pos FROM levels WHERE decl = ? ORDER BY level`, r.ID)
	if err != nil {
		return Record{}, false, errors.Wrapf(err, "looking up %s", pos)
	}
	defer rows.Close()
	for rows.Next() {
		var l Level
		var q string
		if err := rows.Scan(&q, &l.Reason, &l.Pos); err != nil {
			return Record{}, false, err
		}
		if l.Q, err = constraints.ParseQualifier(q); err != nil {
			return Record{}, false, errors.Wrapf(err, "level of %s", pos)
		}
		r.Levels = append(r.Levels, l)
	}
	return r, true, rows.Err()
}

// AddOverride records a user supplied qualifier.
func (s *Store) AddOverride(o program.Override) error {
	_, err := s.db.Exec(`INSERT INTO overrides (pos, level, qualifier, reason) VALUES (?, ?, ?, ?)`,
		o.Pos.String(), o.Level, o.Q.String(), o.Reason)
	return errors.Wrapf(err, "adding override for %s", o.Pos)
}

// LoadOverrides returns every stored override in insertion order.
func (s *Store) LoadOverrides() ([]program.Override, error) {
	rows, err := s.db.Query(`SELECT pos, level, qualifier, reason FROM overrides ORDER BY rowid`)
	if err != nil {
		return nil, errors.Wrap(err, "loading overrides")
	}
	defer rows.Close()
	var out []program.Override
	for rows.Next() {
		var o program.Override
		var pos, q string
		if err := rows.Scan(&pos, &o.Level, &q, &o.Reason); err != nil {
			return nil, errors.Wrap(err, "loading overrides")
		}
		if o.Pos, err = ast.ParsePos(pos); err != nil {
			return nil, errors.Wrap(err, "loading overrides")
		}
		if o.Q, err = constraints.ParseQualifier(q); err != nil {
			return nil, errors.Wrapf(err, "override for %s", pos)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
