// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package state provides playback position persistence.
package state

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"time"

	// For sql.DB registration.
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no position is held for a source.
var ErrNotFound = errors.New("item not found")

// DB is a persistent playback position store.
type DB struct {
	mu    sync.Mutex
	store *sql.DB
	log   *slog.Logger
}

// Position is a saved playback position.
type Position struct {
	// Source identifies the animation source.
	Source string `json:"source"`
	// Frame is the displayed frame index.
	Frame int `json:"frame"`
	// State is the playback state name.
	State string `json:"state"`
	// Updated is the time the position was saved.
	Updated time.Time `json:"updated"`
}

func (p Position) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("source", p.Source),
		slog.Int("frame", p.Frame),
		slog.String("state", p.State),
	)
}

// Schema is the DB schema.
const Schema = `
create table if not exists playback(
	source  TEXT NOT NULL,
	frame   INTEGER NOT NULL,
	state   TEXT NOT NULL,
	updated TEXT NOT NULL,
	PRIMARY KEY(source)
);
`

const (
	upsert = `
insert into playback values(?, ?, ?, ?)
  on conflict do update set frame=excluded.frame, state=excluded.state, updated=excluded.updated;
`

	get = `
select frame, state, updated from playback where source is ?;
`

	delet = `
delete from playback where source is ?;
`

	dump = `
select source, frame, state, updated from playback order by source;
`
)

// Open opens a DB, creating the tables if required.
// See https://pkg.go.dev/modernc.org/sqlite#Driver.Open for name handling
// details.
func Open(name string, log *slog.Logger) (*DB, error) {
	db, err := sql.Open("sqlite", name)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(Schema)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &DB{store: db, log: log.With(slog.String("component", "state.db"))}, nil
}

// Save stores the position, replacing any position held for the same
// source. If pos.Updated is zero, the current time is used.
func (db *DB) Save(pos Position) error {
	ctx := context.Background()
	if pos.Updated.IsZero() {
		pos.Updated = time.Now()
	}
	db.log.LogAttrs(ctx, slog.LevelDebug, "save", slog.Any("position", pos))
	db.mu.Lock()
	_, err := db.store.Exec(upsert, pos.Source, pos.Frame, pos.State, pos.Updated.UTC().Format(time.RFC3339Nano))
	db.mu.Unlock()
	if err != nil {
		db.log.LogAttrs(ctx, slog.LevelError, "save", slog.Any("position", pos), slog.Any("error", err))
	}
	return err
}

// Load returns the position held for source. Load returns ErrNotFound if
// no position is found.
func (db *DB) Load(source string) (pos Position, err error) {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "load", slog.String("source", source))
	db.mu.Lock()
	pos, err = db.load(source)
	db.mu.Unlock()
	if err != nil && err != ErrNotFound {
		db.log.LogAttrs(ctx, slog.LevelError, "load", slog.String("source", source), slog.Any("error", err))
	}
	return pos, err
}

func (db *DB) load(source string) (Position, error) {
	rows, err := db.store.Query(get, source)
	if err != nil {
		return Position{}, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return Position{}, err
		}
		return Position{}, ErrNotFound
	}
	pos := Position{Source: source}
	var updated string
	err = rows.Scan(&pos.Frame, &pos.State, &updated)
	if err != nil {
		return Position{}, err
	}
	pos.Updated, err = time.Parse(time.RFC3339Nano, updated)
	if err != nil {
		return Position{}, err
	}
	if rows.Next() {
		return pos, errors.New("unexpected item")
	}
	return pos, rows.Err()
}

// Delete removes the position held for source.
func (db *DB) Delete(source string) error {
	ctx := context.Background()
	db.log.LogAttrs(ctx, slog.LevelDebug, "delete", slog.String("source", source))
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.store.Exec(delet, source)
	if err != nil {
		db.log.LogAttrs(ctx, slog.LevelError, "delete", slog.String("source", source), slog.Any("error", err))
	}
	return err
}

// Dump returns all the positions held by the database ordered by source.
func (db *DB) Dump() ([]Position, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	rows, err := db.store.Query(dump)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var (
		positions []Position
		updated   string
	)
	for rows.Next() {
		var pos Position
		err = rows.Scan(&pos.Source, &pos.Frame, &pos.State, &updated)
		if err != nil {
			return nil, err
		}
		pos.Updated, err = time.Parse(time.RFC3339Nano, updated)
		if err != nil {
			return nil, err
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// Close closes the database.
func (db *DB) Close() error {
	return db.store.Close()
}
