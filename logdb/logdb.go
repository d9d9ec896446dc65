// Copyright (c) 2025 The Evermark developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

// Package logdb persists protocol events to sqlite so operators can audit
// mutations and best-effort collaborator failures after the fact.
package logdb

import (
	"context"
	"database/sql"
	"math/big"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/ipfsnut/evermark-contracts/evermark"
)

const eventTableSchema = `CREATE TABLE IF NOT EXISTS event (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	ts INTEGER NOT NULL,
	kind TEXT NOT NULL,
	user BLOB,
	candidate INTEGER NOT NULL DEFAULT 0,
	cycle INTEGER NOT NULL DEFAULT 0,
	week INTEGER NOT NULL DEFAULT 0,
	amount TEXT NOT NULL DEFAULT '0',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS event_kind ON event(kind);
CREATE INDEX IF NOT EXISTS event_user ON event(user);
CREATE INDEX IF NOT EXISTS event_ts ON event(ts);`

type LogDB struct {
	path string
	db   *sql.DB
}

// New create or open log db at given path.
func New(path string) (logDB *LogDB, err error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if logDB == nil {
			db.Close()
		}
	}()
	if _, err := db.Exec(eventTableSchema); err != nil {
		return nil, err
	}
	return &LogDB{path, db}, nil
}

// NewMem create a log db in ram.
func NewMem() (*LogDB, error) {
	return New("file::memory:?cache=shared")
}

// Close close the log db.
func (db *LogDB) Close() error {
	return db.db.Close()
}

func (db *LogDB) Path() string {
	return db.path
}

// Append writes one event. Seq is assigned by the database.
func (db *LogDB) Append(ev *Event) error {
	amount := "0"
	if ev.Amount != nil {
		amount = ev.Amount.String()
	}
	_, err := db.db.Exec(
		"INSERT INTO event(ts, kind, user, candidate, cycle, week, amount, detail) VALUES(?,?,?,?,?,?,?,?)",
		ev.Time, string(ev.Kind), ev.User.Bytes(), ev.Candidate, ev.Cycle, ev.Week, amount, ev.Detail,
	)
	return errors.Wrap(err, "failed to append event")
}

// FilterEvents returns events matching the filter, newest last.
func (db *LogDB) FilterEvents(ctx context.Context, filter *EventFilter) ([]*Event, error) {
	stmt := "SELECT seq, ts, kind, user, candidate, cycle, week, amount, detail FROM event WHERE 1"
	var args []any
	if filter != nil {
		if filter.Kind != "" {
			stmt += " AND kind = ?"
			args = append(args, string(filter.Kind))
		}
		if filter.User != nil {
			stmt += " AND user = ?"
			args = append(args, filter.User.Bytes())
		}
		if filter.FromTime > 0 {
			stmt += " AND ts >= ?"
			args = append(args, filter.FromTime)
		}
		if filter.ToTime > 0 {
			stmt += " AND ts <= ?"
			args = append(args, filter.ToTime)
		}
	}
	stmt += " ORDER BY seq"
	if filter != nil && filter.Limit > 0 {
		stmt += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := db.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query events")
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		var (
			ev     Event
			kind   string
			user   []byte
			amount string
		)
		if err := rows.Scan(&ev.Seq, &ev.Time, &kind, &user, &ev.Candidate, &ev.Cycle, &ev.Week, &amount, &ev.Detail); err != nil {
			return nil, err
		}
		ev.Kind = Kind(kind)
		ev.User = evermark.BytesToAddress(user)
		ev.Amount, _ = new(big.Int).SetString(amount, 10)
		events = append(events, &ev)
	}
	return events, rows.Err()
}
