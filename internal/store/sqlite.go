package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/russross/meddler"

	"code.dogecoin.org/airdrop/internal/spec"
)

// MemoryDB keeps the journal for the lifetime of the process only.
const MemoryDB = ":memory:"

const SQL_SCHEMA string = `
CREATE TABLE IF NOT EXISTS attempt (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run TEXT NOT NULL,
	stage TEXT NOT NULL,
	target TEXT NOT NULL,
	address TEXT NOT NULL,
	outcome TEXT NOT NULL,
	error TEXT NOT NULL,
	started INTEGER NOT NULL,
	elapsed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS attempt_run_i ON attempt (run);
`

// attemptRow is the stored form of spec.Attempt (times in unix milliseconds).
type attemptRow struct {
	ID      int64  `meddler:"id,pk"`
	Run     string `meddler:"run"`
	Stage   string `meddler:"stage"`
	Target  string `meddler:"target"`
	Address string `meddler:"address"`
	Outcome string `meddler:"outcome"`
	Error   string `meddler:"error"`
	Started int64  `meddler:"started"`
	Elapsed int64  `meddler:"elapsed"`
}

// SQLiteStore is the attempt journal. It is written by the run and read by
// the status API; nothing in it feeds back into selection decisions.
type SQLiteStore struct {
	db  *sqlx.DB
	ctx context.Context
}

var _ spec.Journal = &SQLiteStore{}

// NewSQLiteStore opens (or creates) the journal database.
// Use MemoryDB to keep it in memory.
func NewSQLiteStore(fileName string, ctx context.Context) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite3", fileName)
	if err != nil {
		return nil, dbErr(err, "opening database")
	}
	store := &SQLiteStore{db: db, ctx: ctx}
	// SQLite has a single writer; an in-memory database also exists
	// only on the connection that created it.
	db.SetMaxOpenConns(1)
	meddler.Default = meddler.SQLite
	// init tables / indexes
	_, err = db.Exec(SQL_SCHEMA)
	if err != nil {
		db.Close()
		return nil, dbErr(err, "creating database schema")
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// IsConflict is true for a busy or locked database, raw or already wrapped.
func IsConflict(err error) bool {
	if IsError(err, DBConflict) {
		return true
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) doTxn(name string, work func(tx *sqlx.Tx) error) error {
	limit := 120
	for {
		tx, err := s.db.Beginx()
		if err != nil {
			if IsConflict(err) {
				s.Sleep(250 * time.Millisecond)
				limit--
				if limit != 0 {
					continue
				}
			}
			return dbErr(err, fmt.Sprintf("cannot begin transaction: %v", name))
		}
		err = work(tx)
		if err != nil {
			tx.Rollback()
			if IsConflict(err) {
				s.Sleep(250 * time.Millisecond)
				limit--
				if limit != 0 {
					continue
				}
			}
			return dbErr(err, name)
		}
		err = tx.Commit()
		if err != nil {
			if IsConflict(err) {
				s.Sleep(250 * time.Millisecond)
				limit--
				if limit != 0 {
					continue
				}
			}
			return dbErr(err, fmt.Sprintf("cannot commit %v", name))
		}
		return nil
	}
}

func (s *SQLiteStore) Sleep(dur time.Duration) {
	select {
	case <-s.ctx.Done():
	case <-time.After(dur):
	}
}

func dbErr(err error, where string) error {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code == sqlite3.ErrConstraint {
			// Constraint violation, e.g. a duplicate key.
			return WrapErr(AlreadyExists, "SQLiteStore: already-exists", err)
		}
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			// SQLite has a single-writer policy, even in WAL (write-ahead) mode.
			return WrapErr(DBConflict, "SQLiteStore: db-conflict", err)
		}
	}
	return WrapErr(DBProblem, fmt.Sprintf("SQLiteStore: db-problem: %s", where), err)
}

// JOURNAL INTERFACE

func (s *SQLiteStore) RecordAttempt(a spec.Attempt) error {
	row := attemptRow{
		Run:     a.RunID,
		Stage:   a.Stage,
		Target:  a.Target,
		Address: a.Address,
		Outcome: a.Outcome,
		Error:   a.Error,
		Started: a.StartedAt.UnixMilli(),
		Elapsed: a.Elapsed.Milliseconds(),
	}
	return s.doTxn("RecordAttempt", func(tx *sqlx.Tx) error {
		return meddler.Insert(tx, "attempt", &row)
	})
}

func (s *SQLiteStore) Summary(runID string) (res []spec.OutcomeCount, err error) {
	err = s.doTxn("Summary", func(tx *sqlx.Tx) error {
		res = nil
		return tx.Select(&res, "SELECT stage, outcome, COUNT(*) AS count FROM attempt WHERE run=? GROUP BY stage, outcome ORDER BY stage, outcome", runID)
	})
	return
}

// Attempts returns the most recent attempts of a run, newest first.
func (s *SQLiteStore) Attempts(runID string, limit int) (res []spec.Attempt, err error) {
	var rows []*attemptRow
	err = s.doTxn("Attempts", func(tx *sqlx.Tx) error {
		rows = nil
		return meddler.QueryAll(tx, &rows, "SELECT * FROM attempt WHERE run=? ORDER BY id DESC LIMIT ?", runID, limit)
	})
	if err != nil {
		return nil, err
	}
	res = make([]spec.Attempt, 0, len(rows))
	for _, r := range rows {
		res = append(res, spec.Attempt{
			RunID:     r.Run,
			Stage:     r.Stage,
			Target:    r.Target,
			Address:   r.Address,
			Outcome:   r.Outcome,
			Error:     r.Error,
			StartedAt: time.UnixMilli(r.Started).UTC(),
			Elapsed:   time.Duration(r.Elapsed) * time.Millisecond,
		})
	}
	return res, nil
}
