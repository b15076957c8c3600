// Package persistence mirrors the append-only record log into SQLite so runs
// can be queried after the fact. Nothing is ever updated or read back into a
// simulation.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/events"
)

// DB wraps a SQLite connection holding runs, replicate summaries and records.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		seed INTEGER NOT NULL,
		replicates INTEGER NOT NULL,
		config_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS replicates (
		run_id TEXT NOT NULL REFERENCES runs(id),
		replicate INTEGER NOT NULL,
		end_time REAL NOT NULL,
		popsize INTEGER NOT NULL,
		n_infected INTEGER NOT NULL,
		n_recovered INTEGER NOT NULL,
		n_removed INTEGER NOT NULL,
		n_quarantined INTEGER NOT NULL,
		n_vaccinated INTEGER NOT NULL,
		n_replaced INTEGER NOT NULL,
		aborted INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		counts_json TEXT NOT NULL,
		PRIMARY KEY (run_id, replicate)
	);

	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES runs(id),
		replicate INTEGER NOT NULL,
		time REAL NOT NULL,
		kind TEXT NOT NULL,
		target TEXT NOT NULL,
		params TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_run ON records(run_id, replicate);
	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(run_id, kind);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run describes one invocation of the simulator.
type Run struct {
	ID         string    `db:"id"`
	CreatedAt  time.Time `db:"created_at"`
	Seed       uint64    `db:"seed"`
	Replicates int       `db:"replicates"`
	ConfigJSON string    `db:"config_json"`
}

// NewRun returns a run with a fresh ID. cfg is stored as JSON.
func NewRun(seed uint64, replicates int, cfg any) (Run, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return Run{}, fmt.Errorf("encode config: %w", err)
	}
	return Run{
		ID:         uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
		Seed:       seed,
		Replicates: replicates,
		ConfigJSON: string(raw),
	}, nil
}

// SaveRun inserts a run.
func (db *DB) SaveRun(r Run) error {
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, created_at, seed, replicates, config_json) VALUES (?, ?, ?, ?, ?)",
		r.ID, r.CreatedAt.Format(time.RFC3339Nano), int64(r.Seed), r.Replicates, r.ConfigJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	return nil
}

// SaveRecords appends the records of one replicate.
func (db *DB) SaveRecords(runID string, recs []events.Record) error {
	if len(recs) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO records
		(run_id, replicate, time, kind, target, params)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range recs {
		target := r.Target
		if target == "" {
			target = events.NoTarget
		}
		if _, err := stmt.Exec(runID, r.Replicate, r.Time, r.Kind.String(), target, r.ParamString()); err != nil {
			return fmt.Errorf("insert record of replicate %d: %w", r.Replicate, err)
		}
	}

	return tx.Commit()
}

// SaveSummary stores the outcome of one replicate. runErr is the error the
// replicate stopped on, if any.
func (db *DB) SaveSummary(runID string, s engine.Summary, runErr error) error {
	counts, err := json.Marshal(s.Counts)
	if err != nil {
		return fmt.Errorf("encode counts: %w", err)
	}
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	aborted := 0
	if s.Aborted {
		aborted = 1
	}

	_, err = db.conn.Exec(`INSERT INTO replicates
		(run_id, replicate, end_time, popsize, n_infected, n_recovered, n_removed,
		 n_quarantined, n_vaccinated, n_replaced, aborted, error, counts_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, s.Replicate, s.EndTime, s.PopSize, s.Infected, s.Recovered, s.Removed,
		s.Quarantined, s.Vaccinated, s.Replaced, aborted, msg, string(counts),
	)
	if err != nil {
		return fmt.Errorf("insert summary of replicate %d: %w", s.Replicate, err)
	}
	return nil
}

// RecordRow is a stored record.
type RecordRow struct {
	Replicate int     `db:"replicate"`
	Time      float64 `db:"time"`
	Kind      string  `db:"kind"`
	Target    string  `db:"target"`
	Params    string  `db:"params"`
}

// String renders the row in the log line format.
func (r RecordRow) String() string {
	return fmt.Sprintf("%d\t%.2f\t%s\t%s\t%s", r.Replicate, r.Time, r.Kind, r.Target, r.Params)
}

// Records returns the records of one replicate in insertion order.
func (db *DB) Records(runID string, replicate int) ([]RecordRow, error) {
	var rows []RecordRow
	err := db.conn.Select(&rows,
		"SELECT replicate, time, kind, target, params FROM records WHERE run_id = ? AND replicate = ? ORDER BY id",
		runID, replicate,
	)
	return rows, err
}

// CountKind returns how many records of kind a run logged across replicates.
func (db *DB) CountKind(runID string, kind events.Kind) (int, error) {
	var n int
	err := db.conn.Get(&n, "SELECT COUNT(*) FROM records WHERE run_id = ? AND kind = ?", runID, kind.String())
	return n, err
}

// SummaryRow is a stored replicate outcome.
type SummaryRow struct {
	Replicate  int     `db:"replicate"`
	EndTime    float64 `db:"end_time"`
	PopSize    int     `db:"popsize"`
	Infected   int     `db:"n_infected"`
	Removed    int     `db:"n_removed"`
	Aborted    bool    `db:"aborted"`
	Error      string  `db:"error"`
	CountsJSON string  `db:"counts_json"`
}

// Summaries returns the replicate outcomes of a run ordered by replicate.
func (db *DB) Summaries(runID string) ([]SummaryRow, error) {
	var rows []SummaryRow
	err := db.conn.Select(&rows,
		`SELECT replicate, end_time, popsize, n_infected, n_removed, aborted, error, counts_json
		 FROM replicates WHERE run_id = ? ORDER BY replicate`,
		runID,
	)
	return rows, err
}

// RunIDs returns the most recent run IDs, newest first.
func (db *DB) RunIDs(limit int) ([]string, error) {
	var ids []string
	err := db.conn.Select(&ids, "SELECT id FROM runs ORDER BY created_at DESC LIMIT ?", limit)
	return ids, err
}

// SaveReplicate stores the records and summary of one replicate.
func (db *DB) SaveReplicate(runID string, log *events.Log, s engine.Summary, runErr error) error {
	if err := db.SaveRecords(runID, log.Records()); err != nil {
		return fmt.Errorf("save records: %w", err)
	}
	if err := db.SaveSummary(runID, s, runErr); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	slog.Debug("replicate stored", "run", runID, "replicate", s.Replicate, "records", log.Len())
	return nil
}
