package persistence

import (
	"github.com/talgya/outbreak/internal/runner"
)

// RunSink stores every finished replicate of a run.
type RunSink struct {
	db    *DB
	runID string
}

// NewRunSink saves run and returns a sink storing its replicates.
func NewRunSink(db *DB, run Run) (*RunSink, error) {
	if err := db.SaveRun(run); err != nil {
		return nil, err
	}
	return &RunSink{db: db, runID: run.ID}, nil
}

// RunID returns the ID of the run being stored.
func (s *RunSink) RunID() string {
	return s.runID
}

func (s *RunSink) Write(res *runner.Result) error {
	return s.db.SaveReplicate(s.runID, res.Log, res.Summary, res.Err)
}
