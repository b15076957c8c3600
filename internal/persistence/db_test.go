package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/outbreak/internal/agents"
	"github.com/talgya/outbreak/internal/engine"
	"github.com/talgya/outbreak/internal/events"
	"github.com/talgya/outbreak/internal/params"
	"github.com/talgya/outbreak/internal/runner"
)

func openDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "outbreak.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestRecordsRoundTrip(t *testing.T) {
	db := openDB(t)
	run, err := NewRun(42, 1, map[string]any{"popsize": 10})
	require.NoError(t, err)
	require.NoError(t, db.SaveRun(run))
	assert.Error(t, db.SaveRun(run))

	log := events.NewLog(3)
	log.Record(0, events.KindStart, "", events.Int("popsize", 10))
	log.Record(1.5, events.KindInfection, "4", events.Str("by", "2"), events.Float("r0", 2.4))
	log.Record(9, events.KindEnd, "")

	sum := engine.Summary{Replicate: 3, EndTime: 9, PopSize: 10, Infected: 1, Counts: log.Counts()}
	require.NoError(t, db.SaveReplicate(run.ID, log, sum, errors.New("bad event")))

	rows, err := db.Records(run.ID, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range log.Records() {
		assert.Equal(t, r.String(), rows[i].String())
	}
	assert.Equal(t, ".", rows[0].Target)

	n, err := db.CountKind(run.ID, events.KindInfection)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	sums, err := db.Summaries(run.ID)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 10, sums[0].PopSize)
	assert.Equal(t, "bad event", sums[0].Error)
	assert.False(t, sums[0].Aborted)
	assert.JSONEq(t, `{"START":1,"INFECTION":1,"END":1}`, sums[0].CountsJSON)

	ids, err := db.RunIDs(5)
	require.NoError(t, err)
	assert.Equal(t, []string{run.ID}, ids)
}

func TestRunSinkStoresPool(t *testing.T) {
	db := openDB(t)
	run, err := NewRun(8, 4, nil)
	require.NoError(t, err)
	sink, err := NewRunSink(db, run)
	require.NoError(t, err)
	assert.Equal(t, run.ID, sink.RunID())

	p := &runner.Pool{
		Setup: engine.Setup{
			Seed:   8,
			Model:  params.DefaultConfig(),
			Groups: []agents.GroupSpec{{Size: 50}},
		},
		Replicates: 4,
		Jobs:       2,
		Sinks:      []runner.Sink{sink},
	}
	summaries, err := p.Run(context.Background())
	require.NoError(t, err)

	stored, err := db.Summaries(run.ID)
	require.NoError(t, err)
	require.Len(t, stored, 4)
	for i, s := range stored {
		assert.Equal(t, summaries[i].Replicate, s.Replicate)
		assert.Equal(t, summaries[i].Infected, s.Infected)
		assert.Empty(t, s.Error)
	}

	ends, err := db.CountKind(run.ID, events.KindEnd)
	require.NoError(t, err)
	assert.Equal(t, 4, ends)
}
