package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdul-hamid-achik/testhost/packages/core/events"
	"github.com/abdul-hamid-achik/testhost/packages/sink"
)

var _ sink.Sink = (*Sink)(nil)

func openStore(t *testing.T, prefix string) *Store {
	t.Helper()
	store, err := Open(prefix + filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	return store
}

func TestOpen_ConnectionStrings(t *testing.T) {
	for _, prefix := range []string{"", "sqlite:", "sqlite://"} {
		t.Run("prefix "+prefix, func(t *testing.T) {
			store := openStore(t, prefix)
			defer store.Close()

			result, err := store.Query("SELECT COUNT(*) AS count FROM runs")
			require.NoError(t, err)
			assert.Equal(t, int64(0), result.Rows[0]["count"])
		})
	}
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("postgres://user@localhost/db")
	assert.EqualError(t, err, "unsupported database scheme: postgres")

	_, err = Open("sqlite://")
	assert.EqualError(t, err, "empty database path")
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, store.BeginRun("r1", time.Now()))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)
}

func TestSink(t *testing.T) {
	store := openStore(t, "")
	clock := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s := NewSink(store, WithRunID("run-1"), WithClock(func() time.Time { return clock }))
	assert.Equal(t, "run-1", s.RunID())

	info := func(id string) events.TestInfo {
		return events.TestInfo{
			Ref:         events.Ref{AssemblyID: "asm", TestID: id},
			DisplayName: "Acme.Math." + id,
			Class:       "Acme.Math",
			Method:      id,
		}
	}
	evs := []events.Event{
		&events.AssemblyStarting{Ref: events.Ref{AssemblyID: "asm"}, Name: "math", Seed: 7},
		&events.TestPassed{TestInfo: info("Adds"), Outcome: events.Outcome{ExecutionTime: 1500 * time.Microsecond, Output: "\x1b[1mok\x1b[0m\n"}},
		&events.TestFailed{TestInfo: info("Breaks"), Cause: events.CauseAssertion, Messages: []string{"expected 1, got 2"}},
		&events.TestSkipped{TestInfo: info("Later"), Reason: "not ready"},
		&events.TestOutput{TestInfo: info("Adds"), Output: "ignored"},
		&events.ExecutionSummary{
			AssemblyID: "asm", Assembly: "math", Cancelled: true,
			Summary: events.Summary{Totals: events.Totals{Total: 3, Failed: 1, Skipped: 1}, Elapsed: time.Second},
		},
	}
	for _, ev := range evs {
		if !s.Interested(ev.Kind()) {
			continue
		}
		ok, err := s.OnEvent(ev)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "second close is a no-op")

	store, err := Open(store.dataSource)
	require.NoError(t, err)
	defer store.Close()

	runs, err := store.Runs(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, 3, run.Total)
	assert.Equal(t, 1, run.Failed)
	assert.True(t, run.Cancelled)
	assert.True(t, run.StartedAt.Equal(clock))

	tests, err := store.Query("SELECT display_name, result, cause, message, duration_ms, output, assembly FROM tests ORDER BY rowid")
	require.NoError(t, err)
	require.Len(t, tests.Rows, 3)
	assert.Equal(t, "Acme.Math.Adds", tests.Rows[0]["display_name"])
	assert.Equal(t, "ok", tests.Rows[0]["output"])
	assert.Equal(t, 1.5, tests.Rows[0]["duration_ms"])
	assert.Equal(t, "math", tests.Rows[0]["assembly"])
	assert.Equal(t, "assertion", tests.Rows[1]["cause"])
	assert.Equal(t, "expected 1, got 2", tests.Rows[1]["message"])
	assert.Equal(t, "not ready", tests.Rows[2]["message"])

	asms, err := store.Query("SELECT name, seed, elapsed_ms, cancelled FROM assemblies")
	require.NoError(t, err)
	require.Len(t, asms.Rows, 1)
	assert.Equal(t, int64(7), asms.Rows[0]["seed"])
	assert.Equal(t, 1000.0, asms.Rows[0]["elapsed_ms"])
	assert.Equal(t, int64(1), asms.Rows[0]["cancelled"])

	hist, err := store.TestHistory("Acme.Math.Breaks", 10)
	require.NoError(t, err)
	require.Len(t, hist.Rows, 1)
	assert.Equal(t, "failed", hist.Rows[0]["result"])
}

func TestSink_EmptyRun(t *testing.T) {
	store := openStore(t, "")
	path := store.dataSource
	s := NewSink(store)
	require.NoError(t, s.Close())

	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.Runs(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, s.RunID(), runs[0].ID)
	assert.Equal(t, 0, runs[0].Total)
}

func TestRuns_NewestFirst(t *testing.T) {
	store := openStore(t, "")
	defer store.Close()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.BeginRun(id, base.Add(time.Duration(i)*time.Hour)))
	}

	runs, err := store.Runs(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)
	assert.True(t, runs[1].FinishedAt.IsZero())
}
