package history

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/wat/dbopen"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(dbopen.OpenMemory(t, dbopen.WithSchema(Schema)))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var tick int64
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	id, err := s.BeginRun(ctx, "http://localhost:3000")
	require.NoError(t, err)

	require.NoError(t, s.RecordScenario(ctx, id, ScenarioResult{
		Scenario: "normal-game", Passed: true, Duration: 42 * time.Second, Artifacts: 20,
	}))
	require.NoError(t, s.RecordScenario(ctx, id, ScenarioResult{
		Scenario: "provisioned-join", Passed: false, Error: "state timeout",
		StepID: "g-join", Actor: "guest", Duration: 16 * time.Second,
	}))
	require.NoError(t, s.RecordDiffs(ctx, id, []DiffResult{
		{Actor: "host", Tag: "01-welcome", Status: "ok", Width: 360, Height: 1500},
		{Actor: "player1", Tag: "01-welcome", Status: "changed", Mismatched: 812, Width: 601, Height: 1500, DiffPath: "diff/player1/01-welcome.png"},
	}))
	require.NoError(t, s.FinishRun(ctx, id, StatusFailed))

	d, err := s.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, d.Run.Status)
	require.Equal(t, "http://localhost:3000", d.Run.AppURL)
	require.NotNil(t, d.Run.FinishedAt)
	require.True(t, d.Run.FinishedAt.After(d.Run.StartedAt))

	require.Len(t, d.Scenarios, 2)
	require.Equal(t, "normal-game", d.Scenarios[0].Scenario)
	require.True(t, d.Scenarios[0].Passed)
	require.Equal(t, 42*time.Second, d.Scenarios[0].Duration)
	require.Equal(t, "guest", d.Scenarios[1].Actor)

	require.Len(t, d.Diffs, 2)
	require.Equal(t, 812, d.Diffs[1].Mismatched)
}

func TestRuns_NewestFirst(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	first, err := s.BeginRun(ctx, "")
	require.NoError(t, err)
	second, err := s.BeginRun(ctx, "")
	require.NoError(t, err)

	runs, err := s.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, second, runs[0].ID)
	require.Equal(t, first, runs[1].ID)
	require.Nil(t, runs[0].FinishedAt)

	latest, err := s.Latest(ctx)
	require.NoError(t, err)
	require.Equal(t, second, latest.Run.ID)
	require.Empty(t, latest.Scenarios)
}

func TestNotFound(t *testing.T) {
	s := newStore(t)
	ctx := t.Context()

	_, err := s.Get(ctx, "run_missing")
	require.True(t, errors.Is(err, ErrNotFound))

	_, err = s.Latest(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	require.ErrorIs(t, s.FinishRun(ctx, "run_missing", StatusPassed), ErrNotFound)
}

func TestOpen_File(t *testing.T) {
	path := t.TempDir() + "/nested/wat.db"
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.BeginRun(t.Context(), "")
	require.NoError(t, err)
}
