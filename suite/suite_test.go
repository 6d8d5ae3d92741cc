package suite

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/dbopen"
	"github.com/hazyhaar/wat/history"
	"github.com/hazyhaar/wat/lifecycle"
	"github.com/hazyhaar/wat/scenario"
	"github.com/hazyhaar/wat/visualdiff"
)

func solidPNG(t *testing.T, w, h int, c color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// welcomePage always shows the welcome screen.
type welcomePage struct{ shot []byte }

func (p welcomePage) Has(_ context.Context, loc browser.Locator) (bool, error) {
	return loc == browser.Marker("welcome"), nil
}
func (p welcomePage) Screenshot(context.Context) ([]byte, error) { return p.shot, nil }
func (p welcomePage) Navigate(context.Context, string) error { return nil }
func (p welcomePage) Click(context.Context, browser.Locator) error { return nil }
func (p welcomePage) Fill(context.Context, browser.Locator, string) error { return nil }
func (p welcomePage) Texts(context.Context, browser.Locator) ([]string, error) { return nil, nil }
func (p welcomePage) Value(context.Context, browser.Locator) (string, error) { return "", nil }
func (p welcomePage) Close() error { return nil }

// welcomeScenario opens the app as actor, captures the welcome screen and,
// when expect is set, then waits for expect.
func welcomeScenario(name, actor string, expect lifecycle.State) *scenario.Scenario {
	sc := &scenario.Scenario{
		Name:      name,
		AppURL:    "http://localhost:3000/",
		KeepAlive: 50 * time.Millisecond,
		Actors: []scenario.Actor{{Name: actor, Role: scenario.RolePlayer,
			Profile: browser.Profile{Timeout: 200 * time.Millisecond}}},
		Steps: []scenario.Step{
			{ID: "open", Actor: actor, Action: scenario.ActionNavigate, Expect: lifecycle.Welcome, Capture: "01-welcome"},
		},
	}
	if expect != lifecycle.None {
		sc.Steps = append(sc.Steps, scenario.Step{ID: "next", Actor: actor, Action: scenario.ActionWait, Expect: expect})
	}
	return sc
}

func newSuite(t *testing.T, shot []byte) *Suite {
	t.Helper()
	store := capture.Store{Root: t.TempDir()}
	return &Suite{
		Driver: &scenario.Driver{
			Opener: scenario.OpenerFunc(func(context.Context, scenario.Actor) (scenario.Page, error) {
				return welcomePage{shot: shot}, nil
			}),
			Capturer:     &capture.Capturer{Store: store, Settle: -1},
			PollInterval: 5 * time.Millisecond,
		},
		Store:   store,
		History: history.New(dbopen.OpenMemory(t, dbopen.WithSchema(history.Schema))),
		AppURL:  "http://localhost:3000/",
		Diff:    visualdiff.DefaultOptions(),
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	s := newSuite(t, solidPNG(t, 8, 8, color.NRGBA{0, 0, 255, 255}))
	ctx := t.Context()

	rep, err := s.Run(ctx, []*scenario.Scenario{
		welcomeScenario("stuck", "a", lifecycle.Buying),
		welcomeScenario("fine", "b", lifecycle.None),
	})
	require.NoError(t, err)
	require.True(t, rep.Failed())
	require.Len(t, rep.Outcomes, 2)
	require.Error(t, rep.Outcomes[0].Err)
	require.NoError(t, rep.Outcomes[1].Err)

	d, err := s.History.Get(ctx, rep.RunID)
	require.NoError(t, err)
	require.Equal(t, history.StatusFailed, d.Run.Status)
	require.Len(t, d.Scenarios, 2)
	for _, sc := range d.Scenarios {
		if sc.Scenario == "stuck" {
			require.False(t, sc.Passed)
			require.Equal(t, "next", sc.StepID)
			require.Equal(t, "a", sc.Actor)
		} else {
			require.True(t, sc.Passed)
			require.Equal(t, 1, sc.Artifacts)
		}
	}
}

func TestRunRejectsCaptureCollisions(t *testing.T) {
	s := newSuite(t, nil)
	_, err := s.Run(t.Context(), []*scenario.Scenario{
		welcomeScenario("one", "a", lifecycle.None),
		welcomeScenario("two", "a", lifecycle.None),
	})
	var dup *DuplicateCaptureError
	require.ErrorAs(t, err, &dup)
	require.Equal(t, "a", dup.Actor)
	require.Equal(t, "01-welcome", dup.Tag)
}

func TestRunClearsStaleCaptures(t *testing.T) {
	s := newSuite(t, solidPNG(t, 4, 4, color.NRGBA{255, 255, 255, 255}))
	_, err := s.Store.Write(capture.Latest, "old", "gone", []byte("x"))
	require.NoError(t, err)
	_, err = s.Store.Write(capture.Diff, "old", "gone", []byte("x"))
	require.NoError(t, err)

	_, err = s.Run(t.Context(), []*scenario.Scenario{welcomeScenario("fine", "b", lifecycle.None)})
	require.NoError(t, err)

	arts, err := s.Store.List(capture.Latest)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	require.Equal(t, "b/01-welcome", arts[0].Key())

	diffs, err := s.Store.List(capture.Diff)
	require.NoError(t, err)
	require.Empty(t, diffs)
}

func TestRegressReplacesDiffImages(t *testing.T) {
	s := newSuite(t, nil)
	white := solidPNG(t, 4, 4, color.NRGBA{255, 255, 255, 255})
	for _, w := range []struct{ ns, actor, tag string }{
		{capture.Latest, "host", "same"},
		{capture.Reference, "host", "same"},
		{capture.Diff, "host", "renamed"},
		{capture.Diff, "player1", "new"},
	} {
		_, err := s.Store.Write(w.ns, w.actor, w.tag, white)
		require.NoError(t, err)
	}
	_, err := s.Store.Write(capture.Latest, "player1", "new", white)
	require.NoError(t, err)

	diffs, err := s.Regress(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, diffs, 2)

	left, err := s.Store.List(capture.Diff)
	require.NoError(t, err)
	require.Len(t, left, 1)
	require.Equal(t, "host/same", left[0].Key())
}

func TestRegress(t *testing.T) {
	s := newSuite(t, nil)
	s.MaxMismatch = 3
	white := color.NRGBA{255, 255, 255, 255}
	black := color.NRGBA{0, 0, 0, 255}

	write := func(ns, actor, tag string, data []byte) {
		_, err := s.Store.Write(ns, actor, tag, data)
		require.NoError(t, err)
	}
	write(capture.Latest, "host", "same", solidPNG(t, 4, 4, white))
	write(capture.Reference, "host", "same", solidPNG(t, 4, 4, white))
	write(capture.Latest, "host", "changed", solidPNG(t, 4, 4, black))
	write(capture.Reference, "host", "changed", solidPNG(t, 4, 4, white))
	write(capture.Latest, "host", "resized", solidPNG(t, 4, 4, white))
	write(capture.Reference, "host", "resized", solidPNG(t, 5, 4, white))
	write(capture.Latest, "player1", "new", solidPNG(t, 4, 4, white))

	// Two differing pixels stay under the tolerance.
	tol := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := range 4 {
		for x := range 4 {
			tol.SetNRGBA(x, y, white)
		}
	}
	tol.SetNRGBA(0, 0, black)
	tol.SetNRGBA(3, 3, black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, tol))
	write(capture.Latest, "player2", "tolerated", buf.Bytes())
	write(capture.Reference, "player2", "tolerated", solidPNG(t, 4, 4, white))

	ctx := t.Context()
	runID, err := s.History.BeginRun(ctx, s.AppURL)
	require.NoError(t, err)

	diffs, err := s.Regress(ctx, runID)
	require.NoError(t, err)

	got := make(map[string]Diff)
	for _, d := range diffs {
		got[d.Actor+"/"+d.Tag] = d
	}
	require.Equal(t, StatusOK, got["host/same"].Status)
	require.Equal(t, 0, got["host/same"].Result.Mismatched)
	require.Equal(t, StatusChanged, got["host/changed"].Status)
	require.Equal(t, 16, got["host/changed"].Result.Mismatched)
	require.FileExists(t, got["host/changed"].DiffPath)
	require.Equal(t, StatusDimensionMismatch, got["host/resized"].Status)
	require.Equal(t, StatusMissingReference, got["player1/new"].Status)
	require.Equal(t, StatusOK, got["player2/tolerated"].Status)
	require.Equal(t, 2, got["player2/tolerated"].Result.Mismatched)

	d, err := s.History.Get(ctx, runID)
	require.NoError(t, err)
	require.Len(t, d.Diffs, 5)
}

func TestApprove(t *testing.T) {
	store := capture.Store{Root: t.TempDir()}
	for _, key := range [][2]string{{"host", "a"}, {"host", "b"}, {"player1", "a"}} {
		_, err := store.Write(capture.Latest, key[0], key[1], []byte(key[0]+key[1]))
		require.NoError(t, err)
	}

	arts, err := Approve(store, "host", "")
	require.NoError(t, err)
	require.Len(t, arts, 2)
	data, err := os.ReadFile(filepath.Join(store.Root, capture.Reference, "host", "b.png"))
	require.NoError(t, err)
	require.Equal(t, "hostb", string(data))
	require.NoFileExists(t, store.Path(capture.Reference, "player1", "a"))

	arts, err = Approve(store, "", "")
	require.NoError(t, err)
	require.Len(t, arts, 3)

	_, err = Approve(store, "ghost", "")
	require.Error(t, err)
}
