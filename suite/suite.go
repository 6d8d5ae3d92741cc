// Package suite runs a set of scenarios in one invocation, records the
// outcome in the run history and compares the fresh captures against the
// approved baselines.
package suite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/history"
	"github.com/hazyhaar/wat/observability"
	"github.com/hazyhaar/wat/scenario"
	"github.com/hazyhaar/wat/visualdiff"
)

// Diff classifications.
const (
	StatusOK                = "ok"
	StatusChanged           = "changed"
	StatusMissingReference  = "missing-reference"
	StatusDimensionMismatch = "dimension-mismatch"
	StatusError             = "error"
)

// Outcome is the result of one scenario.
type Outcome struct {
	Scenario string
	Result   *scenario.Result
	Err      error
}

// Diff is the comparison of one capture with its baseline.
type Diff struct {
	Actor    string
	Tag      string
	Status   string
	Result   visualdiff.Result
	DiffPath string
	Err      error
}

// Report is the result of Run and Regress.
type Report struct {
	RunID    string
	Outcomes []Outcome
	Diffs    []Diff
}

// Failed reports whether any scenario failed.
func (r *Report) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Err != nil {
			return true
		}
	}
	return false
}

// Changed counts diffs that are not ok.
func (r *Report) Changed() int {
	n := 0
	for _, d := range r.Diffs {
		if d.Status != StatusOK {
			n++
		}
	}
	return n
}

// Suite wires the driver, the capture store and the history together.
type Suite struct {
	Driver  *scenario.Driver
	Store   capture.Store
	History *history.Store // optional
	AppURL  string

	Diff        visualdiff.Options
	MaxMismatch int

	Logger *slog.Logger
}

func (s *Suite) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// DuplicateCaptureError is returned when two scenarios would write the
// same (actor, tag) screenshot.
type DuplicateCaptureError struct {
	Actor, Tag string
	First      string
	Second     string
}

func (e *DuplicateCaptureError) Error() string {
	return fmt.Sprintf("suite: capture %s/%s written by both %s and %s", e.Actor, e.Tag, e.First, e.Second)
}

// CheckCaptures rejects scenario sets whose captures collide.
func CheckCaptures(scs []*scenario.Scenario) error {
	owner := make(map[[2]string]string)
	var errs []error
	for _, sc := range scs {
		for _, key := range sc.Captures() {
			if prev, ok := owner[key]; ok && prev != sc.Name {
				errs = append(errs, &DuplicateCaptureError{Actor: key[0], Tag: key[1], First: prev, Second: sc.Name})
				continue
			}
			owner[key] = sc.Name
		}
	}
	return errors.Join(errs...)
}

// Run clears the latest captures and their diff images and runs every
// scenario. A failing
// scenario does not stop the others; its error is kept in the Report. The
// returned error is reserved for problems outside any scenario.
func (s *Suite) Run(ctx context.Context, scs []*scenario.Scenario) (*Report, error) {
	if err := CheckCaptures(scs); err != nil {
		return nil, err
	}
	for _, ns := range []string{capture.Latest, capture.Diff} {
		if err := s.Store.Reset(ns); err != nil {
			return nil, err
		}
	}

	rep := &Report{}
	if s.History != nil {
		id, err := s.History.BeginRun(ctx, s.AppURL)
		if err != nil {
			return nil, err
		}
		rep.RunID = id
	}
	log := s.logger().With("run_id", rep.RunID)

	for _, sc := range scs {
		if ctx.Err() != nil {
			break
		}
		log.Info("suite: scenario started", "scenario", sc.Name)
		res, err := s.Driver.Run(ctx, sc)
		rep.Outcomes = append(rep.Outcomes, Outcome{Scenario: sc.Name, Result: res, Err: err})

		var dur time.Duration
		var arts int
		if res != nil {
			dur, arts = res.Duration, len(res.Artifacts)
		}
		observability.RecordScenario(sc.Name, err == nil, dur.Seconds())
		if err != nil {
			log.Warn("suite: scenario failed", "scenario", sc.Name, "error", err)
		}
		if s.History != nil {
			r := history.ScenarioResult{Scenario: sc.Name, Passed: err == nil, Duration: dur, Artifacts: arts}
			if err != nil {
				r.Error = err.Error()
				var se *scenario.StepError
				if errors.As(err, &se) {
					r.StepID, r.Actor = se.StepID, se.Actor
				}
			}
			if herr := s.History.RecordScenario(ctx, rep.RunID, r); herr != nil {
				log.Error("suite: record scenario", "error", herr)
			}
		}
	}

	if s.History != nil {
		status := history.StatusPassed
		if rep.Failed() || ctx.Err() != nil {
			status = history.StatusFailed
		}
		// The run is closed even when ctx was cancelled mid-way.
		if err := s.History.FinishRun(context.WithoutCancel(ctx), rep.RunID, status); err != nil {
			return rep, err
		}
	}
	return rep, ctx.Err()
}

// Regress compares every latest capture with its reference baseline and
// writes the diff images, replacing any left by an earlier pass. Results are recorded under runID when a history
// store is configured and runID is not empty.
func (s *Suite) Regress(ctx context.Context, runID string) ([]Diff, error) {
	if err := s.Store.Reset(capture.Diff); err != nil {
		return nil, err
	}
	arts, err := s.Store.List(capture.Latest)
	if err != nil {
		return nil, err
	}
	log := s.logger()

	diffs := make([]Diff, 0, len(arts))
	for _, a := range arts {
		if err := ctx.Err(); err != nil {
			return diffs, err
		}
		d := s.Compare(a)
		observability.RecordDiff(d.Status)
		if d.Status != StatusOK {
			log.Info("suite: screenshot differs", "actor", d.Actor, "tag", d.Tag, "status", d.Status,
				"mismatched", d.Result.Mismatched, "diff", d.DiffPath)
		}
		diffs = append(diffs, d)
	}

	if s.History != nil && runID != "" {
		rows := make([]history.DiffResult, len(diffs))
		for i, d := range diffs {
			rows[i] = history.DiffResult{
				Actor: d.Actor, Tag: d.Tag, Status: d.Status,
				Mismatched: d.Result.Mismatched, Width: d.Result.Width, Height: d.Result.Height,
				DiffPath: d.DiffPath,
			}
			if d.Err != nil {
				rows[i].Error = d.Err.Error()
			}
		}
		if err := s.History.RecordDiffs(ctx, runID, rows); err != nil {
			return diffs, err
		}
	}
	return diffs, nil
}

// Compare classifies one latest capture against its baseline and writes
// its diff image.
func (s *Suite) Compare(a capture.Artifact) Diff {
	d := Diff{Actor: a.Actor, Tag: a.Tag}
	ref := s.Store.Path(capture.Reference, a.Actor, a.Tag)
	if _, err := os.Stat(ref); errors.Is(err, fs.ErrNotExist) {
		d.Status = StatusMissingReference
		return d
	}

	out := s.Store.Path(capture.Diff, a.Actor, a.Tag)
	res, err := visualdiff.CompareFiles(a.Path, ref, out, s.Diff)
	d.Result = res
	var dim *visualdiff.ImageDimensionMismatchError
	switch {
	case errors.As(err, &dim):
		d.Status, d.Err = StatusDimensionMismatch, err
	case err != nil:
		d.Status, d.Err = StatusError, err
	case res.Mismatched > s.MaxMismatch:
		d.Status, d.DiffPath = StatusChanged, out
	default:
		d.Status, d.DiffPath = StatusOK, out
	}
	return d
}

// Approve promotes latest captures to reference baselines. An empty actor
// approves every actor; an empty tag every tag of the selected actors.
func Approve(store capture.Store, actor, tag string) ([]capture.Artifact, error) {
	arts, err := store.List(capture.Latest)
	if err != nil {
		return nil, err
	}
	var out []capture.Artifact
	for _, a := range arts {
		if (actor != "" && a.Actor != actor) || (tag != "" && a.Tag != tag) {
			continue
		}
		p, err := store.Promote(a.Actor, a.Tag)
		if err != nil {
			return out, err
		}
		out = append(out, p)
	}
	if len(out) == 0 && (actor != "" || tag != "") {
		return nil, fmt.Errorf("suite: no latest capture matches %s/%s: %w", actor, tag, fs.ErrNotExist)
	}
	return out, nil
}
