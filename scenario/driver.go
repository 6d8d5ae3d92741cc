package scenario

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/capture"
	"github.com/hazyhaar/wat/lifecycle"
	"github.com/hazyhaar/wat/observability"
	"github.com/hazyhaar/wat/provision"
	"github.com/hazyhaar/wat/waitfor"
)

// Page is the session surface the driver needs. *browser.Session
// implements it.
type Page interface {
	waitfor.Probe
	capture.Shooter
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, loc browser.Locator) error
	Fill(ctx context.Context, loc browser.Locator, value string) error
	Texts(ctx context.Context, loc browser.Locator) ([]string, error)
	Value(ctx context.Context, loc browser.Locator) (string, error)
	Close() error
}

// Opener creates an actor's isolated session.
type Opener interface {
	Open(ctx context.Context, a Actor) (Page, error)
}

// OpenerFunc adapts a function into an Opener.
type OpenerFunc func(ctx context.Context, a Actor) (Page, error)

func (f OpenerFunc) Open(ctx context.Context, a Actor) (Page, error) { return f(ctx, a) }

// BrowserOpener opens actors as incognito sessions of m.
func BrowserOpener(m *browser.Manager) Opener {
	return OpenerFunc(func(ctx context.Context, a Actor) (Page, error) {
		return m.NewSession(ctx, a.Name, a.Profile)
	})
}

// Provisioner creates games server-side. *provision.Client implements it.
type Provisioner interface {
	ProvisionGame(ctx context.Context, gameName string) (provision.Game, error)
}

// StepRecord times one executed step. Started and Finished are positions
// in a scenario-wide sequence, so ordering between actors can be checked
// without relying on clocks.
type StepRecord struct {
	StepID   string        `json:"step_id"`
	Actor    string        `json:"actor"`
	Action   Action        `json:"action"`
	Started  int           `json:"started"`
	Finished int           `json:"finished"`
	Duration time.Duration `json:"duration"`
}

// Result is what a run observed, complete or not.
type Result struct {
	Scenario  string
	Timelines map[string]*lifecycle.Timeline
	Artifacts []capture.Artifact
	Steps     []StepRecord
	Bindings  map[string]any
	Duration  time.Duration
}

// Driver runs scenarios.
type Driver struct {
	Opener      Opener
	Capturer    *capture.Capturer // nil disables screenshots
	Provisioner Provisioner       // required by scenarios with Provision
	Logger      *slog.Logger

	// PollInterval of state waits. Default 100ms.
	PollInterval time.Duration
}

type run struct {
	d     *Driver
	s     *Scenario
	log   *slog.Logger
	binds *bindings
	done  map[string]chan struct{}

	mu      sync.Mutex
	seq     int
	records []StepRecord
	arts    []capture.Artifact
}

func (r *run) next() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq
}

// Run validates s, opens one session per actor and executes every actor's
// steps concurrently. The first failure cancels the other actors and is
// returned as a *StepError. Sessions are closed on every path. The Result
// is returned even on failure.
func (d *Driver) Run(ctx context.Context, s *Scenario) (*Result, error) {
	start := time.Now()
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("scenario", s.Name)

	res := &Result{Scenario: s.Name, Timelines: make(map[string]*lifecycle.Timeline)}
	for _, a := range s.Actors {
		res.Timelines[a.Name] = lifecycle.NewTimeline(a.Name)
	}
	if err := s.Validate(); err != nil {
		return res, err
	}
	if d.Opener == nil {
		return res, errors.New("scenario: driver has no opener")
	}

	ctx, span := observability.StartSpan(ctx, "scenario "+s.Name, observability.AttrScenario.String(s.Name))
	defer span.End()

	r := &run{
		d:     d,
		s:     s,
		log:   log,
		binds: newBindings(s.AppURL),
		done:  make(map[string]chan struct{}, len(s.Steps)),
	}
	for _, st := range s.Steps {
		r.done[st.ID] = make(chan struct{})
	}

	err := r.execute(ctx, res)

	r.mu.Lock()
	res.Steps = r.records
	res.Artifacts = r.arts
	r.mu.Unlock()
	res.Bindings = r.binds.snapshot()
	res.Duration = time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var se *StepError
		if errors.As(err, &se) {
			log.Error("scenario: failed", "step_index", se.Index, "step", se.StepID, "actor", se.Actor, "error", se.Err)
		} else {
			log.Error("scenario: failed", "error", err)
		}
		return res, err
	}
	log.Info("scenario: passed", "steps", len(s.Steps), "captures", len(res.Artifacts), "elapsed", res.Duration)
	return res, nil
}

func (r *run) execute(ctx context.Context, res *Result) error {
	if p := r.s.Provision; p != nil {
		if r.d.Provisioner == nil {
			return &StepError{Scenario: r.s.Name, Index: -1, StepID: "provision", Err: errors.New("no provisioner configured")}
		}
		g, err := r.d.Provisioner.ProvisionGame(ctx, p.GameName)
		if err != nil {
			return &StepError{Scenario: r.s.Name, Index: -1, StepID: "provision", Err: err}
		}
		r.binds.set(BindGameCode, g.GameCode)
		r.binds.set(BindHostCode, g.HostCode)
		r.log.Info("scenario: game provisioned", "game_code", g.GameCode)
	}

	pages := make(map[string]Page, len(r.s.Actors))
	defer func() {
		for name, p := range pages {
			if err := p.Close(); err != nil {
				r.log.Warn("scenario: close session", "actor", name, "error", err)
			}
		}
	}()
	for _, a := range r.s.Actors {
		p, err := r.d.Opener.Open(ctx, a)
		if err != nil {
			return &StepError{Scenario: r.s.Name, Index: -1, StepID: "open", Actor: a.Name, Err: err}
		}
		pages[a.Name] = p
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, a := range r.s.Actors {
		page := pages[a.Name]
		tl := res.Timelines[a.Name]
		g.Go(func() error { return r.actor(gctx, a, page, tl) })
	}
	return g.Wait()
}

// actor runs a's steps in declaration order.
func (r *run) actor(ctx context.Context, a Actor, page Page, tl *lifecycle.Timeline) error {
	for i, st := range r.s.Steps {
		if st.Actor != a.Name {
			continue
		}
		for _, dep := range st.After {
			select {
			case <-r.done[dep]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := r.step(ctx, a, page, tl, st); err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				// A peer failed first; its error is the one reported.
				return err
			}
			return &StepError{Scenario: r.s.Name, Index: i, StepID: st.ID, Actor: a.Name, Err: err}
		}
		close(r.done[st.ID])
	}
	return nil
}

func (r *run) step(ctx context.Context, a Actor, page Page, tl *lifecycle.Timeline, st Step) (err error) {
	ctx, span := observability.StartSpan(ctx, "step "+st.ID,
		observability.AttrActor.String(a.Name),
		observability.AttrStep.String(st.ID),
		observability.AttrAction.String(string(st.Action)))
	defer span.End()

	started := r.next()
	t0 := time.Now()
	defer func() {
		observability.RecordStep(string(st.Action), err == nil)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		rec := StepRecord{StepID: st.ID, Actor: a.Name, Action: st.Action, Started: started, Duration: time.Since(t0)}
		rec.Finished = r.next()
		r.mu.Lock()
		r.records = append(r.records, rec)
		r.mu.Unlock()
	}()

	r.log.Debug("scenario: step", "step", st.ID, "actor", a.Name, "action", st.Action)
	if err := r.act(ctx, a, page, st); err != nil {
		return err
	}
	if err := r.expect(ctx, a, page, tl, st); err != nil {
		return err
	}
	if st.Capture != "" && r.d.Capturer != nil {
		art, err := r.d.Capturer.Capture(ctx, page, a.Name, st.Capture)
		if err != nil {
			return err
		}
		observability.RecordCapture()
		r.mu.Lock()
		r.arts = append(r.arts, art)
		r.mu.Unlock()
	}
	return nil
}

func (r *run) locator(t Target) (browser.Locator, error) {
	if t.Expr == "" {
		return t.Locator, nil
	}
	v, err := r.binds.eval(t.Expr)
	if err != nil {
		return browser.Locator{}, err
	}
	return t.Locator.WithValue(v), nil
}

func (r *run) value(st Step) (string, error) {
	if st.ValueExpr != "" {
		return r.binds.eval(st.ValueExpr)
	}
	return st.Value, nil
}

func (r *run) act(ctx context.Context, a Actor, page Page, st Step) error {
	if st.Action == ActionWait {
		return nil
	}
	if st.Action == ActionNavigate {
		url, err := r.value(st)
		if err != nil {
			return err
		}
		if url == "" {
			url = r.s.AppURL
		}
		return page.Navigate(ctx, url)
	}

	loc, err := r.locator(st.Target)
	if err != nil {
		return err
	}
	switch st.Action {
	case ActionClick:
		return page.Click(ctx, loc)
	case ActionFill:
		v, err := r.value(st)
		if err != nil {
			return err
		}
		return page.Fill(ctx, loc, v)
	case ActionRead:
		v, err := page.Value(ctx, loc)
		if err != nil {
			return err
		}
		want := st.Equals
		if st.EqualsExpr != "" {
			if want, err = r.binds.eval(st.EqualsExpr); err != nil {
				return err
			}
		}
		if (st.Equals != "" || st.EqualsExpr != "") && v != want {
			return &AssertionError{What: fmt.Sprintf("value of %s", loc), Got: v, Want: want}
		}
		r.binds.set(st.Bind, v)
		return nil
	case ActionCollect:
		if err := r.wait(ctx, a, page, waitfor.Visible(loc)); err != nil {
			return err
		}
		labels, err := page.Texts(ctx, loc)
		if err != nil {
			return err
		}
		if len(labels) < st.Min {
			return &AssertionError{What: fmt.Sprintf("count of %s", loc), Got: len(labels), Want: fmt.Sprintf(">= %d", st.Min)}
		}
		r.binds.set(st.Bind, labels)
		return nil
	}
	return fmt.Errorf("unknown action %q", st.Action)
}

// expect waits for the step's state and visible target, then records the
// state on the actor's timeline.
func (r *run) expect(ctx context.Context, a Actor, page Page, tl *lifecycle.Timeline, st Step) error {
	var conds []waitfor.Condition
	if st.Expect != lifecycle.None {
		conds = append(conds, waitfor.State(st.Expect))
	}
	if st.See != nil {
		loc, err := r.locator(*st.See)
		if err != nil {
			return err
		}
		conds = append(conds, waitfor.Visible(loc))
	}
	switch len(conds) {
	case 0:
		return nil
	case 1:
		if err := r.wait(ctx, a, page, conds[0]); err != nil {
			return err
		}
	default:
		if err := r.wait(ctx, a, page, waitfor.All(conds...)); err != nil {
			return err
		}
	}
	if st.Expect != lifecycle.None {
		return tl.Observe(st.Expect)
	}
	return nil
}

func (r *run) wait(ctx context.Context, a Actor, page Page, cond waitfor.Condition) error {
	t0 := time.Now()
	err := waitfor.Until(ctx, page, cond, waitfor.Options{
		Timeout:  a.Profile.Timeout,
		Interval: r.d.PollInterval,
	})
	if err == nil {
		observability.RecordWait(time.Since(t0).Seconds())
	}
	return err
}
