// Package waitfor is the bounded observation primitive the scenario driver
// synchronises on: poll a session until a condition holds or a deadline
// passes.
package waitfor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/lifecycle"
)

// Probe answers whether a locator currently matches a visible element.
// browser.Session implements it.
type Probe interface {
	Has(ctx context.Context, loc browser.Locator) (bool, error)
}

// Condition is evaluated on every poll.
type Condition interface {
	Met(ctx context.Context, p Probe) (bool, error)
	String() string
}

// Options bound a wait.
type Options struct {
	Timeout  time.Duration // default 16s
	Interval time.Duration // default 100ms
}

func (o *Options) defaults() {
	if o.Timeout <= 0 {
		o.Timeout = browser.DefaultTimeout
	}
	if o.Interval <= 0 {
		o.Interval = 100 * time.Millisecond
	}
}

// StateTimeoutError is returned when a condition did not hold before the
// deadline. LastErr keeps the last probe failure, if any.
type StateTimeoutError struct {
	Condition string
	Timeout   time.Duration
	LastErr   error
}

func (e *StateTimeoutError) Error() string {
	msg := fmt.Sprintf("waitfor: %s not met within %s", e.Condition, e.Timeout)
	if e.LastErr != nil {
		msg += ": last error: " + e.LastErr.Error()
	}
	return msg
}

func (e *StateTimeoutError) Unwrap() error { return e.LastErr }

// Until polls cond against p. It returns nil as soon as cond holds,
// *StateTimeoutError when opts.Timeout elapses, and ctx.Err() when the
// parent context is cancelled first.
func Until(ctx context.Context, p Probe, cond Condition, opts Options) error {
	opts.defaults()

	wctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	var lastErr error
	for {
		ok, err := cond.Met(wctx, p)
		if err == nil && ok {
			return nil
		}
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			lastErr = err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wctx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &StateTimeoutError{Condition: cond.String(), Timeout: opts.Timeout, LastErr: lastErr}
		case <-ticker.C:
		}
	}
}

type locatorCond struct {
	loc   browser.Locator
	label string
}

func (c locatorCond) Met(ctx context.Context, p Probe) (bool, error) { return p.Has(ctx, c.loc) }
func (c locatorCond) String() string                                 { return c.label }

// Visible holds while loc matches a visible element.
func Visible(loc browser.Locator) Condition {
	return locatorCond{loc: loc, label: "visible " + loc.String()}
}

// State holds while the session shows the lifecycle state s. ScoreUpdated
// has no container of its own: it is any visible nonzero point counter.
func State(s lifecycle.State) Condition {
	loc := browser.Marker(s.Marker())
	if s == lifecycle.ScoreUpdated {
		loc = browser.ClassNonZero("point")
	}
	return locatorCond{loc: loc, label: "state " + s.String()}
}

type allCond []Condition

func (a allCond) Met(ctx context.Context, p Probe) (bool, error) {
	for _, c := range a {
		ok, err := c.Met(ctx, p)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (a allCond) String() string {
	parts := make([]string, len(a))
	for i, c := range a {
		parts[i] = c.String()
	}
	return "all(" + strings.Join(parts, ", ") + ")"
}

// All holds when every condition holds in the same poll.
func All(conds ...Condition) Condition { return allCond(conds) }

// Func adapts a function into a Probe.
type Func func(ctx context.Context, loc browser.Locator) (bool, error)

func (f Func) Has(ctx context.Context, loc browser.Locator) (bool, error) { return f(ctx, loc) }
