// Package scenario drives several isolated browser sessions (one per
// actor) through a scripted game, synchronising them only where a step
// declares a dependency on another actor's step.
package scenario

import (
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/lifecycle"
)

// Role of an actor in the game.
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Actor is one participant with its own session.
type Actor struct {
	Name    string
	Role    Role
	Profile browser.Profile
}

// Action is what a step does on its actor's page.
type Action string

const (
	ActionNavigate Action = "navigate" // load Value/ValueExpr, or the app URL
	ActionClick    Action = "click"
	ActionFill     Action = "fill"
	ActionRead     Action = "read"    // bind the value of Target
	ActionCollect  Action = "collect" // bind the labels of every Target match
	ActionWait     Action = "wait"    // only the expectation
)

func (a Action) valid() bool {
	switch a {
	case ActionNavigate, ActionClick, ActionFill, ActionRead, ActionCollect, ActionWait:
		return true
	}
	return false
}

func (a Action) needsTarget() bool {
	switch a {
	case ActionClick, ActionFill, ActionRead, ActionCollect:
		return true
	}
	return false
}

// Target is a locator whose value may be computed from bindings. When Expr
// is set its result replaces Locator.Value.
type Target struct {
	Locator browser.Locator
	Expr    string
}

func (t Target) zero() bool { return t.Locator == (browser.Locator{}) && t.Expr == "" }

func (t Target) String() string {
	if t.Expr != "" {
		return fmt.Sprintf("%s <%s>", t.Locator.Kind, t.Expr)
	}
	return t.Locator.String()
}

// Step is one action on one actor, followed by an optional expectation and
// capture.
type Step struct {
	ID     string
	Actor  string
	Action Action
	Target Target

	// Value is the literal URL (navigate) or text (fill); ValueExpr computes
	// it from bindings instead.
	Value     string
	ValueExpr string

	// Bind names the binding written by read and collect.
	Bind string
	// Min is the minimum number of labels collect must find.
	Min int
	// Equals / EqualsExpr assert the value read.
	Equals     string
	EqualsExpr string

	// Expect is the lifecycle state the actor must reach after the action.
	Expect lifecycle.State
	// See must become visible on the actor's page after the action.
	See *Target

	// Capture is the screenshot tag taken once the expectation holds.
	Capture string

	// After lists step IDs, of any actor, that must complete before this
	// step starts.
	After []string
}

func (s Step) expressions() []string {
	var out []string
	for _, e := range []string{s.Target.Expr, s.ValueExpr, s.EqualsExpr} {
		if e != "" {
			out = append(out, e)
		}
	}
	if s.See != nil && s.See.Expr != "" {
		out = append(out, s.See.Expr)
	}
	return out
}

// ProvisionSpec asks the driver to create the game through the setup API
// before any session acts. The codes are bound as game_code and host_code.
type ProvisionSpec struct {
	GameName string
}

// Binding names set by provisioning.
const (
	BindGameCode = "game_code"
	BindHostCode = "host_code"
)

// DefaultKeepAlive is the game's heartbeat interval.
const DefaultKeepAlive = 15 * time.Second

// Scenario is a complete multi-actor script.
type Scenario struct {
	Name   string
	AppURL string

	// KeepAlive is the game's heartbeat interval; every actor timeout must
	// exceed it. Zero means DefaultKeepAlive.
	KeepAlive time.Duration

	Actors    []Actor
	Steps     []Step
	Provision *ProvisionSpec
}

func (s *Scenario) keepAlive() time.Duration {
	if s.KeepAlive > 0 {
		return s.KeepAlive
	}
	return DefaultKeepAlive
}

func (s *Scenario) actor(name string) (Actor, bool) {
	for _, a := range s.Actors {
		if a.Name == name {
			return a, true
		}
	}
	return Actor{}, false
}

// Captures lists the (actor, tag) pairs the scenario writes, in step order.
func (s *Scenario) Captures() [][2]string {
	var out [][2]string
	for _, st := range s.Steps {
		if st.Capture != "" {
			out = append(out, [2]string{st.Actor, st.Capture})
		}
	}
	return out
}

// StepsOf returns the steps of actor in declaration order.
func (s *Scenario) StepsOf(actor string) []Step {
	var out []Step
	for _, st := range s.Steps {
		if st.Actor == actor {
			out = append(out, st)
		}
	}
	return out
}

func (s *Scenario) String() string {
	names := make([]string, len(s.Actors))
	for i, a := range s.Actors {
		names[i] = a.Name
	}
	return fmt.Sprintf("%s [%s] %d steps", s.Name, strings.Join(names, ","), len(s.Steps))
}
