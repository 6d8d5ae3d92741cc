// Package lifecycle names the game's UI phases and tracks, per actor, the
// sequence of phases observed at synchronization checkpoints.
package lifecycle

import (
	"fmt"
	"strings"
)

// State is one UI phase of the game. Each state except ScoreUpdated is
// exposed by the application as a `.container.<marker>` element.
type State int

const (
	None State = iota
	Welcome
	CreateForm
	JoinForm
	HostWaiting
	Waiting
	Spectating
	Buying
	Pitching
	ScoreUpdated
)

var names = [...]string{
	None:         "none",
	Welcome:      "welcome",
	CreateForm:   "create-form",
	JoinForm:     "join-form",
	HostWaiting:  "host-waiting",
	Waiting:      "waiting",
	Spectating:   "spectating",
	Buying:       "buying",
	Pitching:     "pitching",
	ScoreUpdated: "score-updated",
}

// markers maps states to the CSS class the application puts on its root
// container. ScoreUpdated has none: it is derived from the point counters.
var markers = [...]string{
	Welcome:     "welcome",
	CreateForm:  "create",
	JoinForm:    "join",
	HostWaiting: "host-waiting",
	Waiting:     "waiting",
	Spectating:  "spectating",
	Buying:      "buying",
	Pitching:    "pitching",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(names) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return names[s]
}

// Marker returns the container class for s, or "" when s has no DOM marker.
func (s State) Marker() string {
	if s <= None || int(s) >= len(markers) {
		return ""
	}
	return markers[s]
}

// Transient reports whether s is an in-round sub-phase (the pitcher's
// Pitching screen). Transient states are omitted from Timeline.Phases.
func (s State) Transient() bool {
	return s == Pitching
}

// Parse accepts either the state name ("host-waiting") or its DOM marker
// ("create", "join"). Matching is case-insensitive.
func Parse(v string) (State, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for s := Welcome; s <= ScoreUpdated; s++ {
		if v == s.String() || (v != "" && v == s.Marker()) {
			return s, nil
		}
	}
	return None, fmt.Errorf("lifecycle: unknown state %q", v)
}

// transitions is the normal-flow graph. Repeated Spectating observations
// are legal: every pitch round ends on the spectating screen.
var transitions = map[State][]State{
	None:         {Welcome, JoinForm},
	Welcome:      {CreateForm, JoinForm},
	CreateForm:   {HostWaiting},
	JoinForm:     {Waiting},
	HostWaiting:  {Spectating},
	Waiting:      {Spectating},
	Spectating:   {Spectating, Buying, Pitching, ScoreUpdated},
	Buying:       {Spectating},
	Pitching:     {Spectating},
	ScoreUpdated: {Spectating, Buying, Pitching, ScoreUpdated},
}

// CanTransition reports whether an actor currently in from may next be
// observed in to.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError is returned when an observation does not follow the
// lifecycle graph.
type TransitionError struct {
	Actor string
	From  State
	To    State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lifecycle: %s cannot move from %s to %s", e.Actor, e.From, e.To)
}
