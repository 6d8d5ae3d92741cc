package lifecycle

import (
	"sync"
	"time"
)

// Observation is one resolved state checkpoint.
type Observation struct {
	State State
	At    time.Time
}

// Timeline records the states one actor was observed in, in order. It is
// safe for concurrent use; the driver writes from the actor's goroutine
// while reporters read.
type Timeline struct {
	actor string

	mu  sync.Mutex
	obs []Observation
}

// NewTimeline returns an empty timeline for actor.
func NewTimeline(actor string) *Timeline {
	return &Timeline{actor: actor}
}

// Actor returns the actor name the timeline belongs to.
func (t *Timeline) Actor() string { return t.actor }

// Observe appends s after checking it against the lifecycle graph.
func (t *Timeline) Observe(s State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := None
	if n := len(t.obs); n > 0 {
		cur = t.obs[n-1].State
	}
	if !CanTransition(cur, s) {
		return &TransitionError{Actor: t.actor, From: cur, To: s}
	}
	t.obs = append(t.obs, Observation{State: s, At: time.Now()})
	return nil
}

// Current returns the most recently observed state, or None.
func (t *Timeline) Current() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.obs) == 0 {
		return None
	}
	return t.obs[len(t.obs)-1].State
}

// Observations returns a copy of the recorded observations.
func (t *Timeline) Observations() []Observation {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Observation, len(t.obs))
	copy(out, t.obs)
	return out
}

// States returns every observed state in order.
func (t *Timeline) States() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]State, len(t.obs))
	for i, o := range t.obs {
		out[i] = o.State
	}
	return out
}

// Phases returns the observed states without transient in-round phases.
func (t *Timeline) Phases() []State {
	var out []State
	for _, s := range t.States() {
		if !s.Transient() {
			out = append(out, s)
		}
	}
	return out
}

// Contains reports whether s was ever observed.
func (t *Timeline) Contains(s State) bool {
	for _, o := range t.States() {
		if o == s {
			return true
		}
	}
	return false
}
