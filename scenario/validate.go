package scenario

import (
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/horosafe"
	"github.com/hazyhaar/wat/lifecycle"
)

var bindNameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Validate rejects scenarios that cannot run to completion: unknown actors
// or step references, duplicate IDs or captures, dependency cycles,
// expressions whose bindings are not guaranteed to exist when the step
// runs, and actor timeouts not strictly greater than the keep-alive
// interval.
func (s *Scenario) Validate() error {
	v := &validator{s: s}
	v.scenario()
	v.actors()
	v.steps()
	if len(v.problems) == 0 {
		v.graph()
	}
	if len(v.problems) > 0 {
		return &ValidationError{Scenario: s.Name, Problems: v.problems}
	}
	return nil
}

type validator struct {
	s        *Scenario
	problems []string
	index    map[string]int // step ID -> index
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) scenario() {
	if err := horosafe.ValidateIdentifier(v.s.Name); err != nil {
		v.addf("name: %v", err)
	}
	if err := horosafe.ValidateURL(v.s.AppURL); err != nil {
		v.addf("app url: %v", err)
	}
	if v.s.Provision != nil && v.s.Provision.GameName == "" {
		v.addf("provision: game name is empty")
	}
}

func (v *validator) actors() {
	if len(v.s.Actors) == 0 {
		v.addf("no actors")
	}
	seen := make(map[string]bool)
	for _, a := range v.s.Actors {
		if err := horosafe.ValidateIdentifier(a.Name); err != nil {
			v.addf("actor %q: %v", a.Name, err)
		}
		if seen[a.Name] {
			v.addf("actor %q declared twice", a.Name)
		}
		seen[a.Name] = true
		if a.Role != RoleHost && a.Role != RolePlayer {
			v.addf("actor %s: unknown role %q", a.Name, a.Role)
		}
		timeout := a.Profile.Timeout
		if timeout <= 0 {
			timeout = browser.DefaultTimeout
		}
		if timeout <= v.s.keepAlive() {
			v.addf("actor %s: timeout %s must exceed keep-alive %s", a.Name, timeout, v.s.keepAlive())
		}
	}
}

func (v *validator) steps() {
	v.index = make(map[string]int, len(v.s.Steps))
	captures := make(map[[2]string]string)
	binders := make(map[string]string)
	if v.s.Provision != nil {
		binders[BindGameCode] = "provision"
		binders[BindHostCode] = "provision"
	}

	for i, st := range v.s.Steps {
		where := fmt.Sprintf("step %d (%s)", i, st.ID)
		if st.ID == "" {
			v.addf("step %d: empty id", i)
		} else if j, dup := v.index[st.ID]; dup {
			v.addf("%s: id already used by step %d", where, j)
		} else {
			v.index[st.ID] = i
		}
		if _, ok := v.s.actor(st.Actor); !ok {
			v.addf("%s: unknown actor %q", where, st.Actor)
		}
		if !st.Action.valid() {
			v.addf("%s: unknown action %q", where, st.Action)
			continue
		}
		if st.Action.needsTarget() && st.Target.zero() {
			v.addf("%s: %s needs a target", where, st.Action)
		}
		switch st.Action {
		case ActionRead, ActionCollect:
			if !bindNameRE.MatchString(st.Bind) {
				v.addf("%s: invalid binding name %q", where, st.Bind)
			} else if prev, dup := binders[st.Bind]; dup {
				v.addf("%s: binding %q already set by %s", where, st.Bind, prev)
			} else {
				binders[st.Bind] = st.ID
			}
			if st.Min < 0 {
				v.addf("%s: negative min", where)
			}
		case ActionWait:
			if st.Expect == lifecycle.None && st.See == nil && st.Capture == "" {
				v.addf("%s: wait without expectation or capture", where)
			}
		}
		if st.Expect < lifecycle.None || st.Expect > lifecycle.ScoreUpdated {
			v.addf("%s: unknown state %d", where, int(st.Expect))
		}
		if st.Capture != "" {
			if err := horosafe.ValidateIdentifier(st.Capture); err != nil {
				v.addf("%s: capture tag: %v", where, err)
			}
			key := [2]string{st.Actor, st.Capture}
			if prev, dup := captures[key]; dup {
				v.addf("%s: capture %s/%s already taken by %s", where, st.Actor, st.Capture, prev)
			}
			captures[key] = st.ID
		}
	}

	for i, st := range v.s.Steps {
		for _, dep := range st.After {
			if dep == st.ID {
				v.addf("step %d (%s): depends on itself", i, st.ID)
			} else if _, ok := v.index[dep]; !ok {
				v.addf("step %d (%s): unknown dependency %q", i, st.ID, dep)
			}
		}
	}
}

// graph checks for cycles and for bindings read before they are
// guaranteed to be written.
func (v *validator) graph() {
	steps := v.s.Steps
	n := len(steps)
	preds := make([][]int, n)
	last := make(map[string]int)
	for i, st := range steps {
		if p, ok := last[st.Actor]; ok {
			preds[i] = append(preds[i], p)
		}
		last[st.Actor] = i
		for _, dep := range st.After {
			preds[i] = append(preds[i], v.index[dep])
		}
	}

	// Kahn's algorithm; leftovers sit on a cycle.
	indeg := make([]int, n)
	succs := make([][]int, n)
	for i, ps := range preds {
		indeg[i] = len(ps)
		for _, p := range ps {
			succs[p] = append(succs[p], i)
		}
	}
	var queue, order []int
	for i := range n {
		if indeg[i] == 0 {
			queue = append(queue, i)
		}
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		order = append(order, i)
		for _, s := range succs[i] {
			indeg[s]--
			if indeg[s] == 0 {
				queue = append(queue, s)
			}
		}
	}
	if len(order) < n {
		var stuck []string
		for i := range n {
			if indeg[i] > 0 {
				stuck = append(stuck, steps[i].ID)
			}
		}
		v.addf("dependency cycle (deadlock) among steps %v", stuck)
		return
	}

	// before[i][j]: step j completes before step i starts.
	before := make([][]bool, n)
	for _, i := range order {
		before[i] = make([]bool, n)
		for _, p := range preds[i] {
			before[i][p] = true
			for j, ok := range before[p] {
				if ok {
					before[i][j] = true
				}
			}
		}
	}

	for i, st := range steps {
		exprs := st.expressions()
		if len(exprs) == 0 {
			continue
		}
		env := make(map[string]any)
		if v.s.Provision != nil {
			env[BindGameCode] = ""
			env[BindHostCode] = ""
		}
		for j, other := range steps {
			if !before[i][j] {
				continue
			}
			switch other.Action {
			case ActionRead:
				env[other.Bind] = ""
			case ActionCollect:
				env[other.Bind] = []string{}
			}
		}
		for _, e := range exprs {
			if err := checkExpr(e, env); err != nil {
				names := slices.Sorted(maps.Keys(env))
				v.addf("step %d (%s): expression %q with bindings %v: %v", i, st.ID, e, names, err)
			}
		}
	}
}
