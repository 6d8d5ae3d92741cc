package scenario

import (
	"fmt"
	"sort"
	"time"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/lifecycle"
)

// Built-in scenario names.
const (
	NormalGameName      = "normal-game"
	ProvisionedJoinName = "provisioned-join"
)

// Options parameterise the built-in scenarios.
type Options struct {
	AppURL    string
	KeepAlive time.Duration

	// Profile returns the session profile of an actor. Nil gives every
	// actor the default profile.
	Profile func(actor string) browser.Profile

	GameName   string // default "Test game"
	HostName   string // default "Host"
	PlayerName string // default "Player 1"
}

func (o Options) profile(actor string) browser.Profile {
	if o.Profile == nil {
		return browser.Profile{}
	}
	return o.Profile(actor)
}

func (o *Options) defaults() {
	if o.GameName == "" {
		o.GameName = "Test game"
	}
	if o.HostName == "" {
		o.HostName = "Host"
	}
	if o.PlayerName == "" {
		o.PlayerName = "Player 1"
	}
}

func see(l browser.Locator) *Target { return &Target{Locator: l} }

// join returns the steps a player runs to join the lobby with the code
// read by the host.
func join(actor, prefix, name string, after ...string) []Step {
	return []Step{
		{ID: prefix + "-open", Actor: actor, Action: ActionNavigate, Expect: lifecycle.Welcome, Capture: "01-welcome", After: after},
		{ID: prefix + "-join-form", Actor: actor, Action: ActionClick, Target: Target{Locator: browser.Button("Join game")}, Expect: lifecycle.JoinForm, Capture: "02-1-join-game"},
		{ID: prefix + "-code", Actor: actor, Action: ActionFill, Target: Target{Locator: browser.Input("Game code")}, ValueExpr: "game_code"},
		{ID: prefix + "-name", Actor: actor, Action: ActionFill, Target: Target{Locator: browser.Input("Player name")}, Value: name, Capture: "02-2-join-game-with-input"},
		{ID: prefix + "-join", Actor: actor, Action: ActionClick, Target: Target{Locator: browser.Button("Join game")}, Expect: lifecycle.Waiting, Capture: "03-1-lobby"},
	}
}

// pitch returns the steps of a pitcher choosing two words from its hand
// and pitching them. The hand is bound as bind.
func pitch(actor, prefix, bind string, after ...string) []Step {
	word := func(i int) Target {
		return Target{Locator: browser.Button(""), Expr: fmt.Sprintf("%s[%d]", bind, i)}
	}
	return []Step{
		{ID: prefix + "-words", Actor: actor, Action: ActionCollect, Target: Target{Locator: browser.CSS(".hand__container button")}, Bind: bind, Min: 2, After: after},
		{ID: prefix + "-word-1", Actor: actor, Action: ActionClick, Target: word(0)},
		{ID: prefix + "-word-2", Actor: actor, Action: ActionClick, Target: word(1), Capture: "05-1-selecting-words"},
		{ID: prefix + "-pitch", Actor: actor, Action: ActionClick, Target: Target{Locator: browser.Button("Start pitch")}, Expect: lifecycle.Pitching, Capture: "05-2-pitching"},
		{ID: prefix + "-finish", Actor: actor, Action: ActionClick, Target: Target{Locator: browser.Button("Finish pitch")}, Expect: lifecycle.Spectating, Capture: "05-3-finished-pitching"},
	}
}

// NormalGame is the self-service flow: the host creates a game, two
// players join with the code shown in the lobby, the host and player2
// pitch to player1, who picks player2, and the point shows up on the host
// and player2 screens.
func NormalGame(o Options) *Scenario {
	o.defaults()
	const (
		host = "host"
		p1   = "player1"
		p2   = "player2"
	)
	point := browser.ClassText("point", "1")

	var steps []Step
	steps = append(steps,
		Step{ID: "h-open", Actor: host, Action: ActionNavigate, Expect: lifecycle.Welcome, Capture: "01-welcome"},
		Step{ID: "h-create-form", Actor: host, Action: ActionClick, Target: Target{Locator: browser.Button("Create game")}, Expect: lifecycle.CreateForm, Capture: "02-1-create-game"},
		Step{ID: "h-game-name", Actor: host, Action: ActionFill, Target: Target{Locator: browser.Input("Game name")}, Value: o.GameName},
		Step{ID: "h-host-name", Actor: host, Action: ActionFill, Target: Target{Locator: browser.Input("Player name")}, Value: o.HostName, Capture: "02-2-create-game-with-input"},
		Step{ID: "h-create", Actor: host, Action: ActionClick, Target: Target{Locator: browser.Button("Create game")}, Expect: lifecycle.HostWaiting, Capture: "03-1-lobby"},
		Step{ID: "h-code", Actor: host, Action: ActionRead, Target: Target{Locator: browser.CSS("#game-code")}, Bind: BindGameCode},
	)
	steps = append(steps, join(p1, "p1", "Player 1", "h-code")...)
	steps = append(steps,
		Step{ID: "h-see-p1", Actor: host, Action: ActionWait, See: see(browser.Text("Player 1")), Capture: "03-2-lobby", After: []string{"p1-join"}},
	)
	steps = append(steps, join(p2, "p2", "Player 2", "h-see-p1")...)
	steps = append(steps,
		Step{ID: "h-see-p2", Actor: host, Action: ActionWait, See: see(browser.Text("Player 2")), Capture: "03-3-lobby", After: []string{"p2-join"}},
		Step{ID: "h-start", Actor: host, Action: ActionClick, Target: Target{Locator: browser.Button("Start game")}, Expect: lifecycle.Spectating, Capture: "04-1-spectating-screen"},

		Step{ID: "p1-start", Actor: p1, Action: ActionWait, Expect: lifecycle.Spectating, Capture: "04-1-spectating-screen", After: []string{"h-start"}},
		Step{ID: "p2-start", Actor: p2, Action: ActionWait, Expect: lifecycle.Spectating, Capture: "04-1-spectating-screen", After: []string{"h-start"}},

		Step{ID: "p1-buyer", Actor: p1, Action: ActionClick, Target: Target{Locator: browser.Button("Buyer")}, Expect: lifecycle.Buying, Capture: "05-1-buying"},
	)
	steps = append(steps, pitch(host, "h", "host_words", "p1-buyer")...)
	steps = append(steps,
		Step{ID: "p1-host-pitch", Actor: p1, Action: ActionWait,
			See:     &Target{Locator: browser.Text(""), Expr: `lower(host_words[0]) + " " + lower(host_words[1])`},
			Capture: "05-2-buying", After: []string{"h-finish"}},
	)
	steps = append(steps, pitch(p2, "p2", "p2_words", "p1-host-pitch")...)
	steps = append(steps,
		Step{ID: "p1-p2-pitch", Actor: p1, Action: ActionWait,
			See:     &Target{Locator: browser.Text(""), Expr: `lower(p2_words[0]) + " " + lower(p2_words[1])`},
			Capture: "05-3-buying", After: []string{"p2-finish"}},
		Step{ID: "p1-pick", Actor: p1, Action: ActionClick,
			Target: Target{Locator: browser.Button(""), Expr: `p2_words[0] + " " + p2_words[1]`},
			Expect: lifecycle.Spectating, Capture: "05-4-finished-buying"},

		Step{ID: "h-score-pending", Actor: host, Action: ActionWait, Capture: "05-3.5-point-awarded", After: []string{"p1-pick"}},
		Step{ID: "h-score", Actor: host, Action: ActionWait, Expect: lifecycle.Spectating, See: see(point), Capture: "05-4-point-awarded"},
		Step{ID: "p2-score", Actor: p2, Action: ActionWait, Expect: lifecycle.ScoreUpdated, See: see(point), Capture: "05-4-point-awarded", After: []string{"p1-pick"}},
	)

	return &Scenario{
		Name:      NormalGameName,
		AppURL:    o.AppURL,
		KeepAlive: o.KeepAlive,
		Actors: []Actor{
			{Name: host, Role: RoleHost, Profile: o.profile(host)},
			{Name: p1, Role: RolePlayer, Profile: o.profile(p1)},
			{Name: p2, Role: RolePlayer, Profile: o.profile(p2)},
		},
		Steps: steps,
	}
}

// ProvisionedJoin creates the game through the setup API and joins it as
// a single guest through the deep link, which must land on the join form
// with the player name pre-filled.
func ProvisionedJoin(o Options) *Scenario {
	o.defaults()
	const guest = "guest"
	return &Scenario{
		Name:      ProvisionedJoinName,
		AppURL:    o.AppURL,
		KeepAlive: o.KeepAlive,
		Provision: &ProvisionSpec{GameName: o.GameName},
		Actors:    []Actor{{Name: guest, Role: RolePlayer, Profile: o.profile(guest)}},
		Steps: []Step{
			{ID: "g-open", Actor: guest, Action: ActionNavigate,
				ValueExpr: fmt.Sprintf("deepLink(%s, %q)", BindGameCode, o.PlayerName),
				Expect:    lifecycle.JoinForm, Capture: "01-deep-link"},
			{ID: "g-name", Actor: guest, Action: ActionRead, Target: Target{Locator: browser.Input("Player name")}, Bind: "guest_name", Equals: o.PlayerName},
			{ID: "g-code", Actor: guest, Action: ActionRead, Target: Target{Locator: browser.Input("Game code")}, Bind: "guest_code", EqualsExpr: BindGameCode},
			{ID: "g-join", Actor: guest, Action: ActionClick, Target: Target{Locator: browser.Button("Join game")}, Expect: lifecycle.Waiting, Capture: "02-lobby"},
		},
	}
}

var builtins = map[string]func(Options) *Scenario{
	NormalGameName:      NormalGame,
	ProvisionedJoinName: ProvisionedJoin,
}

// Builtins lists the built-in scenario names.
func Builtins() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the built-in scenario name, or loads it from a YAML file
// when name is a path ending in .yaml or .yml.
func Resolve(name string, o Options) (*Scenario, error) {
	if f, ok := builtins[name]; ok {
		return f(o), nil
	}
	if isYAML(name) {
		return LoadFile(name, o)
	}
	return nil, fmt.Errorf("scenario: unknown scenario %q (built-in: %v)", name, Builtins())
}
