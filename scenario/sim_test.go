package scenario

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"maps"
	"math/rand/v2"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/provision"
)

// simGame is an in-memory rendition of the pitch game's UI contract. Each
// actor's page sees its own screen; clicks mutate the shared game.
type simGame struct {
	mu sync.Mutex

	code    string
	started bool
	players []string          // joined player names, in join order
	names   map[string]string // actor -> player name
	screens map[string]string // actor -> container marker
	inputs  map[string]map[string]string
	hands   map[string][]string
	picked  map[string][]string
	pitched map[string]bool
	pitches []string // lowercased phrases shown to the buyer
	phrases map[string]string // "W1 W2" as pitched -> pitcher actor
	buyer   string
	points  map[string]int
	rng     *rand.Rand

	// history of screens per actor, for assertions on what was ever shown.
	seen   map[string][]string
	closed map[string]bool

	// hooks
	stall   string // actor whose Has never succeeds
	opened  []string
	navURLs map[string]string
}

var simWords = []string{"Rocket", "Banana", "Cloud", "Hammer", "Violin", "Garden", "Pencil", "Turtle", "Lamp", "Bridge"}

func newSimGame(seed uint64) *simGame {
	return &simGame{
		names:   make(map[string]string),
		screens: make(map[string]string),
		inputs:  make(map[string]map[string]string),
		hands:   make(map[string][]string),
		picked:  make(map[string][]string),
		pitched: make(map[string]bool),
		phrases: make(map[string]string),
		points:  make(map[string]int),
		seen:    make(map[string][]string),
		closed:  make(map[string]bool),
		navURLs: make(map[string]string),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (g *simGame) opener() Opener {
	return OpenerFunc(func(_ context.Context, a Actor) (Page, error) {
		g.mu.Lock()
		defer g.mu.Unlock()
		g.opened = append(g.opened, a.Name)
		g.inputs[a.Name] = make(map[string]string)
		return &simPage{g: g, actor: a.Name}, nil
	})
}

// ProvisionGame implements Provisioner.
func (g *simGame) ProvisionGame(_ context.Context, name string) (provision.Game, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.code = "PROV42"
	return provision.Game{GameCode: g.code, HostCode: "HOST99"}, nil
}

func (g *simGame) show(actor, marker string) {
	g.screens[actor] = marker
	g.seen[actor] = append(g.seen[actor], marker)
}

func (g *simGame) everSeen(actor, marker string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, m := range g.seen[actor] {
		if m == marker {
			return true
		}
	}
	return false
}

// deal gives every joined actor three words; hands never overlap.
func (g *simGame) deal() {
	actors := slices.Sorted(maps.Keys(g.names))
	perm := g.rng.Perm(len(simWords))
	for i, actor := range actors {
		for _, j := range perm[i*3 : i*3+3] {
			g.hands[actor] = append(g.hands[actor], simWords[j])
		}
	}
}

type simPage struct {
	g     *simGame
	actor string
}

var errNoElement = errors.New("no such element")

func (p *simPage) notFound(loc browser.Locator) error {
	return &browser.LocatorNotFoundError{Session: p.actor, Locator: loc, Err: errNoElement}
}

// buttons returns the labels of the buttons on the actor's screen.
func (p *simPage) buttons() []string {
	g := p.g
	switch g.screens[p.actor] {
	case "welcome":
		return []string{"Create game", "Join game"}
	case "create":
		return []string{"Create game"}
	case "join":
		return []string{"Join game"}
	case "host-waiting":
		return []string{"Start game"}
	case "spectating":
		if g.buyer == "" {
			if g.names[p.actor] != "" && g.isPlayer(p.actor) {
				return []string{"Buyer"}
			}
			return nil
		}
		if p.actor != g.buyer && !g.pitched[p.actor] {
			return append(append([]string(nil), g.hands[p.actor]...), "Start pitch")
		}
	case "pitching":
		return []string{"Finish pitch"}
	case "buying":
		var out []string
		for phrase := range g.phrases {
			out = append(out, phrase)
		}
		return out
	}
	return nil
}

func (g *simGame) isPlayer(actor string) bool {
	name := g.names[actor]
	if len(g.players) < 2 {
		return false
	}
	for _, n := range g.players[1:] {
		if n == name {
			return true
		}
	}
	return false
}

// texts returns every text shown on the actor's screen.
func (p *simPage) texts() []string {
	g := p.g
	out := append([]string(nil), p.buttons()...)
	switch g.screens[p.actor] {
	case "host-waiting", "waiting":
		out = append(out, g.players...)
	case "buying":
		out = append(out, g.pitches...)
	}
	return out
}

// pointsShown renders a counter for every joined actor, zeros included.
func (p *simPage) pointsShown() []string {
	g := p.g
	if g.screens[p.actor] != "spectating" {
		return nil
	}
	var out []string
	for _, actor := range slices.Sorted(maps.Keys(g.names)) {
		out = append(out, fmt.Sprint(g.points[actor]))
	}
	return out
}

func containsFold(s, sub string) bool { return strings.Contains(strings.ToLower(s), strings.ToLower(sub)) }

func (p *simPage) match(loc browser.Locator) []string {
	g := p.g
	screen := g.screens[p.actor]
	switch loc.Kind {
	case browser.KindMarker:
		if screen == loc.Value {
			return []string{screen}
		}
	case browser.KindButton:
		var out []string
		for _, b := range p.buttons() {
			if containsFold(b, loc.Value) {
				out = append(out, b)
			}
		}
		return out
	case browser.KindText:
		for _, t := range p.texts() {
			if strings.TrimSpace(t) == strings.TrimSpace(loc.Value) {
				return []string{t}
			}
		}
	case browser.KindInput:
		if _, ok := p.formInputs()[loc.Value]; ok {
			return []string{loc.Value}
		}
	case browser.KindClassText:
		if loc.Class == "point" {
			for _, s := range p.pointsShown() {
				if strings.Contains(s, loc.Value) {
					return []string{s}
				}
			}
		}
	case browser.KindClassNonZero:
		if loc.Class == "point" {
			var out []string
			for _, s := range p.pointsShown() {
				if strings.ContainsAny(s, "123456789") {
					out = append(out, s)
				}
			}
			return out
		}
	case browser.KindCSS:
		switch loc.Value {
		case "#game-code":
			if screen == "host-waiting" {
				return []string{g.code}
			}
		case ".hand__container button":
			if screen == "spectating" && g.buyer != "" && p.actor != g.buyer && !g.pitched[p.actor] {
				return g.hands[p.actor]
			}
		}
	}
	return nil
}

func (p *simPage) formInputs() map[string]bool {
	switch p.g.screens[p.actor] {
	case "create":
		return map[string]bool{"Game name": true, "Player name": true}
	case "join":
		return map[string]bool{"Game code": true, "Player name": true}
	}
	return nil
}

func (p *simPage) Has(ctx context.Context, loc browser.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	if p.g.stall == p.actor {
		return false, nil
	}
	return len(p.match(loc)) > 0, nil
}

func (p *simPage) Navigate(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	g.navURLs[p.actor] = raw
	q := u.Query()
	if code := q.Get("gameCode"); code != "" {
		g.inputs[p.actor]["Game code"] = code
		g.inputs[p.actor]["Player name"] = q.Get("name")
		g.show(p.actor, "join")
		return nil
	}
	g.show(p.actor, "welcome")
	return nil
}

func (p *simPage) Fill(ctx context.Context, loc browser.Locator, v string) error {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if loc.Kind != browser.KindInput || !p.formInputs()[loc.Value] {
		return p.notFound(loc)
	}
	g.inputs[p.actor][loc.Value] = v
	return nil
}

func (p *simPage) Value(ctx context.Context, loc browser.Locator) (string, error) {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	if loc.Kind == browser.KindInput && p.formInputs()[loc.Value] {
		return g.inputs[p.actor][loc.Value], nil
	}
	if m := p.match(loc); len(m) > 0 {
		return m[0], nil
	}
	return "", p.notFound(loc)
}

func (p *simPage) Texts(ctx context.Context, loc browser.Locator) ([]string, error) {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	m := p.match(loc)
	if len(m) == 0 {
		return nil, p.notFound(loc)
	}
	return append([]string(nil), m...), nil
}

func (p *simPage) Click(ctx context.Context, loc browser.Locator) error {
	g := p.g
	g.mu.Lock()
	defer g.mu.Unlock()
	m := p.match(loc)
	if loc.Kind != browser.KindButton || len(m) == 0 {
		return p.notFound(loc)
	}
	label := m[0]
	in := g.inputs[p.actor]

	switch screen := g.screens[p.actor]; {
	case screen == "welcome" && label == "Create game":
		g.show(p.actor, "create")
	case screen == "welcome" && label == "Join game":
		g.show(p.actor, "join")
	case screen == "create":
		g.code = fmt.Sprintf("G%03dXY", g.rng.IntN(1000))
		g.players = []string{in["Player name"]}
		g.names[p.actor] = in["Player name"]
		g.show(p.actor, "host-waiting")
	case screen == "join":
		if in["Game code"] != g.code || g.code == "" {
			return fmt.Errorf("sim: unknown game %q", in["Game code"])
		}
		g.players = append(g.players, in["Player name"])
		g.names[p.actor] = in["Player name"]
		g.show(p.actor, "waiting")
	case screen == "host-waiting" && label == "Start game":
		g.started = true
		for actor, s := range g.screens {
			if s == "host-waiting" || s == "waiting" {
				g.show(actor, "spectating")
			}
		}
		g.deal()
	case screen == "spectating" && label == "Buyer":
		g.buyer = p.actor
		g.show(p.actor, "buying")
	case screen == "spectating" && label == "Start pitch":
		if len(g.picked[p.actor]) != 2 {
			return errors.New("sim: pick two words first")
		}
		g.show(p.actor, "pitching")
	case screen == "spectating":
		g.picked[p.actor] = append(g.picked[p.actor], label)
	case screen == "pitching":
		w := g.picked[p.actor]
		g.phrases[w[0]+" "+w[1]] = p.actor
		g.pitches = append(g.pitches, strings.ToLower(w[0]+" "+w[1]))
		g.pitched[p.actor] = true
		g.show(p.actor, "spectating")
	case screen == "buying":
		g.points[g.phrases[label]]++
		g.show(p.actor, "spectating")
	default:
		return fmt.Errorf("sim: %s cannot click %q on %s", p.actor, label, screen)
	}
	return nil
}

func (p *simPage) Screenshot(ctx context.Context) ([]byte, error) {
	g := p.g
	g.mu.Lock()
	screen := g.screens[p.actor]
	g.mu.Unlock()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	c := color.NRGBA{R: uint8(len(screen) * 20), G: 80, B: 160, A: 255}
	for y := range 4 {
		for x := range 4 {
			img.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *simPage) Close() error {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	p.g.closed[p.actor] = true
	return nil
}
