package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/lifecycle"
)

type fileScenario struct {
	Name      string         `yaml:"name"`
	AppURL    string         `yaml:"app_url"`
	KeepAlive time.Duration  `yaml:"keep_alive"`
	Provision *fileProvision `yaml:"provision"`
	Actors    []fileActor    `yaml:"actors"`
	Steps     []fileStep     `yaml:"steps"`
}

type fileProvision struct {
	GameName string `yaml:"game_name"`
}

type fileActor struct {
	Name     string            `yaml:"name"`
	Role     Role              `yaml:"role"`
	Viewport *browser.Viewport `yaml:"viewport"`
	Timeout  time.Duration     `yaml:"timeout"`
}

type fileTarget struct {
	CSS     *string `yaml:"css"`
	XPath   *string `yaml:"xpath"`
	Button  *string `yaml:"button"`
	Input   *string `yaml:"input"`
	Text    *string `yaml:"text"`
	Marker  *string `yaml:"marker"`
	Class   string  `yaml:"class"` // with text: class-text; with nonzero: class-nonzero
	NonZero bool    `yaml:"nonzero"`
	Expr    string  `yaml:"expr"`
}

type fileStep struct {
	ID         string      `yaml:"id"`
	Actor      string      `yaml:"actor"`
	Action     Action      `yaml:"action"`
	Target     *fileTarget `yaml:"target"`
	Value      string      `yaml:"value"`
	ValueExpr  string      `yaml:"value_expr"`
	Bind       string      `yaml:"bind"`
	Min        int         `yaml:"min"`
	Equals     string      `yaml:"equals"`
	EqualsExpr string      `yaml:"equals_expr"`
	Expect     string      `yaml:"expect"`
	See        *fileTarget `yaml:"see"`
	Capture    string      `yaml:"capture"`
	After      []string    `yaml:"after"`
}

func isYAML(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile reads a scenario from a YAML file. See Load.
func LoadFile(path string, o Options) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario: read %s: %w", path, err)
	}
	s, err := Load(bytes.NewReader(data), o)
	if err != nil {
		return nil, fmt.Errorf("scenario: %s: %w", path, err)
	}
	return s, nil
}

// Load decodes a YAML scenario. The app URL and keep-alive default to o's,
// and each actor starts from o.Profile(name) before its own viewport and
// timeout are applied. The result is validated.
func Load(r io.Reader, o Options) (*Scenario, error) {
	var f fileScenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	s := &Scenario{
		Name:      f.Name,
		AppURL:    f.AppURL,
		KeepAlive: f.KeepAlive,
	}
	if s.AppURL == "" {
		s.AppURL = o.AppURL
	}
	if s.KeepAlive == 0 {
		s.KeepAlive = o.KeepAlive
	}
	if f.Provision != nil {
		s.Provision = &ProvisionSpec{GameName: f.Provision.GameName}
		if s.Provision.GameName == "" {
			o.defaults()
			s.Provision.GameName = o.GameName
		}
	}
	for _, fa := range f.Actors {
		p := o.profile(fa.Name)
		if fa.Viewport != nil {
			p.Viewport = *fa.Viewport
		}
		if fa.Timeout > 0 {
			p.Timeout = fa.Timeout
		}
		s.Actors = append(s.Actors, Actor{Name: fa.Name, Role: fa.Role, Profile: p})
	}

	var errs []error
	for i, fs := range f.Steps {
		st, err := fs.step()
		if err != nil {
			errs = append(errs, fmt.Errorf("step %d (%s): %w", i, fs.ID, err))
			continue
		}
		s.Steps = append(s.Steps, st)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (fs fileStep) step() (Step, error) {
	st := Step{
		ID:         fs.ID,
		Actor:      fs.Actor,
		Action:     fs.Action,
		Value:      fs.Value,
		ValueExpr:  fs.ValueExpr,
		Bind:       fs.Bind,
		Min:        fs.Min,
		Equals:     fs.Equals,
		EqualsExpr: fs.EqualsExpr,
		Capture:    fs.Capture,
		After:      fs.After,
	}
	if fs.Target != nil {
		t, err := fs.Target.target()
		if err != nil {
			return Step{}, fmt.Errorf("target: %w", err)
		}
		st.Target = t
	}
	if fs.See != nil {
		t, err := fs.See.target()
		if err != nil {
			return Step{}, fmt.Errorf("see: %w", err)
		}
		st.See = &t
	}
	if fs.Expect != "" {
		s, err := lifecycle.Parse(fs.Expect)
		if err != nil {
			return Step{}, err
		}
		st.Expect = s
	}
	return st, nil
}

func (ft fileTarget) target() (Target, error) {
	var locs []browser.Locator
	add := func(v *string, f func(string) browser.Locator) {
		if v != nil {
			locs = append(locs, f(*v))
		}
	}
	add(ft.CSS, browser.CSS)
	add(ft.XPath, browser.XPath)
	add(ft.Button, browser.Button)
	add(ft.Input, browser.Input)
	add(ft.Marker, browser.Marker)
	switch {
	case ft.Class != "" && ft.NonZero:
		locs = append(locs, browser.ClassNonZero(ft.Class))
		add(ft.Text, browser.Text)
	case ft.Class != "":
		if ft.Text == nil {
			return Target{}, fmt.Errorf("class %q needs text or nonzero", ft.Class)
		}
		locs = append(locs, browser.ClassText(ft.Class, *ft.Text))
	default:
		add(ft.Text, browser.Text)
	}
	if len(locs) != 1 {
		return Target{}, fmt.Errorf("exactly one locator kind required, got %d", len(locs))
	}
	return Target{Locator: locs[0], Expr: ft.Expr}, nil
}
