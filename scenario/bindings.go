package scenario

import (
	"fmt"
	"maps"
	"sync"

	"github.com/expr-lang/expr"

	"github.com/hazyhaar/wat/provision"
)

// bindings is the scenario's shared variable table. Steps write it through
// read, collect and provisioning; expressions read a snapshot.
type bindings struct {
	mu     sync.RWMutex
	vals   map[string]any
	appURL string
}

func newBindings(appURL string) *bindings {
	return &bindings{vals: make(map[string]any), appURL: appURL}
}

func (b *bindings) set(name string, v any) {
	b.mu.Lock()
	b.vals[name] = v
	b.mu.Unlock()
}

func (b *bindings) snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.vals)
}

// eval evaluates src against the current bindings and requires a string.
func (b *bindings) eval(src string) (string, error) {
	env := b.snapshot()
	program, err := expr.Compile(src, exprOptions(env, b.appURL)...)
	if err != nil {
		return "", fmt.Errorf("compile %q: %w", src, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return "", fmt.Errorf("eval %q: %w", src, err)
	}
	s, ok := out.(string)
	if !ok {
		return "", fmt.Errorf("expression %q returned %T, want string", src, out)
	}
	return s, nil
}

// exprOptions builds the compile options for env. deepLink(code, name)
// returns the join URL for appURL.
func exprOptions(env map[string]any, appURL string) []expr.Option {
	return []expr.Option{
		expr.Env(env),
		expr.Function("deepLink", func(params ...any) (any, error) {
			return provision.DeepLink(appURL, params[0].(string), params[1].(string))
		}, new(func(string, string) string)),
	}
}

// checkExpr compiles src against placeholder bindings: names must exist,
// types must fit.
func checkExpr(src string, placeholders map[string]any) error {
	_, err := expr.Compile(src, exprOptions(placeholders, "http://localhost/")...)
	return err
}
