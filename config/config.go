// Package config loads wat's run configuration from a YAML file, with
// WAT_* environment variables overriding file values.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/wat/browser"
	"github.com/hazyhaar/wat/horosafe"
	"github.com/hazyhaar/wat/visualdiff"
)

// Config is the top-level wat configuration.
type Config struct {
	AppURL      string `yaml:"app_url" env:"WAT_APP_URL"`
	APIURL      string `yaml:"api_url" env:"WAT_API_URL"`
	Screenshots string `yaml:"screenshots" env:"WAT_SCREENSHOTS"`
	History     string `yaml:"history" env:"WAT_HISTORY"` // default <screenshots>/wat.db, "-" disables

	// Scenarios to run: built-in names or YAML scenario files.
	Scenarios []string `yaml:"scenarios" env:"WAT_SCENARIOS" envSeparator:","`

	// KeepAlive is the game's heartbeat interval. Every actor timeout must
	// exceed it.
	KeepAlive time.Duration `yaml:"keepalive" env:"WAT_KEEPALIVE"`
	Timeout   time.Duration `yaml:"timeout" env:"WAT_TIMEOUT"`

	Browser   BrowserConfig              `yaml:"browser"`
	Actors    map[string]browser.Viewport `yaml:"actors"`
	Capture   CaptureConfig              `yaml:"capture"`
	Diff      DiffConfig                 `yaml:"diff"`
	Provision ProvisionConfig            `yaml:"provision"`
	Serve     ServeConfig                `yaml:"serve"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote           string   `yaml:"remote" env:"WAT_BROWSER_REMOTE"`
	Bin              string   `yaml:"bin" env:"WAT_BROWSER_BIN"`
	Mode             string   `yaml:"mode" env:"WAT_BROWSER_MODE"` // headless | headful
	XvfbDisplay      string   `yaml:"xvfb_display" env:"WAT_XVFB_DISPLAY"`
	NoSandbox        bool     `yaml:"no_sandbox" env:"WAT_NO_SANDBOX"`
	Stealth          bool     `yaml:"stealth" env:"WAT_STEALTH"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	Format           string   `yaml:"format"` // png | jpeg | webp
}

// CaptureConfig controls checkpoint screenshots.
type CaptureConfig struct {
	Settle time.Duration `yaml:"settle" env:"WAT_SETTLE"`
}

// DiffConfig controls the regression pass.
type DiffConfig struct {
	Threshold float64 `yaml:"threshold" env:"WAT_THRESHOLD"`
	IncludeAA bool    `yaml:"include_aa"`
	Alpha     float64 `yaml:"alpha"`

	// MaxMismatch is the number of mismatched pixels tolerated before a
	// screenshot is classified as changed.
	MaxMismatch int `yaml:"max_mismatch" env:"WAT_MAX_MISMATCH"`
}

// ProvisionConfig controls the provisioned-join scenario.
type ProvisionConfig struct {
	GameName   string `yaml:"game_name"`
	PlayerName string `yaml:"player_name"`
}

// ServeConfig controls `wat serve`.
type ServeConfig struct {
	Addr string `yaml:"addr" env:"WAT_SERVE_ADDR"`
}

// Default returns the configuration used when no file is given. Actor
// viewports are a narrow phone, a small tablet and a desktop.
func Default() *Config {
	return &Config{
		AppURL:      "http://localhost:3000",
		APIURL:      "http://localhost:9001/api",
		Screenshots: "screenshots",
		Scenarios:   []string{"normal-game"},
		KeepAlive:   15 * time.Second,
		Timeout:     browser.DefaultTimeout,
		Browser: BrowserConfig{
			Mode:        "headless",
			XvfbDisplay: ":99",
			Format:      "png",
		},
		Actors: map[string]browser.Viewport{
			"host":    {Width: 360, Height: 1500},
			"player1": {Width: 601, Height: 1500},
			"player2": {Width: 1920, Height: 1500},
			"guest":   {Width: 601, Height: 1500},
		},
		Capture: CaptureConfig{Settle: 500 * time.Millisecond},
		Diff:    DiffConfig{Threshold: 0.1, Alpha: 0.1},
		Provision: ProvisionConfig{
			GameName:   "Test game",
			PlayerName: "Player 1",
		},
		Serve: ServeConfig{Addr: "127.0.0.1:8089"},
	}
}

// LoadFile reads the YAML file at path over the defaults, then applies
// environment overrides. An empty path loads defaults and environment only.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.History == "" {
		c.History = filepath.Join(c.Screenshots, "wat.db")
	}
	if c.Browser.XvfbDisplay == "" {
		c.Browser.XvfbDisplay = ":99"
	}
	if c.Browser.Format == "" {
		c.Browser.Format = "png"
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	var errs []error
	if err := horosafe.ValidateURL(c.AppURL); err != nil {
		errs = append(errs, fmt.Errorf("app_url: %w", err))
	}
	if c.APIURL != "" {
		if err := horosafe.ValidateURL(c.APIURL); err != nil {
			errs = append(errs, fmt.Errorf("api_url: %w", err))
		}
	}
	if c.Screenshots == "" {
		errs = append(errs, errors.New("screenshots: must not be empty"))
	}
	if c.KeepAlive <= 0 {
		errs = append(errs, errors.New("keepalive: must be positive"))
	}
	if c.Timeout <= c.KeepAlive {
		errs = append(errs, fmt.Errorf("timeout %s must exceed keepalive %s", c.Timeout, c.KeepAlive))
	}
	if _, err := browser.ParseMode(c.Browser.Mode); err != nil {
		errs = append(errs, err)
	}
	for name, vp := range c.Actors {
		if err := horosafe.ValidateIdentifier(name); err != nil {
			errs = append(errs, fmt.Errorf("actors: %w", err))
		}
		if vp.Width <= 0 || vp.Height <= 0 {
			errs = append(errs, fmt.Errorf("actors.%s: viewport %s must be positive", name, vp))
		}
	}
	if c.Capture.Settle < 0 {
		errs = append(errs, errors.New("capture.settle: must not be negative"))
	}
	if !inUnit(c.Diff.Threshold) {
		errs = append(errs, fmt.Errorf("diff.threshold %v outside [0,1]", c.Diff.Threshold))
	}
	if !inUnit(c.Diff.Alpha) {
		errs = append(errs, fmt.Errorf("diff.alpha %v outside [0,1]", c.Diff.Alpha))
	}
	if c.Diff.MaxMismatch < 0 {
		errs = append(errs, errors.New("diff.max_mismatch: must not be negative"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// inUnit reports whether f lies in [0,1]. NaN does not.
func inUnit(f float64) bool { return f >= 0 && f <= 1 }

// BrowserManager returns the browser.Config for this run.
func (c *Config) BrowserManager(logger *slog.Logger) (browser.Config, error) {
	mode, err := browser.ParseMode(c.Browser.Mode)
	if err != nil {
		return browser.Config{}, err
	}
	return browser.Config{
		RemoteURL:   c.Browser.Remote,
		Bin:         c.Browser.Bin,
		Mode:        mode,
		XvfbDisplay: c.Browser.XvfbDisplay,
		NoSandbox:   c.Browser.NoSandbox,
		Logger:      logger,
	}, nil
}

// Profile returns the session profile of actor. Unknown actors get the
// browser.Profile default viewport.
func (c *Config) Profile(actor string) browser.Profile {
	return browser.Profile{
		Viewport:       c.Actors[actor],
		Timeout:        c.Timeout,
		Stealth:        c.Browser.Stealth,
		BlockResources: c.Browser.ResourceBlocking,
		Format:         c.Browser.Format,
	}
}

// DiffOptions returns the visual diff options.
func (c *Config) DiffOptions() visualdiff.Options {
	return visualdiff.Options{
		Threshold: c.Diff.Threshold,
		IncludeAA: c.Diff.IncludeAA,
		Alpha:     c.Diff.Alpha,
	}
}
