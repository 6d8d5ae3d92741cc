package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, 16*time.Second, cfg.Timeout)
	require.Equal(t, 15*time.Second, cfg.KeepAlive)
	require.Equal(t, 500*time.Millisecond, cfg.Capture.Settle)
	require.Equal(t, 0.1, cfg.Diff.Threshold)
	require.Equal(t, "http://localhost:9001/api", cfg.APIURL)
	require.Equal(t, filepath.Join("screenshots", "wat.db"), cfg.History)
	require.Equal(t, 360, cfg.Actors["host"].Width)
	require.Equal(t, 1920, cfg.Actors["player2"].Width)
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeFile(t, `
app_url: https://pitch.example.com
screenshots: /tmp/shots
scenarios: [normal-game, provisioned-join]
diff:
  threshold: 0
  max_mismatch: 25
capture:
  settle: 1s
actors:
  host: {width: 400, height: 900}
browser:
  mode: headful
  resource_blocking: [fonts]
`)
	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	require.Equal(t, "https://pitch.example.com", cfg.AppURL)
	require.Equal(t, []string{"normal-game", "provisioned-join"}, cfg.Scenarios)
	require.Equal(t, 0.0, cfg.Diff.Threshold, "explicit zero threshold must survive defaults")
	require.Equal(t, 25, cfg.Diff.MaxMismatch)
	require.Equal(t, time.Second, cfg.Capture.Settle)
	require.Equal(t, 400, cfg.Actors["host"].Width)
	require.Equal(t, 601, cfg.Actors["player1"].Width, "default actors are kept")
	require.Equal(t, filepath.Join("/tmp/shots", "wat.db"), cfg.History)

	p := cfg.Profile("host")
	require.Equal(t, 900, p.Viewport.Height)
	require.Equal(t, []string{"fonts"}, p.BlockResources)
}

func TestLoadFile_EnvOverrides(t *testing.T) {
	path := writeFile(t, "app_url: https://file.example.com\n")
	t.Setenv("WAT_APP_URL", "http://127.0.0.1:3000")
	t.Setenv("WAT_TIMEOUT", "20s")
	t.Setenv("WAT_SCENARIOS", "normal-game,extra.yaml")
	t.Setenv("WAT_THRESHOLD", "0.25")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "http://127.0.0.1:3000", cfg.AppURL)
	require.Equal(t, 20*time.Second, cfg.Timeout)
	require.Equal(t, []string{"normal-game", "extra.yaml"}, cfg.Scenarios)
	require.Equal(t, 0.25, cfg.DiffOptions().Threshold)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = LoadFile(writeFile(t, "timeout: [not a duration"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"timeout equals keepalive", func(c *Config) { c.Timeout = 15 * time.Second }, "must exceed keepalive"},
		{"threshold", func(c *Config) { c.Diff.Threshold = 1.5 }, "diff.threshold"},
		{"threshold nan", func(c *Config) { c.Diff.Threshold = math.NaN() }, "diff.threshold"},
		{"alpha nan", func(c *Config) { c.Diff.Alpha = math.NaN() }, "diff.alpha"},
		{"settle", func(c *Config) { c.Capture.Settle = -time.Second }, "capture.settle"},
		{"mode", func(c *Config) { c.Browser.Mode = "kiosk" }, "unknown mode"},
		{"app url", func(c *Config) { c.AppURL = "ftp://x" }, "app_url"},
		{"actor name", func(c *Config) { c.Actors["bad/name"] = c.Actors["host"] }, "actors"},
		{"viewport", func(c *Config) { c.Actors["host"] = c.Actors["nobody"] }, "actors.host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.True(t, strings.Contains(err.Error(), tt.want), "got %v", err)
		})
	}
}

func TestBrowserManager(t *testing.T) {
	cfg := Default()
	cfg.Browser.Mode = "headful"
	cfg.Browser.Remote = "ws://127.0.0.1:9222/devtools/browser/x"
	bc, err := cfg.BrowserManager(nil)
	require.NoError(t, err)
	require.Equal(t, cfg.Browser.Remote, bc.RemoteURL)
	require.Equal(t, ":99", bc.XvfbDisplay)
}
