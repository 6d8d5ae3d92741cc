// Package provision creates games server-side through the game's setup API
// and builds the deep links that drop a session straight onto the join
// form.
package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/hazyhaar/wat/horosafe"
)

// maxResponseBody caps the setup API response (64 KiB); the payload is two
// short codes.
const maxResponseBody int64 = 64 << 10

var gameCodeRE = regexp.MustCompile(`^[A-Z0-9]{4,8}$`)

// Game is a provisioned game.
type Game struct {
	GameCode string `json:"gameCode"`
	HostCode string `json:"hostCode"`
}

// ProvisioningError is returned for every failed setup call. No retry is
// attempted: a valid join code is a precondition for the whole scenario.
type ProvisioningError struct {
	Endpoint string
	Status   int // 0 when no response was received
	Reason   string
	Err      error
}

func (e *ProvisioningError) Error() string {
	msg := fmt.Sprintf("provision: %s: %s", e.Endpoint, e.Reason)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// Client calls the setup API.
type Client struct {
	endpoint string
	http     *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(c *http.Client) Option { return func(cl *Client) { cl.http = c } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(cl *Client) { cl.logger = l } }

// New returns a Client posting to endpoint (e.g. https://host/api).
func New(endpoint string, opts ...Option) (*Client, error) {
	if err := horosafe.ValidateURL(endpoint); err != nil {
		return nil, fmt.Errorf("provision: endpoint: %w", err)
	}
	c := &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 10 * time.Second},
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

type setupRequest struct {
	Operation string `json:"operation"`
	GameName  string `json:"gameName"`
}

// ProvisionGame creates a game named gameName and returns its codes.
func (c *Client) ProvisionGame(ctx context.Context, gameName string) (Game, error) {
	fail := func(status int, reason string, err error) (Game, error) {
		return Game{}, &ProvisioningError{Endpoint: c.endpoint, Status: status, Reason: reason, Err: err}
	}

	payload, err := json.Marshal(setupRequest{Operation: "setup-game", GameName: gameName})
	if err != nil {
		return fail(0, "encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fail(0, "create request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fail(0, "do request", err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, maxResponseBody)
	if err != nil {
		return fail(resp.StatusCode, "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fail(resp.StatusCode, fmt.Sprintf("unexpected status: %.200s", body), nil)
	}

	var g Game
	if err := json.Unmarshal(body, &g); err != nil {
		return fail(resp.StatusCode, "decode response", err)
	}
	if err := g.Validate(); err != nil {
		return fail(resp.StatusCode, "invalid response", err)
	}

	c.logger.Info("provision: game created",
		"game_name", gameName, "game_code", g.GameCode, "elapsed", time.Since(start))
	return g, nil
}

// Validate checks the code pair: a game code of 4 to 8 upper-case letters
// or digits, and a non-empty host code distinct from it.
func (g Game) Validate() error {
	if g.GameCode == "" {
		return fmt.Errorf("missing gameCode")
	}
	if !gameCodeRE.MatchString(g.GameCode) {
		return fmt.Errorf("gameCode %q does not match %s", g.GameCode, gameCodeRE)
	}
	if g.HostCode == "" {
		return fmt.Errorf("missing hostCode")
	}
	if g.HostCode == g.GameCode {
		return fmt.Errorf("hostCode equals gameCode")
	}
	return nil
}

// DeepLink returns appURL with gameCode and name set as query parameters.
// Existing query parameters are kept.
func DeepLink(appURL, gameCode, name string) (string, error) {
	u, err := url.Parse(appURL)
	if err != nil {
		return "", fmt.Errorf("provision: app url: %w", err)
	}
	q := u.Query()
	q.Set("gameCode", gameCode)
	q.Set("name", name)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
