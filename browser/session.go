package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Viewport is the fixed page size of a session.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

func (v Viewport) String() string { return fmt.Sprintf("%dx%d", v.Width, v.Height) }

// Profile fixes a session's viewport and operation timeout at creation.
type Profile struct {
	Viewport Viewport

	// Timeout bounds every navigation, element query and wait in the
	// session. Default: 16s.
	Timeout time.Duration

	// Stealth patches the page against automation detection.
	Stealth bool

	// BlockResources lists resource types to fail (images, fonts, media,
	// stylesheets). Leave empty for visual regression runs.
	BlockResources []string

	// Format of Screenshot output: "png" (default), "jpeg" or "webp".
	Format string
}

// elementPoll is how often element lookups retry.
const elementPoll = 100 * time.Millisecond

// DefaultTimeout exceeds the game's 15s keep-alive interval so a wait is
// never cut short by a pending heartbeat round-trip.
const DefaultTimeout = 16 * time.Second

func (p *Profile) defaults() {
	if p.Viewport.Width <= 0 {
		p.Viewport.Width = 1280
	}
	if p.Viewport.Height <= 0 {
		p.Viewport.Height = 800
	}
	if p.Timeout <= 0 {
		p.Timeout = DefaultTimeout
	}
	if p.Format == "" {
		p.Format = "png"
	}
}

func (p Profile) screenshotFormat() (proto.PageCaptureScreenshotFormat, error) {
	switch strings.ToLower(p.Format) {
	case "png":
		return proto.PageCaptureScreenshotFormatPng, nil
	case "jpeg", "jpg":
		return proto.PageCaptureScreenshotFormatJpeg, nil
	case "webp":
		return proto.PageCaptureScreenshotFormatWebp, nil
	}
	return "", fmt.Errorf("browser: unsupported screenshot format %q", p.Format)
}

// Session is one actor's isolated page: its own incognito context, fixed
// viewport and timeout.
type Session struct {
	name    string
	profile Profile
	format  proto.PageCaptureScreenshotFormat
	page    *rod.Page
	context *rod.Browser
	router  *rod.HijackRouter
	logger  *slog.Logger
}

// NewSession opens an isolated session named name (used in errors and
// logs). The caller owns the session and must Close it.
func (m *Manager) NewSession(ctx context.Context, name string, p Profile) (*Session, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}
	p.defaults()
	format, err := p.screenshotFormat()
	if err != nil {
		return nil, err
	}

	// Closing must still work after ctx is cancelled by a failing peer.
	incognito, err := b.Context(context.WithoutCancel(ctx)).Incognito()
	if err != nil {
		return nil, fmt.Errorf("browser: %s: incognito context: %w", name, err)
	}

	var page *rod.Page
	if p.Stealth {
		page, err = stealth.Page(incognito)
	} else {
		page, err = incognito.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("browser: %s: create page: %w", name, err)
	}

	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             p.Viewport.Width,
		Height:            p.Viewport.Height,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = page.Close()
		_ = incognito.Close()
		return nil, fmt.Errorf("browser: %s: set viewport: %w", name, err)
	}

	s := &Session{
		name:    name,
		profile: p,
		format:  format,
		page:    page,
		context: incognito,
		logger:  m.cfg.Logger,
	}
	if len(p.BlockResources) > 0 {
		s.router = blockResources(page, p.BlockResources)
	}

	m.cfg.Logger.Debug("browser: session opened",
		"session", name, "viewport", p.Viewport.String(), "timeout", p.Timeout)
	return s, nil
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Profile returns the profile the session was created with.
func (s *Session) Profile() Profile { return s.profile }

// Timeout returns the per-operation timeout.
func (s *Session) Timeout() time.Duration { return s.profile.Timeout }

// scoped returns the page bound to ctx and the session timeout.
func (s *Session) scoped(ctx context.Context) (*rod.Page, context.CancelFunc) {
	tctx, cancel := context.WithTimeout(ctx, s.profile.Timeout)
	return s.page.Context(tctx), cancel
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	p, cancel := s.scoped(ctx)
	defer cancel()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: %s: navigate %s: %w", s.name, url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("browser: %s: wait load %s: %w", s.name, url, err)
	}
	return nil
}

// matches lists the elements matching loc without waiting.
func (s *Session) matches(p *rod.Page, loc Locator) (rod.Elements, error) {
	sel, isX := loc.Selector()
	if isX {
		return p.ElementsX(sel)
	}
	return p.Elements(sel)
}

// firstVisible returns the first visible element among els, or nil. A node
// that detaches between the query and the check counts as hidden.
func firstVisible(els rod.Elements) *rod.Element {
	for _, el := range els {
		if ok, err := el.Visible(); err == nil && ok {
			return el
		}
	}
	return nil
}

// element polls until loc matches a visible element. Hidden matches are
// skipped: the game keeps inactive screens in the DOM.
func (s *Session) element(p *rod.Page, loc Locator) (*rod.Element, error) {
	ctx := p.GetContext()
	ticker := time.NewTicker(elementPoll)
	defer ticker.Stop()

	var lastErr error
	for {
		els, err := s.matches(p, loc)
		if err != nil {
			lastErr = err
		} else if el := firstVisible(els); el != nil {
			return el, nil
		}
		select {
		case <-ctx.Done():
			if lastErr == nil {
				lastErr = ctx.Err()
			}
			return nil, &LocatorNotFoundError{Session: s.name, Locator: loc, Err: lastErr}
		case <-ticker.C:
		}
	}
}

// Click waits for loc and clicks it.
func (s *Session) Click(ctx context.Context, loc Locator) error {
	p, cancel := s.scoped(ctx)
	defer cancel()

	el, err := s.element(p, loc)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: %s: click %s: %w", s.name, loc, err)
	}
	return nil
}

// Fill replaces the content of the input at loc with value.
func (s *Session) Fill(ctx context.Context, loc Locator, value string) error {
	p, cancel := s.scoped(ctx)
	defer cancel()

	el, err := s.element(p, loc)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("browser: %s: select %s: %w", s.name, loc, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("browser: %s: fill %s: %w", s.name, loc, err)
	}
	return nil
}

// Value returns the value property of the element at loc.
func (s *Session) Value(ctx context.Context, loc Locator) (string, error) {
	p, cancel := s.scoped(ctx)
	defer cancel()

	el, err := s.element(p, loc)
	if err != nil {
		return "", err
	}
	res, err := el.Eval(`() => this.value`)
	if err != nil {
		return "", fmt.Errorf("browser: %s: value of %s: %w", s.name, loc, err)
	}
	return res.Value.Str(), nil
}

// Texts returns the rendered text of every visible element matching loc right
// now. It does not wait: callers synchronise first.
func (s *Session) Texts(ctx context.Context, loc Locator) ([]string, error) {
	p, cancel := s.scoped(ctx)
	defer cancel()

	els, err := s.matches(p, loc)
	if err != nil {
		return nil, &LocatorNotFoundError{Session: s.name, Locator: loc, Err: err}
	}

	out := make([]string, 0, len(els))
	for _, el := range els {
		if ok, err := el.Visible(); err != nil || !ok {
			continue
		}
		txt, err := el.Text()
		if err != nil {
			return nil, fmt.Errorf("browser: %s: text of %s: %w", s.name, loc, err)
		}
		out = append(out, strings.TrimSpace(txt))
	}
	return out, nil
}

// Has reports whether loc currently matches a visible element. It is the
// probe behind waitfor conditions and never waits itself.
func (s *Session) Has(ctx context.Context, loc Locator) (bool, error) {
	p, cancel := s.scoped(ctx)
	defer cancel()

	els, err := s.matches(p, loc)
	if err != nil {
		return false, err
	}
	return firstVisible(els) != nil, nil
}

// Screenshot captures the viewport in the profile's format.
func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	p, cancel := s.scoped(ctx)
	defer cancel()

	data, err := p.Screenshot(false, &proto.PageCaptureScreenshot{Format: s.format})
	if err != nil {
		return nil, fmt.Errorf("browser: %s: screenshot: %w", s.name, err)
	}
	return data, nil
}

// Close disposes the page and its browser context.
func (s *Session) Close() error {
	var errs []error
	if s.router != nil {
		errs = append(errs, s.router.Stop())
	}
	if s.page != nil {
		errs = append(errs, s.page.Close())
	}
	if s.context != nil {
		errs = append(errs, s.context.Close())
	}
	s.logger.Debug("browser: session closed", "session", s.name)
	return errors.Join(errs...)
}
