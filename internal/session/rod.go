package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const (
	dialAttempts = 5
	dialInterval = 2 * time.Second
)

// BrowserConfig configures how the shared Chrome instance is reached and how
// its pages find the channel and the bonus affordance.
type BrowserConfig struct {
	ControlURL    string // existing DevTools websocket; launches a browser when empty
	Bin           string
	Headless      bool
	BaseURL       string
	BonusSelector string
	AuthToken     string
	CookieDomain  string
	CallTimeout   time.Duration
}

// Browser owns one Chrome connection. Each session is an isolated incognito
// context inside it.
type Browser struct {
	cfg     BrowserConfig
	browser *rod.Browser
	log     zerolog.Logger
}

// Dial connects to (or launches) Chrome, retrying a bounded number of times.
// Exhausting the attempts returns ErrResourceUnavailable.
func Dial(ctx context.Context, cfg BrowserConfig, log zerolog.Logger) (*Browser, error) {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 15 * time.Second
	}
	if cfg.CookieDomain == "" {
		cfg.CookieDomain = ".twitch.tv"
	}
	log = log.With().Str("component", "browser").Logger()

	var err error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		var b *rod.Browser
		b, err = connect(ctx, cfg)
		if err == nil {
			log.Info().Int("attempt", attempt).Msg("browser connected")
			return &Browser{cfg: cfg, browser: b, log: log}, nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Int("max", dialAttempts).Msg("browser connection failed")
		if attempt < dialAttempts {
			select {
			case <-time.After(dialInterval):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %v", ErrResourceUnavailable, ctx.Err())
			}
		}
	}
	return nil, fmt.Errorf("%w: after %d attempts: %v", ErrResourceUnavailable, dialAttempts, err)
}

func connect(ctx context.Context, cfg BrowserConfig) (*rod.Browser, error) {
	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless)
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = u
	}

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return b, nil
}

// Close shuts down the browser and every session inside it.
func (b *Browser) Close() error {
	return b.browser.Close()
}

// NewSession opens a fresh incognito page, seeding the auth cookie when configured.
func (b *Browser) NewSession(ctx context.Context) (Session, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, transient("incognito context", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		_ = incognito.Close()
		return nil, transient("create page", err)
	}

	if b.cfg.AuthToken != "" {
		err := page.SetCookies([]*proto.NetworkCookieParam{{
			Name:   "auth-token",
			Value:  b.cfg.AuthToken,
			Domain: b.cfg.CookieDomain,
			Path:   "/",
			Secure: true,
		}})
		if err != nil {
			b.log.Warn().Err(err).Msg("failed to set auth cookie")
		}
	}

	return &rodSession{cfg: b.cfg, incognito: incognito, page: page}, nil
}

type rodSession struct {
	cfg       BrowserConfig
	incognito *rod.Browser
	page      *rod.Page
}

func (s *rodSession) bounded(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	return s.page.Context(ctx), cancel
}

func (s *rodSession) Navigate(ctx context.Context, channel string) error {
	p, cancel := s.bounded(ctx)
	defer cancel()

	if err := p.Navigate(ChannelURL(s.cfg.BaseURL, channel)); err != nil {
		return transient("navigate", err)
	}
	if err := p.WaitLoad(); err != nil {
		return transient("wait load", err)
	}
	return nil
}

func (s *rodSession) CurrentChannel(ctx context.Context) (string, error) {
	p, cancel := s.bounded(ctx)
	defer cancel()

	info, err := p.Info()
	if err != nil {
		return "", transient("page info", err)
	}
	return ChannelFromURL(info.URL), nil
}

func (s *rodSession) FindBonus(ctx context.Context) (Element, bool, error) {
	p, cancel := s.bounded(ctx)
	defer cancel()

	has, el, err := p.Has(s.cfg.BonusSelector)
	if err != nil {
		return nil, false, transient("find bonus", err)
	}
	if !has {
		return nil, false, nil
	}
	return &rodElement{el: el, timeout: s.cfg.CallTimeout}, true, nil
}

func (s *rodSession) Close() error {
	_ = s.page.Close()
	return s.incognito.Close()
}

type rodElement struct {
	el      *rod.Element
	timeout time.Duration
}

func (e *rodElement) Click(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	if err := e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return transient("click", err)
	}
	return nil
}
