package portal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/roach88/serieswatch/internal/oracle"
)

// browserLoader owns one Chrome process and one stealth tab.
type browserLoader struct {
	lnch    *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
	timeout time.Duration
	logger  *slog.Logger
}

func newBrowserLoader(ctx context.Context, cfg Config) (*browserLoader, error) {
	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1920,1080")
	if cfg.Proxy != "" {
		l = l.Proxy(cfg.Proxy)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("connect chrome: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		l.Cleanup()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: cfg.UserAgent}); err != nil {
		cfg.Logger.Warn("set user agent failed", "error", err)
	}

	return &browserLoader{
		lnch:    l,
		browser: b,
		page:    page,
		timeout: cfg.PageTimeout,
		logger:  cfg.Logger,
	}, nil
}

func (l *browserLoader) Load(ctx context.Context, pageURL string) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	p := l.page.Context(navCtx)
	if err := p.Navigate(pageURL); err != nil {
		return "", classifyBrowserErr(navCtx, fmt.Errorf("navigate %s: %w", pageURL, err))
	}
	if err := p.WaitLoad(); err != nil {
		return "", classifyBrowserErr(navCtx, fmt.Errorf("wait load %s: %w", pageURL, err))
	}

	html, err := p.HTML()
	if err != nil {
		return "", classifyBrowserErr(navCtx, fmt.Errorf("read dom %s: %w", pageURL, err))
	}
	return html, nil
}

func (l *browserLoader) Close() error {
	var errs []error
	if l.page != nil {
		errs = append(errs, l.page.Close())
	}
	if l.browser != nil {
		errs = append(errs, l.browser.Close())
	}
	if l.lnch != nil {
		l.lnch.Cleanup()
	}
	return errors.Join(errs...)
}

func classifyBrowserErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return oracle.WrapFetchError(oracle.KindTimeout, "", err)
	}
	return oracle.WrapFetchError(oracle.KindUnknown, "", err)
}
