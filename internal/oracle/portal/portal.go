package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/serieswatch/internal/oracle"
)

// Strategy selects how pages are loaded.
type Strategy string

const (
	StrategyBrowser Strategy = "browser"
	StrategyHTTP    Strategy = "http"
)

// DefaultBaseURL is the portal root.
const DefaultBaseURL = "https://fred.stlouisfed.org"

// DefaultUserAgent is sent by the http strategy and the browser tab.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config configures a Factory.
type Config struct {
	Strategy    Strategy
	BaseURL     string
	Proxy       string
	Headless    bool
	PageTimeout time.Duration
	UserAgent   string

	// HTTPClient overrides the client used by the http strategy. Tests
	// point it at an httptest server.
	HTTPClient *http.Client

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyBrowser
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.PageTimeout <= 0 {
		c.PageTimeout = 60 * time.Second
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Factory builds portal sessions for one strategy.
type Factory struct {
	cfg  Config
	base *url.URL
}

// NewFactory validates cfg and returns a Factory.
func NewFactory(cfg Config) (*Factory, error) {
	cfg.defaults()
	switch cfg.Strategy {
	case StrategyBrowser, StrategyHTTP:
	default:
		return nil, fmt.Errorf("portal: unknown strategy %q", cfg.Strategy)
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("portal: invalid base url %q", cfg.BaseURL)
	}
	return &Factory{cfg: cfg, base: base}, nil
}

// HomeURL implements oracle.Factory.
func (f *Factory) HomeURL() string {
	return f.cfg.BaseURL + "/"
}

// CategoriesURL is the root of the category tree.
func (f *Factory) CategoriesURL() string {
	return f.cfg.BaseURL + "/categories/"
}

// Strategy returns the configured strategy.
func (f *Factory) Strategy() Strategy {
	return f.cfg.Strategy
}

// NewSession implements oracle.Factory.
func (f *Factory) NewSession(ctx context.Context) (oracle.Session, error) {
	var (
		l   loader
		err error
	)
	switch f.cfg.Strategy {
	case StrategyHTTP:
		l, err = newHTTPLoader(f.cfg)
	default:
		l, err = newBrowserLoader(ctx, f.cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("portal: new %s session: %w", f.cfg.Strategy, err)
	}
	return &Session{
		loader: l,
		base:   f.base,
		logger: f.cfg.Logger.With("strategy", string(f.cfg.Strategy)),
	}, nil
}

// loader returns the body of a page.
type loader interface {
	Load(ctx context.Context, pageURL string) (string, error)
	Close() error
}

var _ oracle.Factory = (*Factory)(nil)
