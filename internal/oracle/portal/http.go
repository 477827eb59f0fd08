package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/roach88/serieswatch/internal/oracle"
)

// maxBodySize caps page reads. Observation CSVs for daily series stay well
// below this.
const maxBodySize = 10 << 20

type httpLoader struct {
	client    *http.Client
	userAgent string
}

func newHTTPLoader(cfg Config) (*httpLoader, error) {
	client := cfg.HTTPClient
	if client == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.Proxy != "" {
			proxyURL, err := url.Parse(cfg.Proxy)
			if err != nil {
				return nil, fmt.Errorf("proxy %q: %w", cfg.Proxy, err)
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
		client = &http.Client{
			Jar:       jar,
			Timeout:   cfg.PageTimeout,
			Transport: transport,
		}
	}
	return &httpLoader{client: client, userAgent: cfg.UserAgent}, nil
}

func (l *httpLoader) Load(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", oracle.WrapFetchError(oracle.KindUnknown, "", err)
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/csv;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := l.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", oracle.WrapFetchError(oracle.KindTimeout, "", err)
		}
		return "", oracle.WrapFetchError(oracle.KindUnknown, "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", oracle.NewFetchError(oracle.KindNotFound, "", "404 "+pageURL)
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return "", oracle.NewFetchError(oracle.KindAccessDenied, "", fmt.Sprintf("HTTP %d", resp.StatusCode))
	case resp.StatusCode == http.StatusGatewayTimeout || resp.StatusCode == http.StatusRequestTimeout:
		return "", oracle.NewFetchError(oracle.KindTimeout, "", fmt.Sprintf("HTTP %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return "", oracle.NewFetchError(oracle.KindUnknown, "", fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", oracle.WrapFetchError(oracle.KindUnknown, "", fmt.Errorf("read body: %w", err))
	}
	return string(body), nil
}

func (l *httpLoader) Close() error {
	l.client.CloseIdleConnections()
	return nil
}
