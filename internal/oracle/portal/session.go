package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
)

// Session is a portal session backed by one loader.
// Not safe for concurrent use.
type Session struct {
	loader loader
	base   *url.URL
	logger *slog.Logger
}

var _ oracle.Session = (*Session)(nil)

func (s *Session) seriesURL(id string) string {
	return s.base.JoinPath("series", id).String()
}

func (s *Session) csvURL(id string) string {
	u := s.base.JoinPath("graph", "fredgraph.csv")
	u.RawQuery = url.Values{"id": {id}}.Encode()
	return u.String()
}

// load fetches a page and rejects bot-protection and not-found pages.
func (s *Session) load(ctx context.Context, pageURL, seriesID string) (string, error) {
	body, err := s.loader.Load(ctx, pageURL)
	if err != nil {
		fe := oracle.Classify(err, seriesID)
		if fe.SeriesID == "" {
			fe.SeriesID = seriesID
		}
		return "", fe
	}
	if isAccessDenied(body) {
		return "", oracle.NewFetchError(oracle.KindAccessDenied, seriesID, "access denied by portal")
	}
	if isNotFound(body) {
		return "", oracle.NewFetchError(oracle.KindNotFound, seriesID, "page not found: "+pageURL)
	}
	return body, nil
}

// Visit implements oracle.Session.
func (s *Session) Visit(ctx context.Context, pageURL string) error {
	_, err := s.load(ctx, pageURL, "")
	return err
}

// FetchSeries implements oracle.Session. The series page yields metadata;
// observations come from the CSV download.
func (s *Session) FetchSeries(ctx context.Context, seriesID string) (*series.FetchedSeries, error) {
	page, err := s.load(ctx, s.seriesURL(seriesID), seriesID)
	if err != nil {
		return nil, err
	}
	md, err := parseSeriesPage(page, seriesID)
	if err != nil {
		return nil, err
	}

	body, err := s.load(ctx, s.csvURL(seriesID), seriesID)
	if err != nil {
		return nil, err
	}
	obs, err := parseObservations(body, seriesID)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "fetched series",
		"series_id", seriesID,
		"frequency", md.Frequency,
		"observations", len(obs))
	return &series.FetchedSeries{Metadata: md, Observations: obs}, nil
}

// PeekLastUpdated implements oracle.Session.
func (s *Session) PeekLastUpdated(ctx context.Context, seriesID string) (string, error) {
	page, err := s.load(ctx, s.seriesURL(seriesID), seriesID)
	if err != nil {
		return "", err
	}
	md, err := parseSeriesPage(page, seriesID)
	if err != nil {
		return "", err
	}
	if md.LastUpdated == "" {
		return "", oracle.NewFetchError(oracle.KindParseFailure, seriesID, "no last-updated field")
	}
	return md.LastUpdated, nil
}

// FetchCategory implements oracle.Session.
func (s *Session) FetchCategory(ctx context.Context, pageURL string) (*oracle.CategoryPage, error) {
	page, err := s.load(ctx, pageURL, "")
	if err != nil {
		return nil, err
	}
	cp, err := parseCategoryPage(page, pageURL)
	if err != nil {
		return nil, fmt.Errorf("category %s: %w", pageURL, err)
	}
	return cp, nil
}

// Close implements oracle.Session.
func (s *Session) Close() error {
	return s.loader.Close()
}
