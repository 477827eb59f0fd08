package oracle

import (
	"context"

	"github.com/roach88/serieswatch/internal/series"
)

// Session is one stateful connection to the portal.
//
// Implementations are not safe for concurrent use.
type Session interface {
	// Visit loads a page without extracting anything. Used for warm-up and
	// session-reset visits to the home page.
	Visit(ctx context.Context, url string) error

	// FetchSeries returns metadata and every observation for a series.
	FetchSeries(ctx context.Context, seriesID string) (*series.FetchedSeries, error)

	// PeekLastUpdated returns the provider's last-updated string without
	// downloading observations.
	PeekLastUpdated(ctx context.Context, seriesID string) (string, error)

	// FetchCategory loads one category listing page.
	FetchCategory(ctx context.Context, url string) (*CategoryPage, error)

	Close() error
}

// Factory creates sessions.
type Factory interface {
	NewSession(ctx context.Context) (Session, error)

	// HomeURL is the page visited for warm-up and session resets.
	HomeURL() string
}

// Link is an anchor extracted from a page, with an absolute URL.
type Link struct {
	URL  string
	Text string
}

// CategoryPage is what a category listing yields for the crawler.
type CategoryPage struct {
	Series        []Link
	SubCategories []Link
	NextPage      string // empty when there is no further page
}
