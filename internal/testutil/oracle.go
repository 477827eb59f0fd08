package testutil

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
)

// FakeHomeURL is the home page reported by FakeOracle.
const FakeHomeURL = "https://portal.test/"

// FetchResult is one scripted answer to FetchSeries.
type FetchResult struct {
	Series *series.FetchedSeries
	Err    error
	Panic  any
}

// FakeOracle is a scripted oracle.Factory for engine and crawl tests.
//
// Fetch results are consumed in order per series id; the last scripted
// result repeats once the script runs out. Unscripted ids fail with
// NOT_FOUND. Sessions detect concurrent use, which the engine must never
// allow.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeOracle struct {
	mu           sync.Mutex
	results      map[string][]FetchResult
	peeks        map[string]FetchPeek
	categories   map[string]*oracle.CategoryPage
	categoryErrs map[string]error
	sessionErrs  []error
	visitErr     error

	fetchCalls map[string]int
	peekCalls  map[string]int
	visits     []string
	created    int
	closed     int
	concurrent atomic.Bool
}

// FetchPeek is a scripted PeekLastUpdated answer.
type FetchPeek struct {
	Value string
	Err   error
}

// NewFakeOracle creates an empty oracle.
func NewFakeOracle() *FakeOracle {
	return &FakeOracle{
		results:      map[string][]FetchResult{},
		peeks:        map[string]FetchPeek{},
		categories:   map[string]*oracle.CategoryPage{},
		categoryErrs: map[string]error{},
		fetchCalls:   map[string]int{},
		peekCalls:    map[string]int{},
	}
}

// SampleSeries builds a fetched series with n consecutive daily points.
func SampleSeries(id, frequency string, n int) *series.FetchedSeries {
	fs := &series.FetchedSeries{
		Metadata: series.Metadata{
			SeriesID:    id,
			Title:       id + " sample",
			Frequency:   frequency,
			Units:       "Index",
			LastUpdated: "2024-03-01 8:00 AM CST",
			Source:      "Test Source",
			DataSource:  "FRED",
		},
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fs.Observations = append(fs.Observations, series.Observation{
			Date:  start.AddDate(0, 0, i).Format("2006-01-02"),
			Value: series.Float(100 + float64(i)),
		})
	}
	return fs
}

// AddSeries scripts a successful fetch that repeats forever.
func (o *FakeOracle) AddSeries(id, frequency string, n int) *FakeOracle {
	o.Script(id, FetchResult{Series: SampleSeries(id, frequency, n)})
	return o
}

// Script replaces the fetch script for id.
func (o *FakeOracle) Script(id string, results ...FetchResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results[id] = results
}

// SetPeek scripts PeekLastUpdated for id.
func (o *FakeOracle) SetPeek(id, value string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.peeks[id] = FetchPeek{Value: value, Err: err}
}

// AddCategory registers a category page.
func (o *FakeOracle) AddCategory(url string, page *oracle.CategoryPage) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.categories[url] = page
}

// FailCategory makes FetchCategory(url) fail with err.
func (o *FakeOracle) FailCategory(url string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.categoryErrs[url] = err
}

// FailSessions queues results for upcoming NewSession calls. A nil entry
// lets that call succeed.
func (o *FakeOracle) FailSessions(errs ...error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sessionErrs = append(o.sessionErrs, errs...)
}

// FailVisits makes every Visit fail with err (nil restores success).
func (o *FakeOracle) FailVisits(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visitErr = err
}

// FetchCalls returns how often FetchSeries was called for id.
func (o *FakeOracle) FetchCalls(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fetchCalls[id]
}

// TotalFetchCalls returns the number of FetchSeries calls across all ids.
func (o *FakeOracle) TotalFetchCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, n := range o.fetchCalls {
		total += n
	}
	return total
}

// PeekCalls returns how often PeekLastUpdated was called for id.
func (o *FakeOracle) PeekCalls(id string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.peekCalls[id]
}

// Visits returns every visited URL in call order.
func (o *FakeOracle) Visits() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.visits...)
}

// SessionsCreated returns the number of successful NewSession calls.
func (o *FakeOracle) SessionsCreated() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.created
}

// SessionsClosed returns the number of Close calls.
func (o *FakeOracle) SessionsClosed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

// ConcurrentUse reports whether any session was used by two goroutines at
// once.
func (o *FakeOracle) ConcurrentUse() bool {
	return o.concurrent.Load()
}

// HomeURL implements oracle.Factory.
func (o *FakeOracle) HomeURL() string {
	return FakeHomeURL
}

// NewSession implements oracle.Factory.
func (o *FakeOracle) NewSession(ctx context.Context) (oracle.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.sessionErrs) > 0 {
		err := o.sessionErrs[0]
		o.sessionErrs = o.sessionErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	o.created++
	return &FakeSession{oracle: o, id: o.created}, nil
}

func (o *FakeOracle) nextResult(id string) (FetchResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fetchCalls[id]++
	script, ok := o.results[id]
	if !ok || len(script) == 0 {
		return FetchResult{}, false
	}
	r := script[0]
	if len(script) > 1 {
		o.results[id] = script[1:]
	}
	return r, true
}

// FakeSession is the oracle.Session handed out by FakeOracle.
type FakeSession struct {
	oracle *FakeOracle
	id     int
	busy   atomic.Bool
}

var _ oracle.Session = (*FakeSession)(nil)

// ID is the 1-based creation order of this session.
func (s *FakeSession) ID() int {
	return s.id
}

func (s *FakeSession) enter() func() {
	if !s.busy.CompareAndSwap(false, true) {
		s.oracle.concurrent.Store(true)
		return func() {}
	}
	return func() { s.busy.Store(false) }
}

// Visit implements oracle.Session.
func (s *FakeSession) Visit(ctx context.Context, url string) error {
	defer s.enter()()
	o := s.oracle
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visits = append(o.visits, url)
	return o.visitErr
}

// FetchSeries implements oracle.Session.
func (s *FakeSession) FetchSeries(ctx context.Context, seriesID string) (*series.FetchedSeries, error) {
	defer s.enter()()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r, ok := s.oracle.nextResult(seriesID)
	if !ok {
		return nil, oracle.NewFetchError(oracle.KindNotFound, seriesID, "unscripted series")
	}
	if r.Panic != nil {
		panic(r.Panic)
	}
	if r.Err != nil {
		return nil, r.Err
	}
	return cloneSeries(r.Series), nil
}

// PeekLastUpdated implements oracle.Session.
func (s *FakeSession) PeekLastUpdated(ctx context.Context, seriesID string) (string, error) {
	defer s.enter()()
	o := s.oracle
	o.mu.Lock()
	defer o.mu.Unlock()
	o.peekCalls[seriesID]++
	p, ok := o.peeks[seriesID]
	if !ok {
		return "", oracle.NewFetchError(oracle.KindParseFailure, seriesID, "no peek scripted")
	}
	return p.Value, p.Err
}

// FetchCategory implements oracle.Session.
func (s *FakeSession) FetchCategory(ctx context.Context, url string) (*oracle.CategoryPage, error) {
	defer s.enter()()
	o := s.oracle
	o.mu.Lock()
	defer o.mu.Unlock()
	if err, ok := o.categoryErrs[url]; ok {
		return nil, err
	}
	page, ok := o.categories[url]
	if !ok {
		return nil, oracle.NewFetchError(oracle.KindNotFound, "", fmt.Sprintf("no category %s", url))
	}
	return page, nil
}

// Close implements oracle.Session.
func (s *FakeSession) Close() error {
	o := s.oracle
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func cloneSeries(fs *series.FetchedSeries) *series.FetchedSeries {
	if fs == nil {
		return nil
	}
	out := &series.FetchedSeries{Metadata: fs.Metadata}
	out.Observations = append([]series.Observation(nil), fs.Observations...)
	return out
}
