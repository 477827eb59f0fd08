package portal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/serieswatch/internal/oracle"
)

const seriesPageSpans = `<html><head><title>Gross Domestic Product (GDP) | FRED | St. Louis Fed</title></head>
<body>
  <h1 class="series-title"><span id="series-title-text-container">Gross Domestic Product</span></h1>
  <div class="series-meta">
    <span class="series-meta-label">Updated:</span> <span class="series-meta-value">Mar 28, 2024 7:56 AM CDT</span>
  </div>
  <div><span class="series-meta-label">Units:</span> <span>Billions of Dollars</span></div>
  <div><span class="series-meta-label">Frequency:</span> <span>Quarterly</span></div>
  <div><span class="series-meta-label">Seasonal Adjustment:</span> <span>Seasonally Adjusted Annual Rate</span></div>
</body></html>`

const seriesPageLines = `<html><head><title>10-Year Treasury | FRED</title></head>
<body>
  <h1>Market Yield on U.S. Treasury Securities at 10-Year Constant Maturity</h1>
  <p>Updated:
     2024-03-15 3:17 PM CDT</p>
  <p>Frequency: Daily</p>
  <p>Units: Percent</p>
  <p>Source: Board of Governors of the Federal Reserve System (US)</p>
</body></html>`

func TestParseSeriesPage_Spans(t *testing.T) {
	md, err := parseSeriesPage(seriesPageSpans, "GDP")
	require.NoError(t, err)

	assert.Equal(t, "GDP", md.SeriesID)
	assert.Equal(t, "Gross Domestic Product", md.Title)
	assert.Equal(t, "Mar 28, 2024 7:56 AM CDT", md.LastUpdated)
	assert.Equal(t, "Billions of Dollars", md.Units)
	assert.Equal(t, "Quarterly", md.Frequency)
	assert.Equal(t, "Seasonally Adjusted Annual Rate", md.SeasonalAdjustment)
	assert.Equal(t, "FRED", md.DataSource)
}

func TestParseSeriesPage_TextLines(t *testing.T) {
	md, err := parseSeriesPage(seriesPageLines, "DGS10")
	require.NoError(t, err)

	assert.Equal(t, "Market Yield on U.S. Treasury Securities at 10-Year Constant Maturity", md.Title)
	assert.Equal(t, "2024-03-15 3:17 PM CDT", md.LastUpdated)
	assert.Equal(t, "Daily", md.Frequency)
	assert.Equal(t, "Percent", md.Units)
	assert.Equal(t, "Board of Governors of the Federal Reserve System (US)", md.Source)
}

func TestParseSeriesPage_TitleFallback(t *testing.T) {
	md, err := parseSeriesPage(`<html><head><title>Unemployment Rate | FRED</title></head><body></body></html>`, "UNRATE")
	require.NoError(t, err)
	assert.Equal(t, "Unemployment Rate", md.Title)
}

func TestParseSeriesPage_NoTitle(t *testing.T) {
	_, err := parseSeriesPage(`<html><body><p>nothing</p></body></html>`, "X")
	require.Error(t, err)
	assert.Equal(t, oracle.KindParseFailure, oracle.KindOf(err))
}

func TestParseObservations(t *testing.T) {
	body := "observation_date,GDP\n2023-01-01,26813.601\n2023-04-01,27063.012\n2023-07-01,.\n2023-10-01,\n"
	obs, err := parseObservations(body, "GDP")
	require.NoError(t, err)
	require.Len(t, obs, 4)

	assert.Equal(t, "2023-01-01", obs[0].Date)
	require.NotNil(t, obs[0].Value)
	assert.InDelta(t, 26813.601, *obs[0].Value, 1e-9)
	assert.Nil(t, obs[2].Value)
	assert.Nil(t, obs[3].Value)
}

func TestParseObservations_BrowserPre(t *testing.T) {
	body := `<html><head></head><body><pre style="word-wrap: break-word;">DATE,VALUE
2024-01-02,3.95
2024-01-03,3.91
</pre></body></html>`
	obs, err := parseObservations(body, "DGS10")
	require.NoError(t, err)
	require.Len(t, obs, 2)
	assert.Equal(t, "2024-01-03", obs[1].Date)
	assert.InDelta(t, 3.91, *obs[1].Value, 1e-9)
}

func TestParseObservations_HeaderOnly(t *testing.T) {
	obs, err := parseObservations("DATE,VALUE\n", "X")
	require.NoError(t, err)
	assert.Empty(t, obs)
}

func TestParseObservations_Empty(t *testing.T) {
	_, err := parseObservations("   ", "X")
	require.Error(t, err)
	assert.Equal(t, oracle.KindParseFailure, oracle.KindOf(err))
}

const categoryPage = `<html><body>
  <a href="/categories/">All categories</a>
  <a href="/categories/32991">Money, Banking, &amp; Finance</a>
  <a href="/categories/22">Interest Rates</a>
  <a href="/categories/22">Interest Rates (dup)</a>
  <a href="/series/DGS10">10-Year Treasury</a>
  <a href="/series/DGS10#chart">10-Year Treasury chart</a>
  <a href="https://fred.stlouisfed.org/series/DGS2">2-Year Treasury</a>
  <a href="https://example.com/series/ELSEWHERE">offsite</a>
  <a href="/series/">series index</a>
  <ul class="pagination"><li><a href="/categories/32991?pageID=2">Next</a></li></ul>
</body></html>`

func TestParseCategoryPage(t *testing.T) {
	page, err := parseCategoryPage(categoryPage, "https://fred.stlouisfed.org/categories/32991")
	require.NoError(t, err)

	assert.Equal(t, []oracle.Link{
		{URL: "https://fred.stlouisfed.org/series/DGS10", Text: "10-Year Treasury"},
		{URL: "https://fred.stlouisfed.org/series/DGS2", Text: "2-Year Treasury"},
	}, page.Series)

	assert.Equal(t, []oracle.Link{
		{URL: "https://fred.stlouisfed.org/categories/22", Text: "Interest Rates"},
	}, page.SubCategories)

	assert.Equal(t, "https://fred.stlouisfed.org/categories/32991?pageID=2", page.NextPage)
}

func TestParseCategoryPage_RelNext(t *testing.T) {
	html := `<html><body><a rel="next" href="?pageID=3">»</a></body></html>`
	page, err := parseCategoryPage(html, "https://fred.stlouisfed.org/categories/22?pageID=2")
	require.NoError(t, err)
	assert.Equal(t, "https://fred.stlouisfed.org/categories/22?pageID=3", page.NextPage)
	assert.Empty(t, page.Series)
}

func TestPageDetection(t *testing.T) {
	assert.True(t, isAccessDenied(`<html><body><h1>Access Denied</h1></body></html>`))
	assert.False(t, isAccessDenied(seriesPageSpans))

	assert.True(t, isNotFound(`<html><head><title>Page Not Found | FRED</title></head></html>`))
	assert.False(t, isNotFound(seriesPageSpans))
	assert.False(t, isNotFound("DATE,VALUE\n2024-01-01,1\n"))
}
