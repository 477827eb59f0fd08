package portal

import (
	"encoding/csv"
	"errors"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jszwec/csvutil"

	"github.com/roach88/serieswatch/internal/oracle"
	"github.com/roach88/serieswatch/internal/series"
)

const dataSource = "FRED"

var (
	accessDeniedMarkers = []string{
		"Access Denied",
		"You don't have permission to access",
	}
	notFoundMarkers = []string{
		"Page Not Found",
		"Series Not Found",
		"The series does not exist",
	}
)

func isAccessDenied(body string) bool {
	return containsAny(body, accessDeniedMarkers)
}

// isNotFound only inspects the <title>, since series descriptions can
// legitimately contain the marker phrases.
func isNotFound(body string) bool {
	if !strings.Contains(body, "<title") {
		return false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return false
	}
	return containsAny(doc.Find("title").First().Text(), notFoundMarkers)
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// metaFields maps the label text shown on a series page to its field.
var metaFields = []struct {
	label string
	field func(md *series.Metadata) *string
}{
	{"Updated", func(md *series.Metadata) *string { return &md.LastUpdated }},
	{"Units", func(md *series.Metadata) *string { return &md.Units }},
	{"Frequency", func(md *series.Metadata) *string { return &md.Frequency }},
	{"Seasonal Adjustment", func(md *series.Metadata) *string { return &md.SeasonalAdjustment }},
	{"Source", func(md *series.Metadata) *string { return &md.Source }},
}

// parseSeriesPage extracts metadata from a series page. The title is
// required; every other field is best effort.
func parseSeriesPage(html, seriesID string) (series.Metadata, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return series.Metadata{}, oracle.WrapFetchError(oracle.KindParseFailure, seriesID, err)
	}

	md := series.Metadata{SeriesID: seriesID, DataSource: dataSource}
	md.Title = extractTitle(doc)
	if md.Title == "" {
		return series.Metadata{}, oracle.NewFetchError(oracle.KindParseFailure, seriesID, "no series title")
	}

	// Labelled spans first, then a line scan over the visible text.
	doc.Find(".series-meta-label, .meta-label, dt, th").Each(func(_ int, sel *goquery.Selection) {
		label := strings.TrimSuffix(collapse(sel.Text()), ":")
		value := collapse(sel.Next().Text())
		if value == "" {
			value = strings.TrimSpace(strings.TrimPrefix(collapse(sel.Parent().Text()), collapse(sel.Text())))
		}
		assignMeta(&md, label, value)
	})

	lines := textLines(doc.Find("body").Text())
	for i, line := range lines {
		for _, f := range metaFields {
			prefix := f.label + ":"
			if !strings.HasPrefix(line, prefix) {
				continue
			}
			value := strings.TrimSpace(strings.TrimPrefix(line, prefix))
			if value == "" && i+1 < len(lines) {
				value = lines[i+1]
			}
			assignMeta(&md, f.label, value)
		}
	}

	return md, nil
}

// assignMeta sets the field named by label unless it is already set.
func assignMeta(md *series.Metadata, label, value string) {
	if value == "" {
		return
	}
	for _, f := range metaFields {
		if !strings.EqualFold(label, f.label) {
			continue
		}
		if p := f.field(md); *p == "" {
			*p = value
		}
		return
	}
}

func extractTitle(doc *goquery.Document) string {
	for _, sel := range []string{"#series-title-text-container", ".series-title", "h1"} {
		if t := collapse(doc.Find(sel).First().Text()); t != "" {
			return t
		}
	}
	t := collapse(doc.Find("title").First().Text())
	if i := strings.Index(t, " | "); i > 0 {
		t = t[:i]
	}
	return t
}

// observationRow is one CSV record after the provider's header is replaced.
type observationRow struct {
	Date  string `csv:"date"`
	Value string `csv:"value"`
}

// parseObservations decodes the two-column observation CSV. The provider's
// header names vary (DATE/observation_date, VALUE/<series id>), so the
// header line is skipped and fixed names are supplied instead. Missing
// values (".", empty, non-numeric) become NULL.
func parseObservations(body, seriesID string) ([]series.Observation, error) {
	text := strings.TrimSpace(body)
	if strings.HasPrefix(text, "<") {
		// Browsers render text/csv inside <pre>.
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err != nil {
			return nil, oracle.WrapFetchError(oracle.KindParseFailure, seriesID, err)
		}
		pre := doc.Find("pre").First()
		if pre.Length() > 0 {
			text = strings.TrimSpace(pre.Text())
		} else {
			text = strings.TrimSpace(doc.Find("body").Text())
		}
	}
	if text == "" {
		return nil, oracle.NewFetchError(oracle.KindParseFailure, seriesID, "empty observation file")
	}

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	if _, err := r.Read(); err != nil {
		return nil, oracle.WrapFetchError(oracle.KindParseFailure, seriesID, err)
	}

	dec, err := csvutil.NewDecoder(r, "date", "value")
	if err != nil {
		return nil, oracle.WrapFetchError(oracle.KindParseFailure, seriesID, err)
	}

	obs := []series.Observation{}
	for {
		var row observationRow
		err := dec.Decode(&row)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, oracle.WrapFetchError(oracle.KindParseFailure, seriesID, err)
		}
		date := strings.TrimSpace(row.Date)
		if date == "" {
			continue
		}
		point := series.Observation{Date: date}
		if v, err := strconv.ParseFloat(strings.TrimSpace(row.Value), 64); err == nil {
			point.Value = series.Float(v)
		}
		obs = append(obs, point)
	}
	return obs, nil
}

// parseCategoryPage extracts series links, sub-category links and the
// next-page link from a category listing.
func parseCategoryPage(html, pageURL string) (*oracle.CategoryPage, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, oracle.WrapFetchError(oracle.KindParseFailure, "", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, oracle.WrapFetchError(oracle.KindParseFailure, "", err)
	}

	page := &oracle.CategoryPage{
		Series:        []oracle.Link{},
		SubCategories: []oracle.Link{},
	}

	if next, ok := doc.Find("a[rel='next']").First().Attr("href"); ok {
		page.NextPage = resolve(base, next)
	}
	if page.NextPage == "" {
		doc.Find("a[href]").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			text := strings.ToLower(collapse(sel.Text()))
			if text == "next" || strings.HasPrefix(text, "next ") {
				href, _ := sel.Attr("href")
				page.NextPage = resolve(base, href)
				return false
			}
			return true
		})
	}

	seenSeries := map[string]bool{}
	seenCats := map[string]bool{}
	self := resolve(base, "")

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		abs := resolve(base, href)
		if abs == "" {
			return
		}
		u, err := url.Parse(abs)
		if err != nil || u.Host != base.Host {
			return
		}
		text := collapse(sel.Text())
		clean := strings.TrimRight(u.Path, "/")

		switch {
		case strings.HasPrefix(clean, "/series/"):
			if path.Base(clean) == "series" || seenSeries[abs] {
				return
			}
			seenSeries[abs] = true
			page.Series = append(page.Series, oracle.Link{URL: abs, Text: text})

		case strings.HasPrefix(clean, "/categories/"):
			if abs == page.NextPage || abs == self || u.Query().Has("pageID") || seenCats[abs] {
				return
			}
			seenCats[abs] = true
			page.SubCategories = append(page.SubCategories, oracle.Link{URL: abs, Text: text})
		}
	})

	return page, nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	u := base.ResolveReference(ref)
	u.Fragment = ""
	return u.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func textLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = collapse(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
