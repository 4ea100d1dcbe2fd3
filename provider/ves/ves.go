package ves

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"

	"github.com/sig-0/p2prates/provider/currencies"
	"github.com/sig-0/p2prates/storage/types"
)

const (
	// DefaultBCVURL is the landing page carrying the official rates
	DefaultBCVURL = "https://www.bcv.org.ve/"

	// bcvDollarID is the page section holding the USD rate
	bcvDollarID = "dolar"
)

var (
	errInvalidRate   = errors.New("invalid rate")
	errMissingRate   = errors.New("missing rate element")
	errInvalidStatus = errors.New("invalid status code received")
)

var BCVSource types.Source = "BCV"

// BCVFetcher scrapes the official USD/VES rate from the BCV website
type BCVFetcher struct {
	client *http.Client
	url    string
}

// NewBCVFetcher creates a new instance of the BCV website fetcher
func NewBCVFetcher(url string, timeout time.Duration) *BCVFetcher {
	tr := http.DefaultTransport.(*http.Transport).Clone() //nolint:forcetypeassert // stdlib default
	tr.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, //nolint:gosec // the BCV certificate chain is incomplete
	}

	return &BCVFetcher{
		client: &http.Client{
			Timeout:   timeout,
			Transport: tr,
		},
		url: url,
	}
}

func (f *BCVFetcher) Name() string {
	return BCVSource.String()
}

// Fetch returns a single MID USD/VES rate
func (f *BCVFetcher) Fetch(ctx context.Context) ([]*types.ExchangeRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("unable to create new GET request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to execute GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %d", errInvalidStatus, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to construct query doc: %w", err)
	}

	rate, err := findRate(doc, bcvDollarID)
	if err != nil {
		return nil, err
	}

	fetchedAt := time.Now().UTC()

	asOf := fetchedAt
	if effective := parseEffectiveDate(doc); effective != nil {
		asOf = *effective
	}

	return []*types.ExchangeRate{
		{
			AsOf:      asOf,
			FetchedAt: fetchedAt,
			Base:      currencies.USD,
			Target:    currencies.VES,
			RateType:  types.RateTypeMID,
			Source:    BCVSource,
			Rate:      rate,
		},
	}, nil
}

// findRate extracts the rate rendered in the given page section
func findRate(doc *goquery.Document, sectionID string) (decimal.Decimal, error) {
	sel := doc.Find("#" + sectionID)
	if sel.Length() == 0 {
		return decimal.Zero, fmt.Errorf("%w: #%s", errMissingRate, sectionID)
	}

	txt := strings.TrimSpace(sel.Find(".col-sm-6.col-xs-6.centrado").First().Text())
	if txt == "" {
		txt = strings.TrimSpace(sel.Find(".centrado").First().Text())
	}

	rate, err := parseBCVNumber(txt)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse rate value for %s: %w", sectionID, err)
	}

	return rate.Round(4), nil
}

// parseBCVNumber parses a number in the BCV notation,
// with a comma decimal separator and dot thousands ("1.234,56")
func parseBCVNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errInvalidRate
	}

	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")

	value, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to parse rate %q: %w", s, err)
	}

	if !value.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", errInvalidRate, s)
	}

	return value, nil
}

// parseEffectiveDate reads the "Fecha Valor" of the published rates
func parseEffectiveDate(doc *goquery.Document) *time.Time {
	sel := doc.Find(`span.date-display-single[property="dc:date"]`).First()
	if sel.Length() == 0 {
		sel = doc.Find("span.date-display-single").First()
	}

	if sel.Length() == 0 {
		return nil
	}

	// Prefer the machine readable attribute, ex. "2026-01-13T00:00:00-04:00"
	if content, ok := sel.Attr("content"); ok {
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(content)); err == nil {
			u := t.UTC()

			return &u
		}
	}

	t, err := parseBCVDate(sel.Text())
	if err != nil {
		return nil
	}

	return &t
}

var spanishMonths = map[string]time.Month{
	"enero":      time.January,
	"febrero":    time.February,
	"marzo":      time.March,
	"abril":      time.April,
	"mayo":       time.May,
	"junio":      time.June,
	"julio":      time.July,
	"agosto":     time.August,
	"septiembre": time.September,
	"setiembre":  time.September,
	"octubre":    time.October,
	"noviembre":  time.November,
	"diciembre":  time.December,
}

// parseBCVDate parses the rendered date, ex. "Martes, 13 Enero 2026".
// The day of the week is optional
func parseBCVDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if _, rest, found := strings.Cut(s, ","); found {
		s = rest
	}

	parts := strings.Fields(s)
	if len(parts) < 3 {
		return time.Time{}, fmt.Errorf("date format is invalid %q", s)
	}

	day, err := strconv.Atoi(parts[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse day: %w", err)
	}

	month, ok := spanishMonths[strings.ToLower(parts[1])]
	if !ok {
		return time.Time{}, fmt.Errorf("month is invalid %q", parts[1])
	}

	year, err := strconv.Atoi(parts[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse year: %w", err)
	}

	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
}
