package oracle

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultQuoteBaseURL = "https://stooq.com"

// StooqClient fetches quotes, daily history, and FX crosses from the stooq
// CSV endpoints. It implements Oracle.
type StooqClient struct {
	host       string
	httpClient *http.Client
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("oracle API error (%d): %s", e.Status, e.Body)
}

func NewStooqClient(httpClient *http.Client, host string) *StooqClient {
	if host == "" {
		host = DefaultQuoteBaseURL
	}
	host = strings.TrimRight(host, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &StooqClient{
		host:       host,
		httpClient: httpClient,
	}
}

func (c *StooqClient) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/csv")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *StooqClient) GetPrice(ctx context.Context, symbol string, asOf *time.Time) (*PriceRecord, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if asOf == nil {
		return c.latestQuote(ctx, symbol)
	}
	target := asOf.UTC()
	bars, err := c.GetDailyHistory(ctx, symbol, target.AddDate(0, 0, -60), target.AddDate(0, 0, 2))
	if err != nil {
		return nil, err
	}
	return lastBarAtOrBefore(bars, target), nil
}

func (c *StooqClient) latestQuote(ctx context.Context, symbol string) (*PriceRecord, error) {
	query := url.Values{}
	query.Set("s", symbol)
	query.Set("f", "sd2t2ohlcv")
	query.Set("h", "")
	query.Set("e", "csv")
	body, err := c.doRequest(ctx, "/q/l/", query)
	if err != nil {
		return nil, err
	}
	rec, err := parseLatestQuote(body)
	if err != nil || rec == nil {
		return rec, err
	}

	// Quote rows carry no previous close; derive the day change from the
	// last two daily bars when they are available.
	now := time.Now().UTC()
	bars, histErr := c.GetDailyHistory(ctx, symbol, now.AddDate(0, 0, -10), now)
	if histErr == nil && len(bars) > 0 {
		prev := previousClose(bars, rec.TS)
		if prev != nil && prev.IsPositive() {
			abs := rec.Price.Sub(*prev)
			pct := abs.Div(*prev).Mul(decimal.NewFromInt(100))
			rec.DayChangeAbs = &abs
			rec.DayChangePct = &pct
		}
	}
	return rec, nil
}

func (c *StooqClient) GetDailyHistory(ctx context.Context, symbol string, start, end time.Time) ([]EODBar, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	query.Set("s", symbol)
	query.Set("d1", start.UTC().Format("20060102"))
	query.Set("d2", end.UTC().Format("20060102"))
	query.Set("i", "d")
	body, err := c.doRequest(ctx, "/q/d/l/", query)
	if err != nil {
		return nil, err
	}
	return parseDailyHistory(body)
}

func (c *StooqClient) GetFxRate(ctx context.Context, base, quote string, asOf time.Time) (*decimal.Decimal, error) {
	base = strings.ToUpper(strings.TrimSpace(base))
	quote = strings.ToUpper(strings.TrimSpace(quote))
	if base == "" || quote == "" {
		return nil, fmt.Errorf("currency pair is required")
	}
	if base == quote {
		one := decimal.NewFromInt(1)
		return &one, nil
	}

	// A stooq FX symbol like "eurusd" prices one unit of the first currency
	// in the second, which is exactly quote -> base here.
	pair := strings.ToLower(quote + base)
	rec, err := c.GetPrice(ctx, pair, asOfPtr(asOf))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Rates for very recent instants have no daily bar yet.
		rec, err = c.latestQuote(ctx, pair)
		if err != nil || rec == nil {
			return nil, err
		}
	}
	rate := rec.Price
	return &rate, nil
}

func (c *StooqClient) ResolveSymbol(ctx context.Context, raw string) (*ResolvedInstrument, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	// Verify the symbol trades at all before classifying it.
	rec, err := c.latestQuote(ctx, normalizeSymbol(symbol))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	out := &ResolvedInstrument{
		Type:     classifySymbol(symbol),
		Symbol:   symbol,
		Currency: currencyForSymbol(symbol),
	}
	return out, nil
}

// normalizeSymbol maps a user-facing symbol to the stooq form: plain US
// tickers get the ".us" suffix, crypto pairs like BTC-USD become "btcusd",
// anything already suffixed or a 6-letter FX pair passes through lowercase.
func normalizeSymbol(symbol string) string {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if s == "" {
		return ""
	}
	if strings.Contains(s, "-") {
		return strings.ReplaceAll(s, "-", "")
	}
	if strings.Contains(s, ".") || len(s) == 6 {
		return s
	}
	return s + ".us"
}

func classifySymbol(symbol string) string {
	if strings.Contains(symbol, "-") {
		return "crypto"
	}
	return "equity"
}

func currencyForSymbol(symbol string) string {
	if idx := strings.LastIndex(symbol, "-"); idx >= 0 && idx+1 < len(symbol) {
		return symbol[idx+1:]
	}
	return "USD"
}

func parseLatestQuote(body []byte) (*PriceRecord, error) {
	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse quote csv: %w", err)
	}
	// Header row plus one data row: Symbol,Date,Time,Open,High,Low,Close,Volume
	if len(rows) < 2 || len(rows[1]) < 7 {
		return nil, nil
	}
	row := rows[1]
	price, err := decimal.NewFromString(strings.TrimSpace(row[6]))
	if err != nil || !price.IsPositive() {
		// "N/D" close means the symbol is unknown or has no quote.
		return nil, nil
	}
	ts := time.Now().UTC()
	if t, perr := time.Parse("2006-01-02 15:04:05", row[1]+" "+row[2]); perr == nil {
		ts = t.UTC()
	}
	return &PriceRecord{Price: price, TS: ts}, nil
}

func parseDailyHistory(body []byte) ([]EODBar, error) {
	rows, err := csv.NewReader(strings.NewReader(string(body))).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse history csv: %w", err)
	}
	bars := make([]EODBar, 0, len(rows))
	for i, row := range rows {
		if i == 0 || len(row) < 5 {
			continue
		}
		date, derr := time.Parse("2006-01-02", strings.TrimSpace(row[0]))
		if derr != nil {
			continue
		}
		closePx, cerr := decimal.NewFromString(strings.TrimSpace(row[4]))
		if cerr != nil || !closePx.IsPositive() {
			continue
		}
		bar := EODBar{
			Date:  date.UTC(),
			Open:  parseOptionalDecimal(row[1]),
			High:  parseOptionalDecimal(row[2]),
			Low:   parseOptionalDecimal(row[3]),
			Close: closePx,
		}
		if len(row) > 5 {
			bar.Volume = parseOptionalDecimal(row[5])
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseOptionalDecimal(raw string) *decimal.Decimal {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil
	}
	return &v
}

func lastBarAtOrBefore(bars []EODBar, target time.Time) *PriceRecord {
	var found *EODBar
	targetDate := target.Truncate(24 * time.Hour)
	for i := range bars {
		if !bars[i].Date.After(targetDate) {
			found = &bars[i]
		}
	}
	if found == nil && len(bars) > 0 {
		// Everything is newer than the target; the oldest bar is still the
		// closest approximation available.
		found = &bars[0]
	}
	if found == nil {
		return nil
	}
	return &PriceRecord{Price: found.Close, TS: found.Date}
}

func previousClose(bars []EODBar, latestTS time.Time) *decimal.Decimal {
	latestDate := latestTS.UTC().Truncate(24 * time.Hour)
	var prev *decimal.Decimal
	for i := range bars {
		if bars[i].Date.Before(latestDate) {
			v := bars[i].Close
			prev = &v
		}
	}
	if prev == nil && len(bars) >= 2 {
		v := bars[len(bars)-2].Close
		prev = &v
	}
	return prev
}

func asOfPtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}
