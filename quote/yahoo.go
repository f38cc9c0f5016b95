// Package quote fetches market data. It is a collaborator of the
// calculation core: every call may fail per-symbol and callers are
// expected to carry on with the symbols that worked.
package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jpillora/backoff"

	"github.com/trailguard/trailguard/core"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Yahoo implements core.Feeder against the Yahoo Finance chart API.
type Yahoo struct {
	client   *http.Client
	baseURL  string
	maxTries int
}

// Option configures a Yahoo client.
type Option func(*Yahoo)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(y *Yahoo) { y.client = client }
}

// WithBaseURL points the client at a different endpoint, used by tests.
func WithBaseURL(baseURL string) Option {
	return func(y *Yahoo) { y.baseURL = baseURL }
}

// NewYahoo creates a Yahoo Finance client.
func NewYahoo(opts ...Option) *Yahoo {
	y := &Yahoo{
		client:   &http.Client{Timeout: 30 * time.Second},
		baseURL:  defaultBaseURL,
		maxTries: 3,
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// chartResponse is the subset of the chart API payload the feeder reads.
// Prices arrive as nullable arrays: a halted or partial day is null, not
// zero.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string   `json:"currency"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				FiftyTwoWeekHigh   *float64 `json:"fiftyTwoWeekHigh"`
				FiftyTwoWeekLow    *float64 `json:"fiftyTwoWeekLow"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Snapshot fetches the current quote for one symbol.
func (y *Yahoo) Snapshot(ctx context.Context, symbol string) (core.CurrentSnapshot, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", y.baseURL, symbol)

	payload, err := y.getChart(ctx, symbol, url)
	if err != nil {
		return core.CurrentSnapshot{}, err
	}

	meta := payload.Chart.Result[0].Meta
	if meta.RegularMarketPrice == nil {
		return core.CurrentSnapshot{}, fmt.Errorf("%w: %s: no market price in response",
			core.ErrFetchFailed, symbol)
	}

	currency := meta.Currency
	if currency == "" {
		currency = "USD"
	}

	return core.CurrentSnapshot{
		Symbol:      symbol,
		Price:       *meta.RegularMarketPrice,
		Currency:    currency,
		Week52High:  meta.FiftyTwoWeekHigh,
		Week52Low:   meta.FiftyTwoWeekLow,
		RetrievedAt: time.Now(),
	}, nil
}

// Daily fetches the daily OHLCV series for [start, end]. Days with no
// usable high or close are dropped; the 52-week columns stay null for
// backfilled rows since the chart API only reports them for the present.
func (y *Yahoo) Daily(ctx context.Context, symbol string, start, end core.Day) ([]core.PriceObservation, error) {
	url := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&period1=%d&period2=%d",
		y.baseURL, symbol, start.Time().Unix(), end.AddDays(1).Time().Unix())

	payload, err := y.getChart(ctx, symbol, url)
	if err != nil {
		return nil, err
	}

	result := payload.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil, nil
	}
	bars := result.Indicators.Quote[0]

	observations := make([]core.PriceObservation, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(bars.High) || i >= len(bars.Close) {
			break
		}
		if bars.High[i] == nil || bars.Close[i] == nil {
			continue
		}
		observations = append(observations, core.PriceObservation{
			Symbol: symbol,
			Date:   core.DayOf(time.Unix(ts, 0).UTC()),
			Open:   at(bars.Open, i),
			High:   *bars.High[i],
			Low:    at(bars.Low, i),
			Close:  *bars.Close[i],
			Volume: at(bars.Volume, i),
		})
	}
	return observations, nil
}

// getChart performs the request with jittered exponential backoff on
// transient failures.
func (y *Yahoo) getChart(ctx context.Context, symbol, url string) (*chartResponse, error) {
	retry := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Jitter: true,
	}

	var lastErr error
	for attempt := 0; attempt < y.maxTries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retry.Duration()):
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %s: %v", core.ErrFetchFailed, symbol, ctx.Err())
			}
		}

		payload, retryable, err := y.getChartOnce(ctx, symbol, url)
		if err == nil {
			return payload, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return nil, lastErr
}

func (y *Yahoo) getChartOnce(ctx context.Context, symbol, url string) (payload *chartResponse, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", core.ErrFetchFailed, symbol, err)
	}
	req.Header.Set("User-Agent", "trailguard/1.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: %v", core.ErrFetchFailed, symbol, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("%w: %s: unexpected status %d",
			core.ErrFetchFailed, symbol, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %s: read response: %v", core.ErrFetchFailed, symbol, err)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, false, fmt.Errorf("%w: %s: decode response: %v", core.ErrFetchFailed, symbol, err)
	}
	if parsed.Chart.Error != nil {
		return nil, false, fmt.Errorf("%w: %s: %s (%s)", core.ErrFetchFailed, symbol,
			parsed.Chart.Error.Description, parsed.Chart.Error.Code)
	}
	if len(parsed.Chart.Result) == 0 {
		return nil, false, fmt.Errorf("%w: %s: empty result", core.ErrFetchFailed, symbol)
	}
	return &parsed, false, nil
}

func at[T any](values []*T, i int) *T {
	if i >= len(values) {
		return nil
	}
	return values[i]
}
