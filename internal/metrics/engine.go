// Package metrics turns per-platform row collections into single metric
// values, trend percentages and chart-ready aggregates. Row schemas differ
// between platforms, so every numeric read goes through a coercion that
// strips currency and formatting characters.
package metrics

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/adpulse/campaign-watcher/pkg/types"
)

// ratioMetrics are metrics that are themselves ratios. Summing a ratio
// across rows is semantically wrong, so these are averaged instead.
var ratioMetrics = map[string]bool{
	"roas":            true,
	"ctr":             true,
	"cpc":             true,
	"cpm":             true,
	"conversion_rate": true,
}

// IsRatioMetric reports whether values of the metric must be averaged
// rather than summed when aggregating across rows.
func IsRatioMetric(metric string) bool {
	return ratioMetrics[strings.ToLower(metric)]
}

// HistoryStore is the slice of the persistence layer the engine needs to
// re-query historical rows for comparison windows.
type HistoryStore interface {
	RowsForPlatform(ctx context.Context, clientID, platformID, dateField string, dateRange *types.DateRange) ([]types.Row, error)
}

type Engine struct {
	store     HistoryStore
	cache     *cache.Cache
	logger    *logrus.Logger
	randFloat func() float64
}

func NewEngine(store HistoryStore, logger *logrus.Logger) *Engine {
	return &Engine{
		store:     store,
		cache:     cache.New(5*time.Minute, 10*time.Second),
		logger:    logger,
		randFloat: rand.Float64,
	}
}

// Value aggregates a metric across all rows of all platforms: ratio metrics
// are averaged over the rows that carry the field, everything else is
// summed. Unparsable values contribute exactly 0 (and do not count as a
// contributing row for ratio averaging).
func (e *Engine) Value(metric string, data types.PlatformData) float64 {
	var sum float64
	var contributing int

	for _, rows := range data {
		for _, row := range rows {
			raw, ok := row[metric]
			if !ok {
				continue
			}
			value, ok := CoerceNumber(raw)
			if !ok {
				continue
			}
			sum += value
			contributing++
		}
	}

	if IsRatioMetric(metric) {
		if contributing == 0 {
			return 0
		}
		return sum / float64(contributing)
	}
	return sum
}

// CompareOptions names the historical window PreviousValue resolves.
type CompareOptions struct {
	Period    types.ComparisonPeriod
	DateField string
	ClientID  string
}

// PreviousValue computes the metric over the comparison window. Historical
// rows are re-queried per platform in parallel; one platform failing
// degrades that platform's contribution to zero rather than failing the
// whole aggregation. When no historical rows exist at all, the result is a
// simulated value drawn uniformly from 90-110% of current, tagged Estimated
// so callers never confuse it with measured data.
func (e *Engine) PreviousValue(ctx context.Context, metric string, data types.PlatformData, current float64, opts CompareOptions) (types.MetricValue, error) {
	window, err := ComparisonWindow(opts.Period, time.Now())
	if err != nil {
		return types.MetricValue{}, err
	}

	historical := make(types.PlatformData, len(data))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for platformID := range data {
		platformID := platformID
		g.Go(func() error {
			rows, err := e.historicalRows(gctx, opts.ClientID, platformID, opts.DateField, window)
			if err != nil {
				e.logger.WithFields(logrus.Fields{
					"platform": platformID,
					"error":    err.Error(),
				}).Warn("Historical lookup failed, platform contributes zero")
				return nil
			}
			mu.Lock()
			historical[platformID] = rows
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return types.MetricValue{}, err
	}

	total := 0
	for _, rows := range historical {
		total += len(rows)
	}
	if total == 0 {
		return e.simulatePrevious(current), nil
	}

	return types.MetricValue{
		Value:  e.Value(metric, historical),
		Source: types.SourceActual,
	}, nil
}

func (e *Engine) historicalRows(ctx context.Context, clientID, platformID, dateField string, window types.DateRange) ([]types.Row, error) {
	key := fmt.Sprintf("hist:%s:%s:%s:%d:%d", clientID, platformID, dateField, window.Start.Unix(), window.End.Unix())
	if cached, found := e.cache.Get(key); found {
		return cached.([]types.Row), nil
	}

	rows, err := e.store.RowsForPlatform(ctx, clientID, platformID, dateField, &window)
	if err != nil {
		return nil, err
	}

	e.cache.Set(key, rows, cache.DefaultExpiration)
	return rows, nil
}

func (e *Engine) simulatePrevious(current float64) types.MetricValue {
	factor := 0.9 + e.randFloat()*0.2
	return types.MetricValue{
		Value:  current * factor,
		Source: types.SourceEstimated,
	}
}

// ComparisonWindow resolves a comparison period relative to now:
// wow is the 7-day window ending 7 days ago, mom the full previous calendar
// month, yoy the 7-day window ending 1 year ago.
func ComparisonWindow(period types.ComparisonPeriod, now time.Time) (types.DateRange, error) {
	switch period {
	case types.CompareWeekOverWeek:
		end := now.AddDate(0, 0, -7)
		return types.DateRange{Start: end.AddDate(0, 0, -7), End: end}, nil
	case types.CompareMonthOverMonth:
		firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		start := firstOfThisMonth.AddDate(0, -1, 0)
		end := firstOfThisMonth.Add(-time.Second)
		return types.DateRange{Start: start, End: end}, nil
	case types.CompareYearOverYear:
		end := now.AddDate(-1, 0, 0)
		return types.DateRange{Start: end.AddDate(0, 0, -7), End: end}, nil
	}
	return types.DateRange{}, fmt.Errorf("invalid comparison period: %q", period)
}

// Trend is the percentage change from previous to current. It is undefined,
// not zero, when previous is 0; returning nil keeps that distinction.
func Trend(current, previous float64) *float64 {
	if previous == 0 {
		return nil
	}
	trend := (current - previous) / previous * 100
	return &trend
}

// CoerceNumber converts a raw row value to a float64, stripping currency and
// formatting characters from strings ("$1,234.50" -> 1234.5). The second
// return is false for anything unparsable.
func CoerceNumber(raw interface{}) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		cleaned := strings.Map(func(r rune) rune {
			switch {
			case r >= '0' && r <= '9', r == '.', r == '-':
				return r
			default:
				return -1
			}
		}, v)
		if cleaned == "" {
			return 0, false
		}
		value, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return value, true
	}
	return 0, false
}
