package metrics

import (
	"fmt"
	"time"

	"github.com/adpulse/campaign-watcher/pkg/types"
)

// ResolveDateRange maps a named preset to an inclusive [start, end] window
// in the caller's "now". Custom passes the caller-supplied bounds through
// verbatim.
func ResolveDateRange(preset types.RangePreset, now time.Time, custom *types.DateRange) (types.DateRange, error) {
	endOfToday := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	switch preset {
	case types.RangeLast7Days:
		return types.DateRange{Start: startOfToday.AddDate(0, 0, -6), End: endOfToday}, nil
	case types.RangeLast14Days:
		return types.DateRange{Start: startOfToday.AddDate(0, 0, -13), End: endOfToday}, nil
	case types.RangeLast30Days:
		return types.DateRange{Start: startOfToday.AddDate(0, 0, -29), End: endOfToday}, nil
	case types.RangeLast90Days:
		return types.DateRange{Start: startOfToday.AddDate(0, 0, -89), End: endOfToday}, nil
	case types.RangeThisMonth:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		return types.DateRange{Start: start, End: endOfToday}, nil
	case types.RangeLastMonth:
		firstOfThisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
		start := firstOfThisMonth.AddDate(0, -1, 0)
		return types.DateRange{Start: start, End: firstOfThisMonth.Add(-time.Second)}, nil
	case types.RangeThisYear:
		start := time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location())
		return types.DateRange{Start: start, End: endOfToday}, nil
	case types.RangeCustom:
		if custom == nil {
			return types.DateRange{}, fmt.Errorf("custom range requires explicit bounds")
		}
		return *custom, nil
	}

	return types.DateRange{}, fmt.Errorf("unknown date range preset: %q", preset)
}
