package metrics

import (
	"fmt"
	"strings"

	"github.com/adpulse/campaign-watcher/pkg/types"
)

// ApplyFilters keeps only rows matching every filter. Matching is
// case-insensitive; a row missing the filtered field is excluded, it is not
// treated as a non-match that passes.
func ApplyFilters(data types.PlatformData, filters []types.Filter) types.PlatformData {
	if len(filters) == 0 {
		return data
	}

	out := make(types.PlatformData, len(data))
	for platformID, rows := range data {
		kept := make([]types.Row, 0, len(rows))
		for _, row := range rows {
			if rowMatches(row, filters) {
				kept = append(kept, row)
			}
		}
		out[platformID] = kept
	}
	return out
}

func rowMatches(row types.Row, filters []types.Filter) bool {
	for _, f := range filters {
		raw, ok := row[f.Field]
		if !ok {
			return false
		}
		value := strings.ToLower(fmt.Sprintf("%v", raw))
		target := strings.ToLower(f.Value)

		switch f.Op {
		case types.FilterEquals:
			if value != target {
				return false
			}
		case types.FilterNotEquals:
			if value == target {
				return false
			}
		case types.FilterContains:
			if !strings.Contains(value, target) {
				return false
			}
		case types.FilterStartsWith:
			if !strings.HasPrefix(value, target) {
				return false
			}
		default:
			return false
		}
	}
	return true
}
