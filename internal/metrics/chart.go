package metrics

import (
	"fmt"
	"sort"

	"github.com/adpulse/campaign-watcher/pkg/types"
)

// ChartData groups rows by a dimension key and sums each requested metric
// per group. A row without the dimension falls back to its platform id, so
// heterogeneous uploads still land somewhere visible instead of vanishing.
func ChartData(data types.PlatformData, dimension string, metricNames []string) []types.ChartGroup {
	groups := make(map[string]map[string]float64)

	for platformID, rows := range data {
		for _, row := range rows {
			key := platformID
			if dimension != "" {
				if raw, ok := row[dimension]; ok {
					key = fmt.Sprintf("%v", raw)
				}
			}

			group, ok := groups[key]
			if !ok {
				group = make(map[string]float64, len(metricNames))
				groups[key] = group
			}

			for _, metric := range metricNames {
				raw, ok := row[metric]
				if !ok {
					continue
				}
				if value, ok := CoerceNumber(raw); ok {
					group[metric] += value
				}
			}
		}
	}

	out := make([]types.ChartGroup, 0, len(groups))
	for key, metrics := range groups {
		out = append(out, types.ChartGroup{Key: key, Metrics: metrics})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// PiePoints renders pie chart input: {name, value} pairs built from the
// first requested metric only.
func PiePoints(data types.PlatformData, dimension string, metricNames []string) []types.PiePoint {
	if len(metricNames) == 0 {
		return nil
	}
	first := metricNames[0]

	groups := ChartData(data, dimension, []string{first})
	points := make([]types.PiePoint, 0, len(groups))
	for _, g := range groups {
		points = append(points, types.PiePoint{Name: g.Key, Value: g.Metrics[first]})
	}
	return points
}
