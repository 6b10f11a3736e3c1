package domain

import (
	"math"
	"sort"
)

// dayLayout keys day buckets.
const dayLayout = "2006-01-02"

// MetricRow aggregates the readings of one group (a node or a calendar day).
type MetricRow struct {
	Key             string     `json:"key"`
	Count           int        `json:"count"`
	FireCount       int        `json:"fire_count"`
	MeanTemperature float64    `json:"mean_temperature"`
	MeanCO2         float64    `json:"mean_co2"`
	MeanConfidence  float64    `json:"mean_confidence"`
	LastReadingAt   Timestamp  `json:"last_reading_at"`
	Tiers           TierCounts `json:"tiers"`
}

// accumulator sums one group. Means divide by max(count, 1), so an empty
// group reports zeros rather than NaN. Non-finite values add nothing.
type accumulator struct {
	row       MetricRow
	sumTemp   float64
	sumCO2    float64
	sumConf   float64
	lastValid bool
	lastMs    int64
}

func (a *accumulator) add(r TaggedReading) {
	a.row.Count++
	if r.IsFire {
		a.row.FireCount++
	}
	a.row.Tiers.Add(r.Severity)
	a.sumTemp += finite(r.Temperature)
	a.sumCO2 += finite(r.CO2Level)
	a.sumConf += finite(r.Confidence)
	if ms, ok := r.Timestamp.Millis(); ok && (!a.lastValid || ms > a.lastMs) {
		a.lastValid = true
		a.lastMs = ms
	}
}

func (a *accumulator) finish() MetricRow {
	n := float64(max(a.row.Count, 1))
	a.row.MeanTemperature = a.sumTemp / n
	a.row.MeanCO2 = a.sumCO2 / n
	a.row.MeanConfidence = a.sumConf / n
	if a.lastValid {
		a.row.LastReadingAt = FromMillis(a.lastMs)
	}
	return a.row
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func group(readings []TaggedReading, keyOf func(TaggedReading) (string, bool)) []MetricRow {
	groups := make(map[string]*accumulator)
	for _, r := range readings {
		key, ok := keyOf(r)
		if !ok {
			continue
		}
		acc, exists := groups[key]
		if !exists {
			acc = &accumulator{row: MetricRow{Key: key}}
			groups[key] = acc
		}
		acc.add(r)
	}

	rows := make([]MetricRow, 0, len(groups))
	for _, acc := range groups {
		rows = append(rows, acc.finish())
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	return rows
}

// GroupByNode aggregates readings per node id. Readings with unparseable
// timestamps are still counted.
func GroupByNode(readings []TaggedReading) []MetricRow {
	return group(readings, func(r TaggedReading) (string, bool) {
		return r.NodeID, true
	})
}

// GroupByDay aggregates readings per UTC calendar day, oldest first. Readings
// whose timestamp cannot be placed on a day are left out.
func GroupByDay(readings []TaggedReading) []MetricRow {
	return group(readings, func(r TaggedReading) (string, bool) {
		if !r.Timestamp.Valid() {
			return "", false
		}
		return r.Timestamp.Time().Format(dayLayout), true
	})
}

// TopNodes ranks rows by count descending, breaking ties by the most recent
// reading and then by key. A non-positive n returns every row ranked.
func TopNodes(rows []MetricRow, n int) []MetricRow {
	ranked := make([]MetricRow, len(rows))
	copy(ranked, rows)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		am, aok := a.LastReadingAt.Millis()
		bm, bok := b.LastReadingAt.Millis()
		if aok != bok {
			return aok
		}
		if am != bm {
			return am > bm
		}
		return a.Key < b.Key
	})
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// Summary holds the headline numbers of a window.
type Summary struct {
	TotalReadings int        `json:"total_readings"`
	FireReadings  int        `json:"fire_readings"`
	ActiveNodes   int        `json:"active_nodes"`
	DetectionRate float64    `json:"detection_rate"` // percent of readings with the fire flag
	AvgConfidence float64    `json:"avg_confidence"` // percent
	AvgTemp       float64    `json:"avg_temperature"`
	Tiers         TierCounts `json:"tiers"`
}

// Summarize computes the headline numbers. Empty input yields all zeros.
func Summarize(readings []TaggedReading) Summary {
	var acc accumulator
	nodes := make(map[string]struct{})
	for _, r := range readings {
		acc.add(r)
		nodes[r.NodeID] = struct{}{}
	}
	row := acc.finish()

	return Summary{
		TotalReadings: row.Count,
		FireReadings:  row.FireCount,
		ActiveNodes:   len(nodes),
		DetectionRate: percent(float64(row.FireCount), float64(row.Count)),
		AvgConfidence: row.MeanConfidence * 100,
		AvgTemp:       row.MeanTemperature,
		Tiers:         row.Tiers,
	}
}

func percent(part, whole float64) float64 {
	if whole <= 0 {
		return 0
	}
	return part / whole * 100
}

// Trend is the plain delta between a metric's current and previous values.
// Rates already expressed as percentages come out in percentage points.
func Trend(current, previous float64) float64 {
	return current - previous
}

// SummaryTrend holds the window-over-window deltas of a Summary.
type SummaryTrend struct {
	TotalReadings float64 `json:"total_readings"`
	FireReadings  float64 `json:"fire_readings"`
	ActiveNodes   float64 `json:"active_nodes"`
	DetectionRate float64 `json:"detection_rate"` // percentage points
	AvgConfidence float64 `json:"avg_confidence"` // percentage points
}

// CompareSummaries computes current minus previous for every headline number.
func CompareSummaries(current, previous Summary) SummaryTrend {
	return SummaryTrend{
		TotalReadings: Trend(float64(current.TotalReadings), float64(previous.TotalReadings)),
		FireReadings:  Trend(float64(current.FireReadings), float64(previous.FireReadings)),
		ActiveNodes:   Trend(float64(current.ActiveNodes), float64(previous.ActiveNodes)),
		DetectionRate: Trend(current.DetectionRate, previous.DetectionRate),
		AvgConfidence: Trend(current.AvgConfidence, previous.AvgConfidence),
	}
}

// PreviousWindow returns the equal-length window that ends where w starts.
func PreviousWindow(w TimeWindow) TimeWindow {
	w = w.Resolve()
	length := w.End - w.Start
	if length < 0 {
		length = 0
	}
	return TimeWindow{Start: w.Start - length, End: w.Start}
}

// Report is the analytics view of a selection.
type Report struct {
	Window   *TimeWindow  `json:"window,omitempty"`
	Summary  Summary      `json:"summary"`
	Previous Summary      `json:"previous"`
	Trend    SummaryTrend `json:"trend"`
	Nodes    []MetricRow  `json:"nodes"`
	Days     []MetricRow  `json:"days"`
	TopNodes []MetricRow  `json:"top_nodes"`
}

// BuildReport aggregates the current selection and compares it with the
// previous one. Empty selections produce zero counts and empty rankings.
func BuildReport(current, previous Selection, topN int) Report {
	summary := Summarize(current.Readings)
	prev := Summarize(previous.Readings)
	nodes := GroupByNode(current.Readings)

	return Report{
		Window:   current.Criteria.Window,
		Summary:  summary,
		Previous: prev,
		Trend:    CompareSummaries(summary, prev),
		Nodes:    nodes,
		Days:     GroupByDay(current.Readings),
		TopNodes: TopNodes(nodes, topN),
	}
}
