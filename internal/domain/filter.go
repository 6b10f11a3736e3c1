package domain

import (
	"sort"
	"strings"
	"time"
)

// TimeWindow is a half-open interval [Start, End) in epoch milliseconds.
// An End of zero means "now" and is fixed by Resolve.
type TimeWindow struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// WindowEnding returns the window of length d that ends at end.
func WindowEnding(end time.Time, d time.Duration) TimeWindow {
	return TimeWindow{Start: end.Add(-d).UnixMilli(), End: end.UnixMilli()}
}

// Resolve pins an open End to the package clock's current time.
func (w TimeWindow) Resolve() TimeWindow {
	if w.End == 0 {
		w.End = NowMillis()
	}
	return w
}

// Duration returns End-Start, never negative.
func (w TimeWindow) Duration() time.Duration {
	w = w.Resolve()
	if w.End <= w.Start {
		return 0
	}
	return time.Duration(w.End-w.Start) * time.Millisecond
}

// Contains reports whether ts falls in [Start, End). Unparseable timestamps
// are never contained.
func (w TimeWindow) Contains(ts Timestamp) bool {
	ms, ok := ts.Millis()
	if !ok {
		return false
	}
	w = w.Resolve()
	return ms >= w.Start && ms < w.End
}

// ReadingStage is one predicate of the reading filter pipeline.
type ReadingStage func(Reading) bool

// NodeStage is one predicate of the node filter pipeline.
type NodeStage func(Node) bool

// InWindow keeps readings whose timestamp lies in w. The open end is resolved
// once, when the stage is built, so a long filter pass sees a stable "now".
func InWindow(w TimeWindow) ReadingStage {
	w = w.Resolve()
	return func(r Reading) bool {
		return w.Contains(r.Timestamp)
	}
}

// InCategory keeps readings whose node belongs to category. The "all" sentinel
// and the empty string pass everything; readings of unknown nodes never match
// a concrete category.
func InCategory(category string, nodes NodeIndex) ReadingStage {
	if IsAllCategory(category) {
		return passReading
	}
	return func(r Reading) bool {
		n, ok := nodes[r.NodeID]
		return ok && n.Category == category
	}
}

// WithSeverity keeps readings classified as tier. An empty tier passes everything.
func WithSeverity(tier SeverityTier, th Thresholds) ReadingStage {
	if tier == "" {
		return passReading
	}
	return func(r Reading) bool {
		return Classify(r, th) == tier
	}
}

// NodeInCategory keeps nodes of the given category, or all of them for the sentinel.
func NodeInCategory(category string) NodeStage {
	if IsAllCategory(category) {
		return func(Node) bool { return true }
	}
	return func(n Node) bool { return n.InCategory(category) }
}

// NodeSeenInWindow keeps nodes whose last-seen timestamp lies in w.
func NodeSeenInWindow(w TimeWindow) NodeStage {
	w = w.Resolve()
	return func(n Node) bool { return w.Contains(n.LastSeen) }
}

// FilterReadings returns the readings accepted by every stage. Stages are
// combined with logical AND, so their order does not change the result.
func FilterReadings(readings []Reading, stages ...ReadingStage) []Reading {
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if acceptReading(r, stages) {
			out = append(out, r)
		}
	}
	return out
}

// FilterNodes returns the nodes accepted by every stage.
func FilterNodes(nodes []Node, stages ...NodeStage) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		keep := true
		for _, s := range stages {
			if !s(n) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, n)
		}
	}
	return out
}

func acceptReading(r Reading, stages []ReadingStage) bool {
	for _, s := range stages {
		if !s(r) {
			return false
		}
	}
	return true
}

func passReading(Reading) bool { return true }

// IsAllCategory reports whether category is empty or the "all" sentinel, in
// any case and ignoring surrounding space.
func IsAllCategory(category string) bool {
	category = strings.TrimSpace(category)
	return category == "" || strings.EqualFold(category, CategoryAll)
}

// Criteria selects the slice of data an operator is looking at.
type Criteria struct {
	Window   *TimeWindow
	Category string
	Severity SeverityTier
}

// Stages builds the reading stages for c.
func (c Criteria) Stages(nodes NodeIndex, th Thresholds) []ReadingStage {
	stages := make([]ReadingStage, 0, 3)
	if c.Window != nil {
		stages = append(stages, InWindow(*c.Window))
	}
	stages = append(stages, InCategory(c.Category, nodes), WithSeverity(c.Severity, th))
	return stages
}

// TaggedReading is a reading together with its classified tier.
type TaggedReading struct {
	Reading
	Severity SeverityTier `json:"severity"`
}

// Selection is the filtered view shared by the threat and reporting pipelines.
// Building it once and handing the same value to both keeps the map and the
// numbers consistent.
type Selection struct {
	Criteria Criteria
	Topology []Node
	Nodes    []Node
	Readings []TaggedReading
}

// Select filters nodes by category and readings by every criteria stage, and
// tags each kept reading with its severity. The full topology is retained
// because propagation may originate from or reach nodes outside the view.
func Select(nodes []Node, readings []Reading, c Criteria, th Thresholds) Selection {
	if c.Window != nil {
		w := c.Window.Resolve()
		c.Window = &w
	}
	idx := IndexNodes(nodes)
	kept := FilterReadings(readings, c.Stages(idx, th)...)

	tagged := make([]TaggedReading, len(kept))
	for i, r := range kept {
		tagged[i] = TaggedReading{Reading: r, Severity: Classify(r, th)}
	}

	return Selection{
		Criteria: c,
		Topology: nodes,
		Nodes:    FilterNodes(nodes, NodeInCategory(c.Category)),
		Readings: tagged,
	}
}

// PlainReadings returns the selected readings without their tags.
func (s Selection) PlainReadings() []Reading {
	out := make([]Reading, len(s.Readings))
	for i, r := range s.Readings {
		out[i] = r.Reading
	}
	return out
}

// ActiveFireIDs returns, sorted, the selected nodes that are burning: either
// their status is FIRE or at least one selected reading carries the fire flag.
func (s Selection) ActiveFireIDs() []string {
	inView := make(map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		inView[n.ID] = true
	}

	set := make(map[string]struct{})
	for _, n := range s.Nodes {
		if n.IsFire() {
			set[n.ID] = struct{}{}
		}
	}
	for _, r := range s.Readings {
		if r.IsFire && inView[r.NodeID] {
			set[r.NodeID] = struct{}{}
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
