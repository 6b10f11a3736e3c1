// Package service composes the pure domain and threat transforms over the
// live reading and topology snapshots.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/threat"
	"github.com/jonboulle/clockwork"
)

// ReadingSource returns the current reading history.
type ReadingSource interface {
	Snapshot() []domain.Reading
}

// TopologySource returns the current node topology.
type TopologySource interface {
	Nodes() []domain.Node
}

// Refresher recomputes predictions for a view.
type Refresher interface {
	Refresh(ctx context.Context, key string, req threat.Request) (threat.PredictionSet, error)
}

// Query selects what an operator is looking at.
type Query struct {
	Window   domain.TimeWindow
	Category string
	Severity domain.SeverityTier
	// HorizonHours of 0 derives the horizon from the window length.
	HorizonHours int
	TopN         int
}

func (q Query) criteria() domain.Criteria {
	w := q.Window
	return domain.Criteria{Window: &w, Category: q.Category, Severity: q.Severity}
}

// ThreatView is the map-facing result: selected nodes, active fires, and the
// propagation assessment.
type ThreatView struct {
	Window       domain.TimeWindow    `json:"window"`
	Category     string               `json:"category"`
	Severity     domain.SeverityTier  `json:"severity,omitempty"`
	HorizonHours int                  `json:"horizon_hours"`
	Nodes        []domain.Node        `json:"nodes"`
	Predictions  domain.PredictionMap `json:"predictions"`
	ComputedAt   time.Time            `json:"computed_at"`
	GeneratedAt  time.Time            `json:"generated_at"`
	Stale        bool                 `json:"stale"`
	Retryable    bool                 `json:"retryable,omitempty"`
	Error        string               `json:"error,omitempty"`
	threat.Assessment
}

// ReadingsView is the filtered reading collection with per-reading tiers.
type ReadingsView struct {
	Window   domain.TimeWindow      `json:"window"`
	Nodes    []domain.Node          `json:"nodes"`
	Readings []domain.TaggedReading `json:"readings"`
	Tiers    domain.TierCounts      `json:"tiers"`
}

// TotalsView summarizes every retained reading, ignoring the time window.
// Readings whose timestamp could not be parsed are counted here and reported
// separately as Undated.
type TotalsView struct {
	Category string              `json:"category"`
	Severity domain.SeverityTier `json:"severity,omitempty"`
	Summary  domain.Summary      `json:"summary"`
	Undated  int                 `json:"undated_readings"`
}

// Dashboard combines threat and report views computed from one selection.
type Dashboard struct {
	Threats ThreatView    `json:"threats"`
	Report  domain.Report `json:"report"`
}

// Engine answers threat, report, and reading queries.
type Engine struct {
	readings   ReadingSource
	topology   TopologySource
	refresher  Refresher
	thresholds domain.Thresholds
	clock      clockwork.Clock
	logger     *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(readings ReadingSource, topology TopologySource, refresher Refresher, thresholds domain.Thresholds, clock clockwork.Clock, logger *slog.Logger) *Engine {
	return &Engine{
		readings:   readings,
		topology:   topology,
		refresher:  refresher,
		thresholds: thresholds,
		clock:      clock,
		logger:     logger,
	}
}

// Threats selects the current view and runs the propagation pipeline over it.
// A failed prediction never fails the call: the last good predictions are
// used and the view is flagged stale.
func (e *Engine) Threats(ctx context.Context, q Query) ThreatView {
	return e.threatsFor(ctx, e.take().selectFor(q), q)
}

// Report aggregates the selected readings against the preceding window.
func (e *Engine) Report(_ context.Context, q Query) domain.Report {
	snap := e.take()
	return reportFor(snap, snap.selectFor(q), q)
}

// Readings returns the selected nodes and severity-tagged readings.
func (e *Engine) Readings(_ context.Context, q Query) ReadingsView {
	sel := e.take().selectFor(q)
	view := ReadingsView{
		Window:   *sel.Criteria.Window,
		Nodes:    nonNil(sel.Nodes),
		Readings: nonNil(sel.Readings),
	}
	for _, r := range sel.Readings {
		view.Tiers.Add(r.Severity)
	}
	return view
}

// Totals summarizes all retained readings matching the query's category and
// severity. The window is ignored.
func (e *Engine) Totals(_ context.Context, q Query) TotalsView {
	snap := e.take()
	sel := domain.Select(snap.nodes, snap.readings, domain.Criteria{Category: q.Category, Severity: q.Severity}, snap.thresholds)
	view := TotalsView{
		Category: categoryOrAll(q.Category),
		Severity: q.Severity,
		Summary:  domain.Summarize(sel.Readings),
	}
	for _, r := range sel.Readings {
		if !r.Timestamp.Valid() {
			view.Undated++
		}
	}
	return view
}

// Dashboard feeds one selection to both the threat and reporting pipelines.
func (e *Engine) Dashboard(ctx context.Context, q Query) Dashboard {
	snap := e.take()
	sel := snap.selectFor(q)
	return Dashboard{
		Threats: e.threatsFor(ctx, sel, q),
		Report:  reportFor(snap, sel, q),
	}
}

// snapshot pins the inputs of one query so the current and previous windows
// are computed over the same data.
type snapshot struct {
	nodes      []domain.Node
	readings   []domain.Reading
	thresholds domain.Thresholds
}

func (e *Engine) take() snapshot {
	return snapshot{
		nodes:      e.topology.Nodes(),
		readings:   e.readings.Snapshot(),
		thresholds: e.thresholds,
	}
}

func (s snapshot) selectFor(q Query) domain.Selection {
	return domain.Select(s.nodes, s.readings, q.criteria(), s.thresholds)
}

func (e *Engine) threatsFor(ctx context.Context, sel domain.Selection, q Query) ThreatView {
	window := *sel.Criteria.Window
	horizon := domain.HorizonHours(window)
	if q.HorizonHours > 0 {
		horizon = domain.ClampHorizon(q.HorizonHours)
	}
	fires := sel.ActiveFireIDs()
	topology := domain.IndexNodes(sel.Topology)

	set, err := e.refresher.Refresh(ctx, viewKey(q, horizon), threat.Request{
		ActiveFireIDs: fires,
		Topology:      topology,
		HorizonHours:  horizon,
		Category:      q.Category,
	})

	view := ThreatView{
		Window:       window,
		Category:     categoryOrAll(q.Category),
		Severity:     q.Severity,
		HorizonHours: horizon,
		Nodes:        nonNil(sel.Nodes),
		ComputedAt:   set.ComputedAt,
		GeneratedAt:  e.clock.Now(),
		Stale:        set.Stale,
	}
	switch {
	case err == nil, errors.Is(err, threat.ErrSuperseded):
	default:
		view.Stale = true
		view.Retryable = errors.Is(err, threat.ErrPredictionUnavailable)
		view.Error = err.Error()
		e.logger.Warn("serving stale predictions", "category", view.Category, "horizon_hours", horizon, "error", err)
	}

	view.Predictions = currentOrigins(set.Predictions, fires)
	view.Assessment = threat.Aggregate(view.Predictions, topology, fires)
	return view
}

func reportFor(snap snapshot, sel domain.Selection, q Query) domain.Report {
	previous := q
	previous.Window = domain.PreviousWindow(*sel.Criteria.Window)
	return domain.BuildReport(sel, snap.selectFor(previous), q.TopN)
}

// currentOrigins drops predictions whose origin is no longer burning, which
// only happens when a stale set is served.
func currentOrigins(preds domain.PredictionMap, fires []string) domain.PredictionMap {
	out := make(domain.PredictionMap, len(fires))
	for _, id := range fires {
		if list, ok := preds[id]; ok {
			out[id] = list
		}
	}
	return out
}

func viewKey(q Query, horizon int) string {
	return categoryOrAll(q.Category) + "|" + string(q.Severity) + "|" + strconv.Itoa(horizon)
}

func categoryOrAll(c string) string {
	if domain.IsAllCategory(c) {
		return domain.CategoryAll
	}
	return c
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
