package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/observability"
	"github.com/couchcryptid/fire-threat-engine/internal/retry"
	"github.com/couchcryptid/fire-threat-engine/internal/threat"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, time.April, 26, 18, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- fakes ---

type staticReadings []domain.Reading

func (s staticReadings) Snapshot() []domain.Reading { return s }

type staticTopology []domain.Node

func (s staticTopology) Nodes() []domain.Node { return s }

type fakeProvider struct {
	mu    sync.Mutex
	preds domain.PredictionMap
	err   error
	reqs  []domain.PredictionRequest
}

func (f *fakeProvider) Predict(_ context.Context, req domain.PredictionRequest) (domain.PredictionMap, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.preds, nil
}

func (f *fakeProvider) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func hoursAgo(h float64) domain.Timestamp {
	return domain.FromTime(testNow.Add(-time.Duration(h * float64(time.Hour))))
}

func fixtureNodes() []domain.Node {
	return []domain.Node{
		{ID: "O", Category: "forest", Status: domain.StatusOK, Coordinates: &domain.Geo{Lat: 43.2300, Lon: 5.4500}},
		{ID: "T", Category: "forest", Status: domain.StatusOK, Coordinates: &domain.Geo{Lat: 43.2400, Lon: 5.4600}},
		{ID: "F", Category: "forest", Status: domain.StatusFire, Coordinates: &domain.Geo{Lat: 43.2500, Lon: 5.4700}},
		{ID: "U", Category: "urban", Status: domain.StatusOK, Coordinates: &domain.Geo{Lat: 43.3000, Lon: 5.4000}},
	}
}

func fixtureReadings() []domain.Reading {
	return []domain.Reading{
		{ID: "r1", NodeID: "O", Timestamp: hoursAgo(1), Temperature: 90, CO2Level: 500, Confidence: 0.95, IsFire: true},
		{ID: "r2", NodeID: "T", Timestamp: hoursAgo(2), Temperature: 30, Confidence: 0.2},
		{ID: "r3", NodeID: "U", Timestamp: hoursAgo(3), Temperature: 58, Confidence: 0.4},
		{ID: "r4", NodeID: "T", Timestamp: hoursAgo(30), Temperature: 25, Confidence: 0.3},
	}
}

func newTestEngine(provider domain.PredictionProvider) *Engine {
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(testNow)
	predictor := threat.NewPredictor(provider,
		retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		time.Second, metrics, testLogger())
	refresher := threat.NewRefresher(predictor, clock, metrics, testLogger())
	return NewEngine(staticReadings(fixtureReadings()), staticTopology(fixtureNodes()), refresher,
		domain.DefaultThresholds(), clock, testLogger())
}

func lastDay() domain.TimeWindow {
	return domain.WindowEnding(testNow, 24*time.Hour)
}

// --- tests ---

func TestEngine_Threats(t *testing.T) {
	provider := &fakeProvider{preds: domain.PredictionMap{
		"O": {{TargetID: "T", WillReach: true}, {TargetID: "F", WillReach: true}},
		"F": {{TargetID: "T", WillReach: true}, {TargetID: "U", WillReach: false}},
	}}
	e := newTestEngine(provider)

	view := e.Threats(context.Background(), Query{Window: lastDay()})

	assert.False(t, view.Stale)
	assert.Empty(t, view.Error)
	assert.Equal(t, domain.CategoryAll, view.Category)
	assert.Equal(t, 24, view.HorizonHours)
	assert.Equal(t, []string{"F", "O"}, view.FireNodes, "F by status, O by fire reading")
	assert.Equal(t, []string{"T"}, view.ThreatenedNodes)
	assert.Len(t, view.Links, 3)
	assert.Len(t, view.RangeCircles, 3)
	assert.Len(t, view.Nodes, 4)
	assert.Equal(t, testNow, view.GeneratedAt)

	require.Len(t, provider.reqs, 1)
	assert.Equal(t, []string{"F", "O"}, provider.reqs[0].ActiveNodeIDs)
	assert.Equal(t, 24, provider.reqs[0].HorizonHours)
}

func TestEngine_ThreatsExplicitHorizonAndCategory(t *testing.T) {
	provider := &fakeProvider{preds: domain.PredictionMap{
		"O": {{TargetID: "U", WillReach: true}, {TargetID: "T", WillReach: true}},
	}}
	e := newTestEngine(provider)

	view := e.Threats(context.Background(), Query{Window: lastDay(), Category: "forest", HorizonHours: 6})
	assert.Equal(t, 6, view.HorizonHours)
	assert.Equal(t, []string{"T"}, view.ThreatenedNodes, "urban target is outside the category")
	assert.Len(t, view.Nodes, 3)
}

func TestEngine_ThreatsServesStaleOnFailure(t *testing.T) {
	provider := &fakeProvider{preds: domain.PredictionMap{
		"O": {{TargetID: "T", WillReach: true}},
	}}
	e := newTestEngine(provider)
	q := Query{Window: lastDay()}

	fresh := e.Threats(context.Background(), q)
	require.False(t, fresh.Stale)

	provider.fail(errors.New("spread model unreachable"))
	stale := e.Threats(context.Background(), q)

	assert.True(t, stale.Stale)
	assert.True(t, stale.Retryable)
	assert.Contains(t, stale.Error, "spread model unreachable")
	assert.Equal(t, fresh.ThreatenedNodes, stale.ThreatenedNodes, "last good predictions still render")
	assert.Equal(t, fresh.ComputedAt, stale.ComputedAt)
}

func TestEngine_ThreatsFailureWithoutHistory(t *testing.T) {
	provider := &fakeProvider{err: errors.New("down")}
	e := newTestEngine(provider)

	view := e.Threats(context.Background(), Query{Window: lastDay()})
	assert.True(t, view.Stale)
	assert.True(t, view.Retryable)
	assert.Equal(t, []string{"F", "O"}, view.FireNodes, "fire classification does not depend on the provider")
	assert.Empty(t, view.ThreatenedNodes)
}

func TestEngine_Report(t *testing.T) {
	e := newTestEngine(&fakeProvider{})

	report := e.Report(context.Background(), Query{Window: lastDay(), TopN: 2})
	assert.Equal(t, 3, report.Summary.TotalReadings)
	assert.Equal(t, 1, report.Summary.FireReadings)
	assert.Equal(t, 1, report.Previous.TotalReadings, "r4 falls in the preceding day")
	assert.Equal(t, 2.0, report.Trend.TotalReadings)
	require.Len(t, report.TopNodes, 2)
	assert.Equal(t, 1, report.Summary.Tiers.Critical)
}

func TestEngine_Readings(t *testing.T) {
	e := newTestEngine(&fakeProvider{})

	view := e.Readings(context.Background(), Query{Window: lastDay(), Severity: domain.TierModerate})
	require.Len(t, view.Readings, 1)
	assert.Equal(t, "r3", view.Readings[0].ID)
	assert.Equal(t, domain.TierModerate, view.Readings[0].Severity)
	assert.Equal(t, 1, view.Tiers.Moderate)
}

func TestEngine_DashboardSharesSelection(t *testing.T) {
	provider := &fakeProvider{preds: domain.PredictionMap{"O": {{TargetID: "T", WillReach: true}}}}
	e := newTestEngine(provider)

	d := e.Dashboard(context.Background(), Query{Window: lastDay(), Category: "forest", TopN: 5})

	assert.Equal(t, 2, d.Report.Summary.TotalReadings)
	assert.Equal(t, d.Threats.Window, *d.Report.Window)
	for _, row := range d.Report.Nodes {
		assert.NotEqual(t, "U", row.Key)
	}
	assert.Equal(t, []string{"T"}, d.Threats.ThreatenedNodes)
}

func TestEngine_EmptyWindow(t *testing.T) {
	e := newTestEngine(&fakeProvider{})
	empty := domain.TimeWindow{Start: testNow.Add(-48 * time.Hour).UnixMilli(), End: testNow.Add(-47 * time.Hour).UnixMilli()}

	d := e.Dashboard(context.Background(), Query{Window: empty})
	assert.Equal(t, 0, d.Report.Summary.TotalReadings)
	assert.Equal(t, 0.0, d.Report.Summary.DetectionRate)
	assert.Empty(t, d.Report.TopNodes)
	assert.Equal(t, 1, d.Threats.HorizonHours)
	assert.Equal(t, []string{"F"}, d.Threats.FireNodes)
}

func TestEngine_TotalsCountUndatedReadings(t *testing.T) {
	readings := append(fixtureReadings(),
		domain.Reading{ID: "r5", NodeID: "T", Temperature: 20, Confidence: 0.1},
	)
	metrics := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClockAt(testNow)
	predictor := threat.NewPredictor(&fakeProvider{}, retry.DefaultPolicy(), time.Second, metrics, testLogger())
	e := NewEngine(staticReadings(readings), staticTopology(fixtureNodes()),
		threat.NewRefresher(predictor, clock, metrics, testLogger()), domain.DefaultThresholds(), clock, testLogger())

	all := e.Totals(context.Background(), Query{Window: lastDay()})
	assert.Equal(t, domain.CategoryAll, all.Category)
	assert.Equal(t, 5, all.Summary.TotalReadings, "the window is ignored and undated readings count")
	assert.Equal(t, 1, all.Undated)

	windowed := e.Report(context.Background(), Query{Window: lastDay()})
	assert.Equal(t, 3, windowed.Summary.TotalReadings)

	urban := e.Totals(context.Background(), Query{Category: "urban"})
	assert.Equal(t, 1, urban.Summary.TotalReadings)
	assert.Zero(t, urban.Undated)
}

func TestViewKey(t *testing.T) {
	assert.Equal(t, "all||24", viewKey(Query{}, 24))
	assert.Equal(t, "forest|HIGH|6", viewKey(Query{Category: "forest", Severity: domain.TierHigh}, 6))
	assert.Equal(t, "all||6", viewKey(Query{Category: "ALL"}, 6))
}
