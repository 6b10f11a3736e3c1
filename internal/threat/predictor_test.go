package threat

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
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockProvider struct {
	mu       sync.Mutex
	calls    int
	requests []domain.PredictionRequest
	preds    domain.PredictionMap
	errs     []error // consumed in order, one per call
}

func (m *mockProvider) Predict(_ context.Context, req domain.PredictionRequest) (domain.PredictionMap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.requests = append(m.requests, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.preds, nil
}

type blockingProvider struct{}

func (blockingProvider) Predict(ctx context.Context, _ domain.PredictionRequest) (domain.PredictionMap, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// hangOnceProvider blocks its first call until the attempt is cancelled and
// answers every later call.
type hangOnceProvider struct {
	mu    sync.Mutex
	calls int
	preds domain.PredictionMap
}

func (h *hangOnceProvider) Predict(ctx context.Context, _ domain.PredictionRequest) (domain.PredictionMap, error) {
	h.mu.Lock()
	h.calls++
	first := h.calls == 1
	h.mu.Unlock()
	if first {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return h.preds, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func newTestPredictor(p domain.PredictionProvider) *Predictor {
	return NewPredictor(p, fastPolicy(), time.Second, observability.NewMetricsForTesting(), testLogger())
}

func geo(lat, lon float64) *domain.Geo {
	return &domain.Geo{Lat: lat, Lon: lon}
}

// testTopology places nodes around Marseille.
func testTopology() domain.NodeIndex {
	return domain.IndexNodes([]domain.Node{
		{ID: "O", Category: "forest", Status: domain.StatusFire, Coordinates: geo(43.2300, 5.4500)},
		{ID: "T", Category: "forest", Status: domain.StatusOK, Coordinates: geo(43.2400, 5.4600)},
		{ID: "U", Category: "urban", Status: domain.StatusOK, Coordinates: geo(43.2310, 5.4510)},
		{ID: "F", Category: "forest", Status: domain.StatusFire, Coordinates: geo(43.2500, 5.4700)},
		{ID: "nowhere", Category: "forest", Status: domain.StatusOK},
	})
}

func TestPredictor_AssemblesOrderedLists(t *testing.T) {
	provider := &mockProvider{preds: domain.PredictionMap{
		"O": {
			{TargetID: "T", WillReach: true, DistanceMeters: 1376},
			{TargetID: "U", WillReach: false},
			{TargetID: "O", WillReach: true},
			{TargetID: "nowhere", WillReach: true, DistanceMeters: 10},
			{TargetID: "ghost", WillReach: true, DistanceMeters: 5},
			{TargetID: "T", WillReach: false, DistanceMeters: 1},
		},
		"unrequested": {{TargetID: "T", WillReach: true}},
	}}

	got, err := newTestPredictor(provider).Predict(context.Background(), Request{
		ActiveFireIDs: []string{"O"},
		Topology:      testTopology(),
		HorizonHours:  24,
	})
	require.NoError(t, err)

	require.Len(t, got, 1)
	list := got["O"]
	require.Len(t, list, 2)
	assert.Equal(t, "U", list[0].TargetID, "closest target first")
	assert.Greater(t, list[0].DistanceMeters, 0.0, "missing distance is recomputed")
	assert.Equal(t, "T", list[1].TargetID)
	assert.True(t, list[1].WillReach, "first prediction for a target wins")
	for _, p := range list {
		assert.Equal(t, "O", p.OriginID)
		assert.Equal(t, 24, p.HorizonHours)
	}
}

func TestPredictor_CategoryFilterDropsTargets(t *testing.T) {
	provider := &mockProvider{preds: domain.PredictionMap{
		"O": {
			{TargetID: "T", WillReach: true, DistanceMeters: 1376},
			{TargetID: "U", WillReach: true, DistanceMeters: 140},
		},
	}}

	got, err := newTestPredictor(provider).Predict(context.Background(), Request{
		ActiveFireIDs: []string{"O"},
		Topology:      testTopology(),
		HorizonHours:  6,
		Category:      "forest",
	})
	require.NoError(t, err)

	require.Len(t, got["O"], 1)
	assert.Equal(t, "T", got["O"][0].TargetID)
}

func TestPredictor_OriginsSortedDedupedAndLocated(t *testing.T) {
	provider := &mockProvider{preds: domain.PredictionMap{}}

	_, err := newTestPredictor(provider).Predict(context.Background(), Request{
		ActiveFireIDs: []string{"O", "nowhere", "F", "O", "ghost"},
		Topology:      testTopology(),
		HorizonHours:  0,
	})
	require.NoError(t, err)

	require.Len(t, provider.requests, 1)
	want := domain.PredictionRequest{ActiveNodeIDs: []string{"F", "O"}, HorizonHours: 1}
	if diff := cmp.Diff(want, provider.requests[0]); diff != "" {
		t.Fatalf("provider request mismatch (-want +got):\n%s", diff)
	}
}

func TestPredictor_NoLocatedOriginsSkipsProvider(t *testing.T) {
	provider := &mockProvider{}

	got, err := newTestPredictor(provider).Predict(context.Background(), Request{
		ActiveFireIDs: []string{"nowhere"},
		Topology:      testTopology(),
		HorizonHours:  24,
	})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, provider.calls)
}

func TestPredictor_AllCategorySentinelKeepsTargets(t *testing.T) {
	for _, category := range []string{"", "all", "ALL", " All "} {
		t.Run(category, func(t *testing.T) {
			provider := &mockProvider{preds: domain.PredictionMap{
				"O": {
					{TargetID: "T", WillReach: true},
					{TargetID: "U", WillReach: true},
				},
			}}

			got, err := newTestPredictor(provider).Predict(context.Background(), Request{
				ActiveFireIDs: []string{"O"},
				Topology:      testTopology(),
				HorizonHours:  6,
				Category:      category,
			})
			require.NoError(t, err)
			assert.Len(t, got["O"], 2)
		})
	}
}

func TestPredictor_RetriesOnce(t *testing.T) {
	provider := &mockProvider{
		errs:  []error{errors.New("connection reset")},
		preds: domain.PredictionMap{"O": {{TargetID: "T", WillReach: true}}},
	}

	got, err := newTestPredictor(provider).Predict(context.Background(), Request{
		ActiveFireIDs: []string{"O"},
		Topology:      testTopology(),
		HorizonHours:  24,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	assert.Len(t, got["O"], 1)
}

func TestPredictor_UnavailableAfterRetry(t *testing.T) {
	provider := &mockProvider{errs: []error{errors.New("down"), errors.New("still down"), nil}}

	_, err := newTestPredictor(provider).Predict(context.Background(), Request{
		ActiveFireIDs: []string{"O"},
		Topology:      testTopology(),
		HorizonHours:  24,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPredictionUnavailable)
	assert.Contains(t, err.Error(), "still down")
	assert.Equal(t, 2, provider.calls, "at most one retry")
}

func TestPredictor_Timeout(t *testing.T) {
	p := NewPredictor(blockingProvider{}, retry.Policy{MaxAttempts: 1}, 20*time.Millisecond,
		observability.NewMetricsForTesting(), testLogger())

	_, err := p.Predict(context.Background(), Request{
		ActiveFireIDs: []string{"O"},
		Topology:      testTopology(),
		HorizonHours:  24,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPredictionUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPredictor_RetriesAfterTimedOutAttempt(t *testing.T) {
	provider := &hangOnceProvider{preds: domain.PredictionMap{"O": {{TargetID: "T", WillReach: true}}}}
	p := NewPredictor(provider, retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond},
		20*time.Millisecond, observability.NewMetricsForTesting(), testLogger())

	got, err := p.Predict(context.Background(), Request{
		ActiveFireIDs: []string{"O"},
		Topology:      testTopology(),
		HorizonHours:  24,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, provider.calls)
	require.Len(t, got["O"], 1)
	assert.Equal(t, "T", got["O"][0].TargetID)
}

func TestPredictor_SameInputsSameOutput(t *testing.T) {
	provider := &mockProvider{preds: domain.PredictionMap{
		"O": {
			{TargetID: "U", WillReach: true},
			{TargetID: "T", WillReach: true},
		},
	}}
	p := newTestPredictor(provider)
	req := Request{ActiveFireIDs: []string{"O"}, Topology: testTopology(), HorizonHours: 12}

	first, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	second, err := p.Predict(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
