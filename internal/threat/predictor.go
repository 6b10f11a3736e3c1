// Package threat turns the active-fire subset of a selection into propagation
// predictions and a renderable threat assessment.
package threat

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/observability"
	"github.com/couchcryptid/fire-threat-engine/internal/retry"
)

// ErrPredictionUnavailable is returned when the spread model could not be
// reached within the timeout and retry budget. It is always retryable.
var ErrPredictionUnavailable = errors.New("propagation prediction unavailable")

// Request describes one prediction run.
type Request struct {
	// ActiveFireIDs are the post-filter fire origins.
	ActiveFireIDs []string
	// Topology is the full node set, including nodes outside the caller's view.
	Topology domain.NodeIndex
	// HorizonHours below 1 are raised to 1.
	HorizonHours int
	// Category restricts targets; empty or "all" keeps every target.
	Category string
}

// Predictor orchestrates calls to the external spread model.
type Predictor struct {
	provider domain.PredictionProvider
	policy   retry.Policy
	timeout  time.Duration
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewPredictor creates a Predictor. The timeout bounds each attempt, so a hung
// first call still leaves room for the retry. A zero timeout leaves attempts
// bounded only by the caller's context.
func NewPredictor(provider domain.PredictionProvider, policy retry.Policy, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Predictor {
	return &Predictor{
		provider: provider,
		policy:   policy,
		timeout:  timeout,
		metrics:  metrics,
		logger:   logger,
	}
}

// Predict returns, for every located origin, its predictions ordered by
// distance then target id. Origins without coordinates are skipped.
func (p *Predictor) Predict(ctx context.Context, req Request) (domain.PredictionMap, error) {
	origins := locatedOrigins(req.ActiveFireIDs, req.Topology)
	if len(origins) == 0 {
		return domain.PredictionMap{}, nil
	}
	horizon := domain.ClampHorizon(req.HorizonHours)

	start := time.Now()
	var raw domain.PredictionMap
	err := retry.Do(ctx, p.policy, func(ctx context.Context) error {
		if p.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.timeout)
			defer cancel()
		}
		var err error
		raw, err = p.provider.Predict(ctx, domain.PredictionRequest{
			ActiveNodeIDs: origins,
			HorizonHours:  horizon,
		})
		return err
	})
	p.metrics.PredictionDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPredictionUnavailable, err)
	}

	out := assemble(raw, origins, req.Topology, horizon, req.Category)
	p.logger.Debug("predictions assembled",
		"origins", len(origins),
		"horizon_hours", horizon,
		"category", req.Category,
	)
	return out, nil
}

// locatedOrigins returns the sorted, de-duplicated fire ids that exist in the
// topology with valid coordinates.
func locatedOrigins(ids []string, topology domain.NodeIndex) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		n, ok := topology[id]
		if !ok {
			continue
		}
		if _, ok := n.Located(); ok {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func assemble(raw domain.PredictionMap, origins []string, topology domain.NodeIndex, horizon int, category string) domain.PredictionMap {
	out := make(domain.PredictionMap, len(origins))
	for _, originID := range origins {
		origin := topology[originID]
		seen := make(map[string]bool)
		preds := make([]domain.PropagationPrediction, 0, len(raw[originID]))

		for _, pred := range raw[originID] {
			if pred.TargetID == originID || seen[pred.TargetID] {
				continue
			}
			target, ok := topology[pred.TargetID]
			if !ok || !target.InCategory(category) {
				continue
			}
			d, ok := domain.NodeDistance(origin, target)
			if !ok {
				continue
			}
			seen[pred.TargetID] = true

			pred.OriginID = originID
			if pred.DistanceMeters <= 0 || math.IsNaN(pred.DistanceMeters) || math.IsInf(pred.DistanceMeters, 0) {
				pred.DistanceMeters = d
			}
			if pred.HorizonHours < domain.MinHorizonHours {
				pred.HorizonHours = horizon
			}
			preds = append(preds, pred)
		}

		slices.SortFunc(preds, func(a, b domain.PropagationPrediction) int {
			return cmp.Or(
				cmp.Compare(a.DistanceMeters, b.DistanceMeters),
				cmp.Compare(a.TargetID, b.TargetID),
			)
		})
		out[originID] = preds
	}
	return out
}

