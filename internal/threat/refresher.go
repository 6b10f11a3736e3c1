package threat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ErrSuperseded is returned to a refresh that was overtaken by a newer one for
// the same view. Its result is discarded.
var ErrSuperseded = errors.New("prediction refresh superseded")

// maxViews bounds how many distinct views keep a last-good prediction set.
const maxViews = 256

// PredictionSet is the outcome of one refresh. Stale is set when it is the
// last good set served after a failed refresh.
type PredictionSet struct {
	Predictions  domain.PredictionMap `json:"predictions"`
	Origins      []string             `json:"origins"`
	HorizonHours int                  `json:"horizon_hours"`
	ComputedAt   time.Time            `json:"computed_at"`
	Stale        bool                 `json:"stale"`
}

// Forecaster produces predictions for a request. *Predictor implements it.
type Forecaster interface {
	Predict(ctx context.Context, req Request) (domain.PredictionMap, error)
}

type view struct {
	gen     uint64
	cancel  context.CancelFunc
	last    *PredictionSet
	touched time.Time
}

// Refresher applies last-request-wins and stale-while-revalidate to
// prediction refreshes. Each view key (typically category and horizon) is
// tracked independently so viewers of different views never cancel each other.
type Refresher struct {
	forecaster Forecaster
	clock      clockwork.Clock
	metrics    *observability.Metrics
	logger     *slog.Logger

	mu    sync.Mutex
	views map[string]*view
}

// NewRefresher creates a Refresher around a Forecaster.
func NewRefresher(f Forecaster, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Refresher {
	return &Refresher{
		forecaster: f,
		clock:      clock,
		metrics:    metrics,
		logger:     logger,
		views:      make(map[string]*view),
	}
}

// Refresh recomputes predictions for a view, cancelling any older in-flight
// refresh of the same view. On failure the previous good set is returned with
// Stale set, together with the error. A superseded refresh returns the current
// last-good set and ErrSuperseded.
func (r *Refresher) Refresh(ctx context.Context, key string, req Request) (PredictionSet, error) {
	r.mu.Lock()
	v := r.viewLocked(key)
	v.gen++
	gen := v.gen
	if v.cancel != nil {
		v.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	v.cancel = cancel
	r.mu.Unlock()
	defer cancel()

	preds, err := r.forecaster.Predict(ctx, req)

	r.mu.Lock()
	defer r.mu.Unlock()

	if v.gen != gen {
		r.metrics.PredictionRequests.WithLabelValues("superseded").Inc()
		r.logger.Debug("prediction refresh superseded", "view", key)
		return v.snapshot(), ErrSuperseded
	}
	v.cancel = nil

	if err != nil {
		r.metrics.PredictionRequests.WithLabelValues("error").Inc()
		r.metrics.PredictionStale.Set(1)
		r.logger.Warn("prediction refresh failed, serving last good set",
			"view", key,
			"has_last_good", v.last != nil,
			"error", err,
		)
		if v.last == nil {
			return PredictionSet{Predictions: domain.PredictionMap{}, Stale: true}, err
		}
		v.last.Stale = true
		return v.snapshot(), err
	}

	r.metrics.PredictionRequests.WithLabelValues("success").Inc()
	r.metrics.PredictionStale.Set(0)
	v.last = &PredictionSet{
		Predictions:  preds,
		Origins:      locatedOrigins(req.ActiveFireIDs, req.Topology),
		HorizonHours: domain.ClampHorizon(req.HorizonHours),
		ComputedAt:   r.clock.Now(),
	}
	return v.snapshot(), nil
}

// Last returns the last good set for a view, if any.
func (r *Refresher) Last(key string) (PredictionSet, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[key]
	if !ok || v.last == nil {
		return PredictionSet{}, false
	}
	return v.snapshot(), true
}

func (r *Refresher) viewLocked(key string) *view {
	now := r.clock.Now()
	if v, ok := r.views[key]; ok {
		v.touched = now
		return v
	}
	if len(r.views) >= maxViews {
		r.evictOldestLocked()
	}
	v := &view{touched: now}
	r.views[key] = v
	return v
}

// evictOldestLocked drops the least recently refreshed idle view.
func (r *Refresher) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, v := range r.views {
		if v.cancel != nil {
			continue
		}
		if oldestKey == "" || v.touched.Before(oldest) {
			oldestKey, oldest = k, v.touched
		}
	}
	if oldestKey != "" {
		delete(r.views, oldestKey)
	}
}

func (v *view) snapshot() PredictionSet {
	if v.last == nil {
		return PredictionSet{Predictions: domain.PredictionMap{}}
	}
	return *v.last
}
