package store

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/observability"
	"github.com/jonboulle/clockwork"
)

// NodeSource lists every node of the topology.
type NodeSource interface {
	ListNodes(ctx context.Context) ([]domain.Node, error)
}

// TopologyStore holds the last successfully loaded node set.
type TopologyStore struct {
	mu     sync.RWMutex
	nodes  []domain.Node
	loaded atomic.Bool
}

// NewTopologyStore creates an empty topology store.
func NewTopologyStore() *TopologyStore {
	return &TopologyStore{}
}

// Replace swaps in a new node set.
func (s *TopologyStore) Replace(nodes []domain.Node) {
	s.mu.Lock()
	s.nodes = nodes
	s.mu.Unlock()
	s.loaded.Store(true)
}

// Nodes returns the current node set. Callers must not modify it.
func (s *TopologyStore) Nodes() []domain.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodes
}

// CheckReadiness returns nil once a topology has been loaded.
func (s *TopologyStore) CheckReadiness(_ context.Context) error {
	if !s.loaded.Load() {
		return errors.New("node topology has not been loaded yet")
	}
	return nil
}

// TopologyLoader refreshes a TopologyStore from a NodeSource on an interval.
// A failed refresh keeps the previous topology in place.
type TopologyLoader struct {
	source   NodeSource
	store    *TopologyStore
	interval time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewTopologyLoader creates a TopologyLoader.
func NewTopologyLoader(source NodeSource, store *TopologyStore, interval time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *TopologyLoader {
	return &TopologyLoader{
		source:   source,
		store:    store,
		interval: interval,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// Refresh loads the topology once.
func (l *TopologyLoader) Refresh(ctx context.Context) error {
	nodes, err := l.source.ListNodes(ctx)
	if err != nil {
		l.metrics.TopologyRefreshErrors.Inc()
		return err
	}
	l.store.Replace(nodes)
	l.metrics.TopologyNodes.Set(float64(len(nodes)))
	return nil
}

// Run refreshes immediately and then on every interval until ctx is cancelled.
func (l *TopologyLoader) Run(ctx context.Context) {
	l.logger.Info("topology loader started", "interval", l.interval)
	if err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
		l.logger.Error("topology refresh failed", "error", err)
	}

	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("topology loader stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			if err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
				l.logger.Warn("topology refresh failed, keeping previous topology", "error", err)
			}
		}
	}
}
