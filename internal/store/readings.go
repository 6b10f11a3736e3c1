// Package store holds the in-memory snapshots the engine computes over: the
// recent reading history and the current node topology.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/jonboulle/clockwork"
)

type storedReading struct {
	reading    domain.Reading
	ingestedAt time.Time
}

// ReadingStore keeps readings for a bounded retention period. Readings are
// keyed by id, so a redelivered message replaces its earlier copy.
type ReadingStore struct {
	retention time.Duration
	clock     clockwork.Clock

	mu       sync.RWMutex
	readings []storedReading
	index    map[string]int
}

// NewReadingStore creates a store that keeps readings newer than retention.
func NewReadingStore(retention time.Duration, clock clockwork.Clock) *ReadingStore {
	return &ReadingStore{
		retention: retention,
		clock:     clock,
		index:     make(map[string]int),
	}
}

// LoadBatch adds readings to the store.
func (s *ReadingStore) LoadBatch(_ context.Context, readings []domain.Reading) error {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range readings {
		if i, ok := s.index[r.ID]; ok {
			s.readings[i] = storedReading{reading: r, ingestedAt: now}
			continue
		}
		s.index[r.ID] = len(s.readings)
		s.readings = append(s.readings, storedReading{reading: r, ingestedAt: now})
	}
	return nil
}

// Snapshot returns a copy of the stored readings in arrival order.
func (s *ReadingStore) Snapshot() []domain.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Reading, len(s.readings))
	for i, sr := range s.readings {
		out[i] = sr.reading
	}
	return out
}

// Len returns the number of stored readings.
func (s *ReadingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// Prune drops readings older than the retention period and returns how many
// were removed. Readings with unparseable timestamps age by ingestion time.
func (s *ReadingStore) Prune() int {
	cutoff := s.clock.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.readings)
	s.readings = slices.DeleteFunc(s.readings, func(sr storedReading) bool {
		if ts, ok := sr.reading.Timestamp.Millis(); ok {
			return ts < cutoff.UnixMilli()
		}
		return sr.ingestedAt.Before(cutoff)
	})
	if removed := before - len(s.readings); removed > 0 {
		clear(s.index)
		for i, sr := range s.readings {
			s.index[sr.reading.ID] = i
		}
		return removed
	}
	return 0
}

// RunPruner prunes on every interval tick until ctx is cancelled.
func (s *ReadingStore) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Prune()
		}
	}
}
