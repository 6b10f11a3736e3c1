package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/observability"
	"github.com/jonboulle/clockwork"
)

// ThreatSource computes a threat view for a query. *Engine implements it.
type ThreatSource interface {
	Threats(ctx context.Context, q Query) ThreatView
}

// AssessmentSink publishes threat views downstream.
type AssessmentSink interface {
	Publish(ctx context.Context, view ThreatView) error
}

// PublisherConfig sets the default operator view that is published on every tick.
type PublisherConfig struct {
	Interval time.Duration
	Range    time.Duration
	Category string
}

// Publisher periodically recomputes the default view and publishes it.
type Publisher struct {
	source  ThreatSource
	sink    AssessmentSink
	cfg     PublisherConfig
	clock   clockwork.Clock
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(source ThreatSource, sink AssessmentSink, cfg PublisherConfig, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Publisher {
	return &Publisher{
		source:  source,
		sink:    sink,
		cfg:     cfg,
		clock:   clock,
		metrics: metrics,
		logger:  logger,
	}
}

// PublishOnce computes and publishes one assessment of the default view.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	view := p.source.Threats(ctx, Query{
		Window:   domain.WindowEnding(p.clock.Now(), p.cfg.Range),
		Category: p.cfg.Category,
	})

	p.metrics.ActiveFires.Set(float64(len(view.FireNodes)))
	p.metrics.ThreatenedNodes.Set(float64(len(view.ThreatenedNodes)))

	if err := p.sink.Publish(ctx, view); err != nil {
		return fmt.Errorf("publish assessment: %w", err)
	}
	p.metrics.AssessmentsPublished.Inc()

	p.logger.Info("assessment published",
		"fires", len(view.FireNodes),
		"threatened", len(view.ThreatenedNodes),
		"stale", view.Stale,
	)
	return nil
}

// Run publishes on every interval tick until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	p.logger.Info("publisher started", "interval", p.cfg.Interval, "range", p.cfg.Range, "category", p.cfg.Category)

	ticker := p.clock.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("publisher stopping", "reason", ctx.Err())
			return
		case <-ticker.Chan():
			if err := p.PublishOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("publish failed", "error", err)
			}
		}
	}
}
