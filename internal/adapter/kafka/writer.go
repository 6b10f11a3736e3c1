package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/config"
	"github.com/couchcryptid/fire-threat-engine/internal/service"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes threat assessments to the threats topic.
// It implements service.AssessmentSink.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured threats topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaThreatsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes one assessment and writes it to the threats topic.
func (w *Writer) Publish(ctx context.Context, view service.ThreatView) error {
	msg, err := serializeAssessment(uuid.NewString(), view)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write assessment: %w", err)
	}
	w.logger.Debug("assessment written", "assessment_id", string(msg.Key), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeAssessment marshals a ThreatView into a Kafka message keyed by id.
func serializeAssessment(id string, view service.ThreatView) (kafkago.Message, error) {
	data, err := json.Marshal(view)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize assessment: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(id),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "assessment_id", Value: []byte(id)},
			{Key: "generated_at", Value: []byte(view.GeneratedAt.Format(time.RFC3339))},
			{Key: "stale", Value: []byte(strconv.FormatBool(view.Stale))},
		},
	}, nil
}
