package pipeline

import (
	"context"
	"log/slog"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
)

// ReadingDecoder implements Decoder using the domain message parser.
type ReadingDecoder struct {
	logger *slog.Logger
}

// NewDecoder creates a ReadingDecoder.
func NewDecoder(logger *slog.Logger) *ReadingDecoder {
	return &ReadingDecoder{logger: logger}
}

func (d *ReadingDecoder) Decode(_ context.Context, raw domain.RawEvent) (domain.Reading, error) {
	r, err := domain.ParseRawEvent(raw)
	if err != nil {
		return domain.Reading{}, err
	}
	if !r.Timestamp.Valid() {
		d.logger.Debug("reading has unparseable timestamp", "reading_id", r.ID, "node_id", r.NodeID)
	}
	return r, nil
}
