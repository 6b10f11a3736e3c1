package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadingDecoder_WithMockData(t *testing.T) {
	decoder := pipeline.NewDecoder(discardLogger())
	th := domain.DefaultThresholds()

	var (
		decoded   []domain.Reading
		rejected  int
		fires     int
		unparsed  int
		tierCount domain.TierCounts
	)
	for i, msg := range readMockMessages(t) {
		r, err := decoder.Decode(context.Background(), domain.RawEvent{Value: msg})
		if err != nil {
			rejected++
			continue
		}
		decoded = append(decoded, r)

		assert.NotEmpty(t, r.ID, "message %d", i)
		assert.GreaterOrEqual(t, r.Confidence, 0.0, "message %d", i)
		assert.LessOrEqual(t, r.Confidence, 1.0, "message %d", i)
		if r.IsFire {
			fires++
		}
		if !r.Timestamp.Valid() {
			unparsed++
		}
		tierCount.Add(domain.Classify(r, th))
	}

	assert.Len(t, decoded, 14)
	assert.Equal(t, 2, rejected, "messages without a node id")
	assert.Equal(t, 4, fires)
	assert.Equal(t, 1, unparsed)
	assert.Equal(t, domain.TierCounts{Critical: 1, High: 2, Moderate: 3, Watch: 8}, tierCount)

	byID := make(map[string]domain.Reading, len(decoded))
	for _, r := range decoded {
		byID[r.ID] = r
	}

	// Every timestamp encoding lands on the same clock.
	epochMillis, ok := byID["rd-0002"].Timestamp.Millis()
	require.True(t, ok)
	assert.Equal(t, int64(1714141500000), epochMillis)

	native, ok := byID["rd-0003"].Timestamp.Millis()
	require.True(t, ok)
	assert.Equal(t, int64(1714142400000), native)

	seconds, ok := byID["rd-0005"].Timestamp.Millis()
	require.True(t, ok)
	assert.Equal(t, int64(1714143300000), seconds)

	// Numeric strings and string booleans decode.
	assert.Equal(t, 39.5, byID["rd-0004"].Temperature)
	assert.False(t, byID["rd-0004"].IsFire)
	assert.True(t, byID["rd-0007"].IsFire)

	// Nulls decode to zero values and negative confidence clamps.
	assert.Zero(t, byID["rd-0011"].Temperature)
	assert.Zero(t, byID["rd-0013"].Confidence)

	var generated int
	for id := range byID {
		if !strings.HasPrefix(id, "rd-00") {
			generated++
		}
	}
	assert.Equal(t, 1, generated, "one message arrives without an id")
}

func TestReadingDecoder_MockDataIsDeterministic(t *testing.T) {
	decoder := pipeline.NewDecoder(discardLogger())
	msgs := readMockMessages(t)

	first := make([]string, 0, len(msgs))
	second := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if r, err := decoder.Decode(context.Background(), domain.RawEvent{Value: msg}); err == nil {
			first = append(first, r.ID)
		}
		if r, err := decoder.Decode(context.Background(), domain.RawEvent{Value: msg}); err == nil {
			second = append(second, r.ID)
		}
	}
	assert.Equal(t, first, second, "generated ids are stable across replays")
}

func readMockMessages(t *testing.T) []json.RawMessage {
	t.Helper()
	path := filepath.Join("..", "..", "data", "mock", "readings.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var msgs []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &msgs))
	return msgs
}
