package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RawReadingRecord is the JSON shape sensors publish to the readings topic.
// Numeric fields may arrive as numbers, numeric strings, or null.
type RawReadingRecord struct {
	ID          string    `json:"id"`
	NodeID      string    `json:"nodeId"`
	Timestamp   Timestamp `json:"timestamp"`
	Temperature flexFloat `json:"temperature"`
	CO2Level    flexFloat `json:"co2Level"`
	Confidence  flexFloat `json:"confidence"`
	IsFire      flexBool  `json:"isFire"`
}

// ParseRawEvent decodes a readings-topic message into a Reading. A message
// without a usable node id is rejected; every other defect degrades to a
// sentinel (zero values, Unparseable timestamp) so the reading still counts.
func ParseRawEvent(raw RawEvent) (Reading, error) {
	var rec RawReadingRecord
	if err := json.Unmarshal(raw.Value, &rec); err != nil {
		return Reading{}, fmt.Errorf("parse raw reading: %w", err)
	}

	nodeID := strings.TrimSpace(rec.NodeID)
	if nodeID == "" {
		return Reading{}, fmt.Errorf("parse raw reading: missing nodeId")
	}

	r := Reading{
		ID:          strings.TrimSpace(rec.ID),
		NodeID:      nodeID,
		Timestamp:   rec.Timestamp,
		Temperature: float64(rec.Temperature),
		CO2Level:    float64(rec.CO2Level),
		Confidence:  clampConfidence(float64(rec.Confidence)),
		IsFire:      bool(rec.IsFire),
	}
	if r.ID == "" {
		r.ID = generateID(r, raw.Value)
	}
	return r, nil
}

// clampConfidence forces a confidence score into [0, 1].
func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c), c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// generateID produces a deterministic ID for readings the producer did not
// label, so replaying the same message never duplicates it downstream.
func generateID(r Reading, payload []byte) string {
	ts, _ := r.Timestamp.Millis()
	input := fmt.Sprintf("%s|%d|%g|%g|%g|%t", r.NodeID, ts, r.Temperature, r.CO2Level, r.Confidence, r.IsFire)
	if !r.Timestamp.Valid() {
		input += "|" + string(payload)
	}
	hash := sha256.Sum256([]byte(input))
	return "rd-" + hex.EncodeToString(hash[:8])
}

// parseFloatOrZero parses a string as float64, returning 0 on failure or for
// NaN and infinities.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// flexFloat decodes a JSON number, numeric string, or null. Anything else is 0.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			*f = 0
			return nil //nolint:nilerr // malformed numbers decode as 0
		}
		*f = flexFloat(parseFloatOrZero(s))
		return nil
	}
	*f = flexFloat(parseFloatOrZero(string(data)))
	return nil
}

// flexBool decodes true/false, "true"/"false", 1/0, or null.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		*b = true
	default:
		*b = false
	}
	return nil
}
