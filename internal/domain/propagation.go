package domain

import (
	"context"
	"math"
)

// PropagationPrediction states whether a fire at Origin reaches Target within
// HorizonHours. Predictions are ephemeral and never persisted.
type PropagationPrediction struct {
	OriginID       string  `json:"origin_id"`
	TargetID       string  `json:"target_id"`
	WillReach      bool    `json:"will_reach"`
	DistanceMeters float64 `json:"distance_meters"`
	HorizonHours   int     `json:"horizon_hours"`
}

// PredictionMap groups predictions by origin node id.
type PredictionMap map[string][]PropagationPrediction

// PredictionRequest is the input handed to a PredictionProvider.
type PredictionRequest struct {
	ActiveNodeIDs []string `json:"activeNodeIds"`
	HorizonHours  int      `json:"horizonHours"`
}

// PredictionProvider runs the fire-spread model. It is the only collaborator
// of the engine that performs I/O and can fail.
type PredictionProvider interface {
	Predict(ctx context.Context, req PredictionRequest) (PredictionMap, error)
}

// MinHorizonHours is the smallest horizon the engine will ask about.
const MinHorizonHours = 1

// HorizonHours derives the default horizon from a window: its length in whole
// hours, rounded up, and never below MinHorizonHours.
func HorizonHours(w TimeWindow) int {
	h := int(math.Ceil(w.Duration().Hours()))
	return ClampHorizon(h)
}

// ClampHorizon raises h to MinHorizonHours when it is smaller.
func ClampHorizon(h int) int {
	if h < MinHorizonHours {
		return MinHorizonHours
	}
	return h
}
