package spread

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/retry"
	"github.com/go-resty/resty/v2"
)

const predictPath = "/v1/predict"

// Client implements domain.PredictionProvider against the external
// fire-spread model service.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewClient creates a spread-model client. Retries are left to the caller's
// retry policy, so resty's own retry support stays disabled.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		http:   client,
		logger: logger,
	}
}

// Predict asks the model which nodes each active fire reaches within the
// requested horizon. Client errors (4xx) are marked permanent.
func (c *Client) Predict(ctx context.Context, req domain.PredictionRequest) (domain.PredictionMap, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		Post(predictPath)
	if err != nil {
		return nil, fmt.Errorf("spread request: %w", err)
	}

	if resp.IsError() {
		err := fmt.Errorf("spread model error: status %d: %s", resp.StatusCode(), resp.String())
		if resp.StatusCode() < http.StatusInternalServerError && resp.StatusCode() != http.StatusTooManyRequests {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}

	var body response
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return nil, fmt.Errorf("decode spread response: %w", err)
	}

	out := make(domain.PredictionMap, len(body.Predictions))
	total := 0
	for origin, targets := range body.Predictions {
		preds := make([]domain.PropagationPrediction, 0, len(targets))
		for _, t := range targets {
			p := domain.PropagationPrediction{
				OriginID:     origin,
				TargetID:     t.TargetID,
				WillReach:    t.WillReach,
				HorizonHours: req.HorizonHours,
			}
			if t.DistanceMeters != nil {
				p.DistanceMeters = *t.DistanceMeters
			}
			if t.HorizonHours > 0 {
				p.HorizonHours = t.HorizonHours
			}
			preds = append(preds, p)
		}
		out[origin] = preds
		total += len(preds)
	}

	c.logger.Debug("spread predictions received",
		"origins", len(out),
		"predictions", total,
		"horizon_hours", req.HorizonHours,
	)
	return out, nil
}

// Spread model API response types.

type response struct {
	Predictions map[string][]target `json:"predictions"`
}

type target struct {
	TargetID       string   `json:"targetId"`
	WillReach      bool     `json:"willReach"`
	DistanceMeters *float64 `json:"distanceMeters"`
	HorizonHours   int      `json:"horizonHours"`
}
