package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/couchcryptid/fire-threat-engine/internal/service"
)

// parseQuery reads the common query parameters:
//
//	from, to   timestamps in any supported encoding; to defaults to now
//	range      Go duration used when from is absent
//	category   node category, "all" or empty for every category
//	severity   tier name, "all" or empty for every tier
//	horizon    prediction horizon in hours; 0 derives it from the window
//	top        number of ranked nodes in reports
func parseQuery(r *http.Request, opts Options) (service.Query, error) {
	v := r.URL.Query()

	end := opts.Clock.Now().UnixMilli()
	if raw := v.Get("to"); raw != "" {
		ms, err := parseMillis("to", raw)
		if err != nil {
			return service.Query{}, err
		}
		end = ms
	}

	length := opts.DefaultRange
	if raw := v.Get("range"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return service.Query{}, fmt.Errorf("invalid range %q", raw)
		}
		length = d
	}
	start := end - length.Milliseconds()
	if raw := v.Get("from"); raw != "" {
		ms, err := parseMillis("from", raw)
		if err != nil {
			return service.Query{}, err
		}
		start = ms
	}
	if start >= end {
		return service.Query{}, fmt.Errorf("from must be before to")
	}

	severity, err := domain.ParseSeverityTier(v.Get("severity"))
	if err != nil {
		return service.Query{}, err
	}

	horizon, err := optionalInt(v.Get("horizon"), "horizon", 0)
	if err != nil {
		return service.Query{}, err
	}
	top, err := optionalInt(v.Get("top"), "top", opts.DefaultTopN)
	if err != nil {
		return service.Query{}, err
	}

	category := strings.TrimSpace(v.Get("category"))
	if domain.IsAllCategory(category) {
		category = ""
	}

	return service.Query{
		Window:       domain.TimeWindow{Start: start, End: end},
		Category:     category,
		Severity:     severity,
		HorizonHours: horizon,
		TopN:         top,
	}, nil
}

func parseMillis(name, raw string) (int64, error) {
	ms, ok := domain.ParseTimestamp(raw).Millis()
	if !ok {
		return 0, fmt.Errorf("invalid %s timestamp %q", name, raw)
	}
	return ms, nil
}

func optionalInt(raw, name string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}
