// Command genmock generates a synthetic node topology and a stream of raw
// sensor readings for load tests and local runs. Output is deterministic for
// a given seed: nodes are scattered around a centre point, a few start out
// burning, and readings use every timestamp encoding the decoder accepts.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -nodes-out data/mock/generated_nodes.json \
//	  -readings-out data/mock/generated_readings.json \
//	  -nodes 40 -per-node 24 -seed 7
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	"github.com/jonboulle/clockwork"
)

// baseTime is the instant the generated history ends at.
var baseTime = time.Date(2024, time.April, 26, 18, 0, 0, 0, time.UTC)

var categories = []string{"forest", "forest", "forest", "urban", "agricultural"}

type options struct {
	nodesOut    string
	readingsOut string
	nodes       int
	perNode     int
	seed        uint64
	fireRatio   float64
	centerLat   float64
	centerLon   float64
	spreadKm    float64
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	var o options
	flag.StringVar(&o.nodesOut, "nodes-out", "", "output path for the node topology fixture")
	flag.StringVar(&o.readingsOut, "readings-out", "", "output path for the raw readings fixture")
	flag.IntVar(&o.nodes, "nodes", 40, "number of nodes")
	flag.IntVar(&o.perNode, "per-node", 24, "readings per node, one per hour")
	flag.Uint64Var(&o.seed, "seed", 7, "random seed")
	flag.Float64Var(&o.fireRatio, "fire-ratio", 0.1, "fraction of nodes that start out burning")
	flag.Float64Var(&o.centerLat, "lat", 43.2300, "latitude of the deployment centre")
	flag.Float64Var(&o.centerLon, "lon", 5.4500, "longitude of the deployment centre")
	flag.Float64Var(&o.spreadKm, "spread-km", 8, "radius nodes are scattered over")
	flag.Parse()

	if o.nodesOut == "" || o.readingsOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -nodes-out, -readings-out")
	}
	if o.nodes <= 0 || o.perNode <= 0 {
		return fmt.Errorf("-nodes and -per-node must be positive")
	}

	// A fixed clock keeps relative timestamps reproducible.
	clock := clockwork.NewFakeClockAt(baseTime)
	domain.SetClock(clock)
	defer domain.SetClock(nil)

	rng := rand.New(rand.NewPCG(o.seed, o.seed^0x9e3779b97f4a7c15))

	nodes := generateNodes(rng, o)
	records := generateReadings(rng, clock, nodes, o.perNode)

	if err := writeJSON(o.nodesOut, nodes); err != nil {
		return fmt.Errorf("writing nodes fixture: %w", err)
	}
	log.Printf("wrote %d nodes: %s", len(nodes), o.nodesOut)

	if err := writeJSON(o.readingsOut, records); err != nil {
		return fmt.Errorf("writing readings fixture: %w", err)
	}
	log.Printf("wrote %d readings: %s", len(records), o.readingsOut)

	return printStats(nodes, records)
}

func generateNodes(rng *rand.Rand, o options) []domain.Node {
	nodes := make([]domain.Node, o.nodes)
	for i := range nodes {
		// Uniform over a disc; one degree of latitude is about 111 km.
		r := o.spreadKm * math.Sqrt(rng.Float64()) / 111
		theta := rng.Float64() * 2 * math.Pi
		lat := o.centerLat + r*math.Cos(theta)
		lon := o.centerLon + r*math.Sin(theta)/math.Cos(o.centerLat*math.Pi/180)

		n := domain.Node{
			ID:          fmt.Sprintf("node-%03d", i+1),
			Name:        fmt.Sprintf("Sensor %d", i+1),
			Coordinates: &domain.Geo{Lat: round(lat, 5), Lon: round(lon, 5)},
			Status:      domain.StatusOK,
			Category:    categories[rng.IntN(len(categories))],
			LastSeen:    domain.FromTime(baseTime),
		}
		switch p := rng.Float64(); {
		case p < o.fireRatio:
			n.Status = domain.StatusFire
		case p < o.fireRatio+0.1:
			n.Status = domain.StatusWarning
		case p > 0.97:
			n.Status = domain.StatusOffline
			n.Coordinates = nil
		}
		nodes[i] = n
	}
	return nodes
}

// generateReadings emits perNode hourly readings per node, ending at the
// clock's current time. Burning nodes report hotter and flag fire more often.
func generateReadings(rng *rand.Rand, clock clockwork.Clock, nodes []domain.Node, perNode int) []map[string]any {
	records := make([]map[string]any, 0, len(nodes)*perNode)
	for _, n := range nodes {
		for h := perNode - 1; h >= 0; h-- {
			at := clock.Now().Add(-time.Duration(h) * time.Hour).Add(time.Duration(rng.IntN(3600)) * time.Second)

			temp := 18 + rng.Float64()*30
			co2 := 300 + rng.Float64()*80
			conf := rng.Float64() * 0.5
			fire := false
			if n.IsFire() && rng.Float64() < 0.7 {
				temp += 25 + rng.Float64()*30
				co2 += 60 + rng.Float64()*150
				conf = 0.6 + rng.Float64()*0.4
				fire = true
			}

			records = append(records, map[string]any{
				"id":          fmt.Sprintf("%s-%04d", n.ID, perNode-h),
				"nodeId":      n.ID,
				"timestamp":   encodeTimestamp(rng, at),
				"temperature": round(temp, 1),
				"co2Level":    round(co2, 0),
				"confidence":  round(conf, 2),
				"isFire":      fire,
			})
		}
	}
	return records
}

// encodeTimestamp picks one of the producer encodings seen in the field.
func encodeTimestamp(rng *rand.Rand, t time.Time) any {
	switch rng.IntN(10) {
	case 0:
		return t.Unix()
	case 1:
		return map[string]int64{"_seconds": t.Unix(), "_nanoseconds": int64(t.Nanosecond())}
	case 2, 3:
		return t.UnixMilli()
	default:
		return t.Format(time.RFC3339)
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats decodes the generated readings the same way the pipeline does
// and prints the numbers tests and dashboards should show.
func printStats(nodes []domain.Node, records []map[string]any) error {
	readings := make([]domain.Reading, 0, len(records))
	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		r, err := domain.ParseRawEvent(domain.RawEvent{Value: payload})
		if err != nil {
			return fmt.Errorf("generated reading does not decode: %w", err)
		}
		readings = append(readings, r)
	}

	th := domain.DefaultThresholds()
	window := domain.WindowEnding(baseTime, 24*time.Hour)
	sel := domain.Select(nodes, readings, domain.Criteria{Window: &window}, th)
	report := domain.BuildReport(sel, domain.Select(nodes, readings, domain.Criteria{Window: ptr(domain.PreviousWindow(window))}, th), 5)

	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Nodes: %d, readings: %d\n", len(nodes), len(readings))
	fmt.Printf("Last 24h: total=%d fire=%d detection=%.1f%% avg_confidence=%.1f%%\n",
		report.Summary.TotalReadings, report.Summary.FireReadings, report.Summary.DetectionRate, report.Summary.AvgConfidence)
	t := report.Summary.Tiers
	fmt.Printf("Tiers: critical=%d high=%d moderate=%d watch=%d\n", t.Critical, t.High, t.Moderate, t.Watch)
	fmt.Printf("Active fires: %v\n", sel.ActiveFireIDs())

	byCategory := map[string]int{}
	for _, n := range nodes {
		byCategory[n.Category]++
	}
	keys := make([]string, 0, len(byCategory))
	for k := range byCategory {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Print("Categories:")
	for _, k := range keys {
		fmt.Printf(" %s=%d", k, byCategory[k])
	}
	fmt.Println()

	fmt.Println("Top nodes:")
	for _, row := range report.TopNodes {
		fmt.Printf("  %s count=%d fire=%d mean_temp=%.1f\n", row.Key, row.Count, row.FireCount, row.MeanTemperature)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
