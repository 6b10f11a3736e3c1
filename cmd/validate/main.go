// Command validate checks a node topology fixture and a raw readings fixture
// for integrity before they are used in tests or replayed into Kafka. It
// verifies node ids, statuses, and coordinates, decodes every reading the way
// the pipeline does, and cross-checks readings against the topology.
//
// Usage:
//
//	go run ./cmd/validate \
//	  -nodes data/mock/nodes.json \
//	  -readings data/mock/readings.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
)

var knownStatuses = map[domain.NodeStatus]bool{
	domain.StatusOK:      true,
	domain.StatusWarning: true,
	domain.StatusFire:    true,
	domain.StatusBurned:  true,
	domain.StatusOffline: true,
}

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	nodesPath := flag.String("nodes", "", "path to the node topology JSON fixture")
	readingsPath := flag.String("readings", "", "path to the raw readings JSON fixture")
	flag.Parse()

	if *nodesPath == "" || *readingsPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(*nodesPath, *readingsPath); code != 0 {
		os.Exit(code)
	}
}

func run(nodesPath, readingsPath string) int {
	fmt.Println("=== Fire Threat Fixture Validation ===")
	fmt.Println()

	nodes, err := loadJSON[domain.Node](nodesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load nodes: %v\n", err)
		return 1
	}
	raws, err := loadJSON[json.RawMessage](readingsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: load readings: %v\n", err)
		return 1
	}

	readings, decode := decodeReadings(raws)
	phases := []*phase{
		validateTopology(nodes),
		decode,
		validateReferences(readings, domain.IndexNodes(nodes)),
	}

	fmt.Println()
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Records: %d nodes, %d raw readings, %d decoded\n", len(nodes), len(raws), len(readings))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

func loadJSON[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func validateTopology(nodes []domain.Node) *phase {
	p := &phase{name: "Topology integrity"}
	seen := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		switch {
		case n.ID == "":
			p.errorf("node %d: missing id", i)
		case seen[n.ID]:
			p.errorf("node %d: duplicate id %q", i, n.ID)
		}
		seen[n.ID] = true

		if !knownStatuses[n.Status] {
			p.errorf("node %q: unknown status %q", n.ID, n.Status)
		}
		if n.Category == "" {
			p.errorf("node %q: missing category", n.ID)
		}
		if n.Coordinates != nil && !n.Coordinates.Valid() {
			p.errorf("node %q: coordinates out of range (%v, %v)", n.ID, n.Coordinates.Lat, n.Coordinates.Lon)
		}
	}
	return p
}

// decodeReadings runs every message through the pipeline decoder. Messages
// without a node id are expected rejects and only counted.
func decodeReadings(raws []json.RawMessage) ([]domain.Reading, *phase) {
	p := &phase{name: "Reading decoding"}
	readings := make([]domain.Reading, 0, len(raws))
	ids := make(map[string]int, len(raws))
	var rejected, unparseable int

	for i, raw := range raws {
		r, err := domain.ParseRawEvent(domain.RawEvent{Value: raw})
		if err != nil {
			rejected++
			continue
		}
		if prev, dup := ids[r.ID]; dup {
			p.errorf("reading %d: id %q already used by reading %d", i, r.ID, prev)
		}
		ids[r.ID] = i
		if !r.Timestamp.Valid() {
			unparseable++
		}
		readings = append(readings, r)
	}

	fmt.Printf("Decoded %d readings, rejected %d, unparseable timestamps %d\n", len(readings), rejected, unparseable)
	return readings, p
}

func validateReferences(readings []domain.Reading, topology domain.NodeIndex) *phase {
	p := &phase{name: "Reading to topology cross-reference"}
	for _, r := range readings {
		if _, ok := topology[r.NodeID]; !ok {
			p.errorf("reading %q: unknown node %q", r.ID, r.NodeID)
		}
	}
	return p
}
