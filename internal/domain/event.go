package domain

import (
	"context"
	"time"
)

// NodeStatus is the externally governed sensor-site status.
type NodeStatus string

const (
	StatusOK      NodeStatus = "OK"
	StatusWarning NodeStatus = "WARNING"
	StatusFire    NodeStatus = "FIRE"
	StatusBurned  NodeStatus = "BURNED"
	StatusOffline NodeStatus = "OFFLINE"
)

// CategoryAll is the filter sentinel that passes every category.
const CategoryAll = "all"

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Node is a monitored site. Coordinates is nil when the site has not been located.
type Node struct {
	ID          string     `json:"id"`
	Name        string     `json:"name,omitempty"`
	Coordinates *Geo       `json:"coordinates,omitempty"`
	Status      NodeStatus `json:"status"`
	Category    string     `json:"category"`
	LastSeen    Timestamp  `json:"last_seen"`
}

// IsFire reports whether the node's own status marks it as burning.
func (n Node) IsFire() bool {
	return n.Status == StatusFire
}

// InCategory reports whether n passes a category filter. The sentinel passes
// every node.
func (n Node) InCategory(category string) bool {
	return IsAllCategory(category) || n.Category == category
}

// Located returns the node's coordinates when they are present and valid.
func (n Node) Located() (Geo, bool) {
	if n.Coordinates == nil || !n.Coordinates.Valid() {
		return Geo{}, false
	}
	return *n.Coordinates, true
}

// Reading is a single sensor observation. It is immutable once decoded.
type Reading struct {
	ID          string    `json:"id"`
	NodeID      string    `json:"node_id"`
	Timestamp   Timestamp `json:"timestamp"`
	Temperature float64   `json:"temperature"`
	CO2Level    float64   `json:"co2_level"`
	Confidence  float64   `json:"confidence"`
	IsFire      bool      `json:"is_fire"`
}

// RawEvent represents an unprocessed message from the readings topic.
type RawEvent struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// NodeIndex maps node ids to nodes for lookups during filtering.
type NodeIndex map[string]Node

// IndexNodes builds a NodeIndex. Later duplicates overwrite earlier ones.
func IndexNodes(nodes []Node) NodeIndex {
	idx := make(NodeIndex, len(nodes))
	for _, n := range nodes {
		idx[n.ID] = n
	}
	return idx
}
