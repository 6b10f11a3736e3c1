// Package postgres loads the sensor node topology from PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/fire-threat-engine/internal/domain"
	_ "github.com/lib/pq"
)

const listNodesQuery = `SELECT id, name, latitude, longitude, status, category, last_seen
FROM nodes
ORDER BY id`

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NodeRepository reads nodes from the nodes table.
type NodeRepository struct {
	db *sql.DB
}

// NewNodeRepository creates a NodeRepository over an open database.
func NewNodeRepository(db *sql.DB) *NodeRepository {
	return &NodeRepository{db: db}
}

// ListNodes returns every node ordered by id. Nodes without both coordinates
// are returned with nil Coordinates.
func (r *NodeRepository) ListNodes(ctx context.Context) ([]domain.Node, error) {
	rows, err := r.db.QueryContext(ctx, listNodesQuery)
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Node
	for rows.Next() {
		var (
			n        domain.Node
			name     sql.NullString
			lat, lon sql.NullFloat64
			status   sql.NullString
			category sql.NullString
			lastSeen sql.NullTime
		)
		if err := rows.Scan(&n.ID, &name, &lat, &lon, &status, &category, &lastSeen); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}

		n.Name = name.String
		n.Category = category.String
		n.Status = domain.NodeStatus(strings.ToUpper(strings.TrimSpace(status.String)))
		if lat.Valid && lon.Valid {
			n.Coordinates = &domain.Geo{Lat: lat.Float64, Lon: lon.Float64}
		}
		if lastSeen.Valid {
			n.LastSeen = domain.FromTime(lastSeen.Time)
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}
	return nodes, nil
}
