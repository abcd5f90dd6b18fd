package config

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Tina0529/chatbot-kb-monitor/monitor/internal/locate"
)

// Schema for the ops database tables kbmon reads. Operators maintain
// these tables out of band; kbmon only ever SELECTs from them.
const Schema = `
CREATE TABLE IF NOT EXISTS monitor_regions (
	region     TEXT PRIMARY KEY,
	strategies TEXT DEFAULT '[]',
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS monitor_markers (
	kind       TEXT PRIMARY KEY,
	markers    TEXT DEFAULT '[]',
	updated_at INTEGER NOT NULL
);
`

type dbStrategy struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// LoadRegions reads locator chain overrides from the monitor_regions
// table. Strategies are stored as a JSON array per region.
func LoadRegions(ctx context.Context, db *sql.DB) (map[string][]locate.Strategy, error) {
	rows, err := db.QueryContext(ctx, `SELECT region, strategies FROM monitor_regions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	regions := make(map[string][]locate.Strategy)
	for rows.Next() {
		var region, strategiesJSON string
		if err := rows.Scan(&region, &strategiesJSON); err != nil {
			return nil, err
		}

		var raw []dbStrategy
		if err := json.Unmarshal([]byte(strategiesJSON), &raw); err != nil {
			return nil, fmt.Errorf("config: region %q strategies: %w", region, err)
		}
		strategies := make([]locate.Strategy, 0, len(raw))
		for _, s := range raw {
			strategies = append(strategies, locate.Strategy{Kind: locate.Kind(s.Kind), Value: s.Value})
		}
		regions[region] = strategies
	}
	return regions, rows.Err()
}

// LoadMarkers reads status marker overrides from the monitor_markers
// table. Recognized kinds: failure, processing, success, retry_label.
func LoadMarkers(ctx context.Context, db *sql.DB) (map[string][]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, markers FROM monitor_markers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	markers := make(map[string][]string)
	for rows.Next() {
		var kind, markersJSON string
		if err := rows.Scan(&kind, &markersJSON); err != nil {
			return nil, err
		}

		var list []string
		if err := json.Unmarshal([]byte(markersJSON), &list); err != nil {
			return nil, fmt.Errorf("config: markers %q: %w", kind, err)
		}
		markers[kind] = list
	}
	return markers, rows.Err()
}

// ApplyDB overlays the config with overrides from the ops database.
// Empty lists in the database are ignored, matching the file loader's
// treatment of empty YAML lists.
func (c *Config) ApplyDB(ctx context.Context, db *sql.DB) error {
	regions, err := LoadRegions(ctx, db)
	if err != nil {
		return fmt.Errorf("config: load regions: %w", err)
	}
	markers, err := LoadMarkers(ctx, db)
	if err != nil {
		return fmt.Errorf("config: load markers: %w", err)
	}

	if c.Monitoring.Regions == nil {
		c.Monitoring.Regions = make(map[string][]locate.Strategy)
	}
	for region, strategies := range regions {
		if len(strategies) > 0 {
			c.Monitoring.Regions[region] = strategies
		}
	}

	if list := markers["failure"]; len(list) > 0 {
		c.Monitoring.FailureMarkers = list
	}
	if list := markers["processing"]; len(list) > 0 {
		c.Monitoring.ProcessingMarkers = list
	}
	if list := markers["success"]; len(list) > 0 {
		c.Monitoring.SuccessMarkers = list
	}
	if list := markers["retry_label"]; len(list) > 0 {
		c.Monitoring.RetryLabels = list
	}
	return nil
}
