// Package mapping rewrites change entries crossing a peer boundary:
// table and column renames, constant and expression transforms, row
// filters, and multi-target fan-out, all driven by a JSON config file.
package mapping

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/steveyegge/tandem/internal/lql"
	"github.com/steveyegge/tandem/internal/types"
)

// ConfigVersion is the only config format version this build reads.
const ConfigVersion = "1.0"

// Direction limits a mapping to one replication direction. Values are
// matched case-insensitively on load.
type Direction string

const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
	DirectionBoth Direction = "both"
)

func (d Direction) valid() bool {
	return d == DirectionPush || d == DirectionPull || d == DirectionBoth
}

func (d Direction) includesPush() bool { return d == DirectionPush || d == DirectionBoth }
func (d Direction) includesPull() bool { return d == DirectionPull || d == DirectionBoth }

// UnmappedBehavior decides what happens to entries for tables no
// mapping covers.
type UnmappedBehavior string

const (
	// Strict rejects unmapped tables; the sync pass fails.
	Strict UnmappedBehavior = "strict"
	// Passthrough forwards unmapped tables unchanged. The default.
	Passthrough UnmappedBehavior = "passthrough"
)

// Transform names a column mapping's value source.
type Transform string

const (
	// TransformNone copies the source column under the target name.
	TransformNone Transform = "none"
	// TransformConstant writes a fixed value into the target column.
	TransformConstant Transform = "constant"
	// TransformLql evaluates an expression against the whole source row.
	TransformLql Transform = "lql"
)

// TrackingStrategy picks what a sync-tracking column records.
type TrackingStrategy string

const (
	// TrackVersion stamps the source entry's log version.
	TrackVersion TrackingStrategy = "version"
	// TrackHash stamps a SHA-256 of the emitted payload.
	TrackHash TrackingStrategy = "hash"
)

// ColumnMapping maps one target column from source data.
type ColumnMapping struct {
	Source    string    `json:"source,omitempty"`
	Target    string    `json:"target"`
	Transform Transform `json:"transform,omitempty"`
	// Value is the constant for TransformConstant.
	Value string `json:"value,omitempty"`
	// LQL is the expression source for TransformLql.
	LQL string `json:"lql,omitempty"`
}

// PKMapping renames the primary key column across the boundary.
type PKMapping struct {
	SourceColumn string `json:"source_column"`
	TargetColumn string `json:"target_column"`
}

// Filter drops rows whose expression evaluates falsy ("", "0",
// "false"). Deletes always pass: there is no payload to test.
type Filter struct {
	LQL string `json:"lql"`
}

// SyncTracking stamps a bookkeeping column into every pushed payload so
// the far side can tell which replication pass wrote a row.
type SyncTracking struct {
	Enabled        bool             `json:"enabled"`
	TrackingColumn string           `json:"tracking_column,omitempty"`
	Strategy       TrackingStrategy `json:"strategy,omitempty"`
}

// Target describes one fan-out table with its own column mapping set.
type Target struct {
	Table          string          `json:"table"`
	ColumnMappings []ColumnMapping `json:"column_mappings,omitempty"`
}

// TableMapping binds one source table to a target table, or to several
// when MultiTarget is set.
type TableMapping struct {
	ID          string    `json:"id"`
	SourceTable string    `json:"source_table"`
	TargetTable string    `json:"target_table,omitempty"`
	Direction   Direction `json:"direction,omitempty"`
	// Enabled defaults to true when omitted; a disabled mapping is
	// treated like no mapping at all.
	Enabled         *bool           `json:"enabled,omitempty"`
	PKMapping       *PKMapping      `json:"pk_mapping,omitempty"`
	ColumnMappings  []ColumnMapping `json:"column_mappings,omitempty"`
	ExcludedColumns []string        `json:"excluded_columns,omitempty"`
	Filter          *Filter         `json:"filter,omitempty"`
	SyncTracking    *SyncTracking   `json:"sync_tracking,omitempty"`
	MultiTarget     bool            `json:"multi_target,omitempty"`
	Targets         []Target        `json:"targets,omitempty"`
}

// IsEnabled reports whether the mapping participates in lookup.
func (m *TableMapping) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Config is the root of a mapping file.
type Config struct {
	Version          string           `json:"version"`
	UnmappedBehavior UnmappedBehavior `json:"unmapped_table_behavior,omitempty"`
	Mappings         []TableMapping   `json:"mappings"`
}

// Load reads and validates a mapping config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates mapping config JSON.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, types.InvalidArgumentf("mapping config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the whole config, normalizes enum casing, and makes
// sure every LQL expression parses.
func (c *Config) Validate() error {
	if c.Version != ConfigVersion {
		return types.InvalidArgumentf("mapping config: unsupported version %q (want %q)", c.Version, ConfigVersion)
	}
	c.UnmappedBehavior = UnmappedBehavior(strings.ToLower(string(c.UnmappedBehavior)))
	switch c.UnmappedBehavior {
	case "", Strict, Passthrough:
	default:
		return types.InvalidArgumentf("mapping config: unknown unmapped_table_behavior %q", c.UnmappedBehavior)
	}
	seenID := map[string]bool{}
	seenTable := map[string]bool{}
	for i := range c.Mappings {
		m := &c.Mappings[i]
		if m.ID == "" {
			return types.InvalidArgumentf("mapping %d: id is required", i)
		}
		if seenID[m.ID] {
			return types.InvalidArgumentf("mapping %q: duplicate id", m.ID)
		}
		seenID[m.ID] = true
		if m.SourceTable == "" {
			return types.InvalidArgumentf("mapping %q: source_table is required", m.ID)
		}
		key := strings.ToLower(m.SourceTable)
		if seenTable[key] {
			return types.InvalidArgumentf("mapping %q: duplicate mapping for table %q", m.ID, m.SourceTable)
		}
		seenTable[key] = true
		if err := m.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (m *TableMapping) validate() error {
	m.Direction = Direction(strings.ToLower(string(m.Direction)))
	if m.Direction == "" {
		m.Direction = DirectionBoth
	}
	if !m.Direction.valid() {
		return types.InvalidArgumentf("mapping %q: unknown direction %q", m.ID, m.Direction)
	}
	if m.MultiTarget || len(m.Targets) > 0 {
		if len(m.Targets) == 0 {
			return types.InvalidArgumentf("mapping %q: multi_target set but no targets given", m.ID)
		}
		for ti := range m.Targets {
			tgt := &m.Targets[ti]
			if tgt.Table == "" {
				return types.InvalidArgumentf("mapping %q: target %d: table is required", m.ID, ti)
			}
			if err := validateColumns(m.ID, tgt.ColumnMappings); err != nil {
				return err
			}
		}
	} else {
		if m.TargetTable == "" {
			return types.InvalidArgumentf("mapping %q: target_table is required", m.ID)
		}
		if err := validateColumns(m.ID, m.ColumnMappings); err != nil {
			return err
		}
	}
	if p := m.PKMapping; p != nil {
		if p.SourceColumn == "" || p.TargetColumn == "" {
			return types.InvalidArgumentf("mapping %q: pk_mapping needs source_column and target_column", m.ID)
		}
	}
	if m.Filter != nil {
		if _, err := lql.Parse(m.Filter.LQL); err != nil {
			return types.InvalidArgumentf("mapping %q: filter: %v", m.ID, err)
		}
	}
	if st := m.SyncTracking; st != nil && st.Enabled {
		if st.TrackingColumn == "" {
			return types.InvalidArgumentf("mapping %q: sync_tracking needs a tracking_column", m.ID)
		}
		st.Strategy = TrackingStrategy(strings.ToLower(string(st.Strategy)))
		switch st.Strategy {
		case "", TrackVersion, TrackHash:
		default:
			return types.InvalidArgumentf("mapping %q: unknown sync_tracking strategy %q", m.ID, st.Strategy)
		}
	}
	return nil
}

func validateColumns(id string, cols []ColumnMapping) error {
	for i := range cols {
		cm := &cols[i]
		if cm.Target == "" {
			return types.InvalidArgumentf("mapping %q: column mapping %d: target is required", id, i)
		}
		cm.Transform = Transform(strings.ToLower(string(cm.Transform)))
		if cm.Transform == "" {
			cm.Transform = TransformNone
		}
		switch cm.Transform {
		case TransformNone:
			if cm.Source == "" {
				return types.InvalidArgumentf("mapping %q: column %q: source is required", id, cm.Target)
			}
		case TransformConstant:
			if cm.Value == "" {
				return types.InvalidArgumentf("mapping %q: column %q: constant transform needs a value", id, cm.Target)
			}
		case TransformLql:
			if _, err := lql.Parse(cm.LQL); err != nil {
				return types.InvalidArgumentf("mapping %q: column %q: %v", id, cm.Target, err)
			}
		default:
			return types.InvalidArgumentf("mapping %q: column %q: unknown transform %q", id, cm.Target, cm.Transform)
		}
	}
	return nil
}

// targets returns the effective fan-out list: the explicit target
// descriptors, or the single inline target.
func (m *TableMapping) targets() []Target {
	if len(m.Targets) > 0 {
		return m.Targets
	}
	return []Target{{Table: m.TargetTable, ColumnMappings: m.ColumnMappings}}
}
